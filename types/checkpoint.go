package types

import (
	"context"
	"encoding"
	"time"
)

// Handle identifies a saved checkpoint, opaque to everything but the store that issued it
type Handle string

// Checkpointable learners can be saved and restored
type Checkpointable interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// Checkpointer persists learner state at episode boundaries
type Checkpointer interface {
	// Save the state reached at the end of the episode
	Save(ctx context.Context, episode int, state encoding.BinaryMarshaler) (Handle, error)
	// Restore the state behind the handle into the learner
	Restore(ctx context.Context, handle Handle, into encoding.BinaryUnmarshaler) error
}

// CheckpointConfig enables checkpointing for an experiment
type CheckpointConfig struct {
	Checkpointer Checkpointer
	// Every saves when episode % Every == 0, 0 disables saving
	Every int
	// RestoreFrom is restored before the first episode when non empty
	RestoreFrom Handle
}

// CheckpointRecord is the outcome of a single save
type CheckpointRecord struct {
	Episode int           `json:"episode"`
	Handle  Handle        `json:"handle,omitempty"`
	Err     string        `json:"error,omitempty"`
	Took    time.Duration `json:"took"`
}

func (c CheckpointRecord) Ok() bool {
	return c.Err == ""
}
