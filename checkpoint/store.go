// Package checkpoint provides the stores learner checkpoints are saved to.
package checkpoint

import (
	"context"

	"github.com/pkg/errors"
	"github.com/zeu5/dqn-cartpole/types"
)

// ErrNotFound is returned by every store when a handle has nothing behind it
var ErrNotFound = errors.New("checkpoint not found")

// Lister is implemented by stores that can enumerate their checkpoints
type Lister interface {
	List(ctx context.Context) ([]types.Handle, error)
}

// Store is a checkpointer that can be listed and released
type Store interface {
	types.Checkpointer
	Lister
	Close() error
}

// IsNotFound reports whether err (or its cause) is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
