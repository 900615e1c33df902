package types

import (
	"github.com/pkg/errors"
)

// Environment is the simulated control task the agent interacts with
type Environment interface {
	// Spec describes the observation and action spaces
	Spec() *EnvSpec
	// Reset called at the start of each episode
	Reset() (State, error)
	// Step applies the action and advances the simulation by one time step
	Step(Action) (*StepResult, error)
	// Render draws the current state, no-op for headless environments
	Render() error
}

// State is an observation of the environment
type State []float64

// Copy returns a state that does not share the backing array
func (s State) Copy() State {
	out := make(State, len(s))
	copy(out, s)
	return out
}

// Action is the index of a discrete action
type Action int

// StepResult is what the environment returns for a single step
type StepResult struct {
	Observation State
	Reward      float64
	Done        bool
	Info        map[string]interface{}
}

// Bound of a single state dimension
type Bound struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// EnvSpec captures the dimensions of an environment.
// Computed once when the experiment starts and never mutated afterwards.
type EnvSpec struct {
	StateDim    int      `json:"state_dim"`
	StateBounds []Bound  `json:"state_bounds"`
	ActionDim   int      `json:"action_dim"`
	Actions     []Action `json:"actions"`
}

// NewEnvSpec builds the spec from the declared observation space
// (low and high vectors) and the number of discrete actions
func NewEnvSpec(low, high []float64, actions int) (*EnvSpec, error) {
	if len(low) != len(high) {
		return nil, errors.Errorf("observation bounds mismatch: %d low, %d high", len(low), len(high))
	}
	if len(low) == 0 {
		return nil, errors.New("empty observation space")
	}
	if actions <= 0 {
		return nil, errors.Errorf("invalid number of actions: %d", actions)
	}
	bounds := make([]Bound, len(low))
	for i := range low {
		bounds[i] = Bound{Low: low[i], High: high[i]}
	}
	acts := make([]Action, actions)
	for i := 0; i < actions; i++ {
		acts[i] = Action(i)
	}
	return &EnvSpec{
		StateDim:    len(low),
		StateBounds: bounds,
		ActionDim:   actions,
		Actions:     acts,
	}, nil
}

// ValidAction checks that the action is one of the enumerated actions
func (e *EnvSpec) ValidAction(a Action) bool {
	return int(a) >= 0 && int(a) < e.ActionDim
}

// CheckState returns an error if the state does not match the state dimension
func (e *EnvSpec) CheckState(s State) error {
	if len(s) != e.StateDim {
		return errors.Errorf("malformed observation: expected %d dimensions, got %d", e.StateDim, len(s))
	}
	return nil
}
