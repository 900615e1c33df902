package types

// Transition produced by a single step: (action, reward, resulting state, done).
// The episode runner hands it to the memory and forgets it.
type Transition struct {
	Action    Action
	Reward    float64
	NextState State
	Done      bool
}

// Experience is a transition completed with the state it started from
type Experience struct {
	State     State
	Action    Action
	Reward    float64
	NextState State
	Done      bool
}

// NewExperience completes the transition with the state it was taken from
func NewExperience(state State, t Transition) *Experience {
	return &Experience{
		State:     state,
		Action:    t.Action,
		Reward:    t.Reward,
		NextState: t.NextState,
		Done:      t.Done,
	}
}

// Memory stores the experiences of the agent.
// The current state is tracked so that Add only needs the transition.
type Memory interface {
	// ResetState sets the start of a new trajectory
	ResetState(State)
	// Add records the transition taken from the current state
	Add(Transition) error
	// Sample n experiences
	Sample(int) ([]*Experience, error)
	// Len is the number of stored experiences
	Len() int
}

// Learner holds the value function approximator
type Learner interface {
	// Init (re)initializes the parameters
	Init() error
	// SelectAction for the given state, may explore
	SelectAction(State) (Action, error)
	// Train performs one update from the memory
	Train(Memory) error
}
