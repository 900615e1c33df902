package types

import (
	"context"
	"encoding"
	"errors"
	"fmt"
)

// scriptedEnv returns rewards[t] at step t and terminates at step doneAt
// (1-based, 0 means never)
type scriptedEnv struct {
	spec    *EnvSpec
	rewards []float64
	doneAt  int

	t        int
	resets   int
	renders  int
	steps    int
	stepErr  error
	resetErr error
	// steps that succeed before stepErr is returned
	failAfter int
}

var _ Environment = &scriptedEnv{}

func newScriptedEnv(doneAt int, rewards ...float64) *scriptedEnv {
	spec, _ := NewEnvSpec([]float64{-1, -1}, []float64{1, 1}, 2)
	return &scriptedEnv{spec: spec, rewards: rewards, doneAt: doneAt}
}

func (s *scriptedEnv) Spec() *EnvSpec { return s.spec }

func (s *scriptedEnv) Reset() (State, error) {
	if s.resetErr != nil {
		return nil, s.resetErr
	}
	s.resets++
	s.t = 0
	return State{0, 0}, nil
}

func (s *scriptedEnv) Step(a Action) (*StepResult, error) {
	if s.stepErr != nil && s.t >= s.failAfter {
		return nil, s.stepErr
	}
	s.steps++
	reward := 1.0
	if s.t < len(s.rewards) {
		reward = s.rewards[s.t]
	}
	s.t++
	return &StepResult{
		Observation: State{float64(s.t), 0},
		Reward:      reward,
		Done:        s.doneAt > 0 && s.t >= s.doneAt,
	}, nil
}

func (s *scriptedEnv) Render() error {
	s.renders++
	return nil
}

type recordingMemory struct {
	state       State
	experiences []*Experience
	resets      int
}

var _ Memory = &recordingMemory{}

func (m *recordingMemory) ResetState(s State) {
	m.resets++
	m.state = s
}

func (m *recordingMemory) Add(t Transition) error {
	m.experiences = append(m.experiences, NewExperience(m.state, t))
	m.state = t.NextState
	return nil
}

func (m *recordingMemory) Sample(n int) ([]*Experience, error) {
	if n > len(m.experiences) {
		return nil, errors.New("not enough experiences")
	}
	return m.experiences[:n], nil
}

func (m *recordingMemory) Len() int { return len(m.experiences) }

type countingLearner struct {
	inits    int
	selects  int
	trains   int
	restored string
	trainErr error
}

var _ Learner = &countingLearner{}
var _ Checkpointable = &countingLearner{}

func (c *countingLearner) Init() error {
	c.inits++
	return nil
}

func (c *countingLearner) SelectAction(State) (Action, error) {
	c.selects++
	return Action(c.selects % 2), nil
}

func (c *countingLearner) Train(Memory) error {
	c.trains++
	return c.trainErr
}

func (c *countingLearner) MarshalBinary() ([]byte, error) {
	return []byte(fmt.Sprintf("trains=%d", c.trains)), nil
}

func (c *countingLearner) UnmarshalBinary(data []byte) error {
	c.restored = string(data)
	return nil
}

// plainLearner cannot be checkpointed
type plainLearner struct{}

func (plainLearner) Init() error                        { return nil }
func (plainLearner) SelectAction(State) (Action, error) { return 0, nil }
func (plainLearner) Train(Memory) error                 { return nil }

type memoryCheckpointer struct {
	saved   map[Handle][]byte
	order   []int
	failOn  int
	failErr error
}

var _ Checkpointer = &memoryCheckpointer{}

func newMemoryCheckpointer() *memoryCheckpointer {
	return &memoryCheckpointer{saved: make(map[Handle][]byte), failOn: -1}
}

func (m *memoryCheckpointer) Save(_ context.Context, episode int, state encoding.BinaryMarshaler) (Handle, error) {
	if episode == m.failOn {
		return "", m.failErr
	}
	bs, err := state.MarshalBinary()
	if err != nil {
		return "", err
	}
	h := Handle(fmt.Sprintf("mem-%d", episode))
	m.saved[h] = bs
	m.order = append(m.order, episode)
	return h, nil
}

func (m *memoryCheckpointer) Restore(_ context.Context, h Handle, into encoding.BinaryUnmarshaler) error {
	bs, ok := m.saved[h]
	if !ok {
		return errors.New("no such checkpoint")
	}
	return into.UnmarshalBinary(bs)
}
