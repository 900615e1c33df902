package dqn

import (
	"github.com/gammazero/deque"
	"github.com/pkg/errors"
	"github.com/zeu5/dqn-cartpole/types"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// ReplayMemory is a fixed capacity store of experiences, oldest evicted first.
// It remembers the current state of the trajectory so that Add only needs
// the transition that follows it.
type ReplayMemory struct {
	spec     *types.EnvSpec
	capacity int
	state    types.State
	events   deque.Deque[*types.Experience]
	rand     *rand.Rand
}

var _ types.Memory = &ReplayMemory{}

func NewReplayMemory(spec *types.EnvSpec, capacity int, seed uint64) (*ReplayMemory, error) {
	if capacity <= 0 {
		return nil, errors.Errorf("memory capacity must be positive, got %d", capacity)
	}
	return &ReplayMemory{
		spec:     spec,
		capacity: capacity,
		rand:     rand.New(rand.NewSource(seed)),
	}, nil
}

// ResetState starts a new trajectory from s
func (m *ReplayMemory) ResetState(s types.State) {
	m.state = s.Copy()
}

// Add stores the experience (current state, transition) and moves
// the current state to the next state of the transition
func (m *ReplayMemory) Add(t types.Transition) error {
	if m.state == nil {
		return errors.New("add called before the state was reset")
	}
	if err := m.spec.CheckState(t.NextState); err != nil {
		return err
	}
	if !m.spec.ValidAction(t.Action) {
		return errors.Errorf("invalid action %d", t.Action)
	}
	next := t.NextState.Copy()
	t.NextState = next
	m.events.PushBack(types.NewExperience(m.state, t))
	for m.events.Len() > m.capacity {
		m.events.PopFront()
	}
	m.state = next
	return nil
}

// Sample n distinct experiences uniformly at random
func (m *ReplayMemory) Sample(n int) ([]*types.Experience, error) {
	if n < 0 || n > m.events.Len() {
		return nil, errors.Errorf("cannot sample %d experiences out of %d", n, m.events.Len())
	}
	idx := make([]int, n)
	sampleuv.WithoutReplacement(idx, m.events.Len(), m.rand)
	batch := make([]*types.Experience, n)
	for i, j := range idx {
		batch[i] = m.events.At(j)
	}
	return batch, nil
}

func (m *ReplayMemory) Len() int {
	return m.events.Len()
}

func (m *ReplayMemory) Capacity() int {
	return m.capacity
}

// State is the current state of the trajectory
func (m *ReplayMemory) State() types.State {
	return m.state
}
