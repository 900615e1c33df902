package dqn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/dqn-cartpole/types"
)

func testLearner(t *testing.T, mutate func(*Config)) (*Learner, *ReplayMemory) {
	config := DefaultConfig()
	config.Seed = 11
	config.BatchSize = 4
	config.TargetUpdateSteps = 3
	if mutate != nil {
		mutate(config)
	}
	spec := testSpec(t)
	l, err := NewLearner(spec, config)
	require.NoError(t, err)
	require.NoError(t, l.Init())
	m, err := NewMemory(spec, config)
	require.NoError(t, err)
	m.ResetState(types.State{0, 0})
	return l, m
}

func fill(t *testing.T, m *ReplayMemory, n int) {
	for i := 0; i < n; i++ {
		require.NoError(t, m.Add(types.Transition{
			Action:    types.Action(i % 2),
			Reward:    1,
			NextState: types.State{float64(i%5) / 5, -float64(i%3) / 3},
			Done:      i%7 == 6,
		}))
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := []func(*Config){
		func(c *Config) { c.LearningRate = 0 },
		func(c *Config) { c.Gamma = 1.5 },
		func(c *Config) { c.EpsilonMin = 2 },
		func(c *Config) { c.EpsilonDecay = 0 },
		func(c *Config) { c.BatchSize = 0 },
		func(c *Config) { c.Hidden = []int{0} },
	}
	for i, mutate := range bad {
		c := DefaultConfig()
		mutate(c)
		assert.Error(t, c.Validate(), "case %d", i)
	}
}

func TestSelectActionInRange(t *testing.T) {
	l, _ := testLearner(t, nil)
	for i := 0; i < 100; i++ {
		a, err := l.SelectAction(types.State{0.1, -0.1})
		require.NoError(t, err)
		assert.True(t, a == 0 || a == 1)
	}
	_, err := l.SelectAction(types.State{0.1})
	assert.Error(t, err)
}

func TestGreedyWithoutExploration(t *testing.T) {
	l, _ := testLearner(t, func(c *Config) {
		c.Epsilon = 0
		c.EpsilonMin = 0
	})
	s := types.State{0.3, 0.7}
	q, err := l.QValues(s)
	require.NoError(t, err)
	best := types.Action(0)
	if q[1] > q[0] {
		best = 1
	}
	for i := 0; i < 10; i++ {
		a, err := l.SelectAction(s)
		require.NoError(t, err)
		assert.Equal(t, best, a)
	}
}

func TestTrainWaitsForBatch(t *testing.T) {
	l, m := testLearner(t, nil)
	fill(t, m, 3)
	q, _ := l.QValues(types.State{0, 0})

	require.NoError(t, l.Train(m))
	assert.Equal(t, 0, l.Updates())
	assert.Equal(t, 1.0, l.Epsilon())
	after, _ := l.QValues(types.State{0, 0})
	assert.Equal(t, q, after)

	fill(t, m, 1)
	require.NoError(t, l.Train(m))
	assert.Equal(t, 1, l.Updates())
	assert.InDelta(t, 0.995, l.Epsilon(), 1e-12)
}

func TestEpsilonFloor(t *testing.T) {
	l, m := testLearner(t, func(c *Config) { c.EpsilonDecay = 0.5 })
	fill(t, m, 10)
	for i := 0; i < 20; i++ {
		require.NoError(t, l.Train(m))
	}
	assert.Equal(t, 0.01, l.Epsilon())
}

func TestTargetSync(t *testing.T) {
	l, m := testLearner(t, nil)
	fill(t, m, 20)
	s := []float64{0.2, 0.4}

	require.NoError(t, l.Train(m))
	require.NoError(t, l.Train(m))
	assert.NotEqual(t, l.online.predict(s), l.target.predict(s), "target lags the online network")

	require.NoError(t, l.Train(m))
	assert.Equal(t, l.online.predict(s), l.target.predict(s))
}

func TestLearnerCheckpointRoundTrip(t *testing.T) {
	l, m := testLearner(t, nil)
	fill(t, m, 20)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Train(m))
	}
	data, err := l.MarshalBinary()
	require.NoError(t, err)

	restored, _ := testLearner(t, func(c *Config) { c.Seed = 99 })
	require.NoError(t, restored.UnmarshalBinary(data))

	s := types.State{0.5, -0.5}
	expected, _ := l.QValues(s)
	obtained, _ := restored.QValues(s)
	assert.Equal(t, expected, obtained)
	assert.Equal(t, l.Epsilon(), restored.Epsilon())
	assert.Equal(t, l.Updates(), restored.Updates())

	assert.Error(t, restored.UnmarshalBinary(data[:10]))
}
