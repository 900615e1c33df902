package types

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAgent(env *scriptedEnv, horizon int) (*Agent, *recordingMemory, *countingLearner) {
	memory := &recordingMemory{}
	learner := &countingLearner{}
	return NewAgent(&AgentConfig{
		Horizon:     horizon,
		Environment: env,
		Memory:      memory,
		Learner:     learner,
	}), memory, learner
}

func TestRunEpisodeTerminatesEarly(t *testing.T) {
	env := newScriptedEnv(4, 1, 2, 3, 4, 5, 6)
	agent, memory, learner := newTestAgent(env, MaxSteps)

	result, err := agent.RunEpisode(NewEpisodeContext(context.Background(), "run", 7))
	require.NoError(t, err)

	assert.Equal(t, 7, result.Episode)
	assert.Equal(t, 4, result.Steps)
	assert.Equal(t, 3, result.LastStep)
	assert.Equal(t, 10.0, result.TotalReward)
	assert.True(t, result.Done)

	assert.Equal(t, 4, env.steps)
	assert.Equal(t, 4, env.renders)
	assert.Equal(t, 1, env.resets)
	assert.Equal(t, 4, learner.selects)
	assert.Equal(t, 4, learner.trains)
	assert.Equal(t, 1, memory.resets)
	require.Len(t, memory.experiences, 4)
	assert.True(t, memory.experiences[3].Done)
	assert.False(t, memory.experiences[2].Done)
}

func TestRunEpisodeRunsToHorizon(t *testing.T) {
	env := newScriptedEnv(0)
	agent, memory, learner := newTestAgent(env, MaxSteps)

	result, err := agent.RunEpisode(NewEpisodeContext(context.Background(), "run", 0))
	require.NoError(t, err)

	assert.Equal(t, MaxSteps, result.Steps)
	assert.Equal(t, MaxSteps-1, result.LastStep)
	assert.Equal(t, float64(MaxSteps), result.TotalReward)
	assert.False(t, result.Done)
	assert.Equal(t, MaxSteps, env.steps)
	assert.Equal(t, MaxSteps, learner.trains)
	assert.Equal(t, MaxSteps, memory.Len())
}

func TestRunEpisodeChainsStates(t *testing.T) {
	env := newScriptedEnv(3)
	agent, memory, _ := newTestAgent(env, 10)

	_, err := agent.RunEpisode(NewEpisodeContext(context.Background(), "run", 0))
	require.NoError(t, err)

	require.Len(t, memory.experiences, 3)
	assert.Equal(t, State{0, 0}, memory.experiences[0].State)
	for i := 1; i < 3; i++ {
		assert.Equal(t, memory.experiences[i-1].NextState, memory.experiences[i].State)
	}
}

func TestRunEpisodePropagatesErrors(t *testing.T) {
	env := newScriptedEnv(0)
	env.stepErr = errors.New("boom")
	env.failAfter = 2
	agent, _, _ := newTestAgent(env, 10)

	eCtx := NewEpisodeContext(context.Background(), "run", 0)
	_, err := agent.RunEpisode(eCtx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 2, eCtx.Report.Step(), "report holds the failing step")

	env = newScriptedEnv(0)
	agent, _, learner := newTestAgent(env, 10)
	learner.trainErr = errors.New("nan loss")
	_, err = agent.RunEpisode(NewEpisodeContext(context.Background(), "run", 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nan loss")
}

func TestRunEpisodeCancelled(t *testing.T) {
	env := newScriptedEnv(0)
	agent, _, _ := newTestAgent(env, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := agent.RunEpisode(NewEpisodeContext(ctx, "run", 0))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, env.resets)
}

func TestRunEpisodeReport(t *testing.T) {
	env := newScriptedEnv(5)
	agent, _, _ := newTestAgent(env, 10)

	eCtx := NewEpisodeContext(context.Background(), "run", 0)
	_, err := agent.RunEpisode(eCtx)
	require.NoError(t, err)

	assert.Len(t, eCtx.Report.TimeValues["env_step"], 5)
	assert.Len(t, eCtx.Report.TimeValues["train"], 5)
	assert.Equal(t, []int{5}, eCtx.Report.IntValues["steps"])
	assert.Contains(t, eCtx.Report.StringPerType(), "steps [1]: sum 5")
}
