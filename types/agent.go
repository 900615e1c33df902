package types

import (
	"time"

	"github.com/pkg/errors"
)

type AgentConfig struct {
	Horizon     int
	Environment Environment
	Memory      Memory
	Learner     Learner
}

// RL Agent configured with the corresponding
// learner, memory and environment
type Agent struct {
	config      *AgentConfig
	environment Environment
	memory      Memory
	learner     Learner
}

// EpisodeResult is what an episode returns to the driver
type EpisodeResult struct {
	Episode int `json:"episode"`
	// Steps is the number of steps executed
	Steps int `json:"steps"`
	// LastStep is the index of the last executed step (Steps-1)
	LastStep    int     `json:"last_step"`
	TotalReward float64 `json:"total_reward"`
	// Done is true when the environment terminated the episode
	// before the horizon
	Done bool `json:"done"`
}

// Instantiates a new Agent
func NewAgent(config *AgentConfig) *Agent {
	return &Agent{
		config:      config,
		environment: config.Environment,
		memory:      config.Memory,
		learner:     config.Learner,
	}
}

// RunEpisode runs a single episode of at most Horizon steps.
// Every step renders, selects an action, steps the environment, records the
// transition and trains the learner. Any collaborator error aborts the episode,
// the report then holds the step that failed.
func (a *Agent) RunEpisode(eCtx *EpisodeContext) (*EpisodeResult, error) {
	if err := eCtx.Context.Err(); err != nil {
		return nil, err
	}
	result := &EpisodeResult{Episode: eCtx.Episode, LastStep: -1}

	state, err := a.environment.Reset()
	if err != nil {
		return nil, errors.Wrap(err, "failed to reset environment")
	}
	a.memory.ResetState(state)

	for t := 0; t < a.config.Horizon; t++ {
		eCtx.Report.setEpisodeStep(t)

		if err := a.environment.Render(); err != nil {
			return nil, errors.Wrap(err, "render failed")
		}
		action, err := a.learner.SelectAction(state)
		if err != nil {
			return nil, errors.Wrap(err, "action selection failed")
		}

		start := time.Now()
		step, err := a.environment.Step(action)
		if err != nil {
			return nil, errors.Wrap(err, "environment step failed")
		}
		eCtx.Report.AddTimeEntry(time.Since(start), "env_step")

		err = a.memory.Add(Transition{
			Action:    action,
			Reward:    step.Reward,
			NextState: step.Observation,
			Done:      step.Done,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to record transition")
		}

		start = time.Now()
		if err := a.learner.Train(a.memory); err != nil {
			return nil, errors.Wrap(err, "training failed")
		}
		eCtx.Report.AddTimeEntry(time.Since(start), "train")

		state = step.Observation
		result.TotalReward += step.Reward
		result.Steps = t + 1
		result.LastStep = t
		if step.Done {
			result.Done = true
			break
		}
	}
	eCtx.Report.AddIntEntry(result.Steps, "steps")
	return result, nil
}
