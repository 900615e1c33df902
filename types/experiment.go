package types

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	SolvedMeanReward float64 = 195.0
	MaxSteps         int     = 200
	MaxEpisodes      int     = 30
	MaxHistory       int     = 100
)

// ExperimentConfig parameterizes a training run
type ExperimentConfig struct {
	Name string
	// RunID identifies the run, generated when empty
	RunID string

	Episodes        int
	Horizon         int
	HistorySize     int
	SolvedThreshold float64

	// factories invoked exactly once per run with the environment spec
	NewMemory  func(*EnvSpec) (Memory, error)
	NewLearner func(*EnvSpec) (Learner, error)

	Checkpoint *CheckpointConfig
	Analyzers  map[string]Analyzer

	// Output receives the per episode reports, defaults to stdout
	Output io.Writer
	Logger logrus.FieldLogger
}

// DefaultExperimentConfig returns the configuration of the original training script
func DefaultExperimentConfig() *ExperimentConfig {
	return &ExperimentConfig{
		Name:            "dqn",
		Episodes:        MaxEpisodes,
		Horizon:         MaxSteps,
		HistorySize:     MaxHistory,
		SolvedThreshold: SolvedMeanReward,
		Analyzers:       make(map[string]Analyzer),
	}
}

func (c *ExperimentConfig) Validate() error {
	if c.Episodes < 0 {
		return errors.Errorf("episodes must not be negative, got %d", c.Episodes)
	}
	if c.Horizon <= 0 {
		return errors.Errorf("horizon must be positive, got %d", c.Horizon)
	}
	if c.HistorySize <= 0 {
		return errors.Errorf("history size must be positive, got %d", c.HistorySize)
	}
	if c.NewMemory == nil || c.NewLearner == nil {
		return errors.New("memory and learner factories are required")
	}
	if c.Checkpoint != nil && c.Checkpoint.Every < 0 {
		return errors.Errorf("checkpoint interval must not be negative, got %d", c.Checkpoint.Every)
	}
	return nil
}

// ExperimentResult summarizes a run
type ExperimentResult struct {
	Run         string             `json:"run"`
	Solved      bool               `json:"solved"`
	Episodes    []*EpisodeResult   `json:"episodes"`
	Means       []float64          `json:"means"`
	Checkpoints []CheckpointRecord `json:"checkpoints"`
	Duration    time.Duration      `json:"duration"`
}

// Experiment drives the training: it owns the environment, the memory,
// the learner and the history for the duration of a run
type Experiment struct {
	Name        string
	environment Environment
	config      *ExperimentConfig
	logger      logrus.FieldLogger
}

// NewExperiment creates a new experiment instance
func NewExperiment(environment Environment, config *ExperimentConfig) *Experiment {
	if config == nil {
		config = DefaultExperimentConfig()
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}
	var logger logrus.FieldLogger = logrus.StandardLogger()
	if config.Logger != nil {
		logger = config.Logger
	}
	return &Experiment{
		Name:        config.Name,
		environment: environment,
		config:      config,
		logger:      logger.WithField("experiment", config.Name),
	}
}

// Run the experiment until solved or until the episode budget is exhausted.
// Errors from the environment, memory or learner abort the run.
func (e *Experiment) Run(ctx context.Context) (*ExperimentResult, error) {
	cfg := e.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := e.logger.WithField("run", runID)

	spec := e.environment.Spec()
	memory, err := cfg.NewMemory(spec)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create memory")
	}
	learner, err := cfg.NewLearner(spec)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create learner")
	}
	if err := learner.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize learner")
	}
	if cp := cfg.Checkpoint; cp != nil && cp.Checkpointer != nil {
		if _, err := e.checkpointable(learner); err != nil {
			return nil, err
		}
	}
	if err := e.restore(ctx, learner, logger); err != nil {
		return nil, err
	}

	history := NewHistory(cfg.HistorySize, cfg.SolvedThreshold)
	agent := NewAgent(&AgentConfig{
		Horizon:     cfg.Horizon,
		Environment: e.environment,
		Memory:      memory,
		Learner:     learner,
	})

	result := &ExperimentResult{
		Run:         runID,
		Episodes:    make([]*EpisodeResult, 0, cfg.Episodes),
		Means:       make([]float64, 0, cfg.Episodes),
		Checkpoints: make([]CheckpointRecord, 0),
	}
	for _, a := range cfg.Analyzers {
		a.Reset()
	}

	for episode := 0; episode < cfg.Episodes; episode++ {
		select {
		case <-ctx.Done():
			result.Duration = time.Since(start)
			return result, ctx.Err()
		default:
		}

		eCtx := NewEpisodeContext(ctx, runID, episode)
		epResult, err := agent.RunEpisode(eCtx)
		if err != nil {
			result.Duration = time.Since(start)
			return result, errors.Wrapf(err, "episode %d at t=%d", episode, eCtx.Report.Step())
		}

		mean, solved := history.Update(cfg.Output, epResult)
		result.Episodes = append(result.Episodes, epResult)
		result.Means = append(result.Means, mean)
		result.Solved = solved
		for _, a := range cfg.Analyzers {
			a.Analyze(runID, epResult, mean, solved)
		}
		logger.WithFields(logrus.Fields{
			"episode": episode,
			"steps":   epResult.Steps,
			"elapsed": eCtx.Report.Elapsed(),
			"train":   eCtx.Report.TotalTime("train"),
		}).Debugf("episode timings\n%s", eCtx.Report.StringPerType())

		if solved {
			break
		}
		if rec, ok := e.checkpoint(ctx, episode, learner, logger); ok {
			result.Checkpoints = append(result.Checkpoints, rec)
		}
	}

	result.Duration = time.Since(start)
	fmt.Fprintf(cfg.Output, "Problem solved? %v\n", result.Solved)
	return result, nil
}

func (e *Experiment) checkpointable(learner Learner) (Checkpointable, error) {
	c, ok := learner.(Checkpointable)
	if !ok {
		return nil, errors.Errorf("learner %T does not support checkpoints", learner)
	}
	return c, nil
}

// restore the configured checkpoint, failing the run if it cannot be restored
func (e *Experiment) restore(ctx context.Context, learner Learner, logger logrus.FieldLogger) error {
	cfg := e.config.Checkpoint
	if cfg == nil || cfg.Checkpointer == nil || cfg.RestoreFrom == "" {
		return nil
	}
	c, err := e.checkpointable(learner)
	if err != nil {
		return err
	}
	if err := cfg.Checkpointer.Restore(ctx, cfg.RestoreFrom, c); err != nil {
		return errors.Wrapf(err, "failed to restore checkpoint %s", cfg.RestoreFrom)
	}
	logger.WithField("handle", cfg.RestoreFrom).Info("restored checkpoint")
	return nil
}

// checkpoint saves the learner on the configured interval.
// Failures are logged and recorded but do not stop the training.
func (e *Experiment) checkpoint(ctx context.Context, episode int, learner Learner, logger logrus.FieldLogger) (CheckpointRecord, bool) {
	cfg := e.config.Checkpoint
	if cfg == nil || cfg.Checkpointer == nil || cfg.Every == 0 || episode%cfg.Every != 0 {
		return CheckpointRecord{}, false
	}
	rec := CheckpointRecord{Episode: episode}
	start := time.Now()

	c, err := e.checkpointable(learner)
	if err == nil {
		rec.Handle, err = cfg.Checkpointer.Save(ctx, episode, c)
	}
	rec.Took = time.Since(start)

	entry := logger.WithField("episode", episode)
	if err != nil {
		rec.Err = err.Error()
		entry.WithError(err).Error("checkpoint failed")
	} else {
		entry.WithField("handle", rec.Handle).Info("checkpoint saved")
	}
	return rec, true
}
