package benchmarks

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/zeu5/dqn-cartpole/cartpole"
	"github.com/zeu5/dqn-cartpole/checkpoint"
	"github.com/zeu5/dqn-cartpole/dqn"
	"github.com/zeu5/dqn-cartpole/monitor"
	"github.com/zeu5/dqn-cartpole/types"
	"github.com/zeu5/dqn-cartpole/util"
)

// TrainConfig collects the flags of the train command
type TrainConfig struct {
	Episodes        int
	Horizon         int
	HistorySize     int
	SolvedThreshold float64
	Runs            int
	SavePath        string

	Render      bool
	RenderWidth int
	Seed        uint64
	Learner     *dqn.Config

	CheckpointStore string
	CheckpointEvery int
	RestoreFrom     string
	ModelPath       string

	StatusAddr string

	// Output receives the rendering and the per episode reports, stdout if nil
	Output io.Writer
}

func defaultTrainConfig() *TrainConfig {
	return &TrainConfig{
		Episodes:        types.MaxEpisodes,
		Horizon:         types.MaxSteps,
		HistorySize:     types.MaxHistory,
		SolvedThreshold: types.SolvedMeanReward,
		Runs:            1,
		Render:          true,
		RenderWidth:     61,
		Learner:         dqn.DefaultConfig(),
		CheckpointEvery: 10,
		ModelPath:       checkpoint.DefaultModelPath,
	}
}

// CartPoleTrain trains a fresh learner for every run. Stops at the first
// failing run or when ctx is cancelled.
func CartPoleTrain(ctx context.Context, config *TrainConfig) ([]*types.ExperimentResult, error) {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	var status *monitor.Server
	if config.StatusAddr != "" {
		status = monitor.NewServer(config.StatusAddr, logrus.StandardLogger())
		status.Start(ctx)
		defer status.Stop()
	}

	results := make([]*types.ExperimentResult, 0, config.Runs)
	for run := 0; run < config.Runs; run++ {
		result, err := cartPoleRun(ctx, config, run, status)
		if result != nil {
			results = append(results, result)
		}
		if err != nil {
			return results, errors.Wrapf(err, "run %d", run)
		}
	}
	return results, nil
}

func cartPoleRun(ctx context.Context, config *TrainConfig, run int, status *monitor.Server) (*types.ExperimentResult, error) {
	runID := uuid.NewString()
	logger := logrus.WithField("run", runID)

	seed := config.Seed
	learnerConfig := *config.Learner
	if seed != 0 {
		// distinct but reproducible streams per run
		seed += uint64(run) * 1000
		learnerConfig.Seed = seed + 1
	}

	var renderer cartpole.Renderer
	if config.Render {
		renderer = cartpole.NewTerminalRenderer(config.Output, config.RenderWidth)
	}
	env := cartpole.NewEnvironment(&cartpole.Config{
		Seed:     seed,
		Renderer: renderer,
		Logger:   logger,
	})

	expConfig := types.DefaultExperimentConfig()
	expConfig.Name = "dqn"
	expConfig.RunID = runID
	expConfig.Episodes = config.Episodes
	expConfig.Horizon = config.Horizon
	expConfig.HistorySize = config.HistorySize
	expConfig.SolvedThreshold = config.SolvedThreshold
	expConfig.Output = config.Output
	expConfig.Logger = logrus.StandardLogger()
	expConfig.NewMemory = func(spec *types.EnvSpec) (types.Memory, error) {
		return dqn.NewMemory(spec, &learnerConfig)
	}
	expConfig.NewLearner = func(spec *types.EnvSpec) (types.Learner, error) {
		return dqn.NewLearner(spec, &learnerConfig)
	}
	expConfig.Analyzers["rewards"] = types.NewRewardAnalyzer()
	if status != nil {
		expConfig.Analyzers["status"] = status
	}

	if config.CheckpointStore != "" {
		store, err := openStore(ctx, config.CheckpointStore, config.ModelPath, runID)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		expConfig.Checkpoint = &types.CheckpointConfig{
			Checkpointer: store,
			Every:        config.CheckpointEvery,
		}
		if run == 0 {
			expConfig.Checkpoint.RestoreFrom = types.Handle(config.RestoreFrom)
		}
	} else if config.RestoreFrom != "" {
		return nil, errors.New("restoring requires a checkpoint store")
	}

	result, err := types.NewExperiment(env, expConfig).Run(ctx)
	if err != nil {
		return result, err
	}
	logger.WithFields(logrus.Fields{
		"solved":   result.Solved,
		"episodes": len(result.Episodes),
		"duration": result.Duration,
	}).Debug("run finished")

	if config.SavePath == "" {
		return result, nil
	}
	if err := types.RecordDataSets(config.SavePath, run, expConfig.Name, expConfig.Analyzers); err != nil {
		return result, errors.Wrap(err, "failed to record datasets")
	}
	summary := fmt.Sprintf("run=%d id=%s solved=%v episodes=%d duration=%s",
		run, runID, result.Solved, len(result.Episodes), result.Duration)
	if err := util.AppendToFile(path.Join(config.SavePath, expConfig.Name+"_runs.txt"), summary); err != nil {
		return result, errors.Wrap(err, "failed to record run summary")
	}
	return result, nil
}

// runTraining applies the root flags to config and trains until done or interrupted
func runTraining(cmd *cobra.Command, config *TrainConfig) error {
	config.Episodes = episodes
	config.Horizon = horizon
	config.SavePath = saveFile
	config.Runs = runs
	config.Output = cmd.OutOrStdout()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	stop, err := startProfiling()
	if err != nil {
		return err
	}
	defer stop()

	_, err = CartPoleTrain(ctx, config)
	return err
}

func TrainCommand() *cobra.Command {
	config := defaultTrainConfig()
	var seed int64

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the agent until the task is solved or the episodes run out",
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Seed = uint64(seed)
			return runTraining(cmd, config)
		},
	}
	cmd.PersistentFlags().IntVar(&config.HistorySize, "history", types.MaxHistory, "Number of episodes the rolling mean is taken over")
	cmd.PersistentFlags().Float64Var(&config.SolvedThreshold, "threshold", types.SolvedMeanReward, "Rolling mean at which the task counts as solved")
	cmd.PersistentFlags().BoolVar(&config.Render, "render", true, "Draw the cart-pole on every step")
	cmd.PersistentFlags().IntVar(&config.RenderWidth, "render-width", 61, "Width of the rendered track")
	cmd.PersistentFlags().Int64Var(&seed, "seed", 0, "Random seed, 0 seeds from the clock")

	cmd.PersistentFlags().IntSliceVar(&config.Learner.Hidden, "hidden", config.Learner.Hidden, "Hidden layer sizes")
	cmd.PersistentFlags().Float64Var(&config.Learner.LearningRate, "learning-rate", config.Learner.LearningRate, "Learning rate")
	cmd.PersistentFlags().Float64Var(&config.Learner.Gamma, "gamma", config.Learner.Gamma, "Discount factor")
	cmd.PersistentFlags().Float64Var(&config.Learner.Epsilon, "epsilon", config.Learner.Epsilon, "Initial exploration rate")
	cmd.PersistentFlags().Float64Var(&config.Learner.EpsilonMin, "epsilon-min", config.Learner.EpsilonMin, "Minimum exploration rate")
	cmd.PersistentFlags().Float64Var(&config.Learner.EpsilonDecay, "epsilon-decay", config.Learner.EpsilonDecay, "Exploration decay per update")
	cmd.PersistentFlags().IntVar(&config.Learner.BatchSize, "batch", config.Learner.BatchSize, "Training batch size")
	cmd.PersistentFlags().IntVar(&config.Learner.MemorySize, "memory", config.Learner.MemorySize, "Replay memory capacity")
	cmd.PersistentFlags().IntVar(&config.Learner.TargetUpdateSteps, "target-update", config.Learner.TargetUpdateSteps, "Updates between target network syncs")

	cmd.PersistentFlags().StringVar(&config.CheckpointStore, "checkpoint-store", "", "Checkpoint store: file, redis or couchbase (disabled if empty)")
	cmd.PersistentFlags().IntVar(&config.CheckpointEvery, "checkpoint-every", 10, "Episodes between checkpoints")
	cmd.PersistentFlags().StringVar(&config.RestoreFrom, "restore", "", "Checkpoint handle to restore before training")
	cmd.PersistentFlags().StringVar(&config.ModelPath, "model-path", checkpoint.DefaultModelPath, "Path prefix of the file store")
	cmd.PersistentFlags().StringVar(&config.StatusAddr, "status-addr", "", "Serve the training status on this address")
	cmd.PersistentFlags().StringVar(&cpuprofile, "cpuprofile", "", "Write a cpu profile to this file in the save folder")
	cmd.PersistentFlags().StringVar(&memprofile, "memprofile", "", "Write a memory profile to this file in the save folder")
	return cmd
}
