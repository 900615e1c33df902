package benchmarks

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	episodes int
	horizon  int
	saveFile string
	runs     int
	verbose  bool
)

func GetRootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:   "dqn-cartpole",
		Short: "Train a DQN agent to balance the cart-pole",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loadEnvFiles()
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
		// without a subcommand, train with the default configuration
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTraining(cmd, defaultTrainConfig())
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCommand.PersistentFlags().IntVarP(&episodes, "episodes", "e", 30, "Number of episodes to run")
	rootCommand.PersistentFlags().IntVar(&horizon, "horizon", 200, "Horizon of each episode")
	rootCommand.PersistentFlags().StringVarP(&saveFile, "save", "s", "", "Save the result data in the specified folder")
	rootCommand.PersistentFlags().IntVar(&runs, "runs", 1, "Number of experiment runs")
	rootCommand.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log per episode timings")
	// adding the subcommands here
	rootCommand.AddCommand(TrainCommand())
	rootCommand.AddCommand(CheckpointsCommand())
	return rootCommand
}
