package benchmarks

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zeu5/dqn-cartpole/checkpoint"
)

func CheckpointsCommand() *cobra.Command {
	var store string
	var modelPath string

	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "List the saved checkpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			s, err := openStore(ctx, store, modelPath, "")
			if err != nil {
				return err
			}
			defer s.Close()

			handles, err := s.List(ctx)
			if err != nil {
				return err
			}
			for _, h := range handles {
				fmt.Fprintln(cmd.OutOrStdout(), h)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&store, "store", "file", "Checkpoint store: file, redis or couchbase")
	cmd.PersistentFlags().StringVar(&modelPath, "model-path", checkpoint.DefaultModelPath, "Path prefix of the file store")
	return cmd
}
