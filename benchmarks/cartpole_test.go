package benchmarks

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeu5/dqn-cartpole/checkpoint"
)

func smallTrainConfig(t *testing.T) *TrainConfig {
	config := defaultTrainConfig()
	config.Episodes = 3
	config.Horizon = 20
	config.Render = false
	config.Seed = 5
	config.Learner.BatchSize = 8
	config.Learner.Hidden = []int{8}
	return config
}

func TestCartPoleTrainRecordsDataSets(t *testing.T) {
	config := smallTrainConfig(t)
	config.Runs = 2
	config.SavePath = t.TempDir()

	results, err := CartPoleTrain(context.Background(), config)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Len(t, r.Episodes, 3)
		assert.False(t, r.Solved)
	}
	for _, name := range []string{"dqn_rewards_0.json", "dqn_rewards_1.json"} {
		_, err := os.Stat(filepath.Join(config.SavePath, name))
		assert.NoError(t, err, name)
	}
	summary, err := os.ReadFile(filepath.Join(config.SavePath, "dqn_runs.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(summary)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "run=1 "))
}

func TestCartPoleTrainCheckpoints(t *testing.T) {
	config := smallTrainConfig(t)
	config.Episodes = 5
	config.CheckpointStore = "file"
	config.CheckpointEvery = 2
	config.ModelPath = filepath.Join(t.TempDir(), "models", "dqn.tfl")

	results, err := CartPoleTrain(context.Background(), config)
	require.NoError(t, err)
	require.Len(t, results[0].Checkpoints, 3)

	handles, err := checkpoint.NewFileStore(config.ModelPath).List(context.Background())
	require.NoError(t, err)
	require.Len(t, handles, 3)

	// a new training resumes from the last checkpoint
	config.RestoreFrom = string(handles[2])
	config.Episodes = 1
	_, err = CartPoleTrain(context.Background(), config)
	assert.NoError(t, err)

	config.RestoreFrom = config.ModelPath + "-99"
	_, err = CartPoleTrain(context.Background(), config)
	assert.True(t, checkpoint.IsNotFound(err))
}

func TestRestoreRequiresStore(t *testing.T) {
	config := smallTrainConfig(t)
	config.RestoreFrom = "models/dqn.tfl-10"
	_, err := CartPoleTrain(context.Background(), config)
	assert.Error(t, err)
}

func TestCartPoleTrainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CartPoleTrain(ctx, smallTrainConfig(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenStoreUnknown(t *testing.T) {
	_, err := openStore(context.Background(), "s3", "", "")
	assert.Error(t, err)
}

func TestCheckpointsCommandLists(t *testing.T) {
	modelPath := filepath.Join(t.TempDir(), "dqn.tfl")
	config := smallTrainConfig(t)
	config.Episodes = 1
	config.CheckpointStore = "file"
	config.ModelPath = modelPath
	_, err := CartPoleTrain(context.Background(), config)
	require.NoError(t, err)

	cmd := CheckpointsCommand()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--model-path", modelPath})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, modelPath+"-0", strings.TrimSpace(out.String()))
}

func TestGetEnv(t *testing.T) {
	t.Setenv(EnvRedisAddr, "redis:6379")
	assert.Equal(t, "redis:6379", getEnv(EnvRedisAddr, "127.0.0.1:6379"))
	t.Setenv(EnvRedisAddr, "")
	assert.Equal(t, "127.0.0.1:6379", getEnv(EnvRedisAddr, "127.0.0.1:6379"))
}

func TestRootCommandTrainsWithoutArguments(t *testing.T) {
	cmd := GetRootCommand()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	report := out.String()
	assert.Contains(t, report, strings.Repeat("-", 20)+"\nEpisode 0\nFinished at t=")
	assert.Contains(t, report, "Average reward for the last 100 episodes: ")
	assert.Contains(t, report, "Reward for this episode: ")
	assert.Contains(t, report, "x=", "the cart-pole is rendered by default")
	assert.Regexp(t, `Problem solved\? (true|false)\n$`, report)
}

func TestRootCommandRejectsUnknownSubcommand(t *testing.T) {
	cmd := GetRootCommand()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"evaluate"})
	assert.Error(t, cmd.Execute())
	assert.Empty(t, out.String(), "errors are returned to main, not printed on the report stream")
}
