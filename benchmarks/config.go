package benchmarks

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/zeu5/dqn-cartpole/checkpoint"
)

const (
	EnvRedisAddr         = "DQN_REDIS_ADDR"
	EnvRedisPassword     = "DQN_REDIS_PASSWORD"
	EnvCouchbaseConn     = "DQN_COUCHBASE_CONN"
	EnvCouchbaseUser     = "DQN_COUCHBASE_USER"
	EnvCouchbasePassword = "DQN_COUCHBASE_PASSWORD"
	EnvCouchbaseBucket   = "DQN_COUCHBASE_BUCKET"
)

// loadEnvFiles reads the first .env file found, variables already set win
func loadEnvFiles() {
	for _, envFile := range []string{
		".env",
		"../.env",
	} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// openStore connects to the named checkpoint store. run namespaces the
// checkpoints in the stores shared between runs.
func openStore(ctx context.Context, name, modelPath, run string) (checkpoint.Store, error) {
	switch name {
	case "file":
		return checkpoint.NewFileStore(modelPath), nil
	case "redis":
		store := checkpoint.NewRedisStore(&checkpoint.RedisConfig{
			Addr:     getEnv(EnvRedisAddr, "127.0.0.1:6379"),
			Password: getEnv(EnvRedisPassword, ""),
			Run:      run,
		})
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, errors.Wrap(err, "redis unreachable")
		}
		return store, nil
	case "couchbase":
		return checkpoint.NewCouchbaseStore(&checkpoint.CouchbaseConfig{
			ConnStr:  getEnv(EnvCouchbaseConn, "localhost"),
			Username: getEnv(EnvCouchbaseUser, ""),
			Password: getEnv(EnvCouchbasePassword, ""),
			Bucket:   getEnv(EnvCouchbaseBucket, "dqn"),
			Run:      run,
			Logger:   logrus.StandardLogger(),
		})
	}
	return nil, errors.Errorf("unknown checkpoint store %q, expected file, redis or couchbase", name)
}
