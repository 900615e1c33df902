package checkpoint

import (
	"context"
	"encoding"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/zeu5/dqn-cartpole/types"
)

const DefaultRedisPrefix = "dqn-cartpole"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix of every key written, DefaultRedisPrefix if empty
	Prefix string
	// Run namespaces the checkpoints of a single training run
	Run string
}

// RedisStore keeps checkpoints under <prefix>:<run>:<episode> and
// the handles of all saved checkpoints in the list <prefix>:index
type RedisStore struct {
	config *RedisConfig
	client *redis.Client
}

var _ Store = &RedisStore{}

func NewRedisStore(config *RedisConfig) *RedisStore {
	if config.Prefix == "" {
		config.Prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		config: config,
		client: redis.NewClient(&redis.Options{
			Addr:     config.Addr,
			Password: config.Password,
			DB:       config.DB,
		}),
	}
}

// Ping checks that the server is reachable
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) indexKey() string {
	return r.config.Prefix + ":index"
}

func (r *RedisStore) Save(ctx context.Context, episode int, state encoding.BinaryMarshaler) (types.Handle, error) {
	data, err := state.MarshalBinary()
	if err != nil {
		return "", errors.Wrap(err, "failed to encode checkpoint")
	}
	key := fmt.Sprintf("%s:%s:%d", r.config.Prefix, r.config.Run, episode)

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		pipe.LRem(ctx, r.indexKey(), 0, key)
		pipe.RPush(ctx, r.indexKey(), key)
		return nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to store checkpoint %s", key)
	}
	return types.Handle(key), nil
}

func (r *RedisStore) Restore(ctx context.Context, handle types.Handle, into encoding.BinaryUnmarshaler) error {
	data, err := r.client.Get(ctx, string(handle)).Bytes()
	if err == redis.Nil {
		return errors.Wrapf(ErrNotFound, "%s", handle)
	} else if err != nil {
		return errors.Wrapf(err, "failed to fetch checkpoint %s", handle)
	}
	return errors.Wrapf(into.UnmarshalBinary(data), "failed to decode checkpoint %s", handle)
}

// List returns the handles in the order they were saved
func (r *RedisStore) List(ctx context.Context) ([]types.Handle, error) {
	keys, err := r.client.LRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read checkpoint index")
	}
	handles := make([]types.Handle, len(keys))
	for i, k := range keys {
		handles[i] = types.Handle(k)
	}
	return handles, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
