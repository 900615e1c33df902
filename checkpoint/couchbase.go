package checkpoint

import (
	"context"
	"encoding"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/zeu5/dqn-cartpole/types"
)

const (
	couchbaseRetries = 20
	couchbaseBackoff = 100 * time.Millisecond
	// document holding the handles of all saved checkpoints
	couchbaseIndexKey = "dqn-cartpole::index"
)

type CouchbaseConfig struct {
	ConnStr  string
	Username string
	Password string
	Bucket   string
	Run      string
	Logger   logrus.FieldLogger
}

// CouchbaseStore saves checkpoints as documents of the default collection
type CouchbaseStore struct {
	config     *CouchbaseConfig
	cluster    *gocb.Cluster
	collection *gocb.Collection
	logger     logrus.FieldLogger
}

var _ Store = &CouchbaseStore{}

type checkpointDoc struct {
	Run     string `json:"run"`
	Episode int    `json:"episode"`
	Data    []byte `json:"data"`
	SavedAt int64  `json:"saved_at"`
}

type indexDoc struct {
	Handles []string `json:"handles"`
}

// NewCouchbaseStore connects and waits for the bucket to be ready
func NewCouchbaseStore(config *CouchbaseConfig) (*CouchbaseStore, error) {
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cluster, err := gocb.Connect(
		config.ConnStr,
		gocb.ClusterOptions{
			Username:             config.Username,
			Password:             config.Password,
			CircuitBreakerConfig: gocb.CircuitBreakerConfig{Disabled: true},
		})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to couchbase")
	}

	bucket := cluster.Bucket(config.Bucket)
	if err := bucket.WaitUntilReady(5*time.Second, nil); err != nil {
		cluster.Close(nil)
		return nil, errors.Wrapf(err, "bucket %s not ready", config.Bucket)
	}

	return &CouchbaseStore{
		config:     config,
		cluster:    cluster,
		collection: bucket.DefaultCollection(),
		logger:     logger.WithField("store", "couchbase"),
	}, nil
}

// retry runs op with a linearly growing pause until it succeeds, the error
// is permanent or the retries are exhausted
func (c *CouchbaseStore) retry(ctx context.Context, key string, op func() error) error {
	var err error
	for retries := 1; retries <= couchbaseRetries; retries++ {
		err = op()
		if err == nil || permanent(err) {
			return err
		}
		c.logger.WithFields(logrus.Fields{"key": key, "retry": retries}).Debug(err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(couchbaseBackoff * time.Duration(retries)):
		}
	}
	return err
}

func permanent(err error) bool {
	return errors.Is(err, gocb.ErrDocumentNotFound) ||
		errors.Is(err, gocb.ErrDocumentExists) ||
		errors.Is(err, gocb.ErrCasMismatch) ||
		errors.Is(err, gocb.ErrAuthenticationFailure)
}

func (c *CouchbaseStore) Save(ctx context.Context, episode int, state encoding.BinaryMarshaler) (types.Handle, error) {
	data, err := state.MarshalBinary()
	if err != nil {
		return "", errors.Wrap(err, "failed to encode checkpoint")
	}
	key := fmt.Sprintf("dqn-cartpole::%s::%d", c.config.Run, episode)
	doc := &checkpointDoc{
		Run:     c.config.Run,
		Episode: episode,
		Data:    data,
		SavedAt: time.Now().Unix(),
	}
	err = c.retry(ctx, key, func() error {
		_, err := c.collection.Upsert(key, doc, &gocb.UpsertOptions{Context: ctx})
		return err
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to store checkpoint %s", key)
	}
	if err := c.addToIndex(ctx, key); err != nil {
		return "", err
	}
	return types.Handle(key), nil
}

func (c *CouchbaseStore) addToIndex(ctx context.Context, key string) error {
	// optimistic update of the index document, redone on cas mismatch
	for attempt := 0; attempt < couchbaseRetries; attempt++ {
		index := &indexDoc{}
		var cas gocb.Cas
		r, err := c.collection.Get(couchbaseIndexKey, &gocb.GetOptions{Context: ctx})
		if err == nil {
			if err := r.Content(index); err != nil {
				return errors.Wrap(err, "failed to parse checkpoint index")
			}
			cas = r.Cas()
		} else if !errors.Is(err, gocb.ErrDocumentNotFound) {
			return errors.Wrap(err, "failed to read checkpoint index")
		}
		for _, h := range index.Handles {
			if h == key {
				return nil
			}
		}
		index.Handles = append(index.Handles, key)

		if cas == 0 {
			_, err = c.collection.Insert(couchbaseIndexKey, index, &gocb.InsertOptions{Context: ctx})
		} else {
			_, err = c.collection.Replace(couchbaseIndexKey, index, &gocb.ReplaceOptions{Cas: cas, Context: ctx})
		}
		if err == nil {
			return nil
		}
		if !errors.Is(err, gocb.ErrCasMismatch) && !errors.Is(err, gocb.ErrDocumentExists) {
			return errors.Wrap(err, "failed to update checkpoint index")
		}
	}
	return errors.New("failed to update checkpoint index: too many conflicts")
}

func (c *CouchbaseStore) Restore(ctx context.Context, handle types.Handle, into encoding.BinaryUnmarshaler) error {
	var r *gocb.GetResult
	err := c.retry(ctx, string(handle), func() error {
		var err error
		r, err = c.collection.Get(string(handle), &gocb.GetOptions{Context: ctx})
		return err
	})
	if errors.Is(err, gocb.ErrDocumentNotFound) {
		return errors.Wrapf(ErrNotFound, "%s", handle)
	} else if err != nil {
		return errors.Wrapf(err, "failed to fetch checkpoint %s", handle)
	}

	var doc checkpointDoc
	if err := r.Content(&doc); err != nil {
		return errors.Wrapf(err, "failed to parse checkpoint %s", handle)
	}
	return errors.Wrapf(into.UnmarshalBinary(doc.Data), "failed to decode checkpoint %s", handle)
}

func (c *CouchbaseStore) List(ctx context.Context) ([]types.Handle, error) {
	r, err := c.collection.Get(couchbaseIndexKey, &gocb.GetOptions{Context: ctx})
	if errors.Is(err, gocb.ErrDocumentNotFound) {
		return []types.Handle{}, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to read checkpoint index")
	}
	var index indexDoc
	if err := r.Content(&index); err != nil {
		return nil, errors.Wrap(err, "failed to parse checkpoint index")
	}
	handles := make([]types.Handle, len(index.Handles))
	for i, h := range index.Handles {
		handles[i] = types.Handle(h)
	}
	return handles, nil
}

func (c *CouchbaseStore) Close() error {
	return c.cluster.Close(nil)
}
