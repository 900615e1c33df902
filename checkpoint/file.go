package checkpoint

import (
	"context"
	"encoding"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/zeu5/dqn-cartpole/types"
	"github.com/zeu5/dqn-cartpole/util"
)

// DefaultModelPath is where the model is saved when nothing else is configured
const DefaultModelPath = "models/dqn.tfl"

// FileStore saves every checkpoint as <path>-<episode> on the local disk.
// The handle is the path of the file.
type FileStore struct {
	path string
}

var _ Store = &FileStore{}

func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultModelPath
	}
	return &FileStore{path: path}
}

func (f *FileStore) Save(ctx context.Context, episode int, state encoding.BinaryMarshaler) (types.Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := state.MarshalBinary()
	if err != nil {
		return "", errors.Wrap(err, "failed to encode checkpoint")
	}
	p := fmt.Sprintf("%s-%d", f.path, episode)
	if err := util.WriteBytes(p, data); err != nil {
		return "", errors.Wrapf(err, "failed to write checkpoint %s", p)
	}
	return types.Handle(p), nil
}

func (f *FileStore) Restore(ctx context.Context, handle types.Handle, into encoding.BinaryUnmarshaler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(string(handle))
	if os.IsNotExist(err) {
		return errors.Wrapf(ErrNotFound, "%s", handle)
	} else if err != nil {
		return errors.Wrapf(err, "failed to read checkpoint %s", handle)
	}
	return errors.Wrapf(into.UnmarshalBinary(data), "failed to decode checkpoint %s", handle)
}

// List returns the checkpoints next to the model path ordered by episode
func (f *FileStore) List(ctx context.Context) ([]types.Handle, error) {
	dir, base := filepath.Split(f.path)
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []types.Handle{}, nil
	} else if err != nil {
		return nil, err
	}

	episodes := make(map[types.Handle]int)
	handles := make([]types.Handle, 0)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, base+"-") {
			continue
		}
		episode, err := strconv.Atoi(strings.TrimPrefix(name, base+"-"))
		if err != nil {
			continue
		}
		h := types.Handle(filepath.Join(filepath.Dir(f.path), name))
		episodes[h] = episode
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool {
		return episodes[handles[i]] < episodes[handles[j]]
	})
	return handles, nil
}

func (f *FileStore) Close() error {
	return nil
}
