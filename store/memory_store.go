package store

import (
	"context"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/widlabs/widgen/wid"
)

// memoryStore keeps rows in a treemap so Keys enumerates them in
// deterministic order. It is the volatile StateStore and the reference
// CASStore used by tests.
type memoryStore struct {
	mtx    sync.RWMutex
	tree   *treemap.Map // full key string -> wid.State
	prefix string
	log    *slog.Logger
}

// NewMemoryStore creates a volatile store namespaced by prefix.
func NewMemoryStore(prefix string) CASStore {
	return &memoryStore{
		tree:   treemap.NewWithStringComparator(),
		prefix: prefix,
		log: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		})),
	}
}

var _ CASStore = (*memoryStore)(nil)
var _ Scanner = (*memoryStore)(nil)

func (s *memoryStore) Load(_ context.Context, key string) (wid.State, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	v, ok := s.tree.Get(fullKey(s.prefix, key))
	if !ok {
		return wid.State{}, errors.WithStack(wid.ErrStateNotFound)
	}
	st, ok := v.(wid.State)
	if !ok {
		return wid.State{}, errors.WithStack(ErrCorruptState)
	}
	return st, nil
}

func (s *memoryStore) Save(ctx context.Context, key string, st wid.State) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.tree.Put(fullKey(s.prefix, key), st)
	s.log.DebugContext(ctx, "Save",
		slog.String("key", key),
		slog.Int64("tick", st.Tick),
		slog.Int64("seq", st.Seq),
	)
	return nil
}

func (s *memoryStore) Seed(_ context.Context, key string, st wid.State) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	k := fullKey(s.prefix, key)
	if _, ok := s.tree.Get(k); ok {
		return nil
	}
	s.tree.Put(k, st)
	return nil
}

func (s *memoryStore) CompareAndSave(_ context.Context, key string, prev, next wid.State) (bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	k := fullKey(s.prefix, key)
	v, ok := s.tree.Get(k)
	if !ok {
		return false, nil
	}
	cur, ok := v.(wid.State)
	if !ok {
		return false, errors.WithStack(ErrCorruptState)
	}
	if cur != prev {
		return false, nil
	}
	s.tree.Put(k, next)
	return true, nil
}

// Keys returns the caller-visible keys (prefix stripped) matching the glob
// pattern, in lexicographic order.
func (s *memoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	var out []string
	it := s.tree.Iterator()
	for it.Next() {
		k, ok := it.Key().(string)
		if !ok {
			continue
		}
		k = strings.TrimPrefix(k, s.prefix+":")
		matched, err := path.Match(pattern, k)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if matched {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *memoryStore) Name() string {
	return "memory"
}

func (s *memoryStore) Close() error {
	return nil
}
