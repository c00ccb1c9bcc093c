package store

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/widlabs/widgen/wid"
	"go.etcd.io/bbolt"
)

var stateBucket = []byte("wid_state")

const boltMode = 0666

// boltStore is the local durable StateStore. CompareAndSave runs inside a
// single update transaction, so the read-compare-write is atomic with
// respect to other handles on the same database file.
type boltStore struct {
	bbolt  *bbolt.DB
	prefix string
	log    *slog.Logger
}

// NewBoltStore opens (or creates) a bbolt-backed store at path.
func NewBoltStore(dbPath, prefix string) (CASStore, error) {
	db, err := bbolt.Open(dbPath, boltMode, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return errors.WithStack(err)
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{
		bbolt:  db,
		prefix: prefix,
		log: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		})),
	}, nil
}

var _ CASStore = (*boltStore)(nil)
var _ Scanner = (*boltStore)(nil)

func (s *boltStore) Load(_ context.Context, key string) (wid.State, error) {
	var raw []byte
	err := s.bbolt.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(stateBucket).Get([]byte(fullKey(s.prefix, key)))
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return wid.State{}, errors.WithStack(err)
	}
	if raw == nil {
		return wid.State{}, errors.WithStack(wid.ErrStateNotFound)
	}
	return decodeState(raw)
}

func (s *boltStore) Save(ctx context.Context, key string, st wid.State) error {
	s.log.DebugContext(ctx, "Save",
		slog.String("key", key),
		slog.Int64("tick", st.Tick),
		slog.Int64("seq", st.Seq),
	)
	err := s.bbolt.Update(func(tx *bbolt.Tx) error {
		return errors.WithStack(tx.Bucket(stateBucket).Put([]byte(fullKey(s.prefix, key)), encodeState(st)))
	})
	return errors.WithStack(err)
}

func (s *boltStore) Seed(_ context.Context, key string, st wid.State) error {
	err := s.bbolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(stateBucket)
		k := []byte(fullKey(s.prefix, key))
		if b.Get(k) != nil {
			return nil
		}
		return errors.WithStack(b.Put(k, encodeState(st)))
	})
	return errors.WithStack(err)
}

func (s *boltStore) CompareAndSave(_ context.Context, key string, prev, next wid.State) (bool, error) {
	applied := false
	err := s.bbolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(stateBucket)
		k := []byte(fullKey(s.prefix, key))
		cur := b.Get(k)
		if cur == nil || !bytes.Equal(cur, encodeState(prev)) {
			return nil
		}
		if err := b.Put(k, encodeState(next)); err != nil {
			return errors.WithStack(err)
		}
		applied = true
		return nil
	})
	return applied, errors.WithStack(err)
}

func (s *boltStore) Keys(_ context.Context, pattern string) ([]string, error) {
	var out []string
	err := s.bbolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(stateBucket).ForEach(func(k, _ []byte) error {
			key := strings.TrimPrefix(string(k), s.prefix+":")
			matched, err := path.Match(pattern, key)
			if err != nil {
				return errors.WithStack(err)
			}
			if matched {
				out = append(out, key)
			}
			return nil
		})
	})
	return out, errors.WithStack(err)
}

func (s *boltStore) Name() string {
	return "bolt"
}

func (s *boltStore) Close() error {
	return errors.WithStack(s.bbolt.Close())
}
