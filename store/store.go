// Package store provides the pluggable persistence layer for generator
// state: a volatile in-memory implementation and durable implementations
// backed by bbolt, Redis, and DynamoDB. Stores do not arbitrate between
// concurrent writers; the compare-and-swap primitive is the only admission
// control and the allocator drives it.
package store

import (
	"context"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/widlabs/widgen/wid"
)

var (
	ErrCorruptState = errors.New("corrupt state row")
	ErrNotSupported = errors.New("not supported")
)

// StateStore persists one generator-state row per key. Load returns
// wid.ErrStateNotFound for absent rows. Keys are namespaced with the
// store's prefix; rows are never deleted by the generator side.
type StateStore interface {
	wid.StateStore
	Name() string
	Close() error
}

// CASStore extends StateStore with the optimistic primitives the allocator
// needs. Seed inserts the row only when absent. CompareAndSave applies next
// only when the stored row still equals prev, reporting false (with no
// error) when the predicate fails.
type CASStore interface {
	StateStore
	Seed(ctx context.Context, key string, st wid.State) error
	CompareAndSave(ctx context.Context, key string, prev, next wid.State) (bool, error)
}

// Scanner is implemented by stores that can enumerate their rows.
type Scanner interface {
	Keys(ctx context.Context, pattern string) ([]string, error)
}

const stateSize = 16

// encodeState renders a state row for byte-oriented backends: two
// big-endian int64 fields, tick then seq.
func encodeState(st wid.State) []byte {
	b := make([]byte, stateSize)
	binary.BigEndian.PutUint64(b[0:8], uint64(st.Tick))
	binary.BigEndian.PutUint64(b[8:16], uint64(st.Seq))
	return b
}

func decodeState(b []byte) (wid.State, error) {
	if len(b) != stateSize {
		return wid.State{}, errors.WithStack(ErrCorruptState)
	}
	return wid.State{
		Tick: int64(binary.BigEndian.Uint64(b[0:8])),
		Seq:  int64(binary.BigEndian.Uint64(b[8:16])),
	}, nil
}

func fullKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}
