package wid

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStateStore struct {
	mtx  sync.Mutex
	m    map[string]State
	fail bool
}

func newMapStateStore() *mapStateStore {
	return &mapStateStore{m: map[string]State{}}
}

func (s *mapStateStore) Load(_ context.Context, key string) (State, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	st, ok := s.m[key]
	if !ok {
		return State{}, ErrStateNotFound
	}
	return st, nil
}

func (s *mapStateStore) Save(_ context.Context, key string, st State) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.fail {
		return errors.New("disk full")
	}
	s.m[key] = st
	return nil
}

func TestNewWidGenValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWidGen(0, 0)
	require.ErrorIs(t, err, ErrInvalidW)

	_, err = NewWidGen(-3, 0)
	require.ErrorIs(t, err, ErrInvalidW)

	// 10^19 - 1 no longer fits in int64
	_, err = NewWidGen(19, 0)
	require.ErrorIs(t, err, ErrInvalidW)

	_, err = NewWidGen(18, 0)
	require.NoError(t, err)

	_, err = NewWidGen(4, -1)
	require.ErrorIs(t, err, ErrInvalidZ)

	_, err = NewWidGenWithUnit(4, 0, TimeUnit("minutes"))
	require.ErrorIs(t, err, ErrInvalidTimeUnit)
}

func TestWidNextRoundTrip(t *testing.T) {
	t.Parallel()

	g, err := NewWidGen(4, 6)
	require.NoError(t, err)

	id := g.Next()
	p, err := ParseWid(id, 4, 6)
	require.NoError(t, err)
	assert.Equal(t, id, p.Raw)
	require.NotNil(t, p.Padding)
	assert.Len(t, *p.Padding, 6)

	st := g.State()
	assert.Equal(t, st.Tick, p.Timestamp.Unix())
	assert.Equal(t, st.Seq, p.Sequence)
}

func TestWidNextMonotonic(t *testing.T) {
	t.Parallel()

	g, err := NewWidGen(3, 0)
	require.NoError(t, err)

	prev := g.Next()
	prevSt := g.State()
	for i := 0; i < 5000; i++ {
		id := g.Next()
		st := g.State()

		// strictly increasing (tick, seq) and, with Z == 0, lexicographic order
		require.True(t, st.Tick > prevSt.Tick || (st.Tick == prevSt.Tick && st.Seq > prevSt.Seq))
		require.Greater(t, id, prev)

		prev = id
		prevSt = st
	}
}

func TestWidNextN(t *testing.T) {
	t.Parallel()

	g, err := NewWidGen(4, 0)
	require.NoError(t, err)

	ids, err := g.NextN(5)
	require.NoError(t, err)
	require.Len(t, ids, 5)
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}

	ids, err = g.NextN(0)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = g.NextN(-1)
	require.ErrorIs(t, err, ErrInvalidCount)
}

func TestWidRollover(t *testing.T) {
	t.Parallel()

	g, err := NewWidGen(1, 0)
	require.NoError(t, err)

	future := time.Now().Unix() + 1000
	require.NoError(t, g.RestoreState(future, 9))

	id := g.Next()
	p, err := ParseWid(id, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.Sequence)
	assert.Equal(t, future+1, p.Timestamp.Unix())
}

func TestWidRestoreStateValidation(t *testing.T) {
	t.Parallel()

	g, err := NewWidGen(4, 0)
	require.NoError(t, err)
	require.NoError(t, g.RestoreState(100, 3))

	require.ErrorIs(t, g.RestoreState(-1, 0), ErrInvalidState)
	require.ErrorIs(t, g.RestoreState(0, -2), ErrInvalidState)

	// prior state survives a failed restore
	st := g.State()
	assert.Equal(t, State{Tick: 100, Seq: 3}, st)
}

func TestPersistentWidGenRequiresStore(t *testing.T) {
	t.Parallel()

	_, err := NewPersistentWidGen(4, 0, TimeUnitSec, nil, "k")
	require.ErrorIs(t, err, ErrNilStateStore)
}

func TestPersistentWidGen(t *testing.T) {
	t.Parallel()

	st := newMapStateStore()
	g, err := NewPersistentWidGen(4, 0, TimeUnitSec, st, "k")
	require.NoError(t, err)

	g.Next()
	g.Next()
	want := g.State()

	saved, err := st.Load(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, want, saved)

	// a fresh generator picks up where the old one stopped
	g2, err := NewPersistentWidGen(4, 0, TimeUnitSec, st, "k")
	require.NoError(t, err)
	assert.Equal(t, want, g2.State())
}

func TestPersistentWidGenSaveFailureIsBestEffort(t *testing.T) {
	t.Parallel()

	st := newMapStateStore()
	g, err := NewPersistentWidGen(4, 0, TimeUnitSec, st, "k")
	require.NoError(t, err)

	st.fail = true
	first := g.Next()
	second := g.Next()

	// generator keeps advancing even though every save fails
	require.NotEqual(t, first, second)
	p1, err := ParseWid(first, 4, 0)
	require.NoError(t, err)
	p2, err := ParseWid(second, 4, 0)
	require.NoError(t, err)
	assert.Less(t, p1.Raw, p2.Raw)
}

func TestWidMillisecondUnit(t *testing.T) {
	t.Parallel()

	g, err := NewWidGenWithUnit(4, 0, TimeUnitMs)
	require.NoError(t, err)

	id := g.Next()
	p, err := ParseWidWithUnit(id, 4, 0, TimeUnitMs)
	require.NoError(t, err)

	st := g.State()
	assert.Equal(t, st.Tick, p.Timestamp.UnixMilli())
	assert.Equal(t, int(st.Tick%1000), p.Millisecond)

	// the seconds grammar rejects the long time-of-day field
	_, err = ParseWid(id, 4, 0)
	require.Error(t, err)
}
