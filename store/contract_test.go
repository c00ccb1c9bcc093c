package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/widlabs/widgen/wid"
)

// runCASContract exercises the behavior every CASStore must share.
func runCASContract(t *testing.T, s CASStore) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	require.ErrorIs(t, err, wid.ErrStateNotFound)

	// CAS against an absent row fails the predicate, it does not error
	applied, err := s.CompareAndSave(ctx, "missing", wid.SeedState(), wid.State{Tick: 1})
	require.NoError(t, err)
	assert.False(t, applied)

	// seeding is idempotent and never clobbers an existing row
	require.NoError(t, s.Seed(ctx, "k", wid.SeedState()))
	require.NoError(t, s.Seed(ctx, "k", wid.State{Tick: 99, Seq: 99}))
	st, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, wid.SeedState(), st)

	// the sentinel seed survives the byte codecs, negative seq included
	assert.Equal(t, int64(-1), st.Seq)

	// CAS succeeds only while the stored row matches prev
	next := wid.State{Tick: 100, Seq: 0}
	applied, err = s.CompareAndSave(ctx, "k", wid.SeedState(), next)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.CompareAndSave(ctx, "k", wid.SeedState(), wid.State{Tick: 200})
	require.NoError(t, err)
	assert.False(t, applied)

	st, err = s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, next, st)

	// unconditional save overwrites
	require.NoError(t, s.Save(ctx, "k", wid.State{Tick: 300, Seq: 5}))
	st, err = s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, wid.State{Tick: 300, Seq: 5}, st)
}
