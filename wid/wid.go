// Package wid implements two monotonic time-ordered identifier schemes: a
// per-process wall-clock sequence counter (WID) and a node-qualified hybrid
// logical clock (HLC-WID), together with the strict string grammar for
// encoding and parsing them.
package wid

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// WidGen issues monotonically increasing (tick, sequence) pairs rendered as
// WID strings. A WidGen is safe for concurrent use through its internal
// mutex, but distinct execution contexts wanting a shared counter should use
// the allocator in package alloc instead.
type WidGen struct {
	W        int
	Z        int
	TimeUnit TimeUnit

	maxSeq   int64
	lastTick int64
	lastSeq  int64

	// cached rendering of the last tick, purely a fast path
	cachedTick int64
	cachedTS   string

	store    StateStore
	stateKey string

	log *slog.Logger
	mu  sync.Mutex
}

// NewWidGen creates a generator with second precision.
func NewWidGen(w, z int) (*WidGen, error) {
	return NewWidGenWithUnit(w, z, TimeUnitSec)
}

// NewWidGenWithUnit creates a generator with the given time unit.
func NewWidGenWithUnit(w, z int, unit TimeUnit) (*WidGen, error) {
	if w <= 0 || w > maxW {
		return nil, errors.WithStack(ErrInvalidW)
	}
	if z < 0 {
		return nil, errors.WithStack(ErrInvalidZ)
	}
	if !validTimeUnit(unit) {
		return nil, errors.WithStack(ErrInvalidTimeUnit)
	}
	return &WidGen{
		W:        w,
		Z:        z,
		TimeUnit: unit,
		maxSeq:   pow10(w) - 1,
		lastSeq:  -1,
		log: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		})),
	}, nil
}

// NewPersistentWidGen creates a generator that restores its state from st on
// construction and saves it best-effort after every transition. A failed
// save is logged and never disturbs the in-memory counter.
func NewPersistentWidGen(w, z int, unit TimeUnit, st StateStore, key string) (*WidGen, error) {
	if st == nil {
		return nil, errors.WithStack(ErrNilStateStore)
	}
	g, err := NewWidGenWithUnit(w, z, unit)
	if err != nil {
		return nil, err
	}
	g.store = st
	g.stateKey = key

	loaded, err := st.Load(context.Background(), key)
	switch {
	case errors.Is(err, ErrStateNotFound):
		// first use, start from the zero counter
	case err != nil:
		return nil, errors.WithStack(err)
	case loaded.Tick >= 0 && loaded.Seq >= -1:
		g.lastTick = loaded.Tick
		g.lastSeq = loaded.Seq
	}
	return g, nil
}

// Next returns the next WID string, advancing the counter pair.
func (g *WidGen) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nextLocked()
}

func (g *WidGen) nextLocked() string {
	now := nowTick(g.TimeUnit)
	tick := now
	if tick < g.lastTick {
		tick = g.lastTick
	}
	var seq int64
	if tick == g.lastTick {
		seq = g.lastSeq + 1
	}
	if seq > g.maxSeq {
		// counter exhausted within this tick, borrow the next one
		tick++
		seq = 0
	}
	g.lastTick = tick
	g.lastSeq = seq
	g.persistLocked()

	ts := g.tsForTick(tick)
	if g.Z > 0 {
		return fmt.Sprintf("%s.%0*dZ-%s", ts, g.W, seq, randomHex(g.Z))
	}
	return fmt.Sprintf("%s.%0*dZ", ts, g.W, seq)
}

// NextN returns n sequential WIDs produced under a single lock acquisition.
func (g *WidGen) NextN(n int) ([]string, error) {
	if n < 0 {
		return nil, errors.WithStack(ErrInvalidCount)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, n)
	for i := range out {
		out[i] = g.nextLocked()
	}
	return out, nil
}

// State returns the current (tick, sequence) pair.
func (g *WidGen) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{Tick: g.lastTick, Seq: g.lastSeq}
}

// RestoreState reloads the counter pair. The generator keeps its previous
// state when the pair is invalid.
func (g *WidGen) RestoreState(tick, seq int64) error {
	if tick < 0 || seq < -1 {
		return errors.WithStack(ErrInvalidState)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastTick = tick
	g.lastSeq = seq
	g.persistLocked()
	return nil
}

func (g *WidGen) persistLocked() {
	if g.store == nil {
		return
	}
	st := State{Tick: g.lastTick, Seq: g.lastSeq}
	if err := g.store.Save(context.Background(), g.stateKey, st); err != nil {
		g.log.Warn("state save failed",
			slog.String("key", g.stateKey),
			slog.String("error", err.Error()),
		)
	}
}

func (g *WidGen) tsForTick(tick int64) string {
	if tick != g.cachedTick || g.cachedTS == "" {
		g.cachedTick = tick
		g.cachedTS = formatTick(tick, g.TimeUnit)
	}
	return g.cachedTS
}

// randomHex returns z lowercase hex characters of entropy. The suffix is an
// anti-collision hint, not a security token, so a clock-derived fallback is
// acceptable when the entropy source fails.
func randomHex(z int) string {
	if z <= 0 {
		return ""
	}
	b := make([]byte, (z+1)/2)
	if _, err := rand.Read(b); err != nil {
		now := time.Now().UnixNano()
		for i := range b {
			b[i] = byte(now >> uint((i%8)*8))
		}
	}
	return hex.EncodeToString(b)[:z]
}
