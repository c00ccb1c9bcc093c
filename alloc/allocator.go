// Package alloc implements the concurrent allocator: an optimistic retry
// loop that lets any number of callers share one monotonic counter through
// compare-and-swap against a durable state store, without locks.
package alloc

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/widlabs/widgen/store"
	"github.com/widlabs/widgen/wid"
)

// ErrContention reports that the retry budget was exhausted without a
// successful conditional write. It is distinct from storage I/O failure.
var ErrContention = errors.New("allocation retry budget exhausted")

const (
	DefaultMaxRetries = 64
	defaultBackoff    = 250 * time.Microsecond
	maxBackoffShift   = 5
)

// Options configures an Allocator. A non-empty Node switches the allocator
// from WID to HLC-WID output; the stored pair is then (physical time,
// logical counter).
type Options struct {
	W        int
	Z        int
	TimeUnit wid.TimeUnit
	Node     string

	// MaxRetries bounds the CAS loop; zero means DefaultMaxRetries.
	MaxRetries int
	// Backoff is the base delay between retries; zero means a small
	// default. Backoff grows with the attempt and is jittered.
	Backoff time.Duration
}

// Allocator allocates identifiers from a shared counter row. It is safe
// for arbitrary concurrent use; every emitted identifier reflects a state
// strictly greater than the one it was derived from, and no two callers
// ever observe the same (tick, counter) pair.
type Allocator struct {
	store store.CASStore
	opts  Options
	log   *slog.Logger
}

// New validates opts by constructing a throwaway generator and returns an
// allocator over st.
func New(st store.CASStore, opts Options) (*Allocator, error) {
	if opts.TimeUnit == "" {
		opts.TimeUnit = wid.TimeUnitSec
	}
	if _, _, err := advance(opts, seedFor(opts)); err != nil {
		return nil, err
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	return &Allocator{
		store: st,
		opts:  opts,
		log: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		})),
	}, nil
}

func seedFor(opts Options) wid.State {
	if opts.Node != "" {
		// the HLC pair has no "before epoch" sentinel, both fields are >= 0
		return wid.State{}
	}
	return wid.SeedState()
}

// advance computes the successor of prev through a transient generator
// restored to it, returning the rendered identifier and the new state.
func advance(opts Options, prev wid.State) (string, wid.State, error) {
	if opts.Node != "" {
		g, err := wid.NewHLCWidGenWithUnit(opts.Node, opts.W, opts.Z, opts.TimeUnit)
		if err != nil {
			return "", wid.State{}, err
		}
		if err := g.RestoreState(prev.Tick, prev.Seq); err != nil {
			return "", wid.State{}, err
		}
		out := g.Next()
		return out, g.State(), nil
	}
	g, err := wid.NewWidGenWithUnit(opts.W, opts.Z, opts.TimeUnit)
	if err != nil {
		return "", wid.State{}, err
	}
	if err := g.RestoreState(prev.Tick, prev.Seq); err != nil {
		return "", wid.State{}, err
	}
	out := g.Next()
	return out, g.State(), nil
}

// Allocate returns the next identifier for key. The loop is the state
// machine {seed, read, compute, conditional write, success | retry |
// exhausted}; an attempt abandoned between read and write leaves the row
// untouched.
func (a *Allocator) Allocate(ctx context.Context, key string) (string, error) {
	if err := a.store.Seed(ctx, key, seedFor(a.opts)); err != nil {
		return "", errors.WithStack(err)
	}

	for attempt := 0; attempt < a.opts.MaxRetries; attempt++ {
		prev, err := a.store.Load(ctx, key)
		if err != nil {
			return "", errors.WithStack(err)
		}
		out, next, err := advance(a.opts, prev)
		if err != nil {
			return "", err
		}
		applied, err := a.store.CompareAndSave(ctx, key, prev, next)
		if err != nil {
			return "", errors.WithStack(err)
		}
		if applied {
			return out, nil
		}
		if err := a.backoff(ctx, attempt); err != nil {
			return "", err
		}
	}
	a.log.Warn("allocation contention exhausted",
		slog.String("key", key),
		slog.Int("retries", a.opts.MaxRetries),
	)
	return "", errors.WithStack(ErrContention)
}

// AllocateN returns n identifiers allocated one at a time. The batch is not
// atomic; other callers may interleave.
func (a *Allocator) AllocateN(ctx context.Context, key string, n int) ([]string, error) {
	if n < 0 {
		return nil, errors.WithStack(wid.ErrInvalidCount)
	}
	out := make([]string, n)
	for i := range out {
		id, err := a.Allocate(ctx, key)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

// Observe folds a remote HLC reading into the shared clock row under the
// same CAS protocol as Allocate. It only applies to HLC allocators.
func (a *Allocator) Observe(ctx context.Context, key string, remotePT, remoteLC int64) error {
	if a.opts.Node == "" {
		return errors.WithStack(wid.ErrInvalidNode)
	}
	if remotePT < 0 || remoteLC < 0 {
		return errors.WithStack(wid.ErrInvalidRemoteClock)
	}
	if err := a.store.Seed(ctx, key, seedFor(a.opts)); err != nil {
		return errors.WithStack(err)
	}

	for attempt := 0; attempt < a.opts.MaxRetries; attempt++ {
		prev, err := a.store.Load(ctx, key)
		if err != nil {
			return errors.WithStack(err)
		}
		g, err := wid.NewHLCWidGenWithUnit(a.opts.Node, a.opts.W, a.opts.Z, a.opts.TimeUnit)
		if err != nil {
			return err
		}
		if err := g.RestoreState(prev.Tick, prev.Seq); err != nil {
			return err
		}
		if err := g.Observe(remotePT, remoteLC); err != nil {
			return err
		}
		applied, err := a.store.CompareAndSave(ctx, key, prev, g.State())
		if err != nil {
			return errors.WithStack(err)
		}
		if applied {
			return nil
		}
		if err := a.backoff(ctx, attempt); err != nil {
			return err
		}
	}
	return errors.WithStack(ErrContention)
}

// backoff yields between failed attempts. The delay grows with the attempt
// up to a cap and carries jitter so contending callers spread out; a
// cancelled context aborts the allocation with no stored effect.
func (a *Allocator) backoff(ctx context.Context, attempt int) error {
	shift := attempt
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	d := a.opts.Backoff << uint(shift)
	d += rand.N(a.opts.Backoff)

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	case <-t.C:
		return nil
	}
}
