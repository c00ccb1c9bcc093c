package wid

import (
	"fmt"
	"sync"
	"unicode"

	"github.com/cockroachdb/errors"
)

// HLCWidGen issues HLC-WID strings from a hybrid logical clock: a physical
// time component that tracks the wall clock and a logical counter that
// breaks ties when the wall clock does not advance. Observe folds causally
// related remote readings into the local clock so ordering survives skew
// between nodes.
type HLCWidGen struct {
	W        int
	Z        int
	Node     string
	TimeUnit TimeUnit

	maxLC int64
	pt    int64
	lc    int64

	cachedTick int64
	cachedTS   string

	mu sync.Mutex
}

// NewHLCWidGen creates an HLC generator with second precision.
func NewHLCWidGen(node string, w, z int) (*HLCWidGen, error) {
	return NewHLCWidGenWithUnit(node, w, z, TimeUnitSec)
}

// NewHLCWidGenWithUnit creates an HLC generator with the given time unit.
// The node token may not be empty or contain whitespace or hyphens; the
// hyphen is the field separator in the encoded form.
func NewHLCWidGenWithUnit(node string, w, z int, unit TimeUnit) (*HLCWidGen, error) {
	if w <= 0 || w > maxW {
		return nil, errors.WithStack(ErrInvalidW)
	}
	if z < 0 {
		return nil, errors.WithStack(ErrInvalidZ)
	}
	if !IsValidNode(node) {
		return nil, errors.WithStack(ErrInvalidNode)
	}
	if !validTimeUnit(unit) {
		return nil, errors.WithStack(ErrInvalidTimeUnit)
	}
	return &HLCWidGen{
		W:        w,
		Z:        z,
		Node:     node,
		TimeUnit: unit,
		maxLC:    pow10(w) - 1,
	}, nil
}

// IsValidNode reports whether node is usable as the node field of an
// HLC-WID. The hyphen is the field separator in the encoded form and any
// whitespace would not survive the grammar's node class.
func IsValidNode(node string) bool {
	if node == "" {
		return false
	}
	for _, c := range node {
		if c == '-' || unicode.IsSpace(c) {
			return false
		}
	}
	return true
}

// rollover forces the physical time forward when the logical counter has
// exceeded its digit width. It must run after every transition that can
// grow lc.
func (g *HLCWidGen) rollover() {
	if g.lc > g.maxLC {
		g.pt++
		g.lc = 0
	}
}

// Next returns the next HLC-WID string.
func (g *HLCWidGen) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nextLocked()
}

func (g *HLCWidGen) nextLocked() string {
	now := nowTick(g.TimeUnit)
	if now > g.pt {
		g.pt = now
		g.lc = 0
	} else {
		g.lc++
	}
	g.rollover()

	ts := g.tsForTick(g.pt)
	if g.Z > 0 {
		return fmt.Sprintf("%s.%0*dZ-%s-%s", ts, g.W, g.lc, g.Node, randomHex(g.Z))
	}
	return fmt.Sprintf("%s.%0*dZ-%s", ts, g.W, g.lc, g.Node)
}

// NextN returns n sequential HLC-WIDs under a single lock acquisition.
func (g *HLCWidGen) NextN(n int) ([]string, error) {
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

// Observe merges a causally related remote clock reading into the local
// clock. The merged counter always exceeds whichever side supplied the
// winning physical time, so a subsequent Next is ordered after both.
func (g *HLCWidGen) Observe(remotePT int64, remoteLC int64) error {
	if remotePT < 0 || remoteLC < 0 {
		return errors.WithStack(ErrInvalidRemoteClock)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := nowTick(g.TimeUnit)
	newPT := now
	if g.pt > newPT {
		newPT = g.pt
	}
	if remotePT > newPT {
		newPT = remotePT
	}

	switch {
	case newPT == g.pt && newPT == remotePT:
		// both sides are at the merged instant, exceed them both
		if g.lc > remoteLC {
			g.lc++
		} else {
			g.lc = remoteLC + 1
		}
	case newPT == g.pt:
		g.lc++
	case newPT == remotePT:
		g.lc = remoteLC + 1
	default:
		// wall clock supplied a genuinely new maximum
		g.lc = 0
	}
	g.pt = newPT
	g.rollover()
	return nil
}

// State returns the current (physical time, logical counter) pair.
func (g *HLCWidGen) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{Tick: g.pt, Seq: g.lc}
}

// RestoreState forces the clock to a previously captured pair. The
// generator keeps its previous state when the pair is invalid.
func (g *HLCWidGen) RestoreState(pt, lc int64) error {
	if pt < 0 || lc < 0 {
		return errors.WithStack(ErrInvalidState)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pt = pt
	g.lc = lc
	return nil
}

func (g *HLCWidGen) tsForTick(tick int64) string {
	if tick != g.cachedTick || g.cachedTS == "" {
		g.cachedTick = tick
		g.cachedTS = formatTick(tick, g.TimeUnit)
	}
	return g.cachedTS
}
