package wid

import "context"

// State is the two-field counter pair shared by both generators. For the
// sequence generator Tick/Seq are (last emitted tick, last sequence); for
// the HLC generator they are (physical time, logical counter).
type State struct {
	Tick int64
	Seq  int64
}

// SeedState is the sentinel "before epoch" state a fresh sequence counter
// row starts from. The first allocation against it emits sequence 0 at the
// current tick.
func SeedState() State {
	return State{Tick: 0, Seq: -1}
}

// StateStore persists generator state across process runs. Load returns
// ErrStateNotFound when no state has been saved under the key. A StateStore
// serializes nothing by itself; it is safe only for a single generator's
// exclusive use.
type StateStore interface {
	Load(ctx context.Context, key string) (State, error)
	Save(ctx context.Context, key string, st State) error
}
