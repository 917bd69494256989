// Package store holds the per-symbol rolling windows shared by the ingestion,
// detection and outcome-tracking goroutines.
package store

import (
	"github.com/puzpuzpuz/xsync/v3"

	"watcher/internal/model"
)

// DefaultCapacity is the number of one-minute buckets kept per symbol.
const DefaultCapacity = 60

// SymbolState is an immutable snapshot of one symbol's window and cooldown.
// Window is never mutated after publication, so snapshots may be read freely.
type SymbolState struct {
	Symbol         string
	Window         []model.BucketPoint
	LastSignalTime int64
	HasSignal      bool
}

// AverageVolume returns the mean bucket volume, or 0 for an empty window.
func (s SymbolState) AverageVolume() float64 {
	if len(s.Window) == 0 {
		return 0
	}
	var sum float64
	for _, p := range s.Window {
		sum += p.Volume
	}
	return sum / float64(len(s.Window))
}

// Last returns the newest bucket.
func (s SymbolState) Last() (model.BucketPoint, bool) {
	if len(s.Window) == 0 {
		return model.BucketPoint{}, false
	}
	return s.Window[len(s.Window)-1], true
}

// Store maps symbol to SymbolState. Every mutation is a per-key atomic compute,
// so writers on different symbols never contend on a shared lock.
type Store struct {
	states   *xsync.MapOf[string, SymbolState]
	capacity int
}

// New creates an empty store whose windows hold at most capacity points.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		states:   xsync.NewMapOf[string, SymbolState](),
		capacity: capacity,
	}
}

// Capacity returns the window bound.
func (s *Store) Capacity() int {
	return s.capacity
}

// Ensure returns the state for symbol, creating an empty one on first touch.
func (s *Store) Ensure(symbol string) SymbolState {
	state, _ := s.states.LoadOrCompute(symbol, func() SymbolState {
		return SymbolState{Symbol: symbol}
	})
	return state
}

// Get returns a snapshot of the state for symbol.
func (s *Store) Get(symbol string) (SymbolState, bool) {
	return s.states.Load(symbol)
}

// Append adds a finalized bucket to the symbol's window, evicting the oldest
// point on overflow. Points older than the current newest are rejected so the
// window stays time-ordered. It reports whether the point was appended.
func (s *Store) Append(p model.BucketPoint) bool {
	appended := false
	s.states.Compute(p.Symbol, func(old SymbolState, loaded bool) (SymbolState, bool) {
		if !loaded {
			old = SymbolState{Symbol: p.Symbol}
		}
		if last, ok := old.Last(); ok && p.Timestamp < last.Timestamp {
			return old, false
		}
		old.Window = appendBounded(old.Window, p, s.capacity)
		appended = true
		return old, false
	})
	return appended
}

// ClaimSignal records ts as the symbol's last signal time unless another
// signal was already recorded less than cooldownMs before ts. It reports
// whether the claim succeeded; exactly one of several concurrent claimers wins.
func (s *Store) ClaimSignal(symbol string, ts, cooldownMs int64) bool {
	claimed := false
	s.states.Compute(symbol, func(old SymbolState, loaded bool) (SymbolState, bool) {
		if !loaded {
			old = SymbolState{Symbol: symbol}
		}
		if old.HasSignal && ts-old.LastSignalTime < cooldownMs {
			return old, false
		}
		old.LastSignalTime = ts
		old.HasSignal = true
		claimed = true
		return old, false
	})
	return claimed
}

// LatestPrice returns the price of the newest finalized bucket for symbol.
func (s *Store) LatestPrice(symbol string) (float64, bool) {
	state, ok := s.states.Load(symbol)
	if !ok {
		return 0, false
	}
	last, ok := state.Last()
	if !ok {
		return 0, false
	}
	return last.Price, true
}

// Len returns the number of tracked symbols.
func (s *Store) Len() int {
	return s.states.Size()
}

// Range calls fn for each symbol snapshot until fn returns false.
func (s *Store) Range(fn func(SymbolState) bool) {
	s.states.Range(func(_ string, state SymbolState) bool {
		return fn(state)
	})
}

// appendBounded returns a new slice; the input is left untouched for readers
// still holding it.
func appendBounded(window []model.BucketPoint, p model.BucketPoint, capacity int) []model.BucketPoint {
	start := 0
	if len(window) >= capacity {
		start = len(window) - capacity + 1
	}
	out := make([]model.BucketPoint, 0, len(window)-start+1)
	out = append(out, window[start:]...)
	return append(out, p)
}
