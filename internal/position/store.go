// Package position tracks the latest known position per symbol. The Store
// abstraction lets dispatch logic run against an in-process map or a Redis
// backend without change.
package position

import (
	"context"

	"signal-relay/internal/model"
)

// Store is a per-symbol mapping to the latest PositionState.
//
// Store implementations guarantee map-level safety for concurrent access,
// but do not serialize multi-step read-merge-write sequences; the dispatcher
// holds a per-symbol lock around those.
type Store interface {
	// Get returns the state for symbol, and whether one exists.
	Get(ctx context.Context, symbol string) (model.PositionState, bool, error)

	// Put fully overwrites the state for symbol.
	Put(ctx context.Context, symbol string, st model.PositionState) error

	// UpdateFields applies a partial update only if the symbol is tracked.
	// Returns false when the symbol is absent; that is a no-op, not an error.
	UpdateFields(ctx context.Context, symbol string, u model.PositionUpdate) (bool, error)

	// Count returns the number of tracked symbols.
	Count(ctx context.Context) (int, error)
}
