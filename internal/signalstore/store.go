// Package signalstore defines the durable CRUD contract for signals and
// ships two implementations: SQLite (production) and an in-memory map
// (tests, dev). The store is the source of truth for signal state across
// process restarts; both Create and UpdateResult are idempotent.
package signalstore

import (
	"context"

	"signal-enginev1/internal/model"
)

// Store is the persistence contract consumed by the scheduler and the
// lifecycle manager.
//
// Idempotency rules:
//   - Create with an already-stored ID does not duplicate; it returns the
//     existing record.
//   - UpdateResult on an already-resolved signal is a no-op that returns
//     the stored record unchanged. A signal therefore resolves exactly once.
type Store interface {
	// Create stores a pending signal. Returns the stored record, which is
	// the pre-existing one when the ID was already present.
	Create(ctx context.Context, sig *model.Signal) (*model.Signal, error)

	// GetByID returns the signal or (nil, nil) when not found.
	GetByID(ctx context.Context, id string) (*model.Signal, error)

	// GetPending returns unresolved signals, most-recent first.
	GetPending(ctx context.Context) ([]model.Signal, error)

	// GetAll returns every stored signal, most-recent first.
	GetAll(ctx context.Context) ([]model.Signal, error)

	// UpdateResult sets result and profitLoss on a pending signal and
	// returns the stored record. Returns (nil, nil) when the ID is unknown.
	UpdateResult(ctx context.Context, id string, result model.SignalResult, profitLoss float64) (*model.Signal, error)

	// ClearAll removes every stored signal.
	ClearAll(ctx context.Context) error
}
