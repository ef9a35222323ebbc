// Package store persists the append-only strategy history and the position
// lifecycle state machine.
package store

import (
	"context"
	"time"

	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/edgefinder/internal/types"
)

// StrategyFilter narrows a strategy history query.
type StrategyFilter struct {
	// Instrument restricts rows to one symbol.
	Instrument optional.Option[string]
	// Since restricts rows to run timestamps at or after the given time.
	Since optional.Option[time.Time]
}

// PositionFilter narrows a position query.
type PositionFilter struct {
	// Instrument restricts rows to one symbol.
	Instrument optional.Option[string]
	// Status restricts rows to OPEN or CLOSED.
	Status optional.Option[types.PositionStatus]
}

// PositionClose carries the fields populated atomically with the OPEN to
// CLOSED transition.
type PositionClose struct {
	PositionID     string
	ExitDate       time.Time
	ExitPrice      float64
	FinalReturnPct float64
	DaysHeld       int
}

// Store is the persistence contract shared by the DuckDB and Postgres
// backends.
//
// Strategies are append-only: a new optimizer run always inserts new rows and
// never updates or deletes prior ones, keyed uniquely by (instrument, rule
// stack snapshot, run timestamp). Re-inserting an existing key is a no-op so
// a re-run against a frozen snapshot stays idempotent.
//
// Positions move through a unidirectional OPEN to CLOSED state machine. At
// most one OPEN position exists per instrument at any time.
type Store interface {
	// Initialize creates the schema if it does not exist.
	Initialize(ctx context.Context) error
	// Close releases the underlying connection.
	Close() error

	// InsertStrategies appends a batch of strategy rows within a single
	// transaction, so a failure partway through one instrument never leaves
	// a half-written batch behind.
	InsertStrategies(ctx context.Context, results []types.StrategyResult) error
	// ListStrategies returns strategy rows matching the filter, newest run
	// first.
	ListStrategies(ctx context.Context, filter StrategyFilter) ([]types.StrategyResult, error)

	// OpenPosition creates a new OPEN position. It fails with
	// ErrCodeDuplicateOpenPosition when the instrument already has one.
	OpenPosition(ctx context.Context, position types.Position) error
	// ClosePosition transitions one OPEN position to CLOSED, populating the
	// exit fields atomically with the status change. Closing a position that
	// is not OPEN fails with ErrCodePositionNotOpen.
	ClosePosition(ctx context.Context, close PositionClose) error
	// GetOpenPositions returns every OPEN position.
	GetOpenPositions(ctx context.Context) ([]types.Position, error)
	// ListPositions returns positions matching the filter, newest entry first.
	ListPositions(ctx context.Context, filter PositionFilter) ([]types.Position, error)
	// HasOpenPosition reports whether the instrument has an OPEN position.
	HasOpenPosition(ctx context.Context, instrument string) (bool, error)
}
