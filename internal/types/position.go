package types

import (
	"time"

	"github.com/moznion/go-optional"
)

// PositionStatus is the lifecycle state of a position. The state machine is
// unidirectional: OPEN transitions once to CLOSED and never back.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// Position tracks the lifecycle of one entered trade. Created in OPEN state
// by the daily signal identifier; exit fields are populated atomically with
// the transition to CLOSED when the holding period elapses.
type Position struct {
	// ID is a unique identifier assigned at creation.
	ID string `json:"id" yaml:"id"`
	// Instrument is the tradable symbol of the position.
	Instrument string `json:"instrument" yaml:"instrument"`
	// EntryDate is the bar date the position was opened on.
	EntryDate time.Time `json:"entry_date" yaml:"entry_date"`
	// EntryPrice is the close price on the entry bar.
	EntryPrice float64 `json:"entry_price" yaml:"entry_price"`
	// ExitDate is set only when the position closes.
	ExitDate optional.Option[time.Time] `json:"exit_date,omitempty" yaml:"exit_date,omitempty"`
	// ExitPrice is set only when the position closes.
	ExitPrice optional.Option[float64] `json:"exit_price,omitempty" yaml:"exit_price,omitempty"`
	// Status is OPEN or CLOSED.
	Status PositionStatus `json:"status" yaml:"status"`
	// RuleStackUsed is the snapshot of the stack that triggered the entry.
	RuleStackUsed RuleStack `json:"rule_stack_used" yaml:"rule_stack_used"`
	// FinalReturnPct is set only when the position closes.
	FinalReturnPct optional.Option[float64] `json:"final_return_pct,omitempty" yaml:"final_return_pct,omitempty"`
	// DaysHeld is the calendar days between entry and exit; 0 while open.
	DaysHeld int `json:"days_held" yaml:"days_held"`
}

// IsOpen reports whether the position is still open.
func (p Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}
