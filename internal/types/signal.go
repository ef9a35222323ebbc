package types

import "time"

// SignalType classifies an actionable event emitted by the daily signal
// identifier.
type SignalType string

const (
	// SignalTypeBuy tells the holder to open a new position.
	SignalTypeBuy SignalType = "BUY"
	// SignalTypeSell tells the holder to close an expired position.
	SignalTypeSell SignalType = "SELL"
)

// SignalEvent is one actionable BUY or SELL emitted during a daily scan.
type SignalEvent struct {
	// Date is the bar date the signal fired on.
	Date time.Time `json:"date" yaml:"date"`
	// Instrument is the symbol the signal applies to.
	Instrument string `json:"instrument" yaml:"instrument"`
	// Type is BUY or SELL.
	Type SignalType `json:"type" yaml:"type"`
	// Price is the close price the signal acts at.
	Price float64 `json:"price" yaml:"price"`
	// Reason explains why the signal fired.
	Reason string `json:"reason" yaml:"reason"`
	// RuleStack is the stack that produced the signal, as a snapshot.
	RuleStack RuleStack `json:"rule_stack" yaml:"rule_stack"`
}
