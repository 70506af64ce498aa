package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle stage of a tracked position.
type PositionStatus string

const (
	// StatusAccumulating: entry seen, accumulation in progress.
	StatusAccumulating PositionStatus = "accumulating"
	// StatusActive: matching exit seen, TP/SL known.
	StatusActive PositionStatus = "active"
)

// PositionState is the relay's memory of a trade for one symbol. Created on
// an entry signal (overwriting any prior state for the symbol), mutated on
// the matching exit, never deleted. State is transient: it lives only as
// long as the backing store does.
type PositionState struct {
	Status     PositionStatus  `json:"status"`
	EntryTime  time.Time       `json:"entry_time"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Direction  Direction       `json:"direction"`
	TPPrice    decimal.Decimal `json:"tp_price"`
	SLPrice    decimal.Decimal `json:"sl_price"`
}

// PositionUpdate is the partial mutation applied on an exit signal.
type PositionUpdate struct {
	Status  PositionStatus
	TPPrice decimal.Decimal
	SLPrice decimal.Decimal
}

// Apply merges the update into the state.
func (u PositionUpdate) Apply(st *PositionState) {
	st.Status = u.Status
	st.TPPrice = u.TPPrice
	st.SLPrice = u.SLPrice
}
