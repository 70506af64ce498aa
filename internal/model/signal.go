// Package model defines the wire and state types shared across the relay:
// inbound signal records, their classification, and per-symbol position state.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SignalKind is the classified category of an inbound signal.
type SignalKind string

const (
	KindEntry   SignalKind = "entry"
	KindExit    SignalKind = "exit"
	KindUpdate  SignalKind = "update"
	KindUnknown SignalKind = "unknown"
)

// Direction of a position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Classify maps a raw signal_type string to a SignalKind by case-insensitive
// substring match, checked in fixed priority order: entry, exit, update.
// First match wins, so "entry_before_exit" classifies as entry.
func Classify(signalType string) SignalKind {
	s := strings.ToLower(signalType)
	switch {
	case strings.Contains(s, "entry"):
		return KindEntry
	case strings.Contains(s, "exit"):
		return KindExit
	case strings.Contains(s, "update"):
		return KindUpdate
	default:
		return KindUnknown
	}
}

// DeriveDirection extracts the trade direction from a signal_type string:
// "long" anywhere (case-insensitive) means LONG, anything else SHORT.
func DeriveDirection(signalType string) Direction {
	if strings.Contains(strings.ToLower(signalType), "long") {
		return Long
	}
	return Short
}

// ParseDirection normalizes a payload-provided direction field.
// Unknown or empty values fall back to LONG.
func ParseDirection(s string) Direction {
	if strings.EqualFold(s, string(Short)) {
		return Short
	}
	return Long
}

// SignalRecord is a typed TradingView alert payload. Every field except
// SignalType and Symbol is optional on the wire; Normalize resolves the
// defaults once at ingestion. Unknown payload keys (atr_high, atr_low, ...)
// are ignored by the JSON decoder.
type SignalRecord struct {
	SignalType string          `json:"signal_type"`
	Symbol     string          `json:"symbol"`
	Timeframe  string          `json:"timeframe"`
	Price      decimal.Decimal `json:"price"`
	Momentum   decimal.Decimal `json:"momentum"`
	VWAP       decimal.Decimal `json:"vwap"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	TPPrice    decimal.Decimal `json:"tp_price"`
	SLPrice    decimal.Decimal `json:"sl_price"`
	Direction  string          `json:"direction"`
	UpdateType string          `json:"update_type"`
	Message    string          `json:"message"`
	Timestamp  string          `json:"timestamp"`
}

// Normalize fills defaults for absent fields in one place, so formatters
// and the dispatcher can assume a fully populated record. Missing numeric
// fields keep their decimal zero value.
func (s *SignalRecord) Normalize(now time.Time) {
	if s.Symbol == "" {
		s.Symbol = "UNKNOWN"
	}
	if s.Timeframe == "" {
		s.Timeframe = "7m"
	}
	if s.Direction == "" {
		s.Direction = string(Long)
	}
	if s.Timestamp == "" {
		s.Timestamp = now.UTC().Format(time.RFC3339)
	}
}
