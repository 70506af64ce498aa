// Package format renders classified signals into chat-ready HTML messages.
// All functions are pure: they expect a normalized SignalRecord and never
// touch shared state.
package format

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"

	"signal-relay/internal/model"
)

// momentumThreshold separates the "below threshold" qualifier from
// "above threshold" on entry messages. Strict less-than.
var momentumThreshold = decimal.NewFromFloat(-5.1)

// Entry renders an entry signal: direction, symbol, timeframe, price,
// momentum with its qualifier, VWAP and timestamp.
func Entry(sig model.SignalRecord) string {
	direction := "🔴 SHORT"
	if model.DeriveDirection(sig.SignalType) == model.Long {
		direction = "🟢 LONG"
	}

	qualifier := "(above threshold)"
	if sig.Momentum.LessThan(momentumThreshold) {
		qualifier = "(below threshold)"
	}

	msg := fmt.Sprintf(`
%s POSITION ENTRY

<b>Symbol:</b> %s
<b>Timeframe:</b> %s
<b>Price:</b> $%s

📊 <b>Indicators:</b>
• Momentum: %s %s
• VWAP: $%s

⏰ <b>Time:</b> %s

<i>Position accumulation started. TP/SL notification to follow...</i>
`,
		direction,
		html.EscapeString(sig.Symbol),
		html.EscapeString(sig.Timeframe),
		sig.Price.StringFixed(6),
		sig.Momentum.StringFixed(2), qualifier,
		sig.VWAP.StringFixed(6),
		html.EscapeString(sig.Timestamp),
	)
	return strings.TrimSpace(msg)
}

// Exit renders an exit signal with TP/SL and the computed risk/reward
// ratio. Direction and entry price are expected to be the merged values
// from position state when one exists.
func Exit(sig model.SignalRecord) string {
	direction := model.ParseDirection(sig.Direction)

	emoji := "🔴"
	if direction == model.Long {
		emoji = "🟢"
	}

	ratio := RiskReward(direction, sig.EntryPrice, sig.TPPrice, sig.SLPrice)

	msg := fmt.Sprintf(`
%s POSITION PARAMETERS

<b>Symbol:</b> %s
<b>Direction:</b> %s
<b>Status:</b> Accumulation complete

🎯 <b>Take Profit:</b> $%s (VWAP)
🛡 <b>Stop Loss:</b> $%s (ATR)

📊 <b>Analysis:</b>
• Momentum: %s (left the zone)
• Risk/Reward: 1:%s
• Leverage: 5x

⏰ <b>Time:</b> %s
`,
		emoji,
		html.EscapeString(sig.Symbol),
		direction,
		sig.TPPrice.StringFixed(6),
		sig.SLPrice.StringFixed(6),
		sig.Momentum.StringFixed(2),
		ratio.StringFixed(2),
		html.EscapeString(sig.Timestamp),
	)
	return strings.TrimSpace(msg)
}

// Update renders a free-form position update with an emoji picked by
// update_type (info is the fallback).
func Update(sig model.SignalRecord) string {
	emoji := "ℹ️"
	switch sig.UpdateType {
	case "warning":
		emoji = "⚠️"
	case "success":
		emoji = "✅"
	case "error":
		emoji = "❌"
	}

	msg := fmt.Sprintf(`
%s POSITION UPDATE

<b>Symbol:</b> %s
<b>Price:</b> $%s

%s

⏰ <b>Time:</b> %s
`,
		emoji,
		html.EscapeString(sig.Symbol),
		sig.Price.StringFixed(6),
		html.EscapeString(sig.Message),
		html.EscapeString(sig.Timestamp),
	)
	return strings.TrimSpace(msg)
}

// RiskReward computes reward/risk for the position. LONG risks the distance
// from entry down to SL and rewards the distance up to TP; SHORT mirrors it.
// Zero risk yields a zero ratio rather than an error.
func RiskReward(direction model.Direction, entry, tp, sl decimal.Decimal) decimal.Decimal {
	var risk, reward decimal.Decimal
	if direction == model.Long {
		risk = entry.Sub(sl).Abs()
		reward = tp.Sub(entry).Abs()
	} else {
		risk = sl.Sub(entry).Abs()
		reward = entry.Sub(tp).Abs()
	}

	if !risk.IsPositive() {
		return decimal.Zero
	}
	return reward.Div(risk)
}
