package format

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"signal-relay/internal/model"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func normalized(sig model.SignalRecord) model.SignalRecord {
	sig.Normalize(time.Now())
	return sig
}

func TestRiskReward_Long(t *testing.T) {
	// entry=45000, sl=44000, tp=46000 => risk=1000, reward=1000, ratio 1.00
	r := RiskReward(model.Long, dec("45000"), dec("46000"), dec("44000"))
	if got := r.StringFixed(2); got != "1.00" {
		t.Errorf("ratio: got %s, want 1.00", got)
	}
}

func TestRiskReward_Short(t *testing.T) {
	// SHORT mirrors: entry=45000, sl=46000, tp=43000 => risk=1000, reward=2000
	r := RiskReward(model.Short, dec("45000"), dec("43000"), dec("46000"))
	if got := r.StringFixed(2); got != "2.00" {
		t.Errorf("ratio: got %s, want 2.00", got)
	}
}

func TestRiskReward_ZeroRiskGuard(t *testing.T) {
	// entry == sl => zero risk => ratio 0, not a fault
	r := RiskReward(model.Long, dec("45000"), dec("46000"), dec("45000"))
	if got := r.StringFixed(2); got != "0.00" {
		t.Errorf("zero-risk ratio: got %s, want 0.00", got)
	}
}

func TestExit_RatioRendering(t *testing.T) {
	sig := normalized(model.SignalRecord{
		SignalType: "exit_long",
		Symbol:     "BTCUSDT",
		Direction:  "LONG",
		EntryPrice: dec("45000"),
		TPPrice:    dec("46000"),
		SLPrice:    dec("44000"),
	})

	msg := Exit(sig)
	if !strings.Contains(msg, "Risk/Reward: 1:1.00") {
		t.Errorf("expected 1:1.00 ratio line, got:\n%s", msg)
	}
	if !strings.Contains(msg, "Leverage: 5x") {
		t.Error("expected fixed 5x leverage line")
	}
	if !strings.Contains(msg, "Take Profit:</b> $46000.000000") {
		t.Errorf("expected 6-decimal TP, got:\n%s", msg)
	}
	if !strings.Contains(msg, "Stop Loss:</b> $44000.000000") {
		t.Errorf("expected 6-decimal SL, got:\n%s", msg)
	}
}

func TestExit_ZeroRiskRendering(t *testing.T) {
	sig := normalized(model.SignalRecord{
		SignalType: "exit_long",
		Direction:  "LONG",
		EntryPrice: dec("45000"),
		TPPrice:    dec("46000"),
		SLPrice:    dec("45000"),
	})

	if msg := Exit(sig); !strings.Contains(msg, "Risk/Reward: 1:0.00") {
		t.Errorf("expected 1:0.00 on zero risk, got:\n%s", msg)
	}
}

func TestExit_UsesShortEmoji(t *testing.T) {
	sig := normalized(model.SignalRecord{Direction: "SHORT"})
	msg := Exit(sig)
	if !strings.Contains(msg, "🔴") || !strings.Contains(msg, "SHORT") {
		t.Errorf("expected SHORT rendering, got:\n%s", msg)
	}
}

func TestEntry_MomentumQualifier(t *testing.T) {
	below := normalized(model.SignalRecord{
		SignalType: "entry_long",
		Momentum:   dec("-5.3"),
	})
	if msg := Entry(below); !strings.Contains(msg, "-5.30 (below threshold)") {
		t.Errorf("momentum -5.3: expected below-threshold label, got:\n%s", msg)
	}

	above := normalized(model.SignalRecord{
		SignalType: "entry_long",
		Momentum:   dec("5.4"),
	})
	if msg := Entry(above); !strings.Contains(msg, "5.40 (above threshold)") {
		t.Errorf("momentum 5.4: expected above-threshold label, got:\n%s", msg)
	}

	// Threshold is strict less-than: exactly -5.1 is "above".
	at := normalized(model.SignalRecord{
		SignalType: "entry_long",
		Momentum:   dec("-5.1"),
	})
	if msg := Entry(at); !strings.Contains(msg, "-5.10 (above threshold)") {
		t.Errorf("momentum -5.1: expected above-threshold label, got:\n%s", msg)
	}
}

func TestEntry_DirectionLabel(t *testing.T) {
	long := normalized(model.SignalRecord{SignalType: "entry_long", Symbol: "BTCUSDT"})
	if msg := Entry(long); !strings.Contains(msg, "🟢 LONG") {
		t.Errorf("expected LONG label, got:\n%s", msg)
	}
	short := normalized(model.SignalRecord{SignalType: "entry_short", Symbol: "ETHUSDT"})
	if msg := Entry(short); !strings.Contains(msg, "🔴 SHORT") {
		t.Errorf("expected SHORT label, got:\n%s", msg)
	}
}

func TestUpdate_EmojiByType(t *testing.T) {
	cases := []struct {
		updateType string
		emoji      string
	}{
		{"info", "ℹ️"},
		{"warning", "⚠️"},
		{"success", "✅"},
		{"error", "❌"},
		{"anything-else", "ℹ️"},
		{"", "ℹ️"},
	}
	for _, c := range cases {
		sig := normalized(model.SignalRecord{
			SignalType: "update",
			UpdateType: c.updateType,
			Message:    "note",
		})
		if msg := Update(sig); !strings.HasPrefix(msg, c.emoji) {
			t.Errorf("update_type %q: expected prefix %q, got:\n%s", c.updateType, c.emoji, msg)
		}
	}
}

func TestAllFormats_TimestampPopulated(t *testing.T) {
	// Records without a payload timestamp get one during normalization; the
	// formatted output must carry a non-empty Time line.
	sig := normalized(model.SignalRecord{SignalType: "entry_long"})

	for name, msg := range map[string]string{
		"entry":  Entry(sig),
		"exit":   Exit(sig),
		"update": Update(sig),
	} {
		idx := strings.Index(msg, "Time:</b> ")
		if idx < 0 {
			t.Errorf("%s: missing Time line:\n%s", name, msg)
			continue
		}
		rest := strings.TrimSpace(strings.SplitN(msg[idx+len("Time:</b> "):], "\n", 2)[0])
		if rest == "" {
			t.Errorf("%s: empty timestamp", name)
		}
	}
}

func TestFormats_EscapeHTML(t *testing.T) {
	sig := normalized(model.SignalRecord{
		SignalType: "update",
		Symbol:     "<script>",
		Message:    "a < b & c",
	})
	msg := Update(sig)
	if strings.Contains(msg, "<script>") {
		t.Error("symbol must be HTML-escaped")
	}
	if !strings.Contains(msg, "a &lt; b &amp; c") {
		t.Errorf("message must be HTML-escaped, got:\n%s", msg)
	}
}
