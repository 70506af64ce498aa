package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"signal-relay/internal/model"
	"signal-relay/internal/position"
)

// fakeSink records sent messages and optionally fails every send.
type fakeSink struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSink) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSink) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

func newTestDispatcher(sink *fakeSink) (*Dispatcher, *position.MemoryStore) {
	store := position.NewMemoryStore()
	return NewDispatcher(store, sink, nil), store
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestDispatch_EntryWritesState(t *testing.T) {
	sink := &fakeSink{}
	d, store := newTestDispatcher(sink)

	out, err := d.Dispatch(context.Background(), model.SignalRecord{
		SignalType: "entry_long",
		Symbol:     "BTCUSDT",
		Price:      dec("45000.50"),
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out.Kind != model.KindEntry || !out.Delivered {
		t.Fatalf("outcome: %+v", out)
	}

	st, ok, _ := store.Get(context.Background(), "BTCUSDT")
	if !ok {
		t.Fatal("expected position state")
	}
	if st.Status != model.StatusAccumulating {
		t.Errorf("status: got %s, want accumulating", st.Status)
	}
	if st.Direction != model.Long {
		t.Errorf("direction: got %s, want LONG", st.Direction)
	}
	if !st.EntryPrice.Equal(dec("45000.50")) {
		t.Errorf("entry price: got %s", st.EntryPrice)
	}
	if st.EntryTime.IsZero() {
		t.Error("entry time must be set")
	}
	if sink.count() != 1 {
		t.Errorf("expected 1 delivery, got %d", sink.count())
	}
}

func TestDispatch_EntryOverwritesPriorState(t *testing.T) {
	sink := &fakeSink{}
	d, store := newTestDispatcher(sink)
	ctx := context.Background()

	d.Dispatch(ctx, model.SignalRecord{SignalType: "entry_long", Symbol: "BTCUSDT", Price: dec("45000")})
	d.Dispatch(ctx, model.SignalRecord{SignalType: "entry_short", Symbol: "BTCUSDT", Price: dec("47000")})

	st, _, _ := store.Get(ctx, "BTCUSDT")
	if st.Direction != model.Short || !st.EntryPrice.Equal(dec("47000")) {
		t.Errorf("second entry must fully overwrite: %+v", st)
	}
	if st.Status != model.StatusAccumulating {
		t.Errorf("status reset expected, got %s", st.Status)
	}
}

func TestDispatch_ExitMergesStoredState(t *testing.T) {
	sink := &fakeSink{}
	d, store := newTestDispatcher(sink)
	ctx := context.Background()

	d.Dispatch(ctx, model.SignalRecord{SignalType: "entry_short", Symbol: "BTCUSDT", Price: dec("45000")})

	// The exit payload claims LONG with a bogus entry price; the stored
	// SHORT entry must win in the formatted message and the ratio.
	out, err := d.Dispatch(ctx, model.SignalRecord{
		SignalType: "exit_short",
		Symbol:     "BTCUSDT",
		Direction:  "LONG",
		EntryPrice: dec("99999"),
		TPPrice:    dec("43000"),
		SLPrice:    dec("46000"),
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if !strings.Contains(out.Message, "Direction:</b> SHORT") {
		t.Errorf("stored direction must override payload:\n%s", out.Message)
	}
	// SHORT: risk=|46000-45000|=1000, reward=|45000-43000|=2000 => 1:2.00
	if !strings.Contains(out.Message, "Risk/Reward: 1:2.00") {
		t.Errorf("ratio must use stored entry price:\n%s", out.Message)
	}

	st, _, _ := store.Get(ctx, "BTCUSDT")
	if st.Status != model.StatusActive {
		t.Errorf("status: got %s, want active", st.Status)
	}
	if !st.TPPrice.Equal(dec("43000")) || !st.SLPrice.Equal(dec("46000")) {
		t.Errorf("tp/sl not recorded: %+v", st)
	}
	// Entry fields survive the exit mutation.
	if !st.EntryPrice.Equal(dec("45000")) || st.Direction != model.Short {
		t.Errorf("entry fields lost: %+v", st)
	}
}

func TestDispatch_ExitWithoutState(t *testing.T) {
	sink := &fakeSink{}
	d, store := newTestDispatcher(sink)
	ctx := context.Background()

	out, err := d.Dispatch(ctx, model.SignalRecord{
		SignalType: "exit_long",
		Symbol:     "BTCUSDT",
		TPPrice:    dec("46000"),
		SLPrice:    dec("44000"),
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// Defaults: direction LONG, entry price 0.
	if !strings.Contains(out.Message, "Direction:</b> LONG") {
		t.Errorf("expected default LONG:\n%s", out.Message)
	}

	// An exit-only signal creates no state.
	if _, ok, _ := store.Get(ctx, "BTCUSDT"); ok {
		t.Error("exit without prior entry must not create state")
	}
	if n, _ := store.Count(ctx); n != 0 {
		t.Errorf("count: got %d, want 0", n)
	}
}

func TestDispatch_UpdateNeverTouchesState(t *testing.T) {
	sink := &fakeSink{}
	d, store := newTestDispatcher(sink)
	ctx := context.Background()

	d.Dispatch(ctx, model.SignalRecord{SignalType: "entry_long", Symbol: "BTCUSDT", Price: dec("45000")})
	before, _, _ := store.Get(ctx, "BTCUSDT")

	out, err := d.Dispatch(ctx, model.SignalRecord{
		SignalType: "update",
		Symbol:     "BTCUSDT",
		UpdateType: "warning",
		Message:    "volatility spike",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out.Kind != model.KindUpdate || out.Message == "" {
		t.Fatalf("outcome: %+v", out)
	}

	after, _, _ := store.Get(ctx, "BTCUSDT")
	if after.Status != before.Status || !after.EntryPrice.Equal(before.EntryPrice) {
		t.Errorf("update mutated state: before=%+v after=%+v", before, after)
	}
}

func TestDispatch_UnrecognizedIsNoOp(t *testing.T) {
	sink := &fakeSink{}
	d, store := newTestDispatcher(sink)

	out, err := d.Dispatch(context.Background(), model.SignalRecord{
		SignalType: "ping",
		Symbol:     "BTCUSDT",
	})
	if err != nil {
		t.Fatalf("no-op must not error: %v", err)
	}
	if out.Kind != model.KindUnknown {
		t.Errorf("kind: got %s", out.Kind)
	}
	if out.Message != "" || out.Delivered {
		t.Errorf("no message expected: %+v", out)
	}
	if sink.count() != 0 {
		t.Error("sink must not be called")
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Error("no state mutation expected")
	}
}

func TestDispatch_EntryBeatsExitInType(t *testing.T) {
	sink := &fakeSink{}
	d, store := newTestDispatcher(sink)

	out, _ := d.Dispatch(context.Background(), model.SignalRecord{
		SignalType: "entry_before_exit_long",
		Symbol:     "BTCUSDT",
		Price:      dec("45000"),
	})
	if out.Kind != model.KindEntry {
		t.Fatalf("priority: got %s, want entry", out.Kind)
	}
	if st, ok, _ := store.Get(context.Background(), "BTCUSDT"); !ok || st.Status != model.StatusAccumulating {
		t.Error("entry path must have run")
	}
}

func TestDispatch_SinkFailureKeepsState(t *testing.T) {
	sink := &fakeSink{err: errors.New("telegram down")}
	d, store := newTestDispatcher(sink)

	out, err := d.Dispatch(context.Background(), model.SignalRecord{
		SignalType: "entry_long",
		Symbol:     "BTCUSDT",
		Price:      dec("45000"),
	})
	if err != nil {
		t.Fatalf("sink failure must not surface as dispatch error: %v", err)
	}
	if out.Delivered {
		t.Error("delivered must be false")
	}

	// The state write happened before delivery and is not rolled back.
	if _, ok, _ := store.Get(context.Background(), "BTCUSDT"); !ok {
		t.Error("state must survive a failed delivery")
	}
}

func TestDispatch_ConcurrentEntryExitPerSymbol(t *testing.T) {
	// A racing entry+exit pair for one symbol must serialize: whenever the
	// exit observes state, it must be the entry's write, and the final
	// state must be internally consistent.
	for i := 0; i < 100; i++ {
		sink := &fakeSink{}
		d, store := newTestDispatcher(sink)
		ctx := context.Background()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			d.Dispatch(ctx, model.SignalRecord{SignalType: "entry_long", Symbol: "BTCUSDT", Price: dec("45000")})
		}()
		go func() {
			defer wg.Done()
			d.Dispatch(ctx, model.SignalRecord{
				SignalType: "exit_long",
				Symbol:     "BTCUSDT",
				TPPrice:    dec("46000"),
				SLPrice:    dec("44000"),
			})
		}()
		wg.Wait()

		st, ok, _ := store.Get(ctx, "BTCUSDT")
		if !ok {
			t.Fatal("entry state must exist after both dispatches")
		}
		switch st.Status {
		case model.StatusAccumulating:
			// Exit ran first and saw no state; entry's write stands whole.
			if !st.TPPrice.IsZero() || !st.SLPrice.IsZero() {
				t.Fatalf("accumulating state with TP/SL set: %+v", st)
			}
		case model.StatusActive:
			// Exit ran second and must have read the entry's write.
			if !st.EntryPrice.Equal(dec("45000")) || st.Direction != model.Long {
				t.Fatalf("exit read stale state: %+v", st)
			}
			if !st.TPPrice.Equal(dec("46000")) || !st.SLPrice.Equal(dec("44000")) {
				t.Fatalf("exit mutation incomplete: %+v", st)
			}
		default:
			t.Fatalf("unexpected status %q", st.Status)
		}
	}
}
