// Package relay holds the core decision logic: classify an inbound signal,
// correlate it with per-symbol position state, format the outbound message
// and hand it to the sink.
package relay

import (
	"context"
	"log/slog"
	"time"

	"signal-relay/internal/eventhub"
	"signal-relay/internal/format"
	"signal-relay/internal/journal"
	"signal-relay/internal/logger"
	"signal-relay/internal/metrics"
	"signal-relay/internal/model"
	"signal-relay/internal/notification"
	"signal-relay/internal/position"
)

// Outcome is the result of dispatching one signal. For an unrecognized
// signal_type, Message is empty and Delivered is false: that is a logged
// no-op, not an error.
type Outcome struct {
	Kind      model.SignalKind
	Symbol    string
	Message   string
	Delivered bool
}

// Dispatcher routes classified signals through the state store, the
// formatters and the outbound sink.
//
// Entry and exit processing for the same symbol is serialized with a
// per-symbol lock, so a racing entry+exit pair can never lose the entry's
// write. Update signals bypass state entirely and take no lock.
type Dispatcher struct {
	store position.Store
	sink  notification.Notifier

	// Optional collaborators; every one of them may be nil.
	metrics *metrics.Metrics
	health  *metrics.HealthStatus
	hub     *eventhub.Hub
	journal *journal.Journal

	log   *slog.Logger
	locks *symbolLocks
}

// Option configures optional dispatcher collaborators.
type Option func(*Dispatcher)

// WithMetrics wires Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithHealth wires the shared health status.
func WithHealth(h *metrics.HealthStatus) Option {
	return func(d *Dispatcher) { d.health = h }
}

// WithEventHub wires the live event stream.
func WithEventHub(h *eventhub.Hub) Option {
	return func(d *Dispatcher) { d.hub = h }
}

// WithJournal wires the signal journal.
func WithJournal(j *journal.Journal) Option {
	return func(d *Dispatcher) { d.journal = j }
}

// NewDispatcher creates a dispatcher over the given store and sink.
func NewDispatcher(store position.Store, sink notification.Notifier, log *slog.Logger, opts ...Option) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		store: store,
		sink:  sink,
		log:   log,
		locks: newSymbolLocks(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch processes one inbound signal: classify, read-merge-write position
// state, format, deliver. The returned error covers state-store failures
// only; a sink delivery failure is reported through Outcome.Delivered and
// never rolls back state mutations already applied.
func (d *Dispatcher) Dispatch(ctx context.Context, sig model.SignalRecord) (Outcome, error) {
	now := time.Now()
	sig.Normalize(now)
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(sig.Symbol, now))

	kind := model.Classify(sig.SignalType)
	out := Outcome{Kind: kind, Symbol: sig.Symbol}

	var err error
	switch kind {
	case model.KindEntry:
		out.Message, err = d.handleEntry(ctx, &sig, now)
	case model.KindExit:
		out.Message, err = d.handleExit(ctx, &sig)
	case model.KindUpdate:
		out.Message = format.Update(sig)
	default:
		d.log.WarnContext(ctx, "unrecognized signal type",
			slog.String("signal_type", sig.SignalType),
			slog.String("symbol", sig.Symbol))
		if d.metrics != nil {
			d.metrics.UnrecognizedTotal.Inc()
		}
		d.finish(now, sig, out)
		return out, nil
	}
	if err != nil {
		return out, err
	}

	out.Delivered = d.deliver(ctx, out.Message)
	if d.metrics != nil {
		d.metrics.SignalsTotal.WithLabelValues(string(kind)).Inc()
	}
	d.finish(now, sig, out)

	attrs := []any{
		slog.String("kind", string(kind)),
		slog.String("symbol", sig.Symbol),
		slog.Bool("delivered", out.Delivered),
	}
	attrs = append(attrs, logger.LogWithTrace(ctx)...)
	d.log.InfoContext(ctx, "signal dispatched", attrs...)
	return out, nil
}

// handleEntry writes fresh position state for the symbol, overwriting any
// prior state, and returns the entry message.
func (d *Dispatcher) handleEntry(ctx context.Context, sig *model.SignalRecord, now time.Time) (string, error) {
	lock := d.locks.get(sig.Symbol)
	lock.Lock()
	defer lock.Unlock()

	if _, exists, err := d.store.Get(ctx, sig.Symbol); err != nil {
		return "", err
	} else if exists {
		// Re-entering before the prior position closed. The overwrite is
		// intentional original behavior; make it observable.
		d.log.WarnContext(ctx, "overwriting existing position state",
			slog.String("symbol", sig.Symbol))
		if d.metrics != nil {
			d.metrics.ReentryOverwrites.Inc()
		}
	}

	st := model.PositionState{
		Status:     model.StatusAccumulating,
		EntryTime:  now.UTC(),
		EntryPrice: sig.Price,
		Direction:  model.DeriveDirection(sig.SignalType),
	}
	if err := d.store.Put(ctx, sig.Symbol, st); err != nil {
		return "", err
	}
	d.updateTrackedSymbols(ctx)

	return format.Entry(*sig), nil
}

// handleExit merges stored direction/entry price into the signal (stored
// values win over the payload's), formats the message, then marks the
// position active with the payload's TP/SL. Without prior state the
// payload defaults stand and no state is created.
func (d *Dispatcher) handleExit(ctx context.Context, sig *model.SignalRecord) (string, error) {
	lock := d.locks.get(sig.Symbol)
	lock.Lock()
	defer lock.Unlock()

	st, exists, err := d.store.Get(ctx, sig.Symbol)
	if err != nil {
		return "", err
	}
	if exists {
		sig.Direction = string(st.Direction)
		sig.EntryPrice = st.EntryPrice
	}

	msg := format.Exit(*sig)

	if exists {
		if _, err := d.store.UpdateFields(ctx, sig.Symbol, model.PositionUpdate{
			Status:  model.StatusActive,
			TPPrice: sig.TPPrice,
			SLPrice: sig.SLPrice,
		}); err != nil {
			return "", err
		}
	}
	return msg, nil
}

// deliver hands the formatted message to the sink. Failures are logged and
// counted; processing of subsequent signals is unaffected.
func (d *Dispatcher) deliver(ctx context.Context, msg string) bool {
	start := time.Now()
	err := d.sink.Send(ctx, msg)
	if d.metrics != nil {
		d.metrics.SinkSendDur.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		d.log.ErrorContext(ctx, "sink delivery failed", slog.Any("error", err))
		if d.metrics != nil {
			d.metrics.SinkFailures.Inc()
		}
		if d.health != nil {
			d.health.SetSinkOK(false)
		}
		return false
	}
	if d.health != nil {
		d.health.SetSinkOK(true)
	}
	return true
}

// finish records the outcome in the journal, the event stream and health.
func (d *Dispatcher) finish(now time.Time, sig model.SignalRecord, out Outcome) {
	if d.health != nil {
		d.health.SetLastSignalTime(now)
	}
	if d.hub != nil {
		d.hub.Publish(eventhub.Event{
			Symbol:    sig.Symbol,
			Kind:      string(out.Kind),
			Delivered: out.Delivered,
			TS:        now.UTC(),
		})
	}
	if d.journal != nil {
		if err := d.journal.Record(journal.Entry{
			ReceivedAt: now.UTC(),
			Symbol:     sig.Symbol,
			SignalType: sig.SignalType,
			Kind:       string(out.Kind),
			Delivered:  out.Delivered,
		}); err != nil {
			d.log.Warn("journal write failed", slog.Any("error", err))
		}
	}
}

func (d *Dispatcher) updateTrackedSymbols(ctx context.Context) {
	if d.metrics == nil {
		return
	}
	if n, err := d.store.Count(ctx); err == nil {
		d.metrics.TrackedSymbols.Set(float64(n))
	}
}
