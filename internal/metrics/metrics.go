// Package metrics exposes Prometheus instrumentation and a combined
// metrics/health HTTP server for the relay.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the relay.
type Metrics struct {
	SignalsTotal      *prometheus.CounterVec // labels: kind
	UnrecognizedTotal prometheus.Counter
	ReentryOverwrites prometheus.Counter
	SinkFailures      prometheus.Counter
	SinkSendDur       prometheus.Histogram
	WebhookRejected   *prometheus.CounterVec // labels: reason=auth|decode|rate_limit
	TrackedSymbols    prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_signals_total",
			Help: "Signals processed, by classified kind",
		}, []string{"kind"}),
		UnrecognizedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_signals_unrecognized_total",
			Help: "Signals whose signal_type matched no known kind",
		}),
		ReentryOverwrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_position_reentry_overwrites_total",
			Help: "Entry signals that overwrote existing position state for the symbol",
		}),
		SinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_sink_failures_total",
			Help: "Outbound message deliveries that returned an error",
		}),
		SinkSendDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_sink_send_duration_seconds",
			Help:    "Outbound delivery latency",
			Buckets: prometheus.DefBuckets,
		}),
		WebhookRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_webhook_rejected_total",
			Help: "Webhook requests rejected before dispatch",
		}, []string{"reason"}),
		TrackedSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_tracked_symbols",
			Help: "Symbols with position state in the store",
		}),
	}

	prometheus.MustRegister(
		m.SignalsTotal,
		m.UnrecognizedTotal,
		m.ReentryOverwrites,
		m.SinkFailures,
		m.SinkSendDur,
		m.WebhookRejected,
		m.TrackedSymbols,
	)

	return m
}

// HealthStatus represents the relay health.
type HealthStatus struct {
	mu sync.RWMutex

	SinkOK         bool      `json:"sink_ok"`
	JournalOK      bool      `json:"journal_ok"`
	RedisConnected bool      `json:"redis_connected"`
	LastSignalTime time.Time `json:"last_signal_time"`

	JournalLatencyMs float64   `json:"journal_latency_ms"`
	RedisLatencyMs   float64   `json:"redis_latency_ms"`
	LastCheckAt      time.Time `json:"last_check_at"`
	StartedAt        time.Time `json:"started_at"`

	usesRedis bool
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetSinkOK(v bool) {
	h.mu.Lock()
	h.SinkOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetJournalOK(v bool) {
	h.mu.Lock()
	h.JournalOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastSignalTime(t time.Time) {
	h.mu.Lock()
	h.LastSignalTime = t
	h.mu.Unlock()
}

// SinkHealthy reports the last known sink status.
func (h *HealthStatus) SinkHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.SinkOK
}

// CheckJournal pings the journal database and records latency + health.
func (h *HealthStatus) CheckJournal(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.JournalOK = err == nil
	h.JournalLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.usesRedis = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either argument
// may be nil when the corresponding backend is not in use.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, db *sql.DB, rdb *goredis.Client, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if db != nil {
					h.CheckJournal(probeCtx, db)
				}
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.SinkOK || (h.usesRedis && !h.RedisConnected) {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	signalAge := ""
	if !h.LastSignalTime.IsZero() {
		signalAge = time.Since(h.LastSignalTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status           string  `json:"status"`
		Uptime           string  `json:"uptime"`
		SinkOK           bool    `json:"sink_ok"`
		JournalOK        bool    `json:"journal_ok"`
		JournalLatencyMs float64 `json:"journal_latency_ms"`
		RedisConnected   bool    `json:"redis_connected"`
		RedisLatencyMs   float64 `json:"redis_latency_ms"`
		LastSignalTime   string  `json:"last_signal_time"`
		SignalAge        string  `json:"signal_age"`
		LastCheckAt      string  `json:"last_check_at"`
	}{
		Status:           overallStatus,
		Uptime:           time.Since(h.StartedAt).Round(time.Second).String(),
		SinkOK:           h.SinkOK,
		JournalOK:        h.JournalOK,
		JournalLatencyMs: h.JournalLatencyMs,
		RedisConnected:   h.RedisConnected,
		RedisLatencyMs:   h.RedisLatencyMs,
		LastSignalTime:   h.LastSignalTime.Format(time.RFC3339),
		SignalAge:        signalAge,
		LastCheckAt:      h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
