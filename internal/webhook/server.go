// Package webhook is the inbound HTTP surface of the relay: the TradingView
// webhook endpoint plus health, test and introspection routes.
package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"signal-relay/internal/journal"
	"signal-relay/internal/metrics"
	"signal-relay/internal/model"
	"signal-relay/internal/notification"
	"signal-relay/internal/position"
	"signal-relay/internal/relay"
)

// Version reported by the service banner endpoint.
const Version = "1.0.0"

// Config holds the server's runtime settings.
type Config struct {
	ListenAddr      string
	WebhookSecret   string
	RateLimitPerSec int
	CORSOrigins     []string
}

// Server wires the dispatcher and its collaborators to HTTP routes.
type Server struct {
	cfg        Config
	dispatcher *relay.Dispatcher
	store      position.Store
	sink       notification.Notifier
	limiter    *rate.Limiter

	// Optional; may be nil.
	journal   *journal.Journal
	metrics   *metrics.Metrics
	health    *metrics.HealthStatus
	wsHandler http.HandlerFunc

	log *slog.Logger
	srv *http.Server
}

// NewServer creates the webhook server. journal, m, health and wsHandler
// may be nil; the corresponding routes degrade gracefully.
func NewServer(cfg Config, dispatcher *relay.Dispatcher, store position.Store, sink notification.Notifier,
	jnl *journal.Journal, m *metrics.Metrics, health *metrics.HealthStatus, wsHandler http.HandlerFunc,
	log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	limit := cfg.RateLimitPerSec
	if limit <= 0 {
		limit = 20
	}
	return &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		store:      store,
		sink:       sink,
		limiter:    rate.NewLimiter(rate.Limit(limit), limit),
		journal:    jnl,
		metrics:    m,
		health:     health,
		wsHandler:  wsHandler,
		log:        log,
	}
}

// Router builds the HTTP handler, wrapped with CORS.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/webhook", s.handleWebhook).Methods("POST")
	r.HandleFunc("/test", s.handleTest).Methods("POST")
	r.HandleFunc("/api/signals", s.handleRecentSignals).Methods("GET")
	if s.wsHandler != nil {
		r.HandleFunc("/ws", s.wsHandler).Methods("GET")
	}

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         3600,
	})
	return c.Handler(r)
}

// Run starts the server and blocks until it stops.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.Router(),
	}

	s.log.Info("webhook server starting", slog.String("addr", s.cfg.ListenAddr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "running",
		"service": "signal-relay",
		"version": Version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sinkStatus := "error"
	if s.health == nil || s.health.SinkHealthy() {
		sinkStatus = "ok"
	}

	active := 0
	if n, err := s.store.Count(r.Context()); err == nil {
		active = n
	} else {
		s.log.Warn("position count failed", slog.Any("error", err))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "healthy",
		"sink":             sinkStatus,
		"active_positions": active,
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		s.reject(w, "rate_limit", http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if r.Header.Get("Authorization") != "Bearer "+s.cfg.WebhookSecret {
		s.log.Warn("unauthorized webhook attempt", slog.String("remote", r.RemoteAddr))
		s.reject(w, "auth", http.StatusUnauthorized, "unauthorized")
		return
	}

	var sig model.SignalRecord
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		s.reject(w, "decode", http.StatusBadRequest, "invalid JSON payload")
		return
	}

	out, err := s.dispatcher.Dispatch(r.Context(), sig)
	if err != nil {
		s.log.Error("dispatch failed", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "error", "message": "internal error",
		})
		return
	}

	// Unrecognized types and failed deliveries still answer 200: both are
	// per-request outcomes, not transport errors.
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"message":   "Webhook processed",
		"signal":    string(out.Kind),
		"delivered": out.Delivered,
	})
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	text := "🧪 <b>TEST NOTIFICATION</b>\n\nThe relay is up and ready to receive TradingView signals.\n\n⏰ " +
		time.Now().UTC().Format(time.RFC3339)

	if err := s.sink.Send(r.Context(), text); err != nil {
		s.log.Error("test notification failed", slog.Any("error", err))
		if s.health != nil {
			s.health.SetSinkOK(false)
		}
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"status": "error", "message": "failed to send test notification",
		})
		return
	}
	if s.health != nil {
		s.health.SetSinkOK(true)
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "success", "message": "Test notification sent",
	})
}

func (s *Server) handleRecentSignals(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"signals": []journal.Entry{}, "count": 0})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	entries, err := s.journal.Recent(limit)
	if err != nil {
		s.log.Error("journal read failed", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "error", "message": "journal unavailable",
		})
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"signals": entries,
		"count":   len(entries),
	})
}

func (s *Server) reject(w http.ResponseWriter, reason string, code int, msg string) {
	if s.metrics != nil {
		s.metrics.WebhookRejected.WithLabelValues(reason).Inc()
	}
	writeJSON(w, code, map[string]string{"status": "error", "message": msg})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
