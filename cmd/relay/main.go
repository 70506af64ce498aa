// cmd/relay — TradingView signal relay service.
//
// Receives alert webhooks, classifies them (entry/exit/update), correlates
// them with per-symbol position state and forwards formatted messages to a
// chat sink (Telegram by default).
//
// Config (env vars, optional config/relay.toml override):
//
//	WEBHOOK_SECRET       — shared secret for the webhook bearer check (required)
//	LISTEN_ADDR          — webhook API address             (default ":8000")
//	METRICS_ADDR         — metrics/health address          (default ":9090")
//	SINK                 — telegram | webhook | log        (default "telegram")
//	TELEGRAM_BOT_TOKEN   — Bot API token (telegram sink)
//	TELEGRAM_CHANNEL_ID  — target chat/channel (telegram sink)
//	STATE_BACKEND        — memory | redis                  (default "memory")
//	JOURNAL_PATH         — SQLite signal journal           (default "data/signals.db")
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"signal-relay/config"
	"signal-relay/internal/eventhub"
	"signal-relay/internal/journal"
	"signal-relay/internal/logger"
	"signal-relay/internal/metrics"
	"signal-relay/internal/notification"
	"signal-relay/internal/position"
	"signal-relay/internal/relay"
	"signal-relay/internal/webhook"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	// ---- Load config from .env + env ----
	if err := godotenv.Load(); err != nil {
		log.Println("[relay] no .env file found, using environment")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[relay] config: %v", err)
	}

	slogger := logger.Init("signal-relay", slog.LevelInfo)
	slogger.Info("starting relay")

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Position state store ----
	var store position.Store
	var redisStore *position.RedisStore
	switch cfg.StateBackend {
	case "redis":
		redisStore, err = position.NewRedisStore(position.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Fatalf("[relay] redis store init failed: %v", err)
		}
		defer redisStore.Close()
		store = redisStore
	default:
		store = position.NewMemoryStore()
	}

	// ---- Signal journal ----
	os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755)
	jnl, err := journal.New(cfg.JournalPath)
	if err != nil {
		log.Fatalf("[relay] journal init failed: %v", err)
	}
	defer jnl.Close()
	health.SetJournalOK(true)

	if redisStore != nil {
		health.StartLivenessChecker(ctx, jnl.DB(), redisStore.Client(), 30*time.Second)
	} else {
		health.StartLivenessChecker(ctx, jnl.DB(), nil, 30*time.Second)
	}

	// ---- Outbound sink ----
	var sink notification.Notifier
	switch cfg.Sink {
	case "telegram":
		sink = notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
	case "webhook":
		sink = notification.NewWebhookNotifier(cfg.SinkWebhookURL)
	default:
		sink = notification.NewLogNotifier()
	}

	// ---- Dispatcher + event stream ----
	hub := eventhub.NewHub()
	dispatcher := relay.NewDispatcher(store, sink, slogger,
		relay.WithMetrics(prom),
		relay.WithHealth(health),
		relay.WithEventHub(hub),
		relay.WithJournal(jnl),
	)

	// ---- Startup notification (best effort) ----
	startupCtx, startupCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := sink.Send(startupCtx, "🤖 <b>Relay started</b>\n\nTradingView signal monitoring is active."); err != nil {
		slogger.Warn("startup notification failed", slog.Any("error", err))
	} else {
		health.SetSinkOK(true)
	}
	startupCancel()

	// ---- Webhook API server ----
	srv := webhook.NewServer(webhook.Config{
		ListenAddr:      cfg.ListenAddr,
		WebhookSecret:   cfg.WebhookSecret,
		RateLimitPerSec: cfg.RateLimitPerSec,
		CORSOrigins:     cfg.CORSOrigins,
	}, dispatcher, store, sink, jnl, prom, health, hub.ServeWS, slogger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx)
	}()

	select {
	case sig := <-sigCh:
		slogger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			slogger.Error("webhook server failed", slog.Any("error", err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	cancel()

	slogger.Info("relay stopped")
}
