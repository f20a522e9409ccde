package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"signal-enginev1/config"
	"signal-enginev1/internal/analysis"
	"signal-enginev1/internal/analytics"
	"signal-enginev1/internal/events"
	"signal-enginev1/internal/gateway"
	"signal-enginev1/internal/lifecycle"
	"signal-enginev1/internal/logger"
	"signal-enginev1/internal/marketdata/cache"
	"signal-enginev1/internal/marketdata/source"
	"signal-enginev1/internal/metrics"
	"signal-enginev1/internal/model"
	"signal-enginev1/internal/notification"
	"signal-enginev1/internal/scheduler"
	"signal-enginev1/internal/signalstore"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("signalengine", slog.LevelInfo)
	log.Println("[signalengine] starting...")

	processStart := time.Now()
	cfg := config.Load()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetInstrument(cfg.Pair, cfg.Timeframe)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Signal store (SQLite, WAL, single writer) ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := signalstore.NewSQLite(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[signalengine] sqlite init failed: %v", err)
	}
	defer store.Close()
	health.SetSQLiteOK(true)
	log.Println("[signalengine] signal store ready")

	// ---- Market data source (cached HTTP candles) ----
	candleCache := cache.New()
	src := source.New(source.Config{
		BaseURL:       cfg.MarketBaseURL,
		APIKey:        cfg.MarketAPIKey,
		Window:        cfg.CandleWindow,
		RetryAttempts: cfg.MaxRetries,
		RetryBase:     cfg.RetryBase,
		CacheTTL:      cfg.CacheTTL,
	}, candleCache)
	src.OnCacheResult = func(hit bool) {
		if hit {
			prom.CacheHits.Inc()
		} else {
			prom.CacheMisses.Inc()
		}
	}

	// ---- Redis event publisher (optional) ----
	var publisher *events.Publisher
	if cfg.RedisAddr != "" {
		publisher, err = events.NewPublisher(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Printf("[signalengine] WARNING: redis init failed: %v (continuing without events)", err)
			health.SetRedisConnected(false)
		} else {
			health.SetRedisConnected(true)
			publisher.Breaker().OnStateChange = func(from, to events.BreakerState) {
				prom.EventBreakerState.Set(float64(to))
				log.Printf("[signalengine] event breaker %s -> %s", from, to)
			}
		}
	}

	// ---- Periodic liveness checks ----
	if publisher != nil {
		health.StartLivenessChecker(ctx, publisher.Client(), store.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, store.DB(), 10*time.Second)
	}

	// ---- Analysis engine ----
	engine := analysis.NewEngine()
	engine.Lookback = cfg.SRLookback
	engine.MinTouches = cfg.SRMinTouches

	// ---- Signal lifecycle resolver ----
	resolver := lifecycle.New(store, src)
	resolver.Metrics = prom

	// ---- WebSocket hub ----
	hub := gateway.NewHub()

	// ---- Scheduler ----
	sched := scheduler.New(scheduler.Config{
		Pair:                cfg.Pair,
		Timeframe:           cfg.Timeframe,
		TickInterval:        cfg.TickInterval,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		MaxRetries:          cfg.MaxRetries,
		RetryBase:           cfg.RetryBase,
	}, src, engine, store, resolver)
	sched.Metrics = prom
	sched.Health = health
	sched.Events = &eventFan{hub: hub, publisher: publisher}
	sched.SetSettings(cfg.Settings())

	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		sched.Notifier = notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
		log.Println("[signalengine] telegram notifier enabled")
	} else {
		sched.Notifier = notification.NewLogNotifier()
	}

	// ---- HTTP gateway ----
	reports := analytics.NewService(store)
	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, store, reports, sched, processStart)

	gatewaySrv := &http.Server{Addr: cfg.GatewayAddr, Handler: mux}
	go func() {
		log.Printf("[signalengine] gateway listening on %s", cfg.GatewayAddr)
		if err := gatewaySrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[signalengine] gateway server error: %v", err)
		}
	}()

	go hub.StartStatusBroadcast(ctx, 2*time.Second, func() interface{} {
		return gateway.Status(sched, hub, processStart)
	})

	// ---- Start automation if settings are configured ----
	if err := sched.Start(); err != nil {
		log.Printf("[signalengine] automation not started: %v (use POST /api/automation/start after configuring)", err)
	}

	log.Printf("[signalengine] ready — pair=%s tf=%dm tick=%v threshold=%d",
		cfg.Pair, cfg.Timeframe, cfg.TickInterval, cfg.ConfidenceThreshold)

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[signalengine] shutdown signal received, cleaning up...")
	cancel()

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	gatewaySrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	if publisher != nil {
		publisher.Close()
	}

	log.Println("[signalengine] shutdown complete.")
}

// eventFan forwards signal events to the WS hub and, when available, the
// Redis publisher.
type eventFan struct {
	hub       *gateway.Hub
	publisher *events.Publisher
}

func (f *eventFan) PublishSignal(ctx context.Context, sig *model.Signal) {
	f.hub.PublishSignal(ctx, sig)
	if f.publisher != nil {
		f.publisher.PublishSignal(ctx, sig)
	}
}
