// Package metrics exposes Prometheus metrics and a health endpoint for the
// signal engine.
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

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	AnalysesTotal  prometheus.Counter
	AnalysisErrors prometheus.Counter
	AnalysisDur    prometheus.Histogram

	SignalsEmitted  prometheus.Counter
	SignalsResolved *prometheus.CounterVec // labels: result=win|loss
	ForcedLosses    prometheus.Counter     // backup-pass fail-safe resolutions
	MartingaleSteps prometheus.Counter     // follow-up signals emitted

	FetchErrors *prometheus.CounterVec // labels: kind
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	SchedulerState    prometheus.Gauge // 0=idle, 1=analyzing, 2=awaiting resolution
	EventBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
}

// NewMetrics registers and returns all metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		AnalysesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_analyses_total",
			Help: "Total completed market analyses",
		}),
		AnalysisErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_analysis_errors_total",
			Help: "Analyses that failed after scheduler retries",
		}),
		AnalysisDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_analysis_duration_seconds",
			Help:    "Fetch + analyze latency per tick",
			Buckets: prometheus.DefBuckets,
		}),
		SignalsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_signals_emitted_total",
			Help: "Signals created after passing the confidence gate",
		}),
		SignalsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_signals_resolved_total",
			Help: "Resolved signals by outcome",
		}, []string{"result"}),
		ForcedLosses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_forced_losses_total",
			Help: "Signals force-resolved as loss by the backup pass",
		}),
		MartingaleSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_martingale_steps_total",
			Help: "Martingale follow-up signals emitted",
		}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_fetch_errors_total",
			Help: "Market data fetch failures by kind",
		}, []string{"kind"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_cache_hits_total",
			Help: "Market data cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_cache_misses_total",
			Help: "Market data cache misses",
		}),
		SchedulerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_scheduler_state",
			Help: "Scheduler state (0=idle, 1=analyzing, 2=awaiting resolution)",
		}),
		EventBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_event_breaker_state",
			Help: "Redis event publisher breaker state (0=closed, 1=open, 2=half-open)",
		}),
	}

	prometheus.MustRegister(
		m.AnalysesTotal,
		m.AnalysisErrors,
		m.AnalysisDur,
		m.SignalsEmitted,
		m.SignalsResolved,
		m.ForcedLosses,
		m.MartingaleSteps,
		m.FetchErrors,
		m.CacheHits,
		m.CacheMisses,
		m.SchedulerState,
		m.EventBreakerState,
	)

	return m
}

// HealthStatus represents the engine health.
type HealthStatus struct {
	mu sync.RWMutex

	AutomationRunning bool      `json:"automation_running"`
	Pair              string    `json:"pair"`
	Timeframe         int       `json:"timeframe"`
	LastAnalysisAt    time.Time `json:"last_analysis_at"`
	RedisConnected    bool      `json:"redis_connected"`
	SQLiteOK          bool      `json:"sqlite_ok"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetAutomationRunning(v bool) {
	h.mu.Lock()
	h.AutomationRunning = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetInstrument(pair string, timeframe int) {
	h.mu.Lock()
	h.Pair = pair
	h.Timeframe = timeframe
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastAnalysisAt(t time.Time) {
	h.mu.Lock()
	h.LastAnalysisAt = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if db != nil {
					h.CheckSQLite(probeCtx, db)
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
	if !h.SQLiteOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	} else if !h.RedisConnected {
		// Events are best-effort; missing Redis degrades, not kills.
		overallStatus = "degraded"
	}

	lastAnalysis := ""
	if !h.LastAnalysisAt.IsZero() {
		lastAnalysis = h.LastAnalysisAt.Format(time.RFC3339)
	}

	status := struct {
		Status            string  `json:"status"`
		Uptime            string  `json:"uptime"`
		AutomationRunning bool    `json:"automation_running"`
		Pair              string  `json:"pair"`
		Timeframe         int     `json:"timeframe"`
		LastAnalysisAt    string  `json:"last_analysis_at"`
		RedisConnected    bool    `json:"redis_connected"`
		RedisLatencyMs    float64 `json:"redis_latency_ms"`
		SQLiteOK          bool    `json:"sqlite_ok"`
		SQLiteLatencyMs   float64 `json:"sqlite_latency_ms"`
		LastCheckAt       string  `json:"last_check_at"`
	}{
		Status:            overallStatus,
		Uptime:            time.Since(h.StartedAt).Round(time.Second).String(),
		AutomationRunning: h.AutomationRunning,
		Pair:              h.Pair,
		Timeframe:         h.Timeframe,
		LastAnalysisAt:    lastAnalysis,
		RedisConnected:    h.RedisConnected,
		RedisLatencyMs:    h.RedisLatencyMs,
		SQLiteOK:          h.SQLiteOK,
		SQLiteLatencyMs:   h.SQLiteLatencyMs,
		LastCheckAt:       h.LastCheckAt.Format(time.RFC3339),
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
		srv:    &http.Server{Addr: addr, Handler: mux},
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
