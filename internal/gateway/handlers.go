package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"signal-enginev1/internal/analytics"
	"signal-enginev1/internal/model"
	"signal-enginev1/internal/scheduler"
	"signal-enginev1/internal/signalstore"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Automation is the scheduler surface the API exposes.
type Automation interface {
	Start() error
	Stop()
	SetPair(pair string) bool
	SetTimeframe(timeframe int) bool
	State() scheduler.State
	CurrentSignal() *model.Signal
	LastError() string
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Status is the engine snapshot served on /api/status and pushed over WS.
func Status(auto Automation, hub *Hub, processStart time.Time) map[string]interface{} {
	var current interface{}
	if sig := auto.CurrentSignal(); sig != nil {
		current = sig
	}
	return map[string]interface{}{
		"state":          auto.State().String(),
		"current_signal": current,
		"last_error":     auto.LastError(),
		"ws_clients":     hub.ClientCount(),
		"uptime_sec":     int64(time.Since(processStart).Seconds()),
		"ts":             time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, store signalstore.Store, reports *analytics.Service, auto Automation, processStart time.Time) {
	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		hub.HandleWSRequest(conn)
	})

	// REST: signal history, most recent first
	mux.HandleFunc("/api/signals", func(w http.ResponseWriter, r *http.Request) {
		signals, err := store.GetAll(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		limit := 100
		if s := r.URL.Query().Get("limit"); s != "" {
			if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= 1000 {
				limit = l
			}
		}
		if len(signals) > limit {
			signals = signals[:limit]
		}
		writeJSON(w, http.StatusOK, signals)
	})

	// REST: pending signals
	mux.HandleFunc("/api/signals/pending", func(w http.ResponseWriter, r *http.Request) {
		signals, err := store.GetPending(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, signals)
	})

	// REST: recently broadcast signal events, oldest first
	mux.HandleFunc("/api/events/recent", func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			if l, err := strconv.Atoi(s); err == nil && l > 0 {
				limit = l
			}
		}
		writeJSON(w, http.StatusOK, hub.RecentEvents(limit))
	})

	// REST: win-rate / P&L report, optional ?start=RFC3339&end=RFC3339
	mux.HandleFunc("/api/performance", func(w http.ResponseWriter, r *http.Request) {
		var rng *analytics.Range
		startStr := r.URL.Query().Get("start")
		endStr := r.URL.Query().Get("end")
		if startStr != "" || endStr != "" {
			rng = &analytics.Range{}
			if startStr != "" {
				t, err := time.Parse(time.RFC3339, startStr)
				if err != nil {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start"})
					return
				}
				rng.Start = t
			}
			if endStr != "" {
				t, err := time.Parse(time.RFC3339, endStr)
				if err != nil {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end"})
					return
				}
				rng.End = t
			}
		}
		report, err := reports.Report(r.Context(), rng)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	// REST: automation control
	mux.HandleFunc("/api/automation/start", func(w http.ResponseWriter, r *http.Request) {
		if !requirePOST(w, r) {
			return
		}
		if err := auto.Start(); err != nil {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
	})

	mux.HandleFunc("/api/automation/stop", func(w http.ResponseWriter, r *http.Request) {
		if !requirePOST(w, r) {
			return
		}
		auto.Stop()
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
	})

	mux.HandleFunc("/api/automation/pair", func(w http.ResponseWriter, r *http.Request) {
		if !requirePOST(w, r) {
			return
		}
		var req struct {
			Pair string `json:"pair"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Pair == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pair is required"})
			return
		}
		if !auto.SetPair(req.Pair) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "signal in flight, pair change refused"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "pair": req.Pair})
	})

	mux.HandleFunc("/api/automation/timeframe", func(w http.ResponseWriter, r *http.Request) {
		if !requirePOST(w, r) {
			return
		}
		var req struct {
			Timeframe int `json:"timeframe"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Timeframe <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "timeframe must be a positive minute count"})
			return
		}
		if !auto.SetTimeframe(req.Timeframe) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "signal in flight, timeframe change refused"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "timeframe": req.Timeframe})
	})

	// REST: engine status snapshot
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Status(auto, hub, processStart))
	})

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":     "ok",
			"ws_clients": hub.ClientCount(),
			"uptime_sec": int64(time.Since(processStart).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

func requirePOST(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodOptions {
		SetCORS(w)
		w.WriteHeader(http.StatusOK)
		return false
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return false
	}
	return true
}
