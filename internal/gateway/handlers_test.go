package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"signal-enginev1/internal/analytics"
	"signal-enginev1/internal/model"
	"signal-enginev1/internal/scheduler"
	"signal-enginev1/internal/signalstore"
)

type fakeAutomation struct {
	startErr   error
	running    bool
	pairOK     bool
	state      scheduler.State
	current    *model.Signal
	lastErrStr string
}

func (f *fakeAutomation) Start() error                { f.running = f.startErr == nil; return f.startErr }
func (f *fakeAutomation) Stop()                       { f.running = false }
func (f *fakeAutomation) SetPair(string) bool         { return f.pairOK }
func (f *fakeAutomation) SetTimeframe(int) bool       { return f.pairOK }
func (f *fakeAutomation) State() scheduler.State      { return f.state }
func (f *fakeAutomation) CurrentSignal() *model.Signal { return f.current }
func (f *fakeAutomation) LastError() string           { return f.lastErrStr }

func newTestAPI(t *testing.T, auto *fakeAutomation) (*httptest.Server, signalstore.Store) {
	t.Helper()
	store := signalstore.NewMemory()
	hub := NewHub()
	mux := http.NewServeMux()
	RegisterRoutes(mux, hub, store, analytics.NewService(store), auto, time.Now())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func TestAPI_SignalsList(t *testing.T) {
	srv, store := newTestAPI(t, &fakeAutomation{})
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		store.Create(ctx, &model.Signal{
			ID: id, Type: model.SignalBuy, Price: 100,
			CreatedAt: int64(1700000000 + i*60), Pair: "BTC/USD",
			Confidence: 70, Timeframe: 1, MartingaleMultiplier: 1,
		})
	}

	resp, err := http.Get(srv.URL + "/api/signals?limit=2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var signals []model.Signal
	if err := json.NewDecoder(resp.Body).Decode(&signals); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(signals) != 2 {
		t.Fatalf("limit not applied: got %d signals", len(signals))
	}
	if signals[0].ID != "c" {
		t.Fatalf("expected most recent first, got %s", signals[0].ID)
	}
}

func TestAPI_PerformanceReport(t *testing.T) {
	srv, store := newTestAPI(t, &fakeAutomation{})
	ctx := context.Background()
	store.Create(ctx, &model.Signal{
		ID: "w", Type: model.SignalBuy, Price: 100, CreatedAt: 1700000000,
		Pair: "BTC/USD", Confidence: 70, Timeframe: 1, MartingaleMultiplier: 1,
	})
	store.UpdateResult(ctx, "w", model.ResultWin, 3)

	resp, err := http.Get(srv.URL + "/api/performance")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var report analytics.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Summary.Wins != 1 || report.Summary.WinRate != 100 {
		t.Fatalf("unexpected report: %+v", report.Summary)
	}
}

func TestAPI_PerformanceRejectsBadRange(t *testing.T) {
	srv, _ := newTestAPI(t, &fakeAutomation{})
	resp, err := http.Get(srv.URL + "/api/performance?start=yesterday")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAPI_AutomationStartConflict(t *testing.T) {
	srv, _ := newTestAPI(t, &fakeAutomation{startErr: scheduler.ErrSettingsRequired})
	resp, err := http.Post(srv.URL+"/api/automation/start", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestAPI_PairChangeRefusedMidSignal(t *testing.T) {
	srv, _ := newTestAPI(t, &fakeAutomation{pairOK: false})
	resp, err := http.Post(srv.URL+"/api/automation/pair", "application/json",
		strings.NewReader(`{"pair":"ETH/USD"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestAPI_PairChangeRequiresPOST(t *testing.T) {
	srv, _ := newTestAPI(t, &fakeAutomation{pairOK: true})
	resp, err := http.Get(srv.URL + "/api/automation/pair")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestAPI_Status(t *testing.T) {
	auto := &fakeAutomation{
		state: scheduler.StateAwaitingResolution,
		current: &model.Signal{
			ID: "sig-1", Type: model.SignalBuy, Price: 100,
			Pair: "BTC/USD", Confidence: 80, Timeframe: 1,
		},
	}
	srv, _ := newTestAPI(t, auto)

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var status struct {
		State         string        `json:"state"`
		CurrentSignal *model.Signal `json:"current_signal"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.State != "awaiting_resolution" {
		t.Fatalf("state: got %q", status.State)
	}
	if status.CurrentSignal == nil || status.CurrentSignal.ID != "sig-1" {
		t.Fatalf("current signal missing: %+v", status.CurrentSignal)
	}
}
