// Package scheduler drives periodic market analysis and turns
// high-confidence analyses into emitted signals.
//
// The scheduler owns the "current signal" slot. All mutation of that slot
// goes through its entry points, so the single-in-flight invariant (at most
// one pending signal at any time) is enforced by the state machine rather
// than by convention:
//
//	Idle → Analyzing → (AwaitingResolution | Idle)
package scheduler

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"sync"
	"time"

	"signal-enginev1/internal/logger"
	"signal-enginev1/internal/marketdata/source"
	"signal-enginev1/internal/metrics"
	"signal-enginev1/internal/model"
	"signal-enginev1/internal/notification"
	"signal-enginev1/internal/retry"
	"signal-enginev1/internal/signalstore"

	"github.com/google/uuid"
)

// State is the scheduler's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateAnalyzing
	StateAwaitingResolution
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAnalyzing:
		return "analyzing"
	case StateAwaitingResolution:
		return "awaiting_resolution"
	default:
		return "unknown"
	}
}

// ErrSettingsRequired is returned by Start when no trading settings are
// configured. Automation may not run without them.
var ErrSettingsRequired = errors.New("trading settings not configured")

// Fetcher yields candle series for analysis and entry prices.
type Fetcher interface {
	Fetch(ctx context.Context, pair string, timeframe int) ([]model.Candle, error)
}

// Analyzer scores a candle series.
type Analyzer interface {
	Analyze(candles []model.Candle) (*model.AnalysisResult, error)
}

// Resolver schedules win/loss resolution for emitted signals.
type Resolver interface {
	ScheduleResolution(sig model.Signal, onResolved func(model.Signal))
	Cancel(id string)
	Stop()
}

// EventSink publishes signal state changes for external consumers.
type EventSink interface {
	PublishSignal(ctx context.Context, sig *model.Signal)
}

// Config holds the operator-tunable scheduler knobs.
type Config struct {
	Pair      string
	Timeframe int // minutes

	TickInterval        time.Duration // analysis tick and throttle window; 0 = 5s
	ConfidenceThreshold int           // emission gate; 0 = 65
	MaxRetries          int           // tick-level retries after the first attempt; 0 = 3
	RetryBase           time.Duration // linear backoff base; 0 = 1s
}

// Scheduler runs the automation loop.
type Scheduler struct {
	cfg      Config
	source   Fetcher
	engine   Analyzer
	store    signalstore.Store
	resolver Resolver

	// Optional collaborators.
	Notifier notification.Notifier
	Events   EventSink
	Metrics  *metrics.Metrics
	Health   *metrics.HealthStatus

	now func() time.Time

	mu           sync.Mutex
	running      bool
	settings     *model.TradingSettings
	state        State
	current      *model.Signal
	pair         string
	timeframe    int
	lastAnalysis time.Time // zero forces an immediate analysis
	inFlight     bool      // single-flight guard: overlapping ticks are no-ops
	lastErr      string

	cancel context.CancelFunc
	done   chan struct{}
	kick   chan struct{}
}

// New creates a stopped scheduler.
func New(cfg Config, src Fetcher, engine Analyzer, store signalstore.Store, resolver Resolver) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 5 * time.Second
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 65
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	return &Scheduler{
		cfg:       cfg,
		source:    src,
		engine:    engine,
		store:     store,
		resolver:  resolver,
		now:       time.Now,
		pair:      cfg.Pair,
		timeframe: cfg.Timeframe,
		kick:      make(chan struct{}, 1),
	}
}

// SetSettings installs the trading settings. nil blocks the next Start.
func (s *Scheduler) SetSettings(settings *model.TradingSettings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
}

// Start begins the tick loop with an immediate first analysis. It adopts
// the most recent pending signal from the store, if any, so a restart
// resumes the interrupted lifecycle instead of emitting a duplicate.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if s.settings == nil {
		s.mu.Unlock()
		return ErrSettingsRequired
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	s.state = StateIdle
	s.lastAnalysis = time.Time{}
	s.lastErr = ""
	s.mu.Unlock()

	if s.Health != nil {
		s.Health.SetAutomationRunning(true)
		s.Health.SetInstrument(s.pair, s.timeframe)
	}

	s.adoptPending(ctx)
	go s.run(ctx)

	log.Printf("[scheduler] automation started for %s tf=%dm", s.pair, s.timeframe)
	return nil
}

// Stop halts the tick loop and drops pending resolution timers. The current
// signal, if any, stays pending in the store and is adopted on restart.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.resolver.Stop()

	s.mu.Lock()
	s.current = nil
	s.state = StateIdle
	s.inFlight = false
	s.mu.Unlock()
	s.setStateMetric()

	if s.Health != nil {
		s.Health.SetAutomationRunning(false)
	}
	log.Printf("[scheduler] automation stopped")
}

// SetPair switches the analyzed instrument and forces an immediate,
// throttle-free re-analysis. Refused while a signal is in flight.
func (s *Scheduler) SetPair(pair string) bool {
	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return false
	}
	s.pair = pair
	s.lastAnalysis = time.Time{}
	running := s.running
	timeframe := s.timeframe
	s.mu.Unlock()

	if s.Health != nil {
		s.Health.SetInstrument(pair, timeframe)
	}
	if running {
		s.kickNow()
	}
	return true
}

// SetTimeframe switches the signal timeframe in minutes. Refused while a
// signal is in flight.
func (s *Scheduler) SetTimeframe(timeframe int) bool {
	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return false
	}
	s.timeframe = timeframe
	s.lastAnalysis = time.Time{}
	running := s.running
	pair := s.pair
	s.mu.Unlock()

	if s.Health != nil {
		s.Health.SetInstrument(pair, timeframe)
	}
	if running {
		s.kickNow()
	}
	return true
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentSignal returns a copy of the in-flight signal, or nil.
func (s *Scheduler) CurrentSignal() *model.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// LastError returns the transient status message from the last failed tick,
// empty once a tick succeeds again.
func (s *Scheduler) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Scheduler) adoptPending(ctx context.Context) {
	pending, err := s.store.GetPending(ctx)
	if err != nil {
		log.Printf("[scheduler] pending signal lookup failed: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	sig := pending[0]
	s.mu.Lock()
	s.current = &sig
	s.state = StateAwaitingResolution
	s.mu.Unlock()
	s.setStateMetric()

	log.Printf("[scheduler] adopted pending signal %s (%s %s)", sig.ID, sig.Type, sig.Pair)
	s.resolver.ScheduleResolution(sig, s.onResolved)
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		case <-s.kick:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) kickNow() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// tick performs one analysis pass. Guards, in order: running, single-flight,
// no in-flight signal, settings present, throttle window elapsed.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	if !s.running || s.inFlight || s.current != nil || s.settings == nil {
		s.mu.Unlock()
		return
	}
	if !s.lastAnalysis.IsZero() && s.now().Sub(s.lastAnalysis) < s.cfg.TickInterval {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.state = StateAnalyzing
	pair, timeframe := s.pair, s.timeframe
	s.mu.Unlock()
	s.setStateMetric()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		if s.state == StateAnalyzing {
			s.state = StateIdle
		}
		s.mu.Unlock()
		s.setStateMetric()
	}()

	start := s.now()
	// One trace ID per analysis pass, carried through fetch, store, and
	// event publishing.
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(pair, start))
	var (
		candles []model.Candle
		result  *model.AnalysisResult
	)
	policy := retry.Policy{
		MaxAttempts: s.cfg.MaxRetries + 1,
		BaseDelay:   s.cfg.RetryBase,
		Strategy:    retry.Linear,
	}
	err := policy.Do(ctx, func() error {
		var ferr error
		candles, ferr = s.source.Fetch(ctx, pair, timeframe)
		if ferr != nil {
			return ferr
		}
		result, ferr = s.engine.Analyze(candles)
		return ferr
	})
	if s.Metrics != nil {
		s.Metrics.AnalysisDur.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if ctx.Err() != nil {
			return // stopping; discard
		}
		log.Printf("[scheduler] analysis failed after retries (trace %s): %v", logger.TraceID(ctx), err)
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		if s.Metrics != nil {
			s.Metrics.AnalysisErrors.Inc()
			var de *source.DataError
			if errors.As(err, &de) {
				s.Metrics.FetchErrors.WithLabelValues(de.Kind.String()).Inc()
			}
		}
		return
	}

	analysisTime := s.now()
	s.mu.Lock()
	s.lastErr = ""
	s.lastAnalysis = analysisTime
	s.mu.Unlock()

	if s.Metrics != nil {
		s.Metrics.AnalysesTotal.Inc()
	}
	if s.Health != nil {
		s.Health.SetLastAnalysisAt(analysisTime)
	}

	slog.Info("analysis complete",
		append([]any{
			slog.String("pair", pair),
			slog.Int("timeframe", timeframe),
			slog.Int("confidence", result.Confidence),
			slog.String("direction", string(result.Direction)),
			slog.Int("reasons", len(result.Signals)),
		}, logger.LogWithTrace(ctx)...)...)

	if result.Confidence < s.cfg.ConfidenceThreshold {
		return
	}

	entry := candles[len(candles)-1].Close
	sig := &model.Signal{
		ID:                   uuid.NewString(),
		Type:                 typeFromDirection(result.Direction),
		Price:                entry,
		Time:                 analysisTime.Format("15:04:05"),
		CreatedAt:            analysisTime.Unix(),
		Pair:                 pair,
		Confidence:           result.Confidence,
		Timeframe:            timeframe,
		MartingaleStep:       0,
		MartingaleMultiplier: 1.0,
	}
	s.emit(ctx, sig, "")
}

// emit reserves the current slot, persists the signal, and schedules
// resolution. The slot is claimed under the lock BEFORE the store write so
// a tick arriving mid-emission sees it occupied; a failed or duplicate
// creation releases the reservation. replaceID names the resolved signal a
// martingale follow-up is allowed to displace; "" means the slot must be
// empty.
func (s *Scheduler) emit(ctx context.Context, sig *model.Signal, replaceID string) bool {
	s.mu.Lock()
	if s.current != nil && s.current.ID != replaceID {
		s.mu.Unlock()
		log.Printf("[scheduler] slot occupied by %s, skipping emission", sig.ID)
		return false
	}
	s.current = sig
	s.state = StateAwaitingResolution
	s.mu.Unlock()
	s.setStateMetric()

	created, err := s.store.Create(ctx, sig)
	if err != nil || created == nil || created.Resolved() || created.CreatedAt != sig.CreatedAt {
		if err != nil {
			log.Printf("[scheduler] signal creation failed: %v", err)
			s.mu.Lock()
			s.lastErr = "signal creation failed: " + err.Error()
			s.mu.Unlock()
		} else {
			// The store returned a pre-existing record: duplicate ID,
			// nothing new was emitted.
			log.Printf("[scheduler] signal %s already exists, skipping emission", sig.ID)
		}
		s.mu.Lock()
		if s.current == sig {
			s.current = nil
			s.state = StateIdle
		}
		s.mu.Unlock()
		s.setStateMetric()
		return false
	}

	s.mu.Lock()
	if s.current != sig {
		// Stopped while the store write was in flight. The record stays
		// pending and is adopted on restart.
		s.mu.Unlock()
		return false
	}
	s.current = created
	s.mu.Unlock()

	if s.Metrics != nil {
		s.Metrics.SignalsEmitted.Inc()
	}
	log.Printf("[scheduler] emitted %s signal %s on %s @ %.4f (confidence %d, step %d)",
		created.Type, created.ID, created.Pair, created.Price, created.Confidence, created.MartingaleStep)

	s.resolver.ScheduleResolution(*created, s.onResolved)

	if s.Events != nil {
		s.Events.PublishSignal(ctx, created)
	}
	s.notify(notification.EmissionAlert(created))
	return true
}

// onResolved is the lifecycle callback. It either continues the martingale
// chain or clears the current slot and forces a prompt re-analysis.
func (s *Scheduler) onResolved(res model.Signal) {
	s.mu.Lock()
	if s.current == nil || s.current.ID != res.ID {
		s.mu.Unlock()
		return // stale callback (backup/primary race or replaced signal)
	}
	martingale := s.settings != nil && s.settings.MartingaleEnabled
	s.mu.Unlock()

	log.Printf("[scheduler] signal %s resolved: %s (%.2f%%)", res.ID, res.Result, res.ProfitLoss)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.Events != nil {
		s.Events.PublishSignal(ctx, &res)
	}
	s.notify(notification.ResultAlert(&res))

	if res.Result == model.ResultLoss && martingale && res.MartingaleStep < model.MaxMartingaleStep {
		if s.emitMartingale(ctx, res) {
			return
		}
		// Follow-up emission failed; fall through and free the slot so the
		// single-in-flight invariant survives.
	}

	s.mu.Lock()
	// Only clear the slot if it still holds the resolved signal; a failed
	// follow-up leaves it empty, and a concurrent claim must survive.
	if s.current != nil && s.current.ID == res.ID {
		s.current = nil
	}
	if s.current == nil {
		s.state = StateIdle
		s.lastAnalysis = time.Time{} // next tick analyzes immediately
	}
	running := s.running
	s.mu.Unlock()
	s.setStateMetric()

	if running {
		s.kickNow()
	}
}

// emitMartingale re-enters the market after a loss: same direction, current
// price, escalated stake.
func (s *Scheduler) emitMartingale(ctx context.Context, prev model.Signal) bool {
	candles, err := s.source.Fetch(ctx, prev.Pair, prev.Timeframe)
	if err != nil {
		log.Printf("[scheduler] martingale entry price fetch failed: %v", err)
		return false
	}
	entry := candles[len(candles)-1].Close
	if entry <= 0 {
		return false
	}

	now := s.now()
	sig := &model.Signal{
		ID:                   uuid.NewString(),
		Type:                 prev.Type,
		Price:                entry,
		Time:                 now.Format("15:04:05"),
		CreatedAt:            now.Unix(),
		Pair:                 prev.Pair,
		Confidence:           prev.Confidence,
		Timeframe:            prev.Timeframe,
		MartingaleStep:       prev.MartingaleStep + 1,
		MartingaleMultiplier: prev.MartingaleMultiplier * 2,
	}

	// emit swaps the follow-up into the slot still held by the resolved
	// signal; the slot is never observably empty in between.
	if !s.emit(ctx, sig, prev.ID) {
		return false
	}
	if s.Metrics != nil {
		s.Metrics.MartingaleSteps.Inc()
	}
	return true
}

func (s *Scheduler) notify(alert notification.Alert) {
	if s.Notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Notifier.Send(ctx, alert); err != nil {
			log.Printf("[scheduler] notification failed: %v", err)
		}
	}()
}

func (s *Scheduler) setStateMetric() {
	if s.Metrics == nil {
		return
	}
	s.Metrics.SchedulerState.Set(float64(s.State()))
}

func typeFromDirection(d model.Direction) model.SignalType {
	if d == model.DirectionUp {
		return model.SignalBuy
	}
	return model.SignalSell
}
