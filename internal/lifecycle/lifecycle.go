// Package lifecycle resolves emitted signals once their timeframe elapses.
//
// Every scheduled signal gets a primary timer at its deadline and a backup
// timer 5s later. The backup force-resolves as a loss if the primary path
// has not completed — the fail-safe bias is deliberate: a signal must never
// stay pending and block the single-in-flight invariant. Exactly one
// resolution write happens per signal; the store's idempotent UpdateResult
// plus a re-read immediately before writing enforce that.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"signal-enginev1/internal/metrics"
	"signal-enginev1/internal/model"
	"signal-enginev1/internal/signalstore"
)

const (
	// DefaultBackupGrace is how long after the deadline the backup pass waits.
	DefaultBackupGrace = 5 * time.Second

	// resolveTimeout bounds a single resolution attempt, including the
	// market data refetch with its retries.
	resolveTimeout = 30 * time.Second
)

// PriceSource yields a current candle series; the last close is the price a
// signal is resolved against.
type PriceSource interface {
	Fetch(ctx context.Context, pair string, timeframe int) ([]model.Candle, error)
}

type resolutionTimers struct {
	primary *time.Timer
	backup  *time.Timer
}

// Manager schedules and performs signal resolution.
type Manager struct {
	store  signalstore.Store
	source PriceSource

	// BackupGrace is the delay between the primary deadline and the
	// fail-safe pass. Tests shorten it.
	BackupGrace time.Duration

	// Metrics is optional.
	Metrics *metrics.Metrics

	now func() time.Time

	mu     sync.Mutex
	timers map[string]*resolutionTimers
}

// New creates a Manager resolving against the given store and price source.
func New(store signalstore.Store, source PriceSource) *Manager {
	return &Manager{
		store:       store,
		source:      source,
		BackupGrace: DefaultBackupGrace,
		now:         time.Now,
		timers:      make(map[string]*resolutionTimers),
	}
}

// ScheduleResolution arms the primary and backup timers for sig. If the
// deadline already passed the signal resolves immediately. onResolved is
// invoked with the stored record once the outcome is persisted; it may be
// invoked more than once in a tight primary/backup race, always with the
// same stored outcome.
func (m *Manager) ScheduleResolution(sig model.Signal, onResolved func(model.Signal)) {
	remaining := sig.Deadline().Sub(m.now())
	if remaining < 0 {
		remaining = 0
	}

	m.mu.Lock()
	if _, ok := m.timers[sig.ID]; ok {
		m.mu.Unlock()
		return // already scheduled
	}
	rt := &resolutionTimers{}
	rt.primary = time.AfterFunc(remaining, func() {
		m.resolve(sig, onResolved)
	})
	rt.backup = time.AfterFunc(remaining+m.BackupGrace, func() {
		m.backupResolve(sig, onResolved)
	})
	m.timers[sig.ID] = rt
	m.mu.Unlock()

	log.Printf("[lifecycle] signal %s scheduled: resolution in %v (+%v backup)",
		sig.ID, remaining.Round(time.Second), m.BackupGrace)
}

// Cancel drops any pending timers for the signal without resolving it.
func (m *Manager) Cancel(id string) {
	m.mu.Lock()
	m.cancelLocked(id)
	m.mu.Unlock()
}

// Stop drops all pending timers. In-flight resolutions still terminate.
func (m *Manager) Stop() {
	m.mu.Lock()
	for id := range m.timers {
		m.cancelLocked(id)
	}
	m.mu.Unlock()
}

func (m *Manager) cancelLocked(id string) {
	if rt, ok := m.timers[id]; ok {
		rt.primary.Stop()
		rt.backup.Stop()
		delete(m.timers, id)
	}
}

// resolve is the primary path: re-read the stored signal, short-circuit if
// already resolved, otherwise evaluate against the current price and
// persist. Any failure degrades to a forced loss.
func (m *Manager) resolve(sig model.Signal, onResolved func(model.Signal)) {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	stored, err := m.store.GetByID(ctx, sig.ID)
	if err != nil {
		m.degrade(ctx, sig, onResolved, fmt.Errorf("read signal: %w", err))
		return
	}
	if stored == nil {
		log.Printf("[lifecycle] signal %s vanished before resolution", sig.ID)
		m.Cancel(sig.ID)
		return
	}
	if stored.Resolved() {
		m.finish(*stored, onResolved)
		return
	}

	candles, err := m.source.Fetch(ctx, sig.Pair, sig.Timeframe)
	if err != nil {
		m.degrade(ctx, sig, onResolved, fmt.Errorf("fetch current price: %w", err))
		return
	}
	current := candles[len(candles)-1].Close
	if current <= 0 {
		m.degrade(ctx, sig, onResolved, fmt.Errorf("invalid current price %v", current))
		return
	}

	result, profitLoss := Outcome(&sig, current)

	updated, err := m.store.UpdateResult(ctx, sig.ID, result, profitLoss)
	if err != nil || updated == nil {
		m.degrade(ctx, sig, onResolved, fmt.Errorf("persist result: %w", err))
		return
	}

	log.Printf("[lifecycle] signal %s resolved: %s (%.2f%%)", sig.ID, updated.Result, updated.ProfitLoss)
	if m.Metrics != nil {
		m.Metrics.SignalsResolved.WithLabelValues(string(updated.Result)).Inc()
	}
	m.finish(*updated, onResolved)
}

// backupResolve is the fail-safe pass. It never re-derives the price: the
// forced outcome is always loss/0, even if the market moved favorably.
func (m *Manager) backupResolve(sig model.Signal, onResolved func(model.Signal)) {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	stored, err := m.store.GetByID(ctx, sig.ID)
	if err == nil && stored == nil {
		m.Cancel(sig.ID)
		return
	}
	if err == nil && stored.Resolved() {
		// Primary path completed; nothing to force.
		m.Cancel(sig.ID)
		return
	}

	log.Printf("[lifecycle] backup pass forcing loss for signal %s", sig.ID)
	if m.Metrics != nil {
		m.Metrics.ForcedLosses.Inc()
	}

	updated, uerr := m.store.UpdateResult(ctx, sig.ID, model.ResultLoss, 0)
	if uerr != nil || updated == nil {
		sig.Result = model.ResultLoss
		sig.ProfitLoss = 0
		m.finish(sig, onResolved)
		return
	}
	if m.Metrics != nil && updated.Result == model.ResultLoss {
		m.Metrics.SignalsResolved.WithLabelValues(string(model.ResultLoss)).Inc()
	}
	m.finish(*updated, onResolved)
}

// degrade forces loss/0 after a resolution failure. If even the store write
// fails, a synthesized loss record is propagated so automation can move on.
func (m *Manager) degrade(ctx context.Context, sig model.Signal, onResolved func(model.Signal), cause error) {
	log.Printf("[lifecycle] resolution error for signal %s, forcing loss: %v", sig.ID, cause)

	updated, err := m.store.UpdateResult(ctx, sig.ID, model.ResultLoss, 0)
	if err != nil || updated == nil {
		// The loss could not be persisted. Propagate it so automation moves
		// on, but leave the backup timer armed to retry the store write.
		sig.Result = model.ResultLoss
		sig.ProfitLoss = 0
		if onResolved != nil {
			onResolved(sig)
		}
		return
	}
	if m.Metrics != nil {
		m.Metrics.SignalsResolved.WithLabelValues(string(updated.Result)).Inc()
	}
	m.finish(*updated, onResolved)
}

func (m *Manager) finish(res model.Signal, onResolved func(model.Signal)) {
	m.Cancel(res.ID)
	if onResolved != nil {
		onResolved(res)
	}
}

// Outcome evaluates a signal against the current price: win iff a buy
// gained or a sell dropped. ProfitLoss is the signed price change percent
// from the signal's perspective.
func Outcome(sig *model.Signal, currentPrice float64) (model.SignalResult, float64) {
	priceChange := (currentPrice - sig.Price) / sig.Price * 100

	win := (sig.Type == model.SignalBuy && priceChange > 0) ||
		(sig.Type == model.SignalSell && priceChange < 0)

	profitLoss := priceChange
	if sig.Type == model.SignalSell {
		profitLoss = -priceChange
	}

	if win {
		return model.ResultWin, profitLoss
	}
	return model.ResultLoss, profitLoss
}
