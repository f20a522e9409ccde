package signalstore

import (
	"context"
	"sort"
	"sync"

	"signal-enginev1/internal/model"
)

// Memory is a mutex-guarded map store. It honors the same idempotency
// contract as the SQLite store and is used by tests and local development.
type Memory struct {
	mu      sync.Mutex
	signals map[string]model.Signal
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{signals: make(map[string]model.Signal)}
}

func (m *Memory) Create(ctx context.Context, sig *model.Signal) (*model.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.signals[sig.ID]; ok {
		cp := existing
		return &cp, nil
	}
	m.signals[sig.ID] = *sig
	cp := *sig
	return &cp, nil
}

func (m *Memory) GetByID(ctx context.Context, id string) (*model.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sig, ok := m.signals[id]
	if !ok {
		return nil, nil
	}
	cp := sig
	return &cp, nil
}

func (m *Memory) GetPending(ctx context.Context) ([]model.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Signal
	for _, sig := range m.signals {
		if !sig.Resolved() {
			out = append(out, sig)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *Memory) GetAll(ctx context.Context) ([]model.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Signal, 0, len(m.signals))
	for _, sig := range m.signals {
		out = append(out, sig)
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *Memory) UpdateResult(ctx context.Context, id string, result model.SignalResult, profitLoss float64) (*model.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sig, ok := m.signals[id]
	if !ok {
		return nil, nil
	}
	if sig.Resolved() {
		cp := sig
		return &cp, nil
	}
	sig.Result = result
	sig.ProfitLoss = profitLoss
	m.signals[id] = sig
	cp := sig
	return &cp, nil
}

func (m *Memory) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	m.signals = make(map[string]model.Signal)
	m.mu.Unlock()
	return nil
}

func sortNewestFirst(signals []model.Signal) {
	sort.Slice(signals, func(i, j int) bool {
		if signals[i].CreatedAt != signals[j].CreatedAt {
			return signals[i].CreatedAt > signals[j].CreatedAt
		}
		return signals[i].ID > signals[j].ID
	})
}
