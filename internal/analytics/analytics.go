// Package analytics aggregates win-rate and profit/loss statistics over
// stored signals.
package analytics

import (
	"context"
	"sort"
	"time"

	"signal-enginev1/internal/model"
	"signal-enginev1/internal/signalstore"
)

// Summary is the portfolio-wide view.
type Summary struct {
	TotalSignals  int     `json:"total_signals"`
	Resolved      int     `json:"resolved"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	WinRate       float64 `json:"win_rate"`        // wins / total signals, percent
	NetProfitLoss float64 `json:"net_profit_loss"` // sum of resolved P/L percentages
	AvgConfidence float64 `json:"avg_confidence"`
}

// PairStats is the per-instrument breakdown.
type PairStats struct {
	Pair          string  `json:"pair"`
	TotalSignals  int     `json:"total_signals"`
	Wins          int     `json:"wins"`
	WinRate       float64 `json:"win_rate"`
	NetProfitLoss float64 `json:"net_profit_loss"`
}

// Report bundles the summary with per-pair stats.
type Report struct {
	Summary     Summary     `json:"summary"`
	Pairs       []PairStats `json:"pairs"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// Range restricts a report to signals created within [Start, End].
// Zero bounds are open-ended.
type Range struct {
	Start time.Time
	End   time.Time
}

func (r *Range) contains(createdAt int64) bool {
	if r == nil {
		return true
	}
	t := time.Unix(createdAt, 0)
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// Service computes reports from a signal store.
type Service struct {
	store signalstore.Store
	now   func() time.Time
}

// NewService creates an analytics service over the given store.
func NewService(store signalstore.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Report aggregates all stored signals, optionally restricted to rng.
// The win rate counts pending signals in the denominator: an unresolved
// signal is not yet a win.
func (s *Service) Report(ctx context.Context, rng *Range) (*Report, error) {
	signals, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	var (
		sum        Summary
		confidence int
		byPair     = make(map[string]*PairStats)
	)
	for _, sig := range signals {
		if !rng.contains(sig.CreatedAt) {
			continue
		}
		sum.TotalSignals++
		confidence += sig.Confidence

		ps := byPair[sig.Pair]
		if ps == nil {
			ps = &PairStats{Pair: sig.Pair}
			byPair[sig.Pair] = ps
		}
		ps.TotalSignals++

		if !sig.Resolved() {
			continue
		}
		sum.Resolved++
		sum.NetProfitLoss += sig.ProfitLoss
		ps.NetProfitLoss += sig.ProfitLoss
		if sig.Result == model.ResultWin {
			sum.Wins++
			ps.Wins++
		} else {
			sum.Losses++
		}
	}

	if sum.TotalSignals > 0 {
		sum.WinRate = float64(sum.Wins) / float64(sum.TotalSignals) * 100
		sum.AvgConfidence = float64(confidence) / float64(sum.TotalSignals)
	}

	pairs := make([]PairStats, 0, len(byPair))
	for _, ps := range byPair {
		if ps.TotalSignals > 0 {
			ps.WinRate = float64(ps.Wins) / float64(ps.TotalSignals) * 100
		}
		pairs = append(pairs, *ps)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].TotalSignals != pairs[j].TotalSignals {
			return pairs[i].TotalSignals > pairs[j].TotalSignals
		}
		return pairs[i].Pair < pairs[j].Pair
	})

	return &Report{Summary: sum, Pairs: pairs, GeneratedAt: s.now()}, nil
}
