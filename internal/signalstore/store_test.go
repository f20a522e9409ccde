package signalstore

import (
	"context"
	"path/filepath"
	"testing"

	"signal-enginev1/internal/model"
)

func testSignal(id string, createdAt int64) *model.Signal {
	return &model.Signal{
		ID:                   id,
		Type:                 model.SignalBuy,
		Price:                100.5,
		Time:                 "10:30:00",
		CreatedAt:            createdAt,
		Pair:                 "BTC/USD",
		Confidence:           72,
		Timeframe:            1,
		MartingaleStep:       0,
		MartingaleMultiplier: 1.0,
	}
}

// stores returns every Store implementation under test.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "signals.db"))
	if err != nil {
		t.Fatalf("sqlite init: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestStore_CreateIsIdempotent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := store.Create(ctx, testSignal("sig-1", 1700000000))
			if err != nil {
				t.Fatalf("create: %v", err)
			}

			dup := testSignal("sig-1", 1700009999)
			dup.Price = 999
			second, err := store.Create(ctx, dup)
			if err != nil {
				t.Fatalf("duplicate create: %v", err)
			}

			// The duplicate returns the stored record, untouched.
			if second.Price != first.Price || second.CreatedAt != first.CreatedAt {
				t.Fatalf("duplicate create mutated record: %+v", second)
			}

			all, err := store.GetAll(ctx)
			if err != nil {
				t.Fatalf("getall: %v", err)
			}
			if len(all) != 1 {
				t.Fatalf("expected 1 stored signal, got %d", len(all))
			}
		})
	}
}

func TestStore_GetByIDMissingIsNil(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := store.GetByID(context.Background(), "nope")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != nil {
				t.Fatalf("expected nil for unknown id, got %+v", got)
			}
		})
	}
}

func TestStore_UpdateResultIsIdempotent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Create(ctx, testSignal("sig-1", 1700000000)); err != nil {
				t.Fatalf("create: %v", err)
			}

			updated, err := store.UpdateResult(ctx, "sig-1", model.ResultWin, 4.2)
			if err != nil {
				t.Fatalf("first update: %v", err)
			}
			if updated.Result != model.ResultWin || updated.ProfitLoss != 4.2 {
				t.Fatalf("first update not applied: %+v", updated)
			}

			// A second write must not overwrite the resolved outcome.
			again, err := store.UpdateResult(ctx, "sig-1", model.ResultLoss, -9.9)
			if err != nil {
				t.Fatalf("second update: %v", err)
			}
			if again.Result != model.ResultWin || again.ProfitLoss != 4.2 {
				t.Fatalf("resolved record was overwritten: %+v", again)
			}
		})
	}
}

func TestStore_UpdateResultUnknownID(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := store.UpdateResult(context.Background(), "nope", model.ResultWin, 1)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != nil {
				t.Fatalf("expected nil for unknown id, got %+v", got)
			}
		})
	}
}

func TestStore_GetPendingMostRecentFirst(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, id := range []string{"old", "mid", "new"} {
				if _, err := store.Create(ctx, testSignal(id, int64(1700000000+i*60))); err != nil {
					t.Fatalf("create %s: %v", id, err)
				}
			}
			if _, err := store.UpdateResult(ctx, "mid", model.ResultLoss, -1); err != nil {
				t.Fatalf("resolve mid: %v", err)
			}

			pending, err := store.GetPending(ctx)
			if err != nil {
				t.Fatalf("getpending: %v", err)
			}
			if len(pending) != 2 {
				t.Fatalf("expected 2 pending, got %d", len(pending))
			}
			if pending[0].ID != "new" || pending[1].ID != "old" {
				t.Fatalf("wrong pending order: %s, %s", pending[0].ID, pending[1].ID)
			}
		})
	}
}

func TestStore_ClearAll(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store.Create(ctx, testSignal("a", 1700000000))
			store.Create(ctx, testSignal("b", 1700000060))

			if err := store.ClearAll(ctx); err != nil {
				t.Fatalf("clearall: %v", err)
			}
			all, err := store.GetAll(ctx)
			if err != nil {
				t.Fatalf("getall: %v", err)
			}
			if len(all) != 0 {
				t.Fatalf("expected empty store, got %d signals", len(all))
			}
		})
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	// Mutating a returned signal must not leak into the store.
	store := NewMemory()
	ctx := context.Background()
	store.Create(ctx, testSignal("sig-1", 1700000000))

	got, _ := store.GetByID(ctx, "sig-1")
	got.Price = 42

	again, _ := store.GetByID(ctx, "sig-1")
	if again.Price != 100.5 {
		t.Fatalf("store record was mutated through a returned copy: %g", again.Price)
	}
}
