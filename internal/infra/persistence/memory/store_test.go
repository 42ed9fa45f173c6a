package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"labstock/internal/infra/persistence/persistencetest"
	"labstock/pkg/domain"
)

func TestStoreContract(t *testing.T) {
	persistencetest.Run(t, func(_ *testing.T, engine *domain.RulesEngine) domain.PersistentStore {
		return NewStore(engine)
	})
}

func TestStoreSnapshotsAreIsolated(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	var reagent Reagent
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		s, err := tx.CreateStorage(Storage{Name: "Rack A"})
		if err != nil {
			return err
		}
		key := "reagents/x/image"
		reagent, err = tx.CreateReagent(Reagent{Name: "NaCl", StorageID: s.ID, Stock: 3, ImageKey: &key})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	snap := store.ExportState()
	if len(snap.Reagents) != 1 || len(snap.Storages) != 1 {
		t.Fatalf("expected populated snapshot: %+v", snap)
	}
	*snap.Reagents[reagent.ID].ImageKey = "mutated"

	store.ImportState(Snapshot{})
	if err := store.View(ctx, func(v domain.TransactionView) error {
		list, err := v.ListReagents()
		if err != nil {
			return err
		}
		if len(list) != 0 {
			t.Fatalf("expected cleared state, got %d reagents", len(list))
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}

	store.ImportState(snap)
	*snap.Reagents[reagent.ID].ImageKey = "again"
	if err := store.View(ctx, func(v domain.TransactionView) error {
		r, ok, err := v.FindReagent(reagent.ID)
		if err != nil || !ok {
			t.Fatalf("expected restored reagent: ok=%v err=%v", ok, err)
		}
		if *r.ImageKey != "mutated" {
			t.Fatalf("expected import to deep copy attachment keys, got %q", *r.ImageKey)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestStoreUsesInjectedClock(t *testing.T) {
	fixed := time.Date(2026, 4, 2, 10, 30, 0, 123456789, time.UTC)
	store := NewStore(nil, WithNowFunc(func() time.Time { return fixed }))
	if store.RulesEngine() == nil {
		t.Fatalf("expected default rules engine")
	}
	if got := store.NowFunc()(); !got.Equal(fixed) {
		t.Fatalf("expected injected clock, got %v", got)
	}
	var created Storage
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateStorage(Storage{Name: "Rack"})
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if want := fixed.Truncate(time.Microsecond); !created.CreatedAt.Equal(want) {
		t.Fatalf("expected CreatedAt %v, got %v", want, created.CreatedAt)
	}
}

func TestStoreUsageDefaultsUsedAtToTransactionTime(t *testing.T) {
	fixed := time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)
	store := NewStore(nil, WithNowFunc(func() time.Time { return fixed }))
	var usage UsageRecord
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		s, err := tx.CreateStorage(Storage{Name: "Rack"})
		if err != nil {
			return err
		}
		r, err := tx.CreateReagent(Reagent{Name: "NaCl", StorageID: s.ID, Stock: 1})
		if err != nil {
			return err
		}
		usage, err = tx.CreateUsage(UsageRecord{ReagentID: r.ID, Amount: 1, UserName: "ana"})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !usage.UsedAt.Equal(fixed) {
		t.Fatalf("expected UsedAt %v, got %v", fixed, usage.UsedAt)
	}
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	store := NewStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, err := store.RunInTransaction(ctx, func(domain.Transaction) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected cancelled transaction, err=%v called=%v", err, called)
	}
	if err := store.View(ctx, func(domain.TransactionView) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled view, got %v", err)
	}
}

func TestStoreSerializesTransactions(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	var reagentID string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		s, err := tx.CreateStorage(Storage{Name: "Rack"})
		if err != nil {
			return err
		}
		r, err := tx.CreateReagent(Reagent{Name: "NaCl", StorageID: s.ID, Stock: 100})
		reagentID = r.ID
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
				_, err := tx.UpdateReagent(reagentID, func(r *Reagent) error {
					r.Stock--
					return nil
				})
				return err
			})
			if err != nil {
				t.Errorf("update: %v", err)
			}
		}()
	}
	wg.Wait()

	if err := store.View(ctx, func(v domain.TransactionView) error {
		r, _, err := v.FindReagent(reagentID)
		if r.Stock != 80 {
			t.Fatalf("expected 80 after serialized decrements, got %d", r.Stock)
		}
		return err
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestTransactionMutatorErrorLeavesStateUntouched(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	var storage Storage
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		storage, err = tx.CreateStorage(Storage{Name: "Rack", Capacity: 1})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	boom := errors.New("boom")
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateStorage(storage.ID, func(s *Storage) error {
			s.Capacity = 50
			return boom
		})
		return err
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutator error, got %v", err)
	}
	if got := store.ExportState().Storages[storage.ID].Capacity; got != 1 {
		t.Fatalf("expected capacity 1, got %d", got)
	}
}
