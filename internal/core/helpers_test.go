package core

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"labstock/pkg/domain"
)

type backend struct {
	name string
	open func(t *testing.T, opts ...ServiceOption) *Service
}

func backends() []backend {
	return []backend{
		{name: "memory", open: func(_ *testing.T, opts ...ServiceOption) *Service {
			return NewInMemoryService(nil, opts...)
		}},
		{name: "sqlite", open: func(t *testing.T, opts ...ServiceOption) *Service {
			t.Helper()
			store, err := OpenPersistentStore(context.Background(), StoreConfig{
				Driver:     StorageSQLite,
				SQLitePath: filepath.Join(t.TempDir(), "inventory.db"),
			}, nil)
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			svc := NewService(store, opts...)
			t.Cleanup(func() { _ = svc.Close() })
			return svc
		}},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, svc *Service)) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			fn(t, b.open(t))
		})
	}
}

// seedReagent creates a storage and a reagent with the given stock.
func seedReagent(t *testing.T, svc *Service, stock int) domain.Reagent {
	t.Helper()
	ctx := context.Background()
	storage, _, err := svc.CreateStorage(ctx, domain.Storage{Name: "Rack A"})
	if err != nil {
		t.Fatalf("create storage: %v", err)
	}
	reagent, _, err := svc.CreateReagent(ctx, domain.Reagent{Name: "Ethanol", StorageID: storage.ID, Stock: stock, Form: domain.FormLiquid})
	if err != nil {
		t.Fatalf("create reagent: %v", err)
	}
	return reagent
}

func mustStock(t *testing.T, svc *Service, id string) int {
	t.Helper()
	r, ok, err := svc.GetReagent(context.Background(), id)
	if err != nil || !ok {
		t.Fatalf("get reagent %s: ok=%v err=%v", id, ok, err)
	}
	return r.Stock
}

func hasViolation(res domain.Result, rule string, sev domain.Severity) bool {
	for _, v := range res.Violations {
		if v.Rule == rule && v.Severity == sev {
			return true
		}
	}
	return false
}

type captureLogger struct {
	mu    sync.Mutex
	calls []string
}

func (c *captureLogger) add(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, s)
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.add("d:" + msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.add("i:" + msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.add("w:" + msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.add("e:" + msg) }

func (c *captureLogger) has(entry string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call == entry {
			return true
		}
	}
	return false
}

type stubClock struct{ t time.Time }

func (s stubClock) Now() time.Time { return s.t }
