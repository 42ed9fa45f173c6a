package integration

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"labstock/internal/blob"
	"labstock/internal/core"
	"labstock/internal/export"
	"labstock/pkg/domain"
)

// TestIntegrationSmoke runs one inventory round trip against every
// combination of in-process persistent store and blob backend.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()

	storeVariants := []struct {
		name string
		open func(t *testing.T) domain.PersistentStore
	}{
		{
			name: "memory-store",
			open: func(t *testing.T) domain.PersistentStore {
				s, err := core.OpenPersistentStore(ctx, core.StoreConfig{Driver: core.StorageMemory}, nil)
				if err != nil {
					t.Fatalf("open memory store: %v", err)
				}
				return s
			},
		},
		{
			name: "sqlite-store",
			open: func(t *testing.T) domain.PersistentStore {
				path := filepath.Join(t.TempDir(), "labstock.db")
				s, err := core.OpenPersistentStore(ctx, core.StoreConfig{Driver: core.StorageSQLite, SQLitePath: path}, nil)
				if err != nil {
					t.Fatalf("open sqlite store: %v", err)
				}
				return s
			},
		},
	}

	blobVariants := []struct {
		name string
		open func(t *testing.T) blob.Store
	}{
		{
			name: "memory-blob",
			open: func(_ *testing.T) blob.Store { return blob.NewMemory() },
		},
		{
			name: "filesystem-blob",
			open: func(t *testing.T) blob.Store {
				fs, err := blob.NewFilesystem(t.TempDir())
				if err != nil {
					t.Fatalf("new filesystem blob: %v", err)
				}
				return fs
			},
		},
		{
			name: "mock-s3-blob",
			open: func(_ *testing.T) blob.Store { return blob.NewMockS3ForTests() },
		},
	}

	for _, sv := range storeVariants {
		for _, bv := range blobVariants {
			t.Run(sv.name+"/"+bv.name, func(t *testing.T) {
				metrics := core.NewExpvarMetricsRecorder("")
				var traces bytes.Buffer
				tracer := core.NewJSONTracer(&traces)
				svc := core.NewService(sv.open(t),
					core.WithBlobStore(bv.open(t)),
					core.WithMetricsRecorder(metrics),
					core.WithTracer(tracer),
				)
				t.Cleanup(func() { _ = svc.Close() })

				rack, res, err := svc.CreateStorage(ctx, domain.Storage{Name: "Rack A", Capacity: 2})
				if err != nil || res.HasBlocking() {
					t.Fatalf("create storage: %v %+v", err, res.Violations)
				}
				reagent, _, err := svc.CreateReagent(ctx, domain.Reagent{Name: "Ethanol", StorageID: rack.ID, Stock: 10})
				if err != nil {
					t.Fatalf("create reagent: %v", err)
				}
				if _, err := svc.AttachSDS(ctx, reagent.ID, strings.NewReader("sheet"), "application/pdf"); err != nil {
					t.Fatalf("attach sds: %v", err)
				}

				out, res, err := svc.LogUsage(ctx, domain.UsageRecord{ReagentID: reagent.ID, Amount: 12, UserName: "alice"})
				if err != nil {
					t.Fatalf("log usage: %v", err)
				}
				if out.Reagent.Stock != 0 || len(res.Warnings()) != 1 {
					t.Fatalf("expected clamped stock with one warning, got %d %+v", out.Reagent.Stock, res.Violations)
				}

				att, ok, err := svc.ReagentSDS(ctx, reagent.ID)
				if err != nil || !ok {
					t.Fatalf("open sds: ok=%v err=%v", ok, err)
				}
				body, err := io.ReadAll(att.Body)
				_ = att.Body.Close()
				if err != nil || string(body) != "sheet" {
					t.Fatalf("sds body %q err %v", body, err)
				}

				usages, err := svc.ListUsagesByReagent(ctx, reagent.ID)
				if err != nil || len(usages) != 1 {
					t.Fatalf("list usages: %v %d", err, len(usages))
				}
				var xlsx bytes.Buffer
				if err := export.WriteUsageWorkbook(&xlsx, out.Reagent, usages); err != nil {
					t.Fatalf("export: %v", err)
				}
				if xlsx.Len() == 0 {
					t.Fatal("expected workbook bytes")
				}

				snapshot := metrics.Snapshot()
				if snapshot.Operations["log_usage"].Success != 1 {
					t.Fatalf("expected log_usage success metric: %+v", snapshot.Operations)
				}
				var sawAttach bool
				for _, entry := range tracer.Entries() {
					if entry.Operation == "attach_sds" && entry.Status == "success" {
						sawAttach = true
					}
				}
				if !sawAttach || traces.Len() == 0 {
					t.Fatalf("expected attach_sds span, got %+v", tracer.Entries())
				}
			})
		}
	}
}
