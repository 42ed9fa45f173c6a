package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"labstock/internal/blob"
	"labstock/pkg/domain"
)

func TestStorageLifecycleAndBrowse(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		reagent := seedReagent(t, svc, 5)

		rack, ok, err := svc.BrowseStorage(ctx, reagent.StorageID)
		if err != nil || !ok {
			t.Fatalf("browse: ok=%v err=%v", ok, err)
		}
		if rack.Storage.Name != "Rack A" || len(rack.Reagents) != 1 || rack.Reagents[0].ID != reagent.ID {
			t.Fatalf("unexpected rack %+v", rack)
		}
		if _, ok, err := svc.BrowseStorage(ctx, "missing"); err != nil || ok {
			t.Fatalf("expected soft not found, ok=%v err=%v", ok, err)
		}

		updated, _, err := svc.UpdateStorage(ctx, reagent.StorageID, func(s *domain.Storage) error {
			s.Description = "cold room"
			return nil
		})
		if err != nil || updated.Description != "cold room" {
			t.Fatalf("update storage: %+v err=%v", updated, err)
		}

		if _, err := svc.DeleteStorage(ctx, reagent.StorageID); !domain.IsConflict(err) {
			t.Fatalf("expected conflict deleting non-empty storage, got %v", err)
		}
		if _, err := svc.DeleteReagent(ctx, reagent.ID); err != nil {
			t.Fatalf("delete reagent: %v", err)
		}
		if _, err := svc.DeleteStorage(ctx, reagent.StorageID); err != nil {
			t.Fatalf("delete storage: %v", err)
		}
		storages, err := svc.ListStorages(ctx)
		if err != nil || len(storages) != 0 {
			t.Fatalf("expected no storages, got %v err=%v", storages, err)
		}
	})
}

func TestStorageCapacityWarns(t *testing.T) {
	svc := NewInMemoryService(nil)
	ctx := context.Background()
	storage, _, err := svc.CreateStorage(ctx, domain.Storage{Name: "Small shelf", Capacity: 1})
	if err != nil {
		t.Fatalf("create storage: %v", err)
	}
	_, res, err := svc.CreateReagent(ctx, domain.Reagent{Name: "A", StorageID: storage.ID})
	if err != nil || len(res.Violations) != 0 {
		t.Fatalf("first reagent: res=%+v err=%v", res, err)
	}
	_, res, err = svc.CreateReagent(ctx, domain.Reagent{Name: "B", StorageID: storage.ID})
	if err != nil {
		t.Fatalf("over capacity must not block: %v", err)
	}
	if !hasViolation(res, RuleStorageCapacity, domain.SeverityWarn) {
		t.Fatalf("expected capacity warning, got %+v", res)
	}
}

func TestUpdateReagentFieldsAndStock(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		reagent := seedReagent(t, svc, 5)

		updated, _, err := svc.UpdateReagentFields(ctx, reagent.ID, map[string]any{
			domain.FieldHazardClass: "flammable",
			domain.FieldExpiresAt:   "2030-01-31",
			"Jumlah":                42,
		})
		if err != nil {
			t.Fatalf("update fields: %v", err)
		}
		if updated.HazardClass != "flammable" || updated.ExpiresAt == nil || updated.ExpiresAt.Year() != 2030 || updated.Stock != 5 {
			t.Fatalf("unexpected reagent %+v", updated)
		}

		if _, _, err := svc.UpdateReagentFields(ctx, reagent.ID, map[string]any{domain.FieldStock: "many"}); !domain.IsValidation(err) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if _, _, err := svc.SetReagentStock(ctx, reagent.ID, -3); !domain.IsValidation(err) {
			t.Fatalf("expected negative stock rejected, got %v", err)
		}
		set, _, err := svc.SetReagentStock(ctx, reagent.ID, 40)
		if err != nil || set.Stock != 40 {
			t.Fatalf("set stock: %+v err=%v", set, err)
		}
		if _, _, err := svc.UpdateReagentFields(ctx, reagent.ID, map[string]any{domain.FieldStorageID: "missing"}); !domain.IsNotFound(err) {
			t.Fatalf("expected missing storage rejected, got %v", err)
		}
		if _, _, err := svc.SetReagentStock(ctx, "missing", 1); !domain.IsNotFound(err) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestStockFloorRuleBlocksDirectNegativeWrite(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		reagent := seedReagent(t, svc, 2)
		res, err := svc.Store().RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.UpdateReagent(reagent.ID, func(r *domain.Reagent) error {
				r.Stock = -1
				return nil
			})
			return err
		})
		var rv domain.RuleViolationError
		if !errors.As(err, &rv) || !hasViolation(res, RuleStockFloor, domain.SeverityBlock) {
			t.Fatalf("expected stock_floor block, res=%+v err=%v", res, err)
		}
		if got := mustStock(t, svc, reagent.ID); got != 2 {
			t.Fatalf("blocked write leaked, stock=%d", got)
		}
	})
}

func TestDeleteReagentWithUsagesConflicts(t *testing.T) {
	svc := NewInMemoryService(nil)
	ctx := context.Background()
	reagent := seedReagent(t, svc, 5)
	if _, _, err := svc.LogUsage(ctx, domain.UsageRecord{ReagentID: reagent.ID, Amount: 1, UserName: "ana"}); err != nil {
		t.Fatalf("log usage: %v", err)
	}
	if _, err := svc.DeleteReagent(ctx, reagent.ID); !domain.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := svc.DeleteReagent(ctx, "missing"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateReagentIgnoresAttachmentKeys(t *testing.T) {
	svc := NewInMemoryService(nil)
	ctx := context.Background()
	storage, _, _ := svc.CreateStorage(ctx, domain.Storage{Name: "R"})
	key := "elsewhere"
	created, _, err := svc.CreateReagent(ctx, domain.Reagent{Name: "X", StorageID: storage.ID, ImageKey: &key})
	if err != nil || created.HasImage() {
		t.Fatalf("expected attachment keys dropped, got %+v err=%v", created, err)
	}
}

func TestAttachmentsLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		reagent := seedReagent(t, svc, 1)

		if _, ok, err := svc.ReagentImage(ctx, reagent.ID); err != nil || ok {
			t.Fatalf("expected no image yet, ok=%v err=%v", ok, err)
		}
		withImage, err := svc.AttachImage(ctx, reagent.ID, bytes.NewReader([]byte("png-1")), "image/png")
		if err != nil || !withImage.HasImage() || *withImage.ImageKey != AttachmentKey(reagent.ID, AttachmentImage) {
			t.Fatalf("attach image: %+v err=%v", withImage, err)
		}
		if _, err := svc.AttachImage(ctx, reagent.ID, bytes.NewReader([]byte("png-2")), "image/png"); err != nil {
			t.Fatalf("replace image: %v", err)
		}
		att, ok, err := svc.ReagentImage(ctx, reagent.ID)
		if err != nil || !ok {
			t.Fatalf("open image: ok=%v err=%v", ok, err)
		}
		body, _ := io.ReadAll(att.Body)
		_ = att.Body.Close()
		if string(body) != "png-2" || att.Info.ContentType != "image/png" {
			t.Fatalf("unexpected image %q %+v", body, att.Info)
		}

		if _, err := svc.AttachSDS(ctx, reagent.ID, bytes.NewReader([]byte("%PDF")), "application/pdf"); err != nil {
			t.Fatalf("attach sds: %v", err)
		}
		if _, err := svc.AttachmentURL(ctx, reagent.ID, AttachmentSDS, 0); !errors.Is(err, blob.ErrUnsupported) {
			t.Fatalf("memory blobs cannot presign, got %v", err)
		}
		cleared, err := svc.RemoveAttachment(ctx, reagent.ID, AttachmentImage)
		if err != nil || cleared.HasImage() || !cleared.HasSDS() {
			t.Fatalf("remove image: %+v err=%v", cleared, err)
		}
		if _, err := svc.Blobs().Head(ctx, AttachmentKey(reagent.ID, AttachmentImage)); !errors.Is(err, blob.ErrNotFound) {
			t.Fatalf("expected image bytes deleted, got %v", err)
		}

		if _, err := svc.DeleteReagent(ctx, reagent.ID); err != nil {
			t.Fatalf("delete reagent: %v", err)
		}
		if _, err := svc.Blobs().Head(ctx, AttachmentKey(reagent.ID, AttachmentSDS)); !errors.Is(err, blob.ErrNotFound) {
			t.Fatalf("expected sds deleted with reagent, got %v", err)
		}
		if _, err := svc.AttachImage(ctx, reagent.ID, bytes.NewReader(nil), ""); !domain.IsNotFound(err) {
			t.Fatalf("expected not found attaching to deleted reagent, got %v", err)
		}
	})
}

func TestAttachmentURLFromFilesystem(t *testing.T) {
	store, err := blob.NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("fs blob: %v", err)
	}
	svc := NewInMemoryService(nil, WithBlobStore(store))
	ctx := context.Background()
	reagent := seedReagent(t, svc, 1)
	if _, err := svc.AttachmentURL(ctx, reagent.ID, AttachmentSDS, 0); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected not found without sds, got %v", err)
	}
	if _, err := svc.AttachSDS(ctx, reagent.ID, bytes.NewReader([]byte("%PDF")), "application/pdf"); err != nil {
		t.Fatalf("attach sds: %v", err)
	}
	url, err := svc.AttachmentURL(ctx, reagent.ID, AttachmentSDS, 0)
	if err != nil || url == "" {
		t.Fatalf("url: %q err=%v", url, err)
	}
}

func TestParseAttachmentKind(t *testing.T) {
	if k, err := ParseAttachmentKind("sds"); err != nil || k != AttachmentSDS {
		t.Fatalf("parse sds: %v %v", k, err)
	}
	if _, err := ParseAttachmentKind("video"); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
