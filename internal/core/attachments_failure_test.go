package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"labstock/internal/blob"
)

func readImage(t *testing.T, svc *Service, reagentID string) string {
	t.Helper()
	att, ok, err := svc.ReagentImage(context.Background(), reagentID)
	if err != nil || !ok {
		t.Fatalf("open image: ok=%v err=%v", ok, err)
	}
	defer att.Body.Close()
	body, err := io.ReadAll(att.Body)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	return string(body)
}

func TestReplacingAttachmentKeepsPreviousOnFailedWrite(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		reagent := seedReagent(t, svc, 1)
		if _, err := svc.AttachImage(ctx, reagent.ID, strings.NewReader("v1"), "image/png"); err != nil {
			t.Fatalf("attach v1: %v", err)
		}

		_, err := withFailingStore(svc, "UpdateReagent").AttachImage(ctx, reagent.ID, strings.NewReader("v2"), "image/png")
		assertFailedWrite(t, err)
		if got := readImage(t, svc, reagent.ID); got != "v1" {
			t.Fatalf("expected previous image to survive, got %q", got)
		}

		if _, err := svc.AttachImage(ctx, reagent.ID, strings.NewReader("v3"), "image/png"); err != nil {
			t.Fatalf("attach v3: %v", err)
		}
		if got := readImage(t, svc, reagent.ID); got != "v3" {
			t.Fatalf("expected replaced image, got %q", got)
		}
	})
}

func TestFirstAttachmentRemovedOnFailedWrite(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		reagent := seedReagent(t, svc, 1)

		_, err := withFailingStore(svc, "UpdateReagent").AttachSDS(ctx, reagent.ID, strings.NewReader("sheet"), "application/pdf")
		assertFailedWrite(t, err)
		if _, err := svc.Blobs().Head(ctx, AttachmentKey(reagent.ID, AttachmentSDS)); !errors.Is(err, blob.ErrNotFound) {
			t.Fatalf("expected orphaned sds to be removed, got %v", err)
		}
		got, ok, err := svc.GetReagent(ctx, reagent.ID)
		if err != nil || !ok || got.HasSDS() {
			t.Fatalf("reagent must not reference an sds: %+v err=%v", got, err)
		}
	})
}
