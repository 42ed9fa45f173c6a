package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"labstock/internal/blob/core"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := New()
	if store.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	meta := map[string]string{"filename": "sds.pdf"}
	info, err := store.Put(ctx, "reagents/a/sds", bytes.NewReader([]byte("pdf")), core.PutOptions{ContentType: "application/pdf", Metadata: meta})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	meta["filename"] = "mutated"
	if info.Size != 3 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	head, err := store.Head(ctx, "reagents/a/sds")
	if err != nil || head.Metadata["filename"] != "sds.pdf" {
		t.Fatalf("expected metadata isolation, got %+v err=%v", head, err)
	}
	head.Metadata["filename"] = "changed"
	again, _ := store.Head(ctx, "reagents/a/sds")
	if again.Metadata["filename"] != "sds.pdf" {
		t.Fatalf("head leaked internal metadata map")
	}

	_, rc, err := store.Get(ctx, "reagents/a/sds")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if string(body) != "pdf" {
		t.Fatalf("unexpected body %q", body)
	}

	if _, err := store.Put(ctx, "reagents/b/image", strings.NewReader("png"), core.PutOptions{}); err != nil {
		t.Fatalf("put b: %v", err)
	}
	list, _ := store.List(ctx, "reagents/a/")
	if len(list) != 1 {
		t.Fatalf("expected 1 listed blob, got %d", len(list))
	}
	all, _ := store.List(ctx, "")
	if len(all) != 2 || all[0].Key != "reagents/a/sds" {
		t.Fatalf("unexpected list %+v", all)
	}

	if ok, _ := store.Delete(ctx, "reagents/a/sds"); !ok {
		t.Fatalf("expected delete true")
	}
	if ok, _ := store.Delete(ctx, "reagents/a/sds"); ok {
		t.Fatalf("expected second delete false")
	}
	if _, _, err := store.Get(ctx, "reagents/a/sds"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	store := New()
	if _, err := store.Put(ctx, "k", strings.NewReader("a"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("b"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	info, err := store.Put(ctx, "k", strings.NewReader("bb"), core.PutOptions{Overwrite: true})
	if err != nil || info.Size != 2 {
		t.Fatalf("overwrite: %+v %v", info, err)
	}
	if _, err := store.Put(ctx, " ", strings.NewReader("x"), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key error")
	}
	if _, err := store.PresignURL(ctx, "k", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported presign")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("read failure") }

func TestMemoryStorePutReadError(t *testing.T) {
	if _, err := New().Put(context.Background(), "k", failingReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected read error")
	}
}
