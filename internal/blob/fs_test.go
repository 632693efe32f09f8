package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func newTempFilesystem(t *testing.T) *Filesystem {
	t.Helper()
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	return store
}

func TestFilesystemPutGetHeadListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempFilesystem(t)
	key, err := PhotoKey("s-1", "catch.jpg")
	if err != nil {
		t.Fatalf("PhotoKey: %v", err)
	}
	info, err := store.Put(ctx, key, bytes.NewReader([]byte("jpegdata")), PutOptions{ContentType: "image/jpeg", Metadata: map[string]string{"camera": "dock-2"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != key || info.Size != 8 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), PutOptions{}); err == nil {
		t.Fatalf("expected duplicate failure")
	}
	head, err := store.Head(ctx, key)
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.ContentType != "image/jpeg" || head.Metadata["camera"] != "dock-2" {
		t.Fatalf("metadata not persisted: %+v", head)
	}
	got, rc, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if string(body) != "jpegdata" || got.ETag != head.ETag {
		t.Fatalf("content round trip mismatch")
	}
	list, err := store.List(ctx, PhotoPrefix("s-1"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != key {
		t.Fatalf("unexpected list %+v", list)
	}
	ok, err := store.Delete(ctx, key)
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.Delete(ctx, key)
	if err != nil || ok {
		t.Fatalf("second delete should report not found")
	}
}

func TestFilesystemRejectsTraversalKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempFilesystem(t)
	for _, key := range []string{"../escape.jpg", "/abs.jpg", "a/../../b", "  "} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), PutOptions{}); err == nil {
			t.Fatalf("key %q should be rejected", key)
		}
	}
}

func TestFilesystemListOrderedByKey(t *testing.T) {
	ctx := context.Background()
	store := newTempFilesystem(t)
	for _, name := range []string{"c.jpg", "a.jpg", "b.jpg"} {
		key, _ := PhotoKey("s-9", name)
		if _, err := store.Put(ctx, key, strings.NewReader(name), PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", name, err)
		}
	}
	list, err := store.List(ctx, PhotoPrefix("s-9"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(list))
	}
	for i, want := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		if !strings.HasSuffix(list[i].Key, want) {
			t.Fatalf("position %d: got %s want suffix %s", i, list[i].Key, want)
		}
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }

func TestFilesystemPutReaderErrorLeavesNothing(t *testing.T) {
	ctx := context.Background()
	store := newTempFilesystem(t)
	if _, err := store.Put(ctx, "broken.bin", failingReader{}, PutOptions{}); err == nil {
		t.Fatalf("expected reader error")
	}
	if _, _, err := store.Get(ctx, "broken.bin"); err == nil {
		t.Fatalf("partial blob should not exist")
	}
}

func TestFilesystemPresignOnlyGET(t *testing.T) {
	ctx := context.Background()
	store := newTempFilesystem(t)
	url, err := store.PresignURL(ctx, "samples/s-1/photos/a.jpg", SignedURLOptions{})
	if err != nil || url == "" {
		t.Fatalf("presign: %v %q", err, url)
	}
	if _, err := store.PresignURL(ctx, "k", SignedURLOptions{Method: "PUT"}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestPhotoKeyFlattensFilenames(t *testing.T) {
	key, err := PhotoKey("s-1", "../../etc/passwd")
	if err != nil {
		t.Fatalf("PhotoKey: %v", err)
	}
	if key != "samples/s-1/photos/passwd" {
		t.Fatalf("unexpected key %s", key)
	}
	if _, err := PhotoKey("s-1", ".."); err == nil {
		t.Fatalf("bare dotdot should be rejected")
	}
	if _, err := PhotoKey("", "a.jpg"); err == nil {
		t.Fatalf("empty sample id should be rejected")
	}
}
