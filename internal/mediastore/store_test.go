package mediastore_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"coursekit/internal/logging"
	"coursekit/internal/media"
	"coursekit/internal/mediastore"
)

func newStore(t *testing.T) *mediastore.FileStore {
	t.Helper()
	store, err := mediastore.New(filepath.Join(t.TempDir(), "media"), logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	meta, err := store.PutBytes(ctx, "image-0", []byte{1, 2, 3, 4}, mediastore.PutMeta{
		Kind: media.KindImage,
		Page: media.Topic(0),
		MIME: "image/png",
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if meta.Size != 4 || meta.SHA256 == "" {
		t.Fatalf("unexpected meta: %+v", meta)
	}

	data, got, err := store.Get(ctx, "image-0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(data, []byte{1, 2, 3, 4}) {
		t.Fatalf("unexpected payload %v", data)
	}
	if got.Kind != media.KindImage || got.Page != media.Topic(0) || got.MIME != "image/png" {
		t.Fatalf("sidecar not restored: %+v", got)
	}
}

func TestPutOverwritesLastWriterWins(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	for _, payload := range []string{"first", "second"} {
		if _, err := store.Put(ctx, "audio-0", strings.NewReader(payload), mediastore.PutMeta{Kind: media.KindAudio}); err != nil {
			t.Fatalf("Put %s: %v", payload, err)
		}
	}
	data, _, err := store.Get(ctx, "audio-0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "second" {
		t.Fatalf("expected last write to win, got %q", data)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store := newStore(t)
	_, _, err := store.Get(context.Background(), "image-9")
	if !errors.Is(err, media.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Stat(context.Background(), "image-9"); !errors.Is(err, media.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Stat, got %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	if _, err := store.PutBytes(ctx, "caption-1", []byte("WEBVTT"), mediastore.PutMeta{Kind: media.KindCaption}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	removed, err := store.Delete(ctx, "caption-1")
	if err != nil || !removed {
		t.Fatalf("first delete = %v, %v", removed, err)
	}
	removed, err = store.Delete(ctx, "caption-1")
	if err != nil || removed {
		t.Fatalf("second delete = %v, %v", removed, err)
	}
	has, err := store.Has(ctx, "caption-1")
	if err != nil || has {
		t.Fatalf("Has after delete = %v, %v", has, err)
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), "caption-1.json")); !os.IsNotExist(err) {
		t.Fatalf("expected sidecar removed, err=%v", err)
	}
}

func TestListSkipsTempAndSidecars(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	for _, id := range []string{"video-1", "audio-0", "image-2"} {
		if _, err := store.PutBytes(ctx, id, []byte(id), mediastore.PutMeta{}); err != nil {
			t.Fatalf("Put %s: %v", id, err)
		}
	}
	if err := os.WriteFile(filepath.Join(store.Dir(), ".image-3.bin.123.tmp"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"audio-0", "image-2", "video-1"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("List = %v, want %v", ids, want)
	}

	usage, err := store.Usage(ctx)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if usage.Count != 3 || usage.Bytes != int64(len("video-1")+len("audio-0")+len("image-2")) {
		t.Fatalf("unexpected usage %+v", usage)
	}
}

func TestPutRejectsUnsafeID(t *testing.T) {
	store := newStore(t)
	if _, err := store.PutBytes(context.Background(), "../escape", []byte("x"), mediastore.PutMeta{}); err == nil {
		t.Fatal("expected unsafe id to be rejected")
	}
}

func TestPutReaderFailureSurfacesIOError(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	if _, err := store.PutBytes(ctx, "image-0", []byte("keep"), mediastore.PutMeta{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, err := store.Put(ctx, "image-0", failingReader{}, mediastore.PutMeta{})
	if !errors.Is(err, media.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	data, _, err := store.Get(ctx, "image-0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "keep" {
		t.Fatalf("failed write clobbered payload: %q", data)
	}
}

func TestMissingSidecarIsSynthesized(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	if err := os.WriteFile(store.BlobPath("audio-3"), []byte("legacy"), 0o644); err != nil {
		t.Fatal(err)
	}
	meta, err := store.Stat(ctx, "audio-3")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if meta.Size != int64(len("legacy")) || meta.ID != "audio-3" {
		t.Fatalf("unexpected synthesized meta %+v", meta)
	}
}

func TestRelabelUpdatesPage(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	if _, err := store.PutBytes(ctx, "audio-1", []byte("x"), mediastore.PutMeta{Kind: media.KindAudio, Page: media.Topic(4)}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Relabel(ctx, "audio-1", media.Objectives()); err != nil {
		t.Fatalf("Relabel: %v", err)
	}
	meta, err := store.Stat(ctx, "audio-1")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if meta.Page != media.Objectives() {
		t.Fatalf("page = %v", meta.Page)
	}
}

func TestCancelledContext(t *testing.T) {
	store := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.PutBytes(ctx, "image-0", []byte("x"), mediastore.PutMeta{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }
