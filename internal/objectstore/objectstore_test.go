package objectstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"viralforge/internal/config"
)

func TestProductionKey(t *testing.T) {
	if got := ProductionKey("job-1", "segments", "segment-002.mp4"); got != "productions/job-1/segments/segment-002.mp4" {
		t.Fatalf("key = %q", got)
	}
}

func TestCleanKeyRejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "../etc/passwd", "a/../../b", "a//b"} {
		if _, err := cleanKey(key); err == nil {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
}

func TestFSRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFS(filepath.Join(t.TempDir(), "artifacts"))
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	src := filepath.Join(t.TempDir(), "final.mp4")
	if err := os.WriteFile(src, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	key := ProductionKey("job-1", "final.mp4")
	uri, err := store.PutFile(ctx, key, src)
	if err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	if !strings.HasPrefix(uri, "file://") || !strings.HasSuffix(uri, "productions/job-1/final.mp4") {
		t.Fatalf("uri = %q", uri)
	}
	rc, err := store.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "video" {
		t.Fatalf("data = %q", data)
	}
	if _, err := store.PutFile(ctx, ProductionKey("job-1", "narration.mp3"), src); err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	keys, err := store.List(ctx, "productions/job-1/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"productions/job-1/final.mp4", "productions/job-1/narration.mp3"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("keys = %v", keys)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Open(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = config.StorageFS
	cfg.Storage.Root = t.TempDir()
	store, err := Open(context.Background(), &cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := store.(*FS); !ok {
		t.Fatalf("expected FS store, got %T", store)
	}
	cfg.Storage.Backend = "ftp"
	if _, err := Open(context.Background(), &cfg, nil); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestS3KeysAndURI(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	store, err := NewS3(context.Background(), S3Config{
		Bucket: "viral-videos", Prefix: "prod/", Endpoint: "http://127.0.0.1:9000",
		AccessKey: "minio", SecretKey: "minio123",
	}, nil)
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	if got := store.URI("productions/j/final.mp4"); got != "s3://viral-videos/prod/productions/j/final.mp4" {
		t.Fatalf("uri = %q", got)
	}
	if contentType("x.mp4") != "video/mp4" || contentType("x.bin") != "application/octet-stream" {
		t.Fatal("unexpected content types")
	}
}
