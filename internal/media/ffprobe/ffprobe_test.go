package ffprobe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video", Duration: "8.0"},
			{CodecType: "audio", Duration: "9.5"},
			{CodecType: "audio"},
		},
		Format: Format{Duration: "12.25", Size: "1000"},
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("expected 1 video stream, got %d", result.VideoStreamCount())
	}
	if result.AudioStreamCount() != 2 {
		t.Fatalf("expected 2 audio streams, got %d", result.AudioStreamCount())
	}
	if result.DurationSeconds() != 12.25 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 1000 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
}

func TestDurationFallsBackToStreams(t *testing.T) {
	result := Result{
		Streams: []Stream{{Duration: "3.5"}, {Duration: "bad"}, {Duration: "4.25"}},
		Format:  Format{Duration: "N/A", Size: "-1"},
	}
	if got := result.DurationSeconds(); got != 4.25 {
		t.Fatalf("expected 4.25, got %v", got)
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
}

func writeStub(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffprobe")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestProberDuration(t *testing.T) {
	stub := writeStub(t, `echo '{"streams":[{"codec_type":"audio","duration":"21.5"}],"format":{"duration":"21.5"}}'`)
	got, err := New(stub, time.Second).Duration(context.Background(), "narration.mp3")
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if got != 21500*time.Millisecond {
		t.Fatalf("expected 21.5s, got %v", got)
	}
}

func TestProberFailure(t *testing.T) {
	stub := writeStub(t, `echo "moov atom not found" >&2; exit 1`)
	if _, err := New(stub, time.Second).Inspect(context.Background(), "broken.mp4"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := New(stub, time.Second).Inspect(context.Background(), " "); err == nil {
		t.Fatal("expected empty path error")
	}
}
