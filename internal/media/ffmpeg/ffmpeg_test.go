package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// stubFFmpeg records its arguments and touches the output path (last arg).
func stubFFmpeg(t *testing.T) (binary, argsFile string) {
	t.Helper()
	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args.txt")
	binary = filepath.Join(dir, "ffmpeg")
	script := "#!/bin/sh\necho \"$@\" > " + argsFile + "\nfor last; do :; done\ntouch \"$last\"\n"
	if err := os.WriteFile(binary, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return binary, argsFile
}

func readArgs(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	return string(data)
}

func TestMixFilterWithMusic(t *testing.T) {
	got := MixFilter(MixInput{
		Duration:        20 * time.Second,
		NarrationVolume: 1,
		MusicVolume:     0.2,
		Fade:            2 * time.Second,
	})
	want := "[1:a]volume=1[n];[2:a]volume=0.2,afade=t=out:st=18.000:d=2.000[m];[n][m]amix=inputs=2:duration=longest:dropout_transition=0:normalize=0[a]"
	if got != want {
		t.Fatalf("filter = %q\nwant %q", got, want)
	}
}

func TestMixFilterClampsFade(t *testing.T) {
	got := MixFilter(MixInput{Duration: time.Second, NarrationVolume: 1, MusicVolume: 0.2, Fade: 3 * time.Second})
	if !strings.Contains(got, "st=0.000:d=1.000") {
		t.Fatalf("fade not clamped: %q", got)
	}
}

func TestMixNarrationOnly(t *testing.T) {
	binary, argsFile := stubFFmpeg(t)
	out := filepath.Join(t.TempDir(), "final.mp4")
	err := New(binary, time.Second).Mix(context.Background(), MixInput{
		Video: "video.mp4", Narration: "narration.mp3", Duration: 15 * time.Second, NarrationVolume: 1,
	}, out)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	args := readArgs(t, argsFile)
	if strings.Contains(args, "stream_loop") || !strings.Contains(args, "[1:a]volume=1[a]") {
		t.Fatalf("unexpected args %q", args)
	}
	if !strings.Contains(args, "-t 15.000") {
		t.Fatalf("missing duration in %q", args)
	}
}

func TestMixWithMusicLoopsBed(t *testing.T) {
	binary, argsFile := stubFFmpeg(t)
	out := filepath.Join(t.TempDir(), "final.mp4")
	err := New(binary, time.Second).Mix(context.Background(), MixInput{
		Video: "video.mp4", Narration: "narration.mp3", Music: "bed.mp3",
		Duration: 10 * time.Second, NarrationVolume: 1, MusicVolume: 0.2, Fade: 2 * time.Second,
	}, out)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	args := readArgs(t, argsFile)
	if !strings.Contains(args, "-stream_loop -1 -i bed.mp3") || !strings.Contains(args, "amix=inputs=2") {
		t.Fatalf("unexpected args %q", args)
	}
}

func TestConcatWritesListInOrder(t *testing.T) {
	binary, argsFile := stubFFmpeg(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "joined.mp4")
	segments := []string{filepath.Join(dir, "segment-001.mp4"), filepath.Join(dir, "segment-003.mp4")}
	if err := New(binary, time.Second).Concat(context.Background(), segments, out); err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if !strings.Contains(readArgs(t, argsFile), "-f concat -safe 0") {
		t.Fatal("concat demuxer not used")
	}
	if _, err := os.Stat(out + ".concat.txt"); !os.IsNotExist(err) {
		t.Fatalf("list file not cleaned up: %v", err)
	}
	if err := New(binary, time.Second).Concat(context.Background(), nil, out); err == nil {
		t.Fatal("expected error for empty segment list")
	}
}

func TestHoldLastFrame(t *testing.T) {
	binary, argsFile := stubFFmpeg(t)
	out := filepath.Join(t.TempDir(), "padded.mp4")
	if err := New(binary, time.Second).HoldLastFrame(context.Background(), "in.mp4", 2500*time.Millisecond, out); err != nil {
		t.Fatalf("HoldLastFrame: %v", err)
	}
	if !strings.Contains(readArgs(t, argsFile), "tpad=stop_mode=clone:stop_duration=2.500") {
		t.Fatalf("unexpected args %q", readArgs(t, argsFile))
	}
	if err := New(binary, time.Second).HoldLastFrame(context.Background(), "in.mp4", 0, out); err == nil {
		t.Fatal("expected error for zero extension")
	}
}

func TestRunSurfacesFailure(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(binary, []byte("#!/bin/sh\necho 'Invalid data found' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	err := New(binary, time.Second).Concat(context.Background(), []string{"a.mp4"}, filepath.Join(dir, "o.mp4"))
	if err == nil || !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}
