package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds a single ffmpeg invocation.
const DefaultTimeout = 10 * time.Minute

const stderrTail = 600

// Runner invokes ffmpeg with a per-call timeout.
type Runner struct {
	Binary  string
	Timeout time.Duration
}

// New returns a runner for binary. Zero timeout means DefaultTimeout.
func New(binary string, timeout time.Duration) *Runner {
	return &Runner{Binary: binary, Timeout: timeout}
}

// Concat joins segments, in order, into out using the concat demuxer. The
// segments must share codec parameters, which holds for clips from one
// render model.
func (r *Runner) Concat(ctx context.Context, segments []string, out string) error {
	if len(segments) == 0 {
		return errors.New("ffmpeg concat: no segments")
	}
	var list strings.Builder
	for _, seg := range segments {
		abs, err := filepath.Abs(seg)
		if err != nil {
			return fmt.Errorf("ffmpeg concat: resolve %s: %w", seg, err)
		}
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	listPath := out + ".concat.txt"
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return fmt.Errorf("ffmpeg concat: write list: %w", err)
	}
	defer os.Remove(listPath)
	return r.run(ctx, "concat",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-c", "copy", out)
}

// HoldLastFrame extends in by cloning its last frame for extra, writing out.
// Source audio is dropped; narration is added by Mix.
func (r *Runner) HoldLastFrame(ctx context.Context, in string, extra time.Duration, out string) error {
	if extra <= 0 {
		return fmt.Errorf("ffmpeg tpad: non-positive extension %s", extra)
	}
	filter := "tpad=stop_mode=clone:stop_duration=" + seconds(extra)
	return r.run(ctx, "tpad",
		"-i", in,
		"-vf", filter,
		"-an", "-c:v", "libx264", "-pix_fmt", "yuv420p",
		out)
}

// MixInput describes the final audio mix over an assembled video.
type MixInput struct {
	Video           string
	Narration       string
	Music           string
	Duration        time.Duration
	NarrationVolume float64
	MusicVolume     float64
	Fade            time.Duration
}

// Mix lays narration, and a looped music bed when Music is set, over the
// video track. The music fades out over the final Fade of Duration.
func (r *Runner) Mix(ctx context.Context, in MixInput, out string) error {
	if in.Video == "" || in.Narration == "" {
		return errors.New("ffmpeg mix: video and narration are required")
	}
	if in.Duration <= 0 {
		return errors.New("ffmpeg mix: duration is required")
	}
	args := []string{"-i", in.Video, "-i", in.Narration}
	var filter string
	if in.Music == "" {
		filter = fmt.Sprintf("[1:a]volume=%s[a]", volume(in.NarrationVolume))
	} else {
		args = append(args, "-stream_loop", "-1", "-i", in.Music)
		filter = MixFilter(in)
	}
	args = append(args,
		"-filter_complex", filter,
		"-map", "0:v", "-map", "[a]",
		"-c:v", "copy", "-c:a", "aac", "-b:a", "192k",
		"-t", seconds(in.Duration),
		out)
	return r.run(ctx, "mix", args...)
}

// MixFilter renders the filter graph used when a music bed is present.
func MixFilter(in MixInput) string {
	fade := in.Fade
	if fade > in.Duration {
		fade = in.Duration
	}
	start := in.Duration - fade
	return fmt.Sprintf(
		"[1:a]volume=%s[n];[2:a]volume=%s,afade=t=out:st=%s:d=%s[m];[n][m]amix=inputs=2:duration=longest:dropout_transition=0:normalize=0[a]",
		volume(in.NarrationVolume), volume(in.MusicVolume), seconds(start), seconds(fade),
	)
}

func (r *Runner) run(ctx context.Context, op string, args ...string) error {
	binary := "ffmpeg"
	timeout := DefaultTimeout
	if r != nil {
		if b := strings.TrimSpace(r.Binary); b != "" {
			binary = b
		}
		if r.Timeout > 0 {
			timeout = r.Timeout
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	full := append([]string{"-hide_banner", "-nostdin", "-y", "-loglevel", "error"}, args...)
	cmd := exec.CommandContext(ctx, binary, full...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg %s: %w", op, ctx.Err())
		}
		return fmt.Errorf("ffmpeg %s: %w: %s", op, err, tail(stderr.String()))
	}
	return nil
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func volume(v float64) string {
	if v < 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		return "..." + s[len(s)-stderrTail:]
	}
	return s
}
