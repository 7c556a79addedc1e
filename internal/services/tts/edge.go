package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"viralforge/internal/services"
)

// EdgeTTS shells out to the edge-tts command line client.
type EdgeTTS struct {
	Binary  string
	Voice   string
	Rate    string
	Pitch   string
	Timeout time.Duration
}

// Name implements Synthesizer.
func (e *EdgeTTS) Name() string { return ProviderEdgeTTS }

// Synthesize implements Synthesizer.
func (e *EdgeTTS) Synthesize(ctx context.Context, text, outPath string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return services.Wrap(services.ErrValidation, "tts", "edge-tts", "empty narration text", nil)
	}
	binary := strings.TrimSpace(e.Binary)
	if binary == "" {
		binary = "edge-tts"
	}
	args := []string{"--text", text, "--write-media", outPath}
	if e.Voice != "" {
		args = append(args, "--voice", e.Voice)
	}
	// edge-tts parses "-10%" as a flag unless it is attached with "=".
	if e.Rate != "" {
		args = append(args, "--rate="+e.Rate)
	}
	if e.Pitch != "" {
		args = append(args, "--pitch="+e.Pitch)
	}

	policy := services.CallPolicy{Timeout: e.Timeout}
	err := policy.Run(ctx, func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, binary, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		cmd.WaitDelay = 2 * time.Second
		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return services.Wrap(services.ErrConfiguration, "tts", "edge-tts", "binary not found: "+binary, err)
		}
		return services.Wrap(services.ErrProvider, "tts", "edge-tts", "synthesis failed", err)
	}
	if info, statErr := os.Stat(outPath); statErr != nil || info.Size() == 0 {
		return services.Wrap(services.ErrProvider, "tts", "edge-tts", "no audio written", statErr)
	}
	return nil
}
