package production

import (
	"log/slog"
	"path/filepath"
	"time"

	"viralforge/internal/config"
	"viralforge/internal/media/ffmpeg"
	"viralforge/internal/media/ffprobe"
	"viralforge/internal/objectstore"
	"viralforge/internal/services/render"
	"viralforge/internal/services/tts"
)

// NewFromConfig wires the configured synthesizers, render client and
// ffmpeg tooling around the given ledger and stores.
func NewFromConfig(cfg *config.Config, ledger Ledger, objects objectstore.Store, jobs JobStore, observer Observer, logger *slog.Logger) (*Orchestrator, error) {
	primary, fallback, err := tts.Configured(cfg)
	if err != nil {
		return nil, err
	}
	mixTimeout := time.Duration(cfg.Mix.TimeoutSeconds) * time.Second
	deps := Deps{
		Primary: primary,
		Renderer: render.NewClient(render.Config{
			BaseURL:     cfg.Render.BaseURL,
			APIKey:      cfg.Render.APIKey,
			Model:       cfg.Render.Model,
			Mode:        cfg.Render.Mode,
			AspectRatio: cfg.Render.AspectRatio,
		}),
		Prober:    ffprobe.New(cfg.FFprobeBinary(), mixTimeout),
		Assembler: ffmpeg.New(cfg.FFmpegBinary(), mixTimeout),
		Ledger:    ledger,
		Objects:   objects,
		Jobs:      jobs,
		Observer:  observer,
	}
	if fallback != nil {
		deps.Fallback = fallback
	}
	return New(deps, Options{
		WorkDir:           filepath.Join(cfg.Paths.WorkDir, "productions"),
		MaxSegmentSeconds: segmentCap(cfg),
		MaxConcurrent:     cfg.Render.MaxConcurrent,
		RenderTimeout:     time.Duration(cfg.Render.TimeoutSeconds) * time.Second,
		NarrationTimeout:  time.Duration(cfg.TTS.TimeoutSeconds) * time.Second,
		MusicPath:         cfg.Mix.MusicPath,
		MusicVolume:       cfg.Mix.MusicVolume,
		NarrationVolume:   cfg.Mix.NarrationVolume,
		Fade:              time.Duration(cfg.Mix.FadeSeconds * float64(time.Second)),
	}, logger)
}

// segmentCap is the per-clip limit Reconcile works with, matching what the
// render client will actually request in the configured mode.
func segmentCap(cfg *config.Config) float64 {
	return float64(render.MaxSegmentSeconds(cfg.Render.Mode, cfg.Render.MaxSegmentSeconds))
}
