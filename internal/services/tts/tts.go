package tts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"viralforge/internal/config"
	"viralforge/internal/services"
)

// Provider names, matching the ledger service categories.
const (
	ProviderEdgeTTS    = "edge-tts"
	ProviderElevenLabs = "elevenlabs"
)

// DefaultTimeout bounds one synthesis call.
const DefaultTimeout = 2 * time.Minute

// Synthesizer turns narration text into an audio file at outPath.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text, outPath string) error
}

// New builds the synthesizer named provider from cfg.
func New(provider string, cfg *config.Config) (Synthesizer, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "tts", "new", "config is nil", nil)
	}
	timeout := DefaultTimeout
	if cfg.TTS.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TTS.TimeoutSeconds) * time.Second
	}
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderEdgeTTS:
		return &EdgeTTS{
			Binary:  cfg.EdgeTTSBinary(),
			Voice:   cfg.TTS.Voice,
			Rate:    cfg.TTS.Rate,
			Pitch:   cfg.TTS.Pitch,
			Timeout: timeout,
		}, nil
	case ProviderElevenLabs:
		return NewElevenLabs(ElevenLabsConfig{
			APIKey:  cfg.TTS.ElevenLabsAPIKey,
			VoiceID: cfg.TTS.ElevenLabsVoiceID,
			Model:   cfg.TTS.ElevenLabsModel,
			BaseURL: cfg.TTS.ElevenLabsBaseURL,
			Timeout: timeout,
		}), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "tts", "new", fmt.Sprintf("unknown provider %q", provider), nil)
	}
}

// Configured returns the primary synthesizer and, when set, the fallback.
func Configured(cfg *config.Config) (Synthesizer, Synthesizer, error) {
	primary, err := New(cfg.TTS.Primary, cfg)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(cfg.TTS.Fallback) == "" {
		return primary, nil, nil
	}
	fallback, err := New(cfg.TTS.Fallback, cfg)
	if err != nil {
		return nil, nil, err
	}
	return primary, fallback, nil
}
