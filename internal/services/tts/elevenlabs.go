package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"viralforge/internal/services"
)

const (
	defaultElevenLabsBaseURL = "https://api.elevenlabs.io"
	defaultElevenLabsModel   = "eleven_multilingual_v2"
	elevenLabsOutputFormat   = "mp3_44100_128"
)

// ElevenLabsConfig holds the settings for the hosted ElevenLabs API.
type ElevenLabsConfig struct {
	APIKey     string
	VoiceID    string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// ElevenLabs calls the ElevenLabs text-to-speech endpoint.
type ElevenLabs struct {
	cfg        ElevenLabsConfig
	httpClient *http.Client
}

// NewElevenLabs builds a client with defaults applied.
func NewElevenLabs(cfg ElevenLabsConfig) *ElevenLabs {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.VoiceID = strings.TrimSpace(cfg.VoiceID)
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultElevenLabsBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultElevenLabsModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	return &ElevenLabs{cfg: cfg, httpClient: &http.Client{}}
}

// Name implements Synthesizer.
func (e *ElevenLabs) Name() string { return ProviderElevenLabs }

type elevenLabsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("elevenlabs: http %d: %s", e.code, e.body)
}

// Synthesize implements Synthesizer.
func (e *ElevenLabs) Synthesize(ctx context.Context, text, outPath string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return services.Wrap(services.ErrValidation, "tts", "elevenlabs", "empty narration text", nil)
	}
	if e.cfg.APIKey == "" {
		return services.Wrap(services.ErrConfiguration, "tts", "elevenlabs", "api key required", nil)
	}
	if e.cfg.VoiceID == "" {
		return services.Wrap(services.ErrConfiguration, "tts", "elevenlabs", "voice id required", nil)
	}
	endpoint, err := url.JoinPath(e.cfg.BaseURL, "v1", "text-to-speech", e.cfg.VoiceID)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "tts", "elevenlabs", "build url", err)
	}
	endpoint += "?output_format=" + elevenLabsOutputFormat
	body, err := json.Marshal(elevenLabsRequest{Text: text, ModelID: e.cfg.Model})
	if err != nil {
		return services.Wrap(services.ErrValidation, "tts", "elevenlabs", "encode request", err)
	}

	policy := services.CallPolicy{
		Timeout:    e.cfg.Timeout,
		MaxRetries: e.cfg.MaxRetries,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		ShouldRetry: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return se.code == http.StatusTooManyRequests || se.code >= http.StatusInternalServerError
			}
			return true
		},
	}
	err = policy.Run(ctx, func(ctx context.Context) error {
		return e.fetch(ctx, endpoint, body, outPath)
	})
	if err != nil {
		return services.Wrap(services.ErrProvider, "tts", "elevenlabs", "synthesis failed", err)
	}
	return nil
}

func (e *ElevenLabs) fetch(ctx context.Context, endpoint string, body []byte, outPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", e.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(snippet))}
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	written, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return closeErr
	}
	if written == 0 {
		return errors.New("elevenlabs: empty audio body")
	}
	return nil
}
