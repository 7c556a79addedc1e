package render

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

// Modes select the render quality tier; production clips cost more.
const (
	ModeTest       = "test"
	ModeProduction = "production"
)

const (
	defaultBaseURL     = "https://fal.run"
	defaultModel       = "fal-ai/veo3.1/fast"
	defaultAspectRatio = "9:16"
	testModeMaxSeconds = 5
	snippetLimit       = 512
)

// Config captures the hosted render endpoint settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Mode        string
	AspectRatio string
	MaxRetries  int
}

// Segment is one scene to render.
type Segment struct {
	Index   int
	Prompt  string
	Seconds int
}

// Client submits scene prompts to a fal-style synchronous endpoint and
// downloads the resulting clip.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds a render client with defaults applied.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if strings.TrimSpace(cfg.AspectRatio) == "" {
		cfg.AspectRatio = defaultAspectRatio
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeTest
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 1
	}
	c := &Client{cfg: cfg, httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mode reports the configured quality tier.
func (c *Client) Mode() string { return c.cfg.Mode }

type generateRequest struct {
	Prompt        string `json:"prompt"`
	Duration      string `json:"duration"`
	AspectRatio   string `json:"aspect_ratio"`
	GenerateAudio bool   `json:"generate_audio"`
}

type generateResponse struct {
	Video struct {
		URL string `json:"url"`
	} `json:"video"`
	Detail any `json:"detail"`
}

type statusError struct {
	op   string
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("render %s: http %d: %s", e.op, e.code, e.body)
}

// MaxSegmentSeconds is the longest clip a client in mode will request when
// the operator configured a cap of configured seconds. Test mode never goes
// above its own cap.
func MaxSegmentSeconds(mode string, configured int) int {
	test := strings.TrimSpace(mode) == "" || strings.EqualFold(strings.TrimSpace(mode), ModeTest)
	if test && (configured <= 0 || configured > testModeMaxSeconds) {
		return testModeMaxSeconds
	}
	return configured
}

// RequestSeconds is the clip length actually requested for seg. Test mode
// caps clips to keep iteration cheap.
func (c *Client) RequestSeconds(seg Segment) int {
	seconds := seg.Seconds
	if seconds <= 0 {
		seconds = 1
	}
	if c.cfg.Mode == ModeTest && seconds > testModeMaxSeconds {
		seconds = testModeMaxSeconds
	}
	return seconds
}

// Render generates seg and writes the clip to outPath. The caller bounds the
// call with its own timeout.
func (c *Client) Render(ctx context.Context, seg Segment, outPath string) error {
	if c.cfg.APIKey == "" {
		return services.Wrap(services.ErrConfiguration, "render", "generate", "api key required", nil)
	}
	if strings.TrimSpace(seg.Prompt) == "" {
		return services.Wrap(services.ErrValidation, "render", "generate", fmt.Sprintf("segment %d has empty prompt", seg.Index), nil)
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, c.cfg.Model)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "render", "generate", "build url", err)
	}
	body, err := json.Marshal(generateRequest{
		Prompt:      seg.Prompt,
		Duration:    fmt.Sprintf("%ds", c.RequestSeconds(seg)),
		AspectRatio: c.cfg.AspectRatio,
	})
	if err != nil {
		return services.Wrap(services.ErrValidation, "render", "generate", "encode request", err)
	}

	policy := services.CallPolicy{
		MaxRetries: c.cfg.MaxRetries,
		BaseDelay:  2 * time.Second,
		MaxDelay:   10 * time.Second,
		ShouldRetry: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return se.code == http.StatusTooManyRequests || se.code >= http.StatusInternalServerError
			}
			return !errors.Is(err, context.DeadlineExceeded)
		},
	}
	var videoURL string
	err = policy.Run(ctx, func(ctx context.Context) error {
		var genErr error
		videoURL, genErr = c.generate(ctx, endpoint, body)
		return genErr
	})
	if err != nil {
		return services.Wrap(services.ErrProvider, "render", "generate", fmt.Sprintf("segment %d", seg.Index), err)
	}
	if err := c.download(ctx, videoURL, outPath); err != nil {
		return services.Wrap(services.ErrProvider, "render", "download", fmt.Sprintf("segment %d", seg.Index), err)
	}
	return nil
}

func (c *Client) generate(ctx context.Context, endpoint string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Key "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", &statusError{op: "generate", code: resp.StatusCode, body: snippet(payload)}
	}
	var decoded generateResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if strings.TrimSpace(decoded.Video.URL) == "" {
		return "", fmt.Errorf("response has no video url: %s", snippet(payload))
	}
	return decoded.Video.URL, nil
}

func (c *Client) download(ctx context.Context, videoURL, outPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, snippetLimit))
		return &statusError{op: "download", code: resp.StatusCode, body: snippet(data)}
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
		return errors.New("empty clip")
	}
	return nil
}

func snippet(data []byte) string {
	s := strings.Join(strings.Fields(string(data)), " ")
	if len(s) > snippetLimit {
		return s[:snippetLimit] + "..."
	}
	return s
}
