package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateScore(); err != nil {
		return err
	}
	if err := c.validateBudget(); err != nil {
		return err
	}
	if err := c.validateTTS(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateMix(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateScore() error {
	if c.Score.Threshold < 0 || c.Score.Threshold > 1 {
		return errors.New("score.threshold must be between 0 and 1")
	}
	weights := map[string]float64{
		"score.views_weight":      c.Score.ViewsWeight,
		"score.engagement_weight": c.Score.EngagementWeight,
		"score.recency_weight":    c.Score.RecencyWeight,
	}
	for name, value := range weights {
		if value < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	sum := c.Score.ViewsWeight + c.Score.EngagementWeight + c.Score.RecencyWeight
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("score weights must sum to 1 (got %.4f)", sum)
	}
	return nil
}

func (c *Config) validateBudget() error {
	if c.Budget.DailyLimit <= 0 {
		return errors.New("budget.daily_limit must be positive")
	}
	if c.Budget.MonthlyLimit <= 0 {
		return errors.New("budget.monthly_limit must be positive")
	}
	if c.Budget.WarningThreshold <= 0 || c.Budget.WarningThreshold > 1 {
		return errors.New("budget.warning_threshold must be in (0, 1]")
	}
	switch c.Budget.Backend {
	case BudgetBackendSQLite, BudgetBackendRedis:
	default:
		return fmt.Errorf("budget.backend must be %q or %q (got %q)", BudgetBackendSQLite, BudgetBackendRedis, c.Budget.Backend)
	}
	for service, price := range c.Budget.Prices {
		if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
			return fmt.Errorf("budget.prices.%s must be a non-negative number", service)
		}
	}
	return nil
}

func (c *Config) validateTTS() error {
	valid := map[string]bool{"edge-tts": true, "elevenlabs": true}
	if !valid[c.TTS.Primary] {
		return fmt.Errorf("tts.primary must be edge-tts or elevenlabs (got %q)", c.TTS.Primary)
	}
	if c.TTS.Fallback != "" && !valid[c.TTS.Fallback] {
		return fmt.Errorf("tts.fallback must be edge-tts, elevenlabs, or empty (got %q)", c.TTS.Fallback)
	}
	if c.TTS.Primary == "elevenlabs" && c.TTS.ElevenLabsAPIKey == "" {
		return errors.New("tts.elevenlabs_api_key is required when tts.primary is elevenlabs (or set ELEVENLABS_API_KEY)")
	}
	return nil
}

func (c *Config) validateRender() error {
	switch c.Render.Mode {
	case RenderModeTest, RenderModeProduction:
	default:
		return fmt.Errorf("render.mode must be %q or %q (got %q)", RenderModeTest, RenderModeProduction, c.Render.Mode)
	}
	return ensurePositiveMap(map[string]int{
		"render.max_segment_seconds": c.Render.MaxSegmentSeconds,
		"render.max_concurrent":      c.Render.MaxConcurrent,
		"render.timeout_seconds":     c.Render.TimeoutSeconds,
	})
}

func (c *Config) validateMix() error {
	if c.Mix.MusicVolume < 0 || c.Mix.NarrationVolume < 0 {
		return errors.New("mix volumes must not be negative")
	}
	if c.Mix.FadeSeconds < 0 {
		return errors.New("mix.fade_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageFS:
		if strings.TrimSpace(c.Storage.Root) == "" {
			return errors.New("storage.root must be set when storage.backend is fs")
		}
	case StorageS3:
		if strings.TrimSpace(c.Storage.Bucket) == "" {
			return errors.New("storage.bucket must be set when storage.backend is s3")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q (got %q)", StorageFS, StorageS3, c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.heartbeat_interval":   c.Workflow.HeartbeatInterval,
		"workflow.heartbeat_timeout":    c.Workflow.HeartbeatTimeout,
	})
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
