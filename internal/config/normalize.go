package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeScore()
	c.normalizeBudget()
	c.normalizeLLM()
	c.normalizeTTS()
	c.normalizeRender()
	if err := c.normalizeMix(); err != nil {
		return err
	}
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("VIRALFORGE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeScore() {
	if c.Score.DefaultViews <= 0 {
		c.Score.DefaultViews = defaultBaselineViews
	}
	if c.Score.DefaultLikes <= 0 {
		c.Score.DefaultLikes = defaultBaselineLikes
	}
	if c.Score.DefaultComments <= 0 {
		c.Score.DefaultComments = defaultBaselineComments
	}
}

func (c *Config) normalizeBudget() {
	c.Budget.Backend = strings.ToLower(strings.TrimSpace(c.Budget.Backend))
	if c.Budget.Backend == "" {
		c.Budget.Backend = BudgetBackendSQLite
	}
	if value, ok := os.LookupEnv("VIRALFORGE_REDIS_ADDR"); ok && strings.TrimSpace(value) != "" {
		c.Budget.RedisAddr = strings.TrimSpace(value)
	}
	c.Budget.RedisAddr = strings.TrimSpace(c.Budget.RedisAddr)
	if c.Budget.RedisAddr == "" {
		c.Budget.RedisAddr = defaultRedisAddr
	}
	if strings.TrimSpace(c.Budget.RedisPrefix) == "" {
		c.Budget.RedisPrefix = defaultRedisPrefix
	}
	normalized := DefaultPrices()
	for service, price := range c.Budget.Prices {
		key := strings.ToLower(strings.TrimSpace(service))
		if key == "" {
			continue
		}
		normalized[key] = price
	}
	c.Budget.Prices = normalized
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if strings.TrimSpace(c.LLM.Referer) == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	if strings.TrimSpace(c.LLM.Title) == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.Analysis.Service = strings.ToLower(strings.TrimSpace(c.Analysis.Service))
	if c.Analysis.Service == "" {
		c.Analysis.Service = defaultAnalysisService
	}
	c.Strategy.Service = strings.ToLower(strings.TrimSpace(c.Strategy.Service))
	if c.Strategy.Service == "" {
		c.Strategy.Service = defaultStrategyService
	}
}

func (c *Config) normalizeTTS() {
	c.TTS.Primary = strings.ToLower(strings.TrimSpace(c.TTS.Primary))
	if c.TTS.Primary == "" {
		c.TTS.Primary = defaultTTSPrimary
	}
	c.TTS.Fallback = strings.ToLower(strings.TrimSpace(c.TTS.Fallback))
	if c.TTS.Fallback == c.TTS.Primary {
		c.TTS.Fallback = ""
	}
	if strings.TrimSpace(c.TTS.Voice) == "" {
		c.TTS.Voice = defaultTTSVoice
	}
	if strings.TrimSpace(c.TTS.Rate) == "" {
		c.TTS.Rate = defaultTTSRate
	}
	if strings.TrimSpace(c.TTS.Pitch) == "" {
		c.TTS.Pitch = defaultTTSPitch
	}
	c.TTS.ElevenLabsAPIKey = strings.TrimSpace(c.TTS.ElevenLabsAPIKey)
	if c.TTS.ElevenLabsAPIKey == "" {
		if value, ok := os.LookupEnv("ELEVENLABS_API_KEY"); ok {
			c.TTS.ElevenLabsAPIKey = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.TTS.ElevenLabsVoiceID) == "" {
		c.TTS.ElevenLabsVoiceID = defaultElevenLabsVoiceID
	}
	if strings.TrimSpace(c.TTS.ElevenLabsModel) == "" {
		c.TTS.ElevenLabsModel = defaultElevenLabsModel
	}
	c.TTS.ElevenLabsBaseURL = strings.TrimRight(strings.TrimSpace(c.TTS.ElevenLabsBaseURL), "/")
	if c.TTS.ElevenLabsBaseURL == "" {
		c.TTS.ElevenLabsBaseURL = defaultElevenLabsBaseURL
	}
	if c.TTS.TimeoutSeconds <= 0 {
		c.TTS.TimeoutSeconds = defaultTTSTimeoutSeconds
	}
}

func (c *Config) normalizeRender() {
	c.Render.APIKey = strings.TrimSpace(c.Render.APIKey)
	if c.Render.APIKey == "" {
		if value, ok := os.LookupEnv("FAL_KEY"); ok {
			c.Render.APIKey = strings.TrimSpace(value)
		}
	}
	c.Render.BaseURL = strings.TrimRight(strings.TrimSpace(c.Render.BaseURL), "/")
	if c.Render.BaseURL == "" {
		c.Render.BaseURL = defaultRenderBaseURL
	}
	if strings.TrimSpace(c.Render.Model) == "" {
		c.Render.Model = defaultRenderModel
	}
	c.Render.Mode = strings.ToLower(strings.TrimSpace(c.Render.Mode))
	if c.Render.Mode == "" {
		c.Render.Mode = defaultRenderMode
	}
	if strings.TrimSpace(c.Render.AspectRatio) == "" {
		c.Render.AspectRatio = defaultRenderAspectRatio
	}
}

func (c *Config) normalizeMix() error {
	c.Mix.MusicPath = strings.TrimSpace(c.Mix.MusicPath)
	if c.Mix.MusicPath != "" {
		expanded, err := expandPath(c.Mix.MusicPath)
		if err != nil {
			return fmt.Errorf("mix.music_path: %w", err)
		}
		c.Mix.MusicPath = expanded
	}
	c.Mix.FFmpegBinary = strings.TrimSpace(c.Mix.FFmpegBinary)
	c.Mix.FFprobeBinary = strings.TrimSpace(c.Mix.FFprobeBinary)
	if c.Mix.TimeoutSeconds <= 0 {
		c.Mix.TimeoutSeconds = defaultMixTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageFS
	}
	if strings.TrimSpace(c.Storage.Root) == "" {
		c.Storage.Root = defaultArtifactsDir
	}
	var err error
	if c.Storage.Root, err = expandPath(c.Storage.Root); err != nil {
		return fmt.Errorf("storage.root: %w", err)
	}
	c.Storage.Prefix = strings.Trim(strings.TrimSpace(c.Storage.Prefix), "/")
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	if strings.TrimSpace(c.Storage.Region) == "" {
		c.Storage.Region = defaultStorageRegion
	}
	if c.Storage.AccessKey == "" {
		if value, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok {
			c.Storage.AccessKey = strings.TrimSpace(value)
		}
	}
	if c.Storage.SecretKey == "" {
		if value, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok {
			c.Storage.SecretKey = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeWorkflow() {
	if value, ok := os.LookupEnv("VIRALFORGE_AUTO_APPROVE"); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			c.Workflow.AutoApproveStrategies = parsed
		}
	}
}
