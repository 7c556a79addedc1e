package config

const (
	defaultConfigPath                = "~/.config/viralforge/config.toml"
	defaultDataDir                   = "~/.local/share/viralforge"
	defaultLogDir                    = "~/.local/share/viralforge/logs"
	defaultWorkDir                   = "~/.local/share/viralforge/work"
	defaultArtifactsDir              = "~/.local/share/viralforge/artifacts"
	defaultAPIBind                   = "127.0.0.1:7490"
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultScoreThreshold            = 0.6
	defaultViewsWeight               = 0.4
	defaultEngagementWeight          = 0.4
	defaultRecencyWeight             = 0.2
	defaultBaselineViews             = 50000
	defaultBaselineLikes             = 5000
	defaultBaselineComments          = 500
	defaultDailyLimit                = 20.00
	defaultMonthlyLimit              = 500.00
	defaultWarningThreshold          = 0.8
	defaultRedisAddr                 = "127.0.0.1:6379"
	defaultRedisPrefix               = "viralforge:budget"
	defaultLLMBaseURL                = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel                  = "google/gemini-2.5-flash"
	defaultLLMReferer                = "https://github.com/viralforge/viralforge"
	defaultLLMTitle                  = "viralforge"
	defaultLLMTimeoutSeconds         = 90
	defaultAnalysisService           = "gemini"
	defaultStrategyService           = "openai"
	defaultStrategyModel             = "openai/gpt-4o"
	defaultTTSPrimary                = "edge-tts"
	defaultTTSFallback               = "elevenlabs"
	defaultTTSVoice                  = "pt-BR-FranciscaNeural"
	defaultTTSRate                   = "+0%"
	defaultTTSPitch                  = "+0Hz"
	defaultElevenLabsVoiceID         = "pNInz6obpgDQGcFmaJgB"
	defaultElevenLabsModel           = "eleven_multilingual_v2"
	defaultElevenLabsBaseURL         = "https://api.elevenlabs.io"
	defaultTTSTimeoutSeconds         = 120
	defaultRenderBaseURL             = "https://fal.run"
	defaultRenderModel               = "fal-ai/veo3.1/fast"
	defaultRenderMode                = RenderModeTest
	defaultRenderAspectRatio         = "9:16"
	defaultRenderMaxSegmentSeconds   = 8
	defaultRenderMaxConcurrent       = 2
	defaultRenderTimeoutSeconds      = 600
	defaultMusicVolume               = 0.2
	defaultNarrationVolume           = 1.0
	defaultFadeSeconds               = 2.0
	defaultMixTimeoutSeconds         = 300
	defaultStorageRegion             = "us-east-1"
	defaultStorageBucket             = "viral-videos"
	defaultWorkflowPollInterval      = 5
	defaultWorkflowErrorRetry        = 10
	defaultWorkflowHeartbeatInterval = 15
	defaultWorkflowHeartbeatTimeout  = 120
)

// Ledger backend names.
const (
	BudgetBackendSQLite = "sqlite"
	BudgetBackendRedis  = "redis"
)

// Storage backend names.
const (
	StorageFS = "fs"
	StorageS3 = "s3"
)

// Render modes select the per-clip price tier.
const (
	RenderModeTest       = "test"
	RenderModeProduction = "production"
)

// DefaultPrices returns the built-in price table in USD per unit.
func DefaultPrices() map[string]float64 {
	return map[string]float64{
		"apify":          2.30,
		"gemini":         0.002,
		"claude":         0.005,
		"openai":         0.01,
		"veo_test":       0.25,
		"veo_production": 0.50,
		"elevenlabs":     0.30,
		"edge-tts":       0,
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			WorkDir: defaultWorkDir,
			APIBind: defaultAPIBind,
		},
		Score: Score{
			Threshold:        defaultScoreThreshold,
			ViewsWeight:      defaultViewsWeight,
			EngagementWeight: defaultEngagementWeight,
			RecencyWeight:    defaultRecencyWeight,
			DefaultViews:     defaultBaselineViews,
			DefaultLikes:     defaultBaselineLikes,
			DefaultComments:  defaultBaselineComments,
		},
		Budget: Budget{
			DailyLimit:       defaultDailyLimit,
			MonthlyLimit:     defaultMonthlyLimit,
			WarningThreshold: defaultWarningThreshold,
			AbortOnExceed:    true,
			Backend:          BudgetBackendSQLite,
			RedisAddr:        defaultRedisAddr,
			RedisPrefix:      defaultRedisPrefix,
			Prices:           DefaultPrices(),
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Analysis: Stage{Service: defaultAnalysisService},
		Strategy: Stage{Service: defaultStrategyService, Model: defaultStrategyModel},
		TTS: TTS{
			Primary:           defaultTTSPrimary,
			Fallback:          defaultTTSFallback,
			Voice:             defaultTTSVoice,
			Rate:              defaultTTSRate,
			Pitch:             defaultTTSPitch,
			ElevenLabsVoiceID: defaultElevenLabsVoiceID,
			ElevenLabsModel:   defaultElevenLabsModel,
			ElevenLabsBaseURL: defaultElevenLabsBaseURL,
			TimeoutSeconds:    defaultTTSTimeoutSeconds,
		},
		Render: Render{
			BaseURL:           defaultRenderBaseURL,
			Model:             defaultRenderModel,
			Mode:              defaultRenderMode,
			AspectRatio:       defaultRenderAspectRatio,
			MaxSegmentSeconds: defaultRenderMaxSegmentSeconds,
			MaxConcurrent:     defaultRenderMaxConcurrent,
			TimeoutSeconds:    defaultRenderTimeoutSeconds,
		},
		Mix: Mix{
			MusicVolume:     defaultMusicVolume,
			NarrationVolume: defaultNarrationVolume,
			FadeSeconds:     defaultFadeSeconds,
			TimeoutSeconds:  defaultMixTimeoutSeconds,
		},
		Storage: Storage{
			Backend: StorageFS,
			Root:    defaultArtifactsDir,
			Bucket:  defaultStorageBucket,
			Region:  defaultStorageRegion,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Production:     true,
			Budget:         true,
			Quarantine:     true,
			Errors:         true,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultWorkflowPollInterval,
			ErrorRetryInterval: defaultWorkflowErrorRetry,
			HeartbeatInterval:  defaultWorkflowHeartbeatInterval,
			HeartbeatTimeout:   defaultWorkflowHeartbeatTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
