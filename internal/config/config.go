package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	WorkDir  string `toml:"work_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Score contains the statistical pre-filter weights and pass threshold.
type Score struct {
	Threshold        float64 `toml:"threshold"`
	ViewsWeight      float64 `toml:"views_weight"`
	EngagementWeight float64 `toml:"engagement_weight"`
	RecencyWeight    float64 `toml:"recency_weight"`
	DefaultViews     int64   `toml:"default_views"`
	DefaultLikes     int64   `toml:"default_likes"`
	DefaultComments  int64   `toml:"default_comments"`
}

// Budget contains spend limits, the ledger backend, and the price table.
//
// Prices are USD per unit. apify and elevenlabs are priced per 1000 results or
// characters; every other service is priced per call.
type Budget struct {
	DailyLimit       float64            `toml:"daily_limit"`
	MonthlyLimit     float64            `toml:"monthly_limit"`
	WarningThreshold float64            `toml:"warning_threshold"`
	AbortOnExceed    bool               `toml:"abort_on_exceed"`
	Backend          string             `toml:"backend"`
	RedisAddr        string             `toml:"redis_addr"`
	RedisPassword    string             `toml:"redis_password"`
	RedisDB          int                `toml:"redis_db"`
	RedisPrefix      string             `toml:"redis_prefix"`
	Prices           map[string]float64 `toml:"prices"`
}

// LLM contains shared LLM connection settings used by the analyst and strategist.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Stage holds per-stage LLM overrides. Service names the ledger category
// charged for each call.
type Stage struct {
	Service string `toml:"service"`
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

// TTS contains narration synthesis settings.
type TTS struct {
	Primary           string `toml:"primary"`
	Fallback          string `toml:"fallback"`
	Voice             string `toml:"voice"`
	Rate              string `toml:"rate"`
	Pitch             string `toml:"pitch"`
	EdgeTTSBinary     string `toml:"edge_tts_binary"`
	ElevenLabsAPIKey  string `toml:"elevenlabs_api_key"`
	ElevenLabsVoiceID string `toml:"elevenlabs_voice_id"`
	ElevenLabsModel   string `toml:"elevenlabs_model"`
	ElevenLabsBaseURL string `toml:"elevenlabs_base_url"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
}

// Render contains settings for the hosted video segment generator.
type Render struct {
	BaseURL           string `toml:"base_url"`
	APIKey            string `toml:"api_key"`
	Model             string `toml:"model"`
	Mode              string `toml:"mode"`
	AspectRatio       string `toml:"aspect_ratio"`
	MaxSegmentSeconds int    `toml:"max_segment_seconds"`
	MaxConcurrent     int    `toml:"max_concurrent"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
}

// Mix contains final audio mix settings.
type Mix struct {
	MusicPath       string  `toml:"music_path"`
	MusicVolume     float64 `toml:"music_volume"`
	NarrationVolume float64 `toml:"narration_volume"`
	FadeSeconds     float64 `toml:"fade_seconds"`
	FFmpegBinary    string  `toml:"ffmpeg_binary"`
	FFprobeBinary   string  `toml:"ffprobe_binary"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
}

// Storage selects the artifact object store.
type Storage struct {
	Backend   string `toml:"backend"`
	Root      string `toml:"root"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Production     bool   `toml:"production"`
	Budget         bool   `toml:"budget"`
	Quarantine     bool   `toml:"quarantine"`
	Errors         bool   `toml:"errors"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	QueuePollInterval     int  `toml:"queue_poll_interval"`
	ErrorRetryInterval    int  `toml:"error_retry_interval"`
	HeartbeatInterval     int  `toml:"heartbeat_interval"`
	HeartbeatTimeout      int  `toml:"heartbeat_timeout"`
	AutoApproveStrategies bool `toml:"auto_approve_strategies"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for viralforge.
//
// Configuration sections by subsystem:
//   - Paths: database, logs, scratch space, and API bind address
//   - Score: statistical pre-filter
//   - Budget: spend limits, price table, ledger backend
//   - LLM, Analysis, Strategy: model access for the analyst and strategist
//   - TTS, Render, Mix: production providers and final assembly
//   - Storage: where artifacts are kept (filesystem or S3/MinIO)
//   - Notifications: ntfy push notification settings
//   - Workflow: daemon polling intervals and strategy approval
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Score         Score         `toml:"score"`
	Budget        Budget        `toml:"budget"`
	LLM           LLM           `toml:"llm"`
	Analysis      Stage         `toml:"analysis"`
	Strategy      Stage         `toml:"strategy"`
	TTS           TTS           `toml:"tts"`
	Render        Render        `toml:"render"`
	Mix           Mix           `toml:"mix"`
	Storage       Storage       `toml:"storage"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file next to the config, and one in the
// working directory, are loaded first without overriding variables already set.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func loadDotEnv(configDir string) error {
	candidates := []string{filepath.Join(configDir, ".env")}
	if wd, err := os.Getwd(); err == nil {
		local := filepath.Join(wd, ".env")
		if local != candidates[0] {
			candidates = append(candidates, local)
		}
	}
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("viralforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.WorkDir}
	if c.Storage.Backend == StorageFS {
		dirs = append(dirs, c.Storage.Root)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the sqlite record store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "viralforge.db")
}

// FFmpegBinary returns the ffmpeg executable used for assembly.
func (c *Config) FFmpegBinary() string {
	if c.Mix.FFmpegBinary != "" {
		return c.Mix.FFmpegBinary
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable used for duration measurement.
func (c *Config) FFprobeBinary() string {
	if c.Mix.FFprobeBinary != "" {
		return c.Mix.FFprobeBinary
	}
	return "ffprobe"
}

// EdgeTTSBinary returns the edge-tts executable name.
func (c *Config) EdgeTTSBinary() string {
	if c.TTS.EdgeTTSBinary != "" {
		return c.TTS.EdgeTTSBinary
	}
	return "edge-tts"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains resolved LLM settings for one pipeline stage.
type LLMConfig struct {
	Service        string
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the shared LLM connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}

// AnalysisLLM returns the settings for candidate analysis.
// Falls back to [llm] settings when not explicitly configured.
func (c *Config) AnalysisLLM() LLMConfig {
	return c.stageLLM(c.Analysis)
}

// StrategyLLM returns the settings for strategy generation.
// Falls back to [llm] settings when not explicitly configured.
func (c *Config) StrategyLLM() LLMConfig {
	return c.stageLLM(c.Strategy)
}

func (c *Config) stageLLM(stage Stage) LLMConfig {
	cfg := c.GetLLM()
	cfg.Service = strings.TrimSpace(stage.Service)
	if v := strings.TrimSpace(stage.APIKey); v != "" {
		cfg.APIKey = v
	}
	if v := strings.TrimSpace(stage.BaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v := strings.TrimSpace(stage.Model); v != "" {
		cfg.Model = v
	}
	return cfg
}
