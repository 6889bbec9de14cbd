// Package config provides configuration management for the editoria agent.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultPort      = 8787
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
	DefaultDataDir   = ".editoria"
	// An in-memory database keeps nothing beyond the run.
	DefaultDBPath = ":memory:"

	DefaultMaxConcurrentJobs = 2
	DefaultSnapThresholdMS   = 2
	DefaultAlignToleranceS   = 5.0
	DefaultDriftThresholdS   = 20.0

	DefaultOpenAIBaseURL   = "https://api.openai.com/v1"
	DefaultOpenAIModel     = "gpt-4o-mini"
	DefaultWhisperModel    = "whisper-1"
	DefaultRateLimitRPM    = 50
	DefaultChunkSeconds    = 600
	DefaultExtractTimeoutS = 1800
	DefaultProbeTimeoutS   = 60
	DefaultGuideProfile    = "geral"

	// Environment variable names
	EnvPort              = "EDITORIA_PORT"
	EnvLogLevel          = "EDITORIA_LOG_LEVEL"
	EnvLogFormat         = "EDITORIA_LOG_FORMAT"
	EnvDataDir           = "EDITORIA_DATA_DIR"
	EnvWorkDir           = "EDITORIA_WORK_DIR"
	EnvDBPath            = "EDITORIA_DB_PATH"
	EnvMaxConcurrentJobs = "EDITORIA_MAX_CONCURRENT_JOBS"
	EnvSnapThresholdMS   = "EDITORIA_SNAP_THRESHOLD_MS"
	EnvAlignToleranceS   = "EDITORIA_ALIGN_TOLERANCE_S"
	EnvDriftThresholdS   = "EDITORIA_DRIFT_THRESHOLD_S"
	EnvOpenAIAPIKey      = "EDITORIA_OPENAI_API_KEY"
	EnvOpenAIBaseURL     = "EDITORIA_OPENAI_BASE_URL"
	EnvOpenAIModel       = "EDITORIA_OPENAI_MODEL"
	EnvWhisperModel      = "EDITORIA_WHISPER_MODEL"
	EnvRateLimitRPM      = "EDITORIA_AI_RATE_LIMIT_RPM"
	EnvChunkSeconds      = "EDITORIA_TRANSCRIBE_CHUNK_S"
	EnvFFmpegPath        = "EDITORIA_FFMPEG_PATH"
	EnvFFprobePath       = "EDITORIA_FFPROBE_PATH"
	EnvExtractTimeoutS   = "EDITORIA_EXTRACT_TIMEOUT_S"
	EnvProbeTimeoutS     = "EDITORIA_PROBE_TIMEOUT_S"
	EnvGuideProfile      = "EDITORIA_GUIDE_PROFILE"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	LogFormat() string
	DataDir() string
	WorkDir() string
	DBPath() string
	MaxConcurrentJobs() int
	SnapThreshold() time.Duration
	AlignTolerance() time.Duration
	DriftThreshold() time.Duration
	OpenAIAPIKey() string
	OpenAIBaseURL() string
	OpenAIModel() string
	WhisperModel() string
	RateLimitRPM() int
	ChunkSeconds() float64
	FFmpegPath() string
	FFprobePath() string
	ExtractTimeout() time.Duration
	ProbeTimeout() time.Duration
	GuideProfile() string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port      int
	logLevel  string
	logFormat string
	dataDir   string
	workDir   string
	dbPath    string

	maxConcurrentJobs int
	snapThresholdMS   int
	alignToleranceS   float64
	driftThresholdS   float64

	openAIAPIKey  string
	openAIBaseURL string
	openAIModel   string
	whisperModel  string
	rateLimitRPM  int
	chunkSeconds  int

	ffmpegPath      string
	ffprobePath     string
	extractTimeoutS int
	probeTimeoutS   int
	guideProfile    string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:              DefaultPort,
		logLevel:          DefaultLogLevel,
		logFormat:         DefaultLogFormat,
		dataDir:           defaultDataDir(),
		dbPath:            DefaultDBPath,
		maxConcurrentJobs: DefaultMaxConcurrentJobs,
		snapThresholdMS:   DefaultSnapThresholdMS,
		alignToleranceS:   DefaultAlignToleranceS,
		driftThresholdS:   DefaultDriftThresholdS,
		openAIBaseURL:     DefaultOpenAIBaseURL,
		openAIModel:       DefaultOpenAIModel,
		whisperModel:      DefaultWhisperModel,
		rateLimitRPM:      DefaultRateLimitRPM,
		chunkSeconds:      DefaultChunkSeconds,
		extractTimeoutS:   DefaultExtractTimeoutS,
		probeTimeoutS:     DefaultProbeTimeoutS,
		guideProfile:      DefaultGuideProfile,
	}

	if err := envInt(EnvPort, &cfg.port, 1, 65535); err != nil {
		return nil, err
	}
	ints := []struct {
		name string
		dst  *int
		min  int
	}{
		{EnvMaxConcurrentJobs, &cfg.maxConcurrentJobs, 1},
		{EnvSnapThresholdMS, &cfg.snapThresholdMS, 0},
		{EnvRateLimitRPM, &cfg.rateLimitRPM, 1},
		{EnvChunkSeconds, &cfg.chunkSeconds, 10},
		{EnvExtractTimeoutS, &cfg.extractTimeoutS, 1},
		{EnvProbeTimeoutS, &cfg.probeTimeoutS, 1},
	}
	for _, v := range ints {
		if err := envInt(v.name, v.dst, v.min, 0); err != nil {
			return nil, err
		}
	}
	if err := envFloat(EnvAlignToleranceS, &cfg.alignToleranceS); err != nil {
		return nil, err
	}
	if err := envFloat(EnvDriftThresholdS, &cfg.driftThresholdS); err != nil {
		return nil, err
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{EnvLogLevel, &cfg.logLevel},
		{EnvLogFormat, &cfg.logFormat},
		{EnvDataDir, &cfg.dataDir},
		{EnvWorkDir, &cfg.workDir},
		{EnvDBPath, &cfg.dbPath},
		{EnvOpenAIAPIKey, &cfg.openAIAPIKey},
		{EnvOpenAIBaseURL, &cfg.openAIBaseURL},
		{EnvOpenAIModel, &cfg.openAIModel},
		{EnvWhisperModel, &cfg.whisperModel},
		{EnvFFmpegPath, &cfg.ffmpegPath},
		{EnvFFprobePath, &cfg.ffprobePath},
		{EnvGuideProfile, &cfg.guideProfile},
	}
	for _, v := range strs {
		if s := os.Getenv(v.name); s != "" {
			*v.dst = s
		}
	}

	return cfg, nil
}

// envInt overrides dst from the environment. max <= 0 means unbounded.
func envInt(name string, dst *int, min, max int) error {
	s := os.Getenv(name)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if n < min || (max > 0 && n > max) {
		if max > 0 {
			return fmt.Errorf("invalid %s: must be between %d and %d", name, min, max)
		}
		return fmt.Errorf("invalid %s: must be at least %d", name, min)
	}
	*dst = n
	return nil
}

func envFloat(name string, dst *float64) error {
	s := os.Getenv(name)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if f < 0 {
		return fmt.Errorf("invalid %s: must not be negative", name)
	}
	*dst = f
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// LogFormat returns json or text.
func (c *EnvConfig) LogFormat() string {
	return c.logFormat
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// WorkDir is where per-job artifacts are written; defaults to <data>/work.
func (c *EnvConfig) WorkDir() string {
	if c.workDir != "" {
		return c.workDir
	}
	return filepath.Join(c.dataDir, "work")
}

// DBPath returns the SQLite database path, ":memory:" unless overridden.
func (c *EnvConfig) DBPath() string {
	return c.dbPath
}

func (c *EnvConfig) MaxConcurrentJobs() int {
	return c.maxConcurrentJobs
}

func (c *EnvConfig) SnapThreshold() time.Duration {
	return time.Duration(c.snapThresholdMS) * time.Millisecond
}

func (c *EnvConfig) AlignTolerance() time.Duration {
	return seconds(c.alignToleranceS)
}

func (c *EnvConfig) DriftThreshold() time.Duration {
	return seconds(c.driftThresholdS)
}

func (c *EnvConfig) OpenAIAPIKey() string {
	return c.openAIAPIKey
}

func (c *EnvConfig) OpenAIBaseURL() string {
	return c.openAIBaseURL
}

func (c *EnvConfig) OpenAIModel() string {
	return c.openAIModel
}

func (c *EnvConfig) WhisperModel() string {
	return c.whisperModel
}

func (c *EnvConfig) RateLimitRPM() int {
	return c.rateLimitRPM
}

func (c *EnvConfig) ChunkSeconds() float64 {
	return float64(c.chunkSeconds)
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) ExtractTimeout() time.Duration {
	return time.Duration(c.extractTimeoutS) * time.Second
}

func (c *EnvConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.probeTimeoutS) * time.Second
}

func (c *EnvConfig) GuideProfile() string {
	return c.guideProfile
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
