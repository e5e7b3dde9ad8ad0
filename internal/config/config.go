package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	// Engine process and analysis defaults
	Engine EngineConfig `json:"engine"`

	// HTTP server and static files
	Server ServerConfig `json:"server"`

	Logging LoggingConfig `json:"logging"`

	RateLimit RateLimitConfig `json:"rateLimit"`

	Cache CacheConfig `json:"cache"`
}

// EngineConfig describes how the GTP engine is launched and driven.
// Durations are in seconds.
type EngineConfig struct {
	BinaryPath string   `json:"binaryPath"`
	ModelPath  string   `json:"modelPath"`
	ConfigPath string   `json:"configPath"`
	ExtraArgs  []string `json:"extraArgs,omitempty"`

	AutoStart   bool `json:"autoStart"`
	AutoRestart bool `json:"autoRestart"`

	Komi         float64 `json:"komi"`
	MaxVisits    int     `json:"maxVisits"`
	AnalyzeDepth int     `json:"analyzeDepth"`

	CommandTimeout   float64 `json:"commandTimeout"`
	StartupTimeout   float64 `json:"startupTimeout"`
	AnalysisTime     float64 `json:"analysisTime"`
	AnalysisInterval int     `json:"analysisInterval"` // centiseconds between analysis lines
	StopGrace        float64 `json:"stopGrace"`

	RestartBackoff      float64 `json:"restartBackoff"`
	MaxRestartBackoff   float64 `json:"maxRestartBackoff"`
	HealthCheckInterval float64 `json:"healthCheckInterval"`

	QueueSize int `json:"queueSize"`
}

type ServerConfig struct {
	Name    string `json:"name"`
	Version string `json:"version"`

	Addr      string `json:"addr"`
	StaticDir string `json:"staticDir"`

	ReadTimeout     float64 `json:"readTimeout"`
	WriteTimeout    float64 `json:"writeTimeout"`
	ShutdownTimeout float64 `json:"shutdownTimeout"`
	MaxBodyBytes    int64   `json:"maxBodyBytes"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Prefix string `json:"prefix"`
}

type RateLimitConfig struct {
	Enabled        bool           `json:"enabled"`
	RequestsPerMin int            `json:"requestsPerMin"`
	BurstSize      int            `json:"burstSize"`
	PerRouteLimits map[string]int `json:"perRouteLimits"`
	ClientTTL      float64        `json:"clientTTL"`
}

type CacheConfig struct {
	Enabled      bool    `json:"enabled"`
	MaxItems     int     `json:"maxItems"`
	MaxSizeBytes int64   `json:"maxSizeBytes"`
	TTLSeconds   float64 `json:"ttlSeconds"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			BinaryPath:          "katago",
			AutoStart:           true,
			AutoRestart:         true,
			Komi:                6.5,
			MaxVisits:           400,
			AnalyzeDepth:        10,
			CommandTimeout:      30,
			StartupTimeout:      60,
			AnalysisTime:        2,
			AnalysisInterval:    10,
			StopGrace:           5,
			RestartBackoff:      1,
			MaxRestartBackoff:   30,
			HealthCheckInterval: 30,
			QueueSize:           16,
		},
		Server: ServerConfig{
			Name:            "katago-web",
			Version:         "0.1.0",
			Addr:            "localhost:8000",
			StaticDir:       ".",
			ReadTimeout:     15,
			WriteTimeout:    120,
			ShutdownTimeout: 10,
			MaxBodyBytes:    1 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Prefix: "[katago-web] ",
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 120,
			BurstSize:      20,
			PerRouteLimits: map[string]int{
				"/api/katago/analyze":          60,
				"/api/katago/analyze-position": 60,
			},
			ClientTTL: 600,
		},
		Cache: CacheConfig{
			Enabled:      true,
			MaxItems:     256,
			MaxSizeBytes: 16 << 20,
			TTLSeconds:   3600,
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := Default()

	// Load from JSON file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath) // #nosec G304 -- operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KATAGO_BINARY_PATH"); v != "" {
		c.Engine.BinaryPath = v
	}
	if v := os.Getenv("KATAGO_MODEL_PATH"); v != "" {
		c.Engine.ModelPath = v
	}
	if v := os.Getenv("KATAGO_CONFIG_PATH"); v != "" {
		c.Engine.ConfigPath = v
	}

	if v := os.Getenv("KATAGO_WEB_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("KATAGO_WEB_STATIC_DIR"); v != "" {
		c.Server.StaticDir = v
	}

	if v := os.Getenv("KATAGO_WEB_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KATAGO_WEB_LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}

	if v := os.Getenv("KATAGO_WEB_RATE_LIMIT_ENABLED"); v != "" {
		c.RateLimit.Enabled = strings.ToLower(v) == "true"
	}
}

func (c *Config) validate() error {
	if c.Engine.BinaryPath == "" {
		return fmt.Errorf("engine binary path is empty")
	}
	if c.Engine.ModelPath != "" && filepath.IsAbs(c.Engine.ModelPath) {
		if _, err := os.Stat(c.Engine.ModelPath); err != nil {
			return fmt.Errorf("katago model not found at %s", c.Engine.ModelPath)
		}
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server address is empty")
	}

	// Clamp numeric ranges
	if c.Engine.MaxVisits < 1 {
		c.Engine.MaxVisits = 1
	}
	if c.Engine.AnalyzeDepth < 1 {
		c.Engine.AnalyzeDepth = 1
	}
	if c.Engine.CommandTimeout < 0.1 {
		c.Engine.CommandTimeout = 0.1
	}
	if c.Engine.StartupTimeout < c.Engine.CommandTimeout {
		c.Engine.StartupTimeout = c.Engine.CommandTimeout
	}
	if c.Engine.AnalysisTime < 0.1 {
		c.Engine.AnalysisTime = 0.1
	}
	if c.Engine.AnalysisInterval < 1 {
		c.Engine.AnalysisInterval = 1
	}
	if c.Engine.StopGrace < 0 {
		c.Engine.StopGrace = 0
	}
	if c.Engine.RestartBackoff < 0.01 {
		c.Engine.RestartBackoff = 0.01
	}
	if c.Engine.MaxRestartBackoff < c.Engine.RestartBackoff {
		c.Engine.MaxRestartBackoff = c.Engine.RestartBackoff
	}
	if c.Engine.HealthCheckInterval < 1 {
		c.Engine.HealthCheckInterval = 1
	}
	if c.Engine.QueueSize < 1 {
		c.Engine.QueueSize = 1
	}

	if c.Server.MaxBodyBytes < 1024 {
		c.Server.MaxBodyBytes = 1024
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMin < 1 {
			c.RateLimit.RequestsPerMin = 1
		}
		if c.RateLimit.BurstSize < 1 {
			c.RateLimit.BurstSize = 1
		}
		if c.RateLimit.ClientTTL <= 0 {
			c.RateLimit.ClientTTL = 600
		}
	}

	if c.Cache.Enabled && c.Cache.MaxItems < 1 {
		c.Cache.MaxItems = 1
	}

	return nil
}

// Seconds converts a config value in seconds to a time.Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (e EngineConfig) CommandTimeoutDuration() time.Duration { return Seconds(e.CommandTimeout) }
func (e EngineConfig) StartupTimeoutDuration() time.Duration { return Seconds(e.StartupTimeout) }
func (e EngineConfig) AnalysisWindow() time.Duration         { return Seconds(e.AnalysisTime) }
func (e EngineConfig) StopGraceDuration() time.Duration      { return Seconds(e.StopGrace) }

// KataGoArgs returns the command-line arguments for GTP mode.
func (e EngineConfig) KataGoArgs() []string {
	args := []string{"gtp"}
	if e.ModelPath != "" {
		args = append(args, "-model", e.ModelPath)
	}
	if e.ConfigPath != "" {
		args = append(args, "-config", e.ConfigPath)
	}
	return append(args, e.ExtraArgs...)
}

func (c *Config) GetKataGoHomeDir() string {
	if home := os.Getenv("KATAGO_HOME"); home != "" {
		return home
	}

	userHome, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(userHome, ".katago")
}

func GetConfigPath() string {
	if path := os.Getenv("KATAGO_WEB_CONFIG"); path != "" {
		return path
	}

	if _, err := os.Stat("config.json"); err == nil {
		return "config.json"
	}

	if home, err := os.UserHomeDir(); err == nil {
		configPath := filepath.Join(home, ".katago-web", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}

	return ""
}
