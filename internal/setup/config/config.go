package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
)

// CurrentVersion is the config file version this build expects.
const CurrentVersion = 1

// Config represents the entire application configuration.
type Config struct {
	// Version of the config file.
	Version   int       `koanf:"version"`
	Debug     Debug     `koanf:"debug"`
	Redis     Redis     `koanf:"redis"`
	Reddit    Reddit    `koanf:"reddit"`
	Retry     Retry     `koanf:"retry"`
	Breaker   Breaker   `koanf:"circuit_breaker"`
	Server    Server    `koanf:"server"`
	Aggregate Aggregate `koanf:"aggregate"`
}

// Server contains the event ingress listener configuration.
type Server struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Write logs as JSON instead of console encoding.
	JSONLogs bool `koanf:"json_logs"`
}

// Redis contains connection details for the aggregate store.
type Redis struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// Reddit contains details for the platform API adapter.
type Reddit struct {
	// Subreddit the service aggregates statistics for.
	Subreddit string `koanf:"subreddit"`
	// User agent sent with every API request.
	UserAgent string `koanf:"user_agent"`
	// Base URL of the JSON API, overridable for testing.
	BaseURL string `koanf:"base_url"`
	// Request timeout in milliseconds.
	RequestTimeout int `koanf:"request_timeout"`
	// Cache TTL for API responses in milliseconds.
	CacheTTL int `koanf:"cache_ttl"`
}

// Retry contains retry middleware configuration.
type Retry struct {
	// Maximum retry attempts.
	MaxRetries uint64 `koanf:"max_retries"`
	// Initial delay between attempts in milliseconds.
	Delay int `koanf:"delay"`
	// Maximum delay between attempts in milliseconds.
	MaxDelay int `koanf:"max_delay"`
}

// Breaker contains circuit breaker configuration.
type Breaker struct {
	// Consecutive failures before the circuit opens.
	MaxFailures uint32 `koanf:"max_failures"`
	// Failure threshold window in milliseconds.
	FailureThreshold int `koanf:"failure_threshold"`
	// Time the circuit stays open before probing again, in milliseconds.
	RecoveryTimeout int `koanf:"recovery_timeout"`
}

// Aggregate contains tunables for the aggregation jobs.
type Aggregate struct {
	// Accounts resolved per liveness run.
	LivenessBatchSize int `koanf:"liveness_batch_size"`
	// Days between liveness re-checks for active accounts.
	LivenessIntervalDays int `koanf:"liveness_interval_days"`
	// Leaderboard depth re-validated by the top-accounts sweep.
	LeaderboardDepth int `koanf:"leaderboard_depth"`
	// Posts resolved individually per vote reconciliation pass.
	VoteBatchSize int `koanf:"vote_batch_size"`
	// Moderation queue snapshot size for the filtered sweep.
	ModQueueSnapshot int `koanf:"modqueue_snapshot"`
	// Top-post snapshot size for bulk vote resolution.
	VoteSnapshot int `koanf:"vote_snapshot"`
}

// LoadConfig loads the TOML config from the first path that has one and
// returns it together with the directory it was found in.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	configPaths := []string{
		".redlytics",
		homeDir + "/.redlytics/config",
		"/etc/redlytics/config",
		"/app/config",
		"config",
		".",
	}

	var usedConfigPath string

	for _, path := range configPaths {
		configPath := fmt.Sprintf("%s/redlytics.toml", path)
		if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
			usedConfigPath = path
			break
		}
	}

	if usedConfigPath == "" {
		return nil, "", fmt.Errorf("%w: redlytics.toml", ErrConfigFileNotFound)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Version == 0 {
		return nil, "", ErrConfigVersionMissing
	}

	if config.Version != CurrentVersion {
		return nil, "", fmt.Errorf("%w: expected version %d, got %d",
			ErrConfigVersionMismatch, CurrentVersion, config.Version)
	}

	applyDefaults(&config)

	return &config, usedConfigPath, nil
}

// applyDefaults fills in zero values with the tunables the jobs were designed
// around. The batch sizes bound external lookup cost per invocation.
func applyDefaults(cfg *Config) {
	if cfg.Debug.LogLevel == "" {
		cfg.Debug.LogLevel = "info"
	}

	if cfg.Reddit.BaseURL == "" {
		cfg.Reddit.BaseURL = "https://www.reddit.com"
	}

	if cfg.Reddit.UserAgent == "" {
		cfg.Reddit.UserAgent = "redlytics (statistics aggregator)"
	}

	if cfg.Reddit.RequestTimeout == 0 {
		cfg.Reddit.RequestTimeout = 30000
	}

	if cfg.Reddit.CacheTTL == 0 {
		cfg.Reddit.CacheTTL = 300000
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8750
	}

	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 3
	}

	if cfg.Retry.Delay == 0 {
		cfg.Retry.Delay = 1000
	}

	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 5000
	}

	if cfg.Breaker.MaxFailures == 0 {
		cfg.Breaker.MaxFailures = 5
	}

	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 1000
	}

	if cfg.Breaker.RecoveryTimeout == 0 {
		cfg.Breaker.RecoveryTimeout = 60000
	}

	if cfg.Aggregate.LivenessBatchSize == 0 {
		cfg.Aggregate.LivenessBatchSize = 50
	}

	if cfg.Aggregate.LivenessIntervalDays == 0 {
		cfg.Aggregate.LivenessIntervalDays = 28
	}

	if cfg.Aggregate.LeaderboardDepth == 0 {
		cfg.Aggregate.LeaderboardDepth = 8
	}

	if cfg.Aggregate.VoteBatchSize == 0 {
		cfg.Aggregate.VoteBatchSize = 50
	}

	if cfg.Aggregate.ModQueueSnapshot == 0 {
		cfg.Aggregate.ModQueueSnapshot = 1000
	}

	if cfg.Aggregate.VoteSnapshot == 0 {
		cfg.Aggregate.VoteSnapshot = 1000
	}
}
