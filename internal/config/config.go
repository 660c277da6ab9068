// Package config loads pipeline configuration from defaults, a YAML file and
// environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultEnvPrefix prefixes every environment override, e.g. MEMORY_PIPELINE_GATE_AUTO_THRESHOLD.
const DefaultEnvPrefix = "MEMORY_PIPELINE"

// Config is the complete pipeline configuration.
type Config struct {
	DB        DBConfig        `yaml:"db" env:"DB"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Gate      GateConfig      `yaml:"gate" env:"GATE"`
	RateLimit RateLimitConfig `yaml:"rate_limit" env:"RATE_LIMIT"`
	Dedup     DedupConfig     `yaml:"dedup" env:"DEDUP"`
	Scheduler SchedulerConfig `yaml:"scheduler" env:"SCHEDULER"`
	Episode   EpisodeConfig   `yaml:"episode" env:"EPISODE"`
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`
	Summary   SummaryConfig   `yaml:"summary" env:"SUMMARY"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
}

// DBConfig locates the SQLite database.
type DBConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

// RedisConfig configures the counter and flag store. An empty Addr falls back
// to rate_limit.store.
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	Password  string `yaml:"password" env:"PASSWORD"`
	DB        int    `yaml:"db" env:"DB"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// GateConfig holds the confidence thresholds of the write gate.
type GateConfig struct {
	// At or above: write is scheduled.
	AutoThreshold float64 `yaml:"auto_threshold" env:"AUTO_THRESHOLD"`
	// At or above (and below AutoThreshold): confirmation is requested.
	ConfirmThreshold float64 `yaml:"confirm_threshold" env:"CONFIRM_THRESHOLD"`
}

// RateLimitConfig bounds how many writes are accepted.
type RateLimitConfig struct {
	// Store holds counters and episode flags when no Redis address is set:
	// sqlite (shared by every process on the database) or memory.
	Store           string        `yaml:"store" env:"STORE"`
	PerConversation int           `yaml:"per_conversation" env:"PER_CONVERSATION"`
	PerUserHour     int           `yaml:"per_user_hour" env:"PER_USER_HOUR"`
	Window          time.Duration `yaml:"window" env:"WINDOW"`
}

// DedupConfig configures the duplicate detector.
type DedupConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"SIMILARITY_THRESHOLD"`
}

// SchedulerConfig configures background write execution.
type SchedulerConfig struct {
	DrainTimeout  time.Duration `yaml:"drain_timeout" env:"DRAIN_TIMEOUT"`
	MaxConcurrent int           `yaml:"max_concurrent" env:"MAX_CONCURRENT"`
	TaskTimeout   time.Duration `yaml:"task_timeout" env:"TASK_TIMEOUT"`
}

// EpisodeConfig sets when a conversation qualifies for an episode summary.
type EpisodeConfig struct {
	MinUserMessages  int           `yaml:"min_user_messages" env:"MIN_USER_MESSAGES"`
	MinTotalMessages int           `yaml:"min_total_messages" env:"MIN_TOTAL_MESSAGES"`
	FlagTTL          time.Duration `yaml:"flag_ttl" env:"FLAG_TTL"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	// hash | ollama | openai
	Provider string `yaml:"provider" env:"PROVIDER"`
	Model    string `yaml:"model" env:"MODEL"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL"`
	APIKey   string `yaml:"api_key" env:"API_KEY"`
	Dims     int    `yaml:"dims" env:"DIMS"`
}

// SummaryConfig selects the episode summary generator.
type SummaryConfig struct {
	// extractive | openai
	Provider string `yaml:"provider" env:"PROVIDER"`
	Model    string `yaml:"model" env:"MODEL"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL"`
	APIKey   string `yaml:"api_key" env:"API_KEY"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// json, console
	Format      string   `yaml:"format" env:"FORMAT"`
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DB: DBConfig{
			Path: filepath.Join(home, ".memory-pipeline", "memory.db"),
		},
		Redis: RedisConfig{
			KeyPrefix: "mempipe:",
		},
		Gate: GateConfig{
			AutoThreshold:    0.7,
			ConfirmThreshold: 0.5,
		},
		RateLimit: RateLimitConfig{
			Store:           "sqlite",
			PerConversation: 10,
			PerUserHour:     30,
			Window:          time.Hour,
		},
		Dedup: DedupConfig{
			SimilarityThreshold: 0.92,
		},
		Scheduler: SchedulerConfig{
			DrainTimeout:  5 * time.Second,
			MaxConcurrent: 8,
			TaskTimeout:   30 * time.Second,
		},
		Episode: EpisodeConfig{
			MinUserMessages:  8,
			MinTotalMessages: 15,
			FlagTTL:          7 * 24 * time.Hour,
		},
		Embedding: EmbeddingConfig{
			Provider: "hash",
			Dims:     256,
		},
		Summary: SummaryConfig{
			Provider: "extractive",
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stderr"},
		},
	}
}

// Validate checks that thresholds and limits are usable.
func (c *Config) Validate() error {
	if c.DB.Path == "" {
		return fmt.Errorf("db.path is required")
	}
	if !inUnit(c.Gate.AutoThreshold) || !inUnit(c.Gate.ConfirmThreshold) {
		return fmt.Errorf("gate thresholds must be within [0,1]")
	}
	if c.Gate.ConfirmThreshold > c.Gate.AutoThreshold {
		return fmt.Errorf("gate.confirm_threshold (%v) exceeds gate.auto_threshold (%v)",
			c.Gate.ConfirmThreshold, c.Gate.AutoThreshold)
	}
	if c.RateLimit.PerConversation <= 0 || c.RateLimit.PerUserHour <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	switch c.RateLimit.Store {
	case "", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown rate_limit.store %q (valid: sqlite, memory)", c.RateLimit.Store)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive")
	}
	if !inUnit(c.Dedup.SimilarityThreshold) {
		return fmt.Errorf("dedup.similarity_threshold must be within [0,1]")
	}
	if c.Scheduler.DrainTimeout <= 0 {
		return fmt.Errorf("scheduler.drain_timeout must be positive")
	}
	if c.Scheduler.MaxConcurrent < 0 {
		return fmt.Errorf("scheduler.max_concurrent must not be negative")
	}
	if c.Episode.MinUserMessages <= 0 || c.Episode.MinTotalMessages <= 0 {
		return fmt.Errorf("episode thresholds must be positive")
	}
	return nil
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
