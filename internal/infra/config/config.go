package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Logging
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	// Storage
	StorePath string `json:"store_path"`

	// Identity is the local participant identity. Messages authored by it
	// are outgoing.
	Identity string `json:"identity"`

	Store StoreConfig `json:"store"`
	Media MediaConfig `json:"media"`
	Stats StatsConfig `json:"stats"`
}

// StoreConfig tunes the write scheduler.
type StoreConfig struct {
	FlushDelay   time.Duration `json:"-"`
	FlushDelayMs int           `json:"flush_delay_ms"`
	FlushRetries int           `json:"flush_retries"`
}

// MediaConfig holds media cache and transfer configuration.
type MediaConfig struct {
	CacheDir          string        `json:"cache_dir"`
	MaxFileSizeMB     int           `json:"max_file_size_mb"`
	DownloadTimeout   time.Duration `json:"-"`
	DownloadTimeoutMs int           `json:"download_timeout_ms"`
	ProgressStepKB    int           `json:"progress_step_kb"`
}

// MaxFileSize returns the size limit in bytes, zero when unlimited.
func (m MediaConfig) MaxFileSize() int64 {
	return int64(m.MaxFileSizeMB) * 1024 * 1024
}

// ProgressStep returns the upload progress granularity in bytes.
func (m MediaConfig) ProgressStep() int64 {
	return int64(m.ProgressStepKB) * 1024
}

// StatsConfig controls conversation aggregate refreshes.
type StatsConfig struct {
	// Batch fetches counts in one call when the client supports it.
	Batch     bool          `json:"batch"`
	Timeout   time.Duration `json:"-"`
	TimeoutMs int           `json:"timeout_ms"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultStore := filepath.Join(homeDir, ".chatcache", "store")

	return &Config{
		LogLevel:  "INFO",
		LogFormat: "console",
		StorePath: defaultStore,
		Store: StoreConfig{
			FlushDelay:   250 * time.Millisecond,
			FlushDelayMs: 250,
			FlushRetries: 5,
		},
		Media: MediaConfig{
			MaxFileSizeMB:     100,
			DownloadTimeout:   60 * time.Second,
			DownloadTimeoutMs: 60000,
			ProgressStepKB:    64,
		},
		Stats: StatsConfig{
			Timeout:   15 * time.Second,
			TimeoutMs: 15000,
		},
	}
}

// DatabasePath returns the sqlite file inside the store path.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.StorePath, "cache.db")
}

// MediaCacheDir returns the media cache directory, by default inside the
// store path.
func (c *Config) MediaCacheDir() string {
	if c.Media.CacheDir != "" {
		return c.Media.CacheDir
	}
	return filepath.Join(c.StorePath, "media")
}

// LoadFromFile loads configuration from a JSON file.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if file doesn't exist
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.deriveDurations()
	return cfg, nil
}

// deriveDurations converts the millisecond fields.
func (c *Config) deriveDurations() {
	if c.Store.FlushDelayMs > 0 {
		c.Store.FlushDelay = time.Duration(c.Store.FlushDelayMs) * time.Millisecond
	}
	if c.Media.DownloadTimeoutMs > 0 {
		c.Media.DownloadTimeout = time.Duration(c.Media.DownloadTimeoutMs) * time.Millisecond
	}
	if c.Stats.TimeoutMs > 0 {
		c.Stats.Timeout = time.Duration(c.Stats.TimeoutMs) * time.Millisecond
	}
}

// Load loads configuration from environment variables with defaults.
// If configPath is provided, loads from file first.
func Load(configPath string) (*Config, error) {
	cfg := Default()
	if configPath != "" {
		var err error
		if cfg, err = LoadFromFile(configPath); err != nil {
			return nil, err
		}
	}

	// Environment variable overrides
	if v := os.Getenv("CHATCACHE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CHATCACHE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("CHATCACHE_STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("CHATCACHE_IDENTITY"); v != "" {
		cfg.Identity = v
	}
	if v := os.Getenv("CHATCACHE_MEDIA_CACHE_DIR"); v != "" {
		cfg.Media.CacheDir = v
	}
	if v := os.Getenv("CHATCACHE_FLUSH_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Store.FlushDelayMs = ms
		}
	}
	if v := os.Getenv("CHATCACHE_MAX_FILE_SIZE_MB"); v != "" {
		if mb, err := strconv.Atoi(v); err == nil {
			cfg.Media.MaxFileSizeMB = mb
		}
	}
	if v := os.Getenv("CHATCACHE_DOWNLOAD_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Media.DownloadTimeoutMs = ms
		}
	}
	if v := os.Getenv("CHATCACHE_STATS_BATCH"); v != "" {
		cfg.Stats.Batch = v == "true" || v == "1"
	}

	cfg.deriveDurations()
	return cfg, nil
}

// EnsureStorePath creates the store directory if it doesn't exist.
func (c *Config) EnsureStorePath() error {
	return os.MkdirAll(c.StorePath, 0755)
}
