package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	DataSource struct {
		BaseURL             string `yaml:"base_url"`
		APIKey              string `yaml:"api_key"`
		DefaultCurrency     string `yaml:"default_currency"`
		QueryTimeoutSeconds int    `yaml:"query_timeout_seconds"`
	} `yaml:"data_source"`
	Files struct {
		Tickers  string `yaml:"tickers"`
		Extra    string `yaml:"extra"`
		Universe string `yaml:"universe"`
		Output   string `yaml:"output"`
	} `yaml:"files"`
	Reconcile struct {
		ChunkSize      int `yaml:"chunk_size"`
		SmallChunkSize int `yaml:"small_chunk_size"`
		SingleCap      int `yaml:"single_cap"`
		Concurrency    int `yaml:"concurrency"`
		ChunkAttempts  int `yaml:"chunk_attempts"`
		BackoffMS      int `yaml:"backoff_ms"`
		MissingCap     int `yaml:"missing_cap"`
	} `yaml:"reconcile"`
	Gate struct {
		MaxAgeMinutes int    `yaml:"max_age_minutes"`
		Timezone      string `yaml:"timezone"`
		LocalTimezone string `yaml:"local_timezone"` // used only for the asOfLocal label
	} `yaml:"gate"`
	Calendar struct {
		Holidays []string `yaml:"holidays"`
	} `yaml:"calendar"`
	Schedule struct {
		MidSessionCron string `yaml:"mid_session_cron"`
		CloseCron      string `yaml:"close_cron"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error: defaults apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Reconcile.SingleCap = -1 // distinguishes "unset" from an explicit 0

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("QUOTES_BASE_URL"); v != "" {
		cfg.DataSource.BaseURL = v
	}
	if v := os.Getenv("QUOTES_API_KEY"); v != "" {
		cfg.DataSource.APIKey = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("TICKERS_FILE"); v != "" {
		cfg.Files.Tickers = v
	}
	if v := os.Getenv("PRICES_OUT"); v != "" {
		cfg.Files.Output = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	envInt("CHUNK_SIZE", &cfg.Reconcile.ChunkSize)
	envInt("SINGLE_CAP", &cfg.Reconcile.SingleCap)
	envInt("MAX_AGE_MINUTES", &cfg.Gate.MaxAgeMinutes)

	// Defaults
	if cfg.DataSource.DefaultCurrency == "" {
		cfg.DataSource.DefaultCurrency = "AUD"
	}
	if cfg.DataSource.QueryTimeoutSeconds == 0 {
		cfg.DataSource.QueryTimeoutSeconds = 30
	}
	if cfg.Files.Tickers == "" {
		cfg.Files.Tickers = "asx/tickers_asx.txt"
	}
	if cfg.Files.Extra == "" {
		cfg.Files.Extra = "asx/tickers_extra.txt"
	}
	if cfg.Files.Universe == "" {
		cfg.Files.Universe = "asx/universe.csv"
	}
	if cfg.Files.Output == "" {
		cfg.Files.Output = "asx/prices_latest.json"
	}
	if cfg.Reconcile.ChunkSize == 0 {
		cfg.Reconcile.ChunkSize = 120
	}
	if cfg.Reconcile.SmallChunkSize == 0 {
		cfg.Reconcile.SmallChunkSize = max(1, cfg.Reconcile.ChunkSize/3)
	}
	if cfg.Reconcile.SingleCap < 0 {
		cfg.Reconcile.SingleCap = 150
	}
	if cfg.Reconcile.Concurrency == 0 {
		cfg.Reconcile.Concurrency = 4
	}
	if cfg.Reconcile.ChunkAttempts == 0 {
		cfg.Reconcile.ChunkAttempts = 2
	}
	if cfg.Reconcile.BackoffMS == 0 {
		cfg.Reconcile.BackoffMS = 600
	}
	if cfg.Reconcile.MissingCap == 0 {
		cfg.Reconcile.MissingCap = 500
	}
	if cfg.Gate.MaxAgeMinutes == 0 {
		cfg.Gate.MaxAgeMinutes = 20
	}
	if cfg.Gate.Timezone == "" {
		cfg.Gate.Timezone = "Australia/Sydney"
	}
	if cfg.Gate.LocalTimezone == "" {
		cfg.Gate.LocalTimezone = "Australia/Perth"
	}
	if cfg.Schedule.MidSessionCron == "" {
		cfg.Schedule.MidSessionCron = "0 0 13 * * 1-5"
	}
	if cfg.Schedule.CloseCron == "" {
		cfg.Schedule.CloseCron = "0 25 16 * * 1-5"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/snapshot_runs.db"
	}

	return cfg, nil
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

// Validate checks that all settings are usable.
func (c *Config) Validate() error {
	if c.Files.Tickers == "" {
		return fmt.Errorf("files.tickers is required")
	}
	if c.Files.Output == "" {
		return fmt.Errorf("files.output is required")
	}
	if c.Reconcile.ChunkSize <= 0 {
		return fmt.Errorf("reconcile.chunk_size must be positive")
	}
	if c.Reconcile.SmallChunkSize <= 0 {
		return fmt.Errorf("reconcile.small_chunk_size must be positive")
	}
	if c.Reconcile.SmallChunkSize > c.Reconcile.ChunkSize {
		return fmt.Errorf("reconcile.small_chunk_size must not exceed chunk_size")
	}
	if c.Reconcile.SingleCap < 0 {
		return fmt.Errorf("reconcile.single_cap must not be negative")
	}
	if c.Gate.MaxAgeMinutes < 0 {
		return fmt.Errorf("gate.max_age_minutes must not be negative")
	}
	if c.DataSource.QueryTimeoutSeconds <= 0 {
		return fmt.Errorf("data_source.query_timeout_seconds must be positive")
	}
	if _, err := time.LoadLocation(c.Gate.Timezone); err != nil {
		return fmt.Errorf("gate.timezone: %w", err)
	}
	return nil
}

// QueryTimeout is the per-query bound as a duration.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.DataSource.QueryTimeoutSeconds) * time.Second
}

// MaxAge is the snapshot age below which a scheduled run is skipped.
func (c *Config) MaxAge() time.Duration {
	return time.Duration(c.Gate.MaxAgeMinutes) * time.Minute
}

// Backoff is the base sleep between chunk attempts.
func (c *Config) Backoff() time.Duration {
	return time.Duration(c.Reconcile.BackoffMS) * time.Millisecond
}
