// Package config defines the top-level configuration for perprecap and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PERPRECAP_* environment variables.
type Config struct {
	Accounts []string       `toml:"accounts"`
	Pacifica PacificaConfig `toml:"pacifica"`
	Fetch    FetchConfig    `toml:"fetch"`
	Filter   FilterConfig   `toml:"filter"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Output   OutputConfig   `toml:"output"`
	Watch    WatchConfig    `toml:"watch"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// PacificaConfig holds exchange API endpoints.
type PacificaConfig struct {
	BaseURL string   `toml:"base_url"`
	WsURL   string   `toml:"ws_url"`
	Timeout duration `toml:"timeout"`
}

// FetchConfig holds pagination, retry, and rate-limit parameters for the
// fetch pipeline.
type FetchConfig struct {
	PageLimit   int      `toml:"page_limit"`
	MaxAttempts int      `toml:"max_attempts"`
	RetryBase   duration `toml:"retry_base"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
	MinDelay    duration `toml:"min_delay"`
	Parallelism int      `toml:"parallelism"`
}

// FilterConfig narrows which history rows are fetched. Times are RFC 3339
// strings; empty fields mean no filter. TimeRange applies only to the
// portfolio equity series.
type FilterConfig struct {
	Symbol    string `toml:"symbol"`
	StartTime string `toml:"start_time"`
	EndTime   string `toml:"end_time"`
	TimeRange string `toml:"time_range"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// OutputConfig controls local run output.
type OutputConfig struct {
	Dir       string `toml:"dir"`
	WriteJSON bool   `toml:"write_json"`
	Quiet     bool   `toml:"quiet"`
}

// WatchConfig holds live-stream parameters.
type WatchConfig struct {
	Interval duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Pacifica: PacificaConfig{
			BaseURL: "https://api.pacifica.fi/api/v1",
			WsURL:   "wss://ws.pacifica.fi/ws",
			Timeout: duration{30 * time.Second},
		},
		Fetch: FetchConfig{
			PageLimit:   100,
			MaxAttempts: 3,
			RetryBase:   duration{time.Second},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
			MinDelay:    duration{500 * time.Millisecond},
			Parallelism: 2,
		},
		Filter: FilterConfig{
			TimeRange: "30d",
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "perprecap",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "perprecap-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"run_completed", "run_failed"},
		},
		Output: OutputConfig{
			Dir:       "output",
			WriteJSON: true,
		},
		Watch: WatchConfig{
			Interval: duration{30 * time.Second},
		},
		Mode:     "history",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"history":   true,
	"funding":   true,
	"portfolio": true,
	"orders":    true,
	"balance":   true,
	"watch":     true,
	"full":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Normalize once; wiring and mode dispatch compare the canonical
	// lowercase values exactly.
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	// Mode
	if !validModes[c.Mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: history, funding, portfolio, orders, balance, watch, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[c.LogLevel] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Accounts — every run needs at least one, and each must be a valid
	// hex address. Watch mode follows a single stream.
	if len(c.Accounts) == 0 {
		errs = append(errs, "accounts: at least one account address is required")
	}
	for _, a := range c.Accounts {
		if !common.IsHexAddress(a) {
			errs = append(errs, fmt.Sprintf("accounts: %q is not a valid hex address", a))
		}
	}
	if c.Mode == "watch" && len(c.Accounts) > 1 {
		errs = append(errs, fmt.Sprintf("accounts: watch mode follows exactly one account, got %d", len(c.Accounts)))
	}

	// Pacifica endpoints
	if c.Pacifica.BaseURL == "" {
		errs = append(errs, "pacifica: base_url must not be empty")
	}
	if c.Mode == "watch" && c.Pacifica.WsURL == "" {
		errs = append(errs, "pacifica: ws_url is required for watch mode")
	}

	// Fetch
	if c.Fetch.PageLimit < 1 {
		errs = append(errs, "fetch: page_limit must be >= 1")
	}
	if c.Fetch.MaxAttempts < 1 {
		errs = append(errs, "fetch: max_attempts must be >= 1")
	}
	if c.Fetch.RateLimit < 1 {
		errs = append(errs, "fetch: rate_limit must be >= 1")
	}
	if c.Fetch.RateWindow.Duration <= 0 {
		errs = append(errs, "fetch: rate_window must be > 0")
	}
	if c.Fetch.Parallelism < 1 {
		errs = append(errs, "fetch: parallelism must be >= 1")
	}

	// Filter — times must parse when set, and the window must be ordered.
	start, err := c.Filter.StartTimeValue()
	if err != nil {
		errs = append(errs, fmt.Sprintf("filter: start_time: %v", err))
	}
	end, err := c.Filter.EndTimeValue()
	if err != nil {
		errs = append(errs, fmt.Sprintf("filter: end_time: %v", err))
	}
	if start != nil && end != nil && end.Before(*start) {
		errs = append(errs, "filter: end_time must not precede start_time")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Watch
	if c.Mode == "watch" && c.Watch.Interval.Duration <= 0 {
		errs = append(errs, "watch: interval must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// StartTimeValue parses Filter.StartTime, returning nil when unset.
func (f *FilterConfig) StartTimeValue() (*time.Time, error) {
	return parseOptTime(f.StartTime)
}

// EndTimeValue parses Filter.EndTime, returning nil when unset.
func (f *FilterConfig) EndTimeValue() (*time.Time, error) {
	return parseOptTime(f.EndTime)
}

func parseOptTime(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
