package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PERPRECAP_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PERPRECAP_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Accounts ──
	setStringSlice(&cfg.Accounts, "PERPRECAP_ACCOUNTS")

	// ── Pacifica ──
	setStr(&cfg.Pacifica.BaseURL, "PERPRECAP_PACIFICA_BASE_URL")
	setStr(&cfg.Pacifica.WsURL, "PERPRECAP_PACIFICA_WS_URL")
	setDuration(&cfg.Pacifica.Timeout, "PERPRECAP_PACIFICA_TIMEOUT")

	// ── Fetch ──
	setInt(&cfg.Fetch.PageLimit, "PERPRECAP_FETCH_PAGE_LIMIT")
	setInt(&cfg.Fetch.MaxAttempts, "PERPRECAP_FETCH_MAX_ATTEMPTS")
	setDuration(&cfg.Fetch.RetryBase, "PERPRECAP_FETCH_RETRY_BASE")
	setInt(&cfg.Fetch.RateLimit, "PERPRECAP_FETCH_RATE_LIMIT")
	setDuration(&cfg.Fetch.RateWindow, "PERPRECAP_FETCH_RATE_WINDOW")
	setDuration(&cfg.Fetch.MinDelay, "PERPRECAP_FETCH_MIN_DELAY")
	setInt(&cfg.Fetch.Parallelism, "PERPRECAP_FETCH_PARALLELISM")

	// ── Filter ──
	setStr(&cfg.Filter.Symbol, "PERPRECAP_FILTER_SYMBOL")
	setStr(&cfg.Filter.StartTime, "PERPRECAP_FILTER_START_TIME")
	setStr(&cfg.Filter.EndTime, "PERPRECAP_FILTER_END_TIME")
	setStr(&cfg.Filter.TimeRange, "PERPRECAP_FILTER_TIME_RANGE")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "PERPRECAP_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "PERPRECAP_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PERPRECAP_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PERPRECAP_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PERPRECAP_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PERPRECAP_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PERPRECAP_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PERPRECAP_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PERPRECAP_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PERPRECAP_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PERPRECAP_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PERPRECAP_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PERPRECAP_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PERPRECAP_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PERPRECAP_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PERPRECAP_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PERPRECAP_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PERPRECAP_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PERPRECAP_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PERPRECAP_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PERPRECAP_S3_REGION")
	setStr(&cfg.S3.Bucket, "PERPRECAP_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PERPRECAP_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PERPRECAP_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PERPRECAP_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PERPRECAP_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PERPRECAP_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PERPRECAP_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PERPRECAP_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PERPRECAP_NOTIFY_EVENTS")

	// ── Output ──
	setStr(&cfg.Output.Dir, "PERPRECAP_OUTPUT_DIR")
	setBool(&cfg.Output.WriteJSON, "PERPRECAP_OUTPUT_WRITE_JSON")
	setBool(&cfg.Output.Quiet, "PERPRECAP_OUTPUT_QUIET")

	// ── Watch ──
	setDuration(&cfg.Watch.Interval, "PERPRECAP_WATCH_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "PERPRECAP_MODE")
	setStr(&cfg.LogLevel, "PERPRECAP_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
