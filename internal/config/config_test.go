package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Accounts = []string{"0x1111111111111111111111111111111111111111"}
	return cfg
}

func TestDefaultsValidateWithAccount(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate on defaults: %v", err)
	}
}

func TestValidateRejectsMissingAccounts(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate passed with no accounts")
	}
	if !strings.Contains(err.Error(), "at least one account") {
		t.Errorf("error = %v, want accounts complaint", err)
	}
}

func TestValidateRejectsBadAddress(t *testing.T) {
	cfg := validConfig()
	cfg.Accounts = append(cfg.Accounts, "not-an-address")
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate passed with a malformed address")
	}
	if !strings.Contains(err.Error(), "not-an-address") {
		t.Errorf("error = %v, want the bad address named", err)
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "replay"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate passed with unknown mode")
	}
}

func TestValidateNormalizesModeCasing(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = " Watch "
	cfg.LogLevel = "DEBUG"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate rejected mixed-case mode: %v", err)
	}
	if cfg.Mode != "watch" {
		t.Errorf("Mode = %q, want normalized watch", cfg.Mode)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want normalized debug", cfg.LogLevel)
	}

	// Watch-specific checks must fire on the normalized value too.
	cfg = validConfig()
	cfg.Mode = "Watch"
	cfg.Pacifica.WsURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate passed mixed-case watch mode with no ws_url")
	}
}

func TestValidateWatchModeSingleAccount(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "watch"
	cfg.Accounts = append(cfg.Accounts, "0x2222222222222222222222222222222222222222")
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate passed watch mode with two accounts")
	}
}

func TestValidateFilterWindowOrdering(t *testing.T) {
	cfg := validConfig()
	cfg.Filter.StartTime = "2026-02-01T00:00:00Z"
	cfg.Filter.EndTime = "2026-01-01T00:00:00Z"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate passed with end_time before start_time")
	}
	if !strings.Contains(err.Error(), "end_time must not precede") {
		t.Errorf("error = %v, want window ordering complaint", err)
	}
}

func TestFilterTimeValues(t *testing.T) {
	f := FilterConfig{StartTime: "2026-01-02T15:04:05Z"}

	start, err := f.StartTimeValue()
	if err != nil {
		t.Fatalf("StartTimeValue: %v", err)
	}
	want := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	if start == nil || !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}

	end, err := f.EndTimeValue()
	if err != nil {
		t.Fatalf("EndTimeValue: %v", err)
	}
	if end != nil {
		t.Errorf("end = %v, want nil for unset field", end)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PERPRECAP_MODE", "funding")
	t.Setenv("PERPRECAP_FETCH_PAGE_LIMIT", "50")
	t.Setenv("PERPRECAP_FETCH_MIN_DELAY", "250ms")
	t.Setenv("PERPRECAP_ACCOUNTS", "0xaaa, 0xbbb")
	t.Setenv("PERPRECAP_POSTGRES_ENABLED", "true")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Mode != "funding" {
		t.Errorf("Mode = %q, want funding", cfg.Mode)
	}
	if cfg.Fetch.PageLimit != 50 {
		t.Errorf("PageLimit = %d, want 50", cfg.Fetch.PageLimit)
	}
	if cfg.Fetch.MinDelay.Duration != 250*time.Millisecond {
		t.Errorf("MinDelay = %v, want 250ms", cfg.Fetch.MinDelay.Duration)
	}
	if len(cfg.Accounts) != 2 || cfg.Accounts[0] != "0xaaa" || cfg.Accounts[1] != "0xbbb" {
		t.Errorf("Accounts = %v, want [0xaaa 0xbbb]", cfg.Accounts)
	}
	if !cfg.Postgres.Enabled {
		t.Error("Postgres.Enabled = false, want env override to true")
	}
}
