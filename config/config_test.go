package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Alerts.ChatThresholdUSD != 500.0 {
		t.Errorf("expected chat threshold 500, got: %f", cfg.Alerts.ChatThresholdUSD)
	}
	if cfg.Alerts.SingleThresholdUSD != 300.0 {
		t.Errorf("expected single threshold 300, got: %f", cfg.Alerts.SingleThresholdUSD)
	}
	if cfg.Alerts.CumulativeThresholdUSD != 300.0 {
		t.Errorf("expected cumulative threshold 300, got: %f", cfg.Alerts.CumulativeThresholdUSD)
	}
	if cfg.Alerts.Window != 1*time.Hour {
		t.Errorf("expected 1h window, got: %s", cfg.Alerts.Window)
	}
	if cfg.Alerts.WindowSeconds() != 3600 {
		t.Errorf("expected 3600 window seconds, got: %d", cfg.Alerts.WindowSeconds())
	}
	if cfg.Price.CacheTTL != 60*time.Second {
		t.Errorf("expected 60s price TTL, got: %s", cfg.Price.CacheTTL)
	}
	if !cfg.Alerts.FiveSellsEnabled {
		t.Error("expected five-sells rule enabled by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TARGET_TOKEN_MINT", "So11111111111111111111111111111111111111112")
	t.Setenv("CHAT_THRESHOLD_USD", "1000")
	t.Setenv("ALERT_WINDOW", "30m")
	t.Setenv("FIVE_SELLS_ENABLED", "false")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg := Load()

	if cfg.Token.Mint != "So11111111111111111111111111111111111111112" {
		t.Errorf("unexpected mint: %s", cfg.Token.Mint)
	}
	if cfg.Alerts.ChatThresholdUSD != 1000.0 {
		t.Errorf("expected chat threshold 1000, got: %f", cfg.Alerts.ChatThresholdUSD)
	}
	if cfg.Alerts.Window != 30*time.Minute {
		t.Errorf("expected 30m window, got: %s", cfg.Alerts.Window)
	}
	if cfg.Alerts.FiveSellsEnabled {
		t.Error("expected five-sells rule disabled")
	}
	if cfg.Redis.Addr != "redis:6380" {
		t.Errorf("unexpected redis addr: %s", cfg.Redis.Addr)
	}
}

func TestLoad_BareSecondsWindow(t *testing.T) {
	t.Setenv("ALERT_WINDOW", "3600")

	cfg := Load()

	if cfg.Alerts.Window != 1*time.Hour {
		t.Errorf("expected bare seconds to parse as 1h, got: %s", cfg.Alerts.Window)
	}
}

func TestValidate_MissingMint(t *testing.T) {
	cfg := Defaults()

	result := cfg.Validate()

	if result.Valid {
		t.Fatal("expected invalid config without target mint")
	}
	found := false
	for _, e := range result.Errors {
		if e.Field == "token.mint" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected token.mint error, got: %+v", result.Errors)
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := Defaults()
	cfg.Token.Mint = "MintAddr"

	result := cfg.Validate()

	if !result.Valid {
		t.Fatalf("expected valid config, got errors: %+v", result.Errors)
	}
}

func TestValidate_BadThresholds(t *testing.T) {
	cfg := Defaults()
	cfg.Token.Mint = "MintAddr"
	cfg.Alerts.ChatThresholdUSD = -1
	cfg.Alerts.Window = time.Second
	cfg.Ingress.Port = 0

	result := cfg.Validate()

	if result.Valid {
		t.Fatal("expected invalid config")
	}
	if len(result.Errors) != 3 {
		t.Errorf("expected 3 errors, got: %+v", result.Errors)
	}
}
