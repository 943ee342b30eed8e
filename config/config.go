package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Environment
	IsProd bool `json:"is_prod"`

	// Target token
	Token TokenConfig `json:"token"`

	// Upstream webhook provider (Helius)
	Helius HeliusConfig `json:"helius"`

	// Discord chat channel
	Discord DiscordConfig `json:"discord"`

	// Pushover mobile push
	Pushover PushoverConfig `json:"pushover"`

	// Alert rule thresholds
	Alerts AlertsConfig `json:"alerts"`

	// Price oracle
	Price PriceConfig `json:"price"`

	// Window store (redis)
	Redis RedisConfig `json:"redis"`

	// Subscription registry (sqlite)
	Registry RegistryConfig `json:"registry"`

	// Webhook ingress server
	Ingress IngressConfig `json:"ingress"`
}

// TokenConfig identifies the token the pipeline watches.
type TokenConfig struct {
	Mint  string `json:"mint"`
	Label string `json:"label"` // display name used in notifications
}

// HeliusConfig holds upstream webhook provider configuration.
type HeliusConfig struct {
	APIKey     string `json:"-"` // Excluded - env var only
	APIURL     string `json:"api_url"`
	WebhookURL string `json:"webhook_url"` // URL the provider POSTs deliveries to
}

// DiscordConfig holds Discord-related configuration.
type DiscordConfig struct {
	BotToken  string   `json:"-"` // Excluded - env var only
	ChannelID string   `json:"channel_id"`
	AdminIDs  []string `json:"admin_ids"`
}

// PushoverConfig holds Pushover application configuration.
type PushoverConfig struct {
	AppToken string `json:"-"` // Excluded - env var only
	APIURL   string `json:"api_url"`
	Sound    string `json:"sound"`
}

// AlertsConfig holds alert rule thresholds.
type AlertsConfig struct {
	ChatThresholdUSD       float64       `json:"chat_threshold_usd"`       // single-event chat announce
	SingleThresholdUSD     float64       `json:"single_threshold_usd"`     // single-event push
	CumulativeThresholdUSD float64       `json:"cumulative_threshold_usd"` // windowed volume push
	Window                 time.Duration `json:"window"`                   // sliding window span
	FiveSellsEnabled       bool          `json:"five_sells_enabled"`
	FiveSellsThresholdUSD  float64       `json:"five_sells_threshold_usd"` // per-sell qualifying floor
	FiveSellsTrigger       int64         `json:"five_sells_trigger"`       // streak length that fires
}

// PriceConfig holds price oracle configuration.
type PriceConfig struct {
	CacheTTL     time.Duration `json:"cache_ttl"`
	DexAPIURL    string        `json:"dex_api_url"`
	FetchTimeout time.Duration `json:"fetch_timeout"`
	RatePerSec   float64       `json:"rate_per_sec"` // upstream quote request budget
}

// RedisConfig holds window-store connection parameters.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"-"` // Excluded - env var only
	DB       int    `json:"db"`
}

// RegistryConfig holds the embedded registry store configuration.
type RegistryConfig struct {
	Path string `json:"path"`
}

// IngressConfig holds webhook ingress server configuration.
type IngressConfig struct {
	Port          int           `json:"port"`
	DrainTimeout  time.Duration `json:"drain_timeout"`  // shutdown grace for in-flight pipeline tasks
	FilterTracked bool          `json:"filter_tracked"` // drop events from untracked wallets at ingress
}

// WindowSeconds returns the alert window span in whole seconds.
func (a *AlertsConfig) WindowSeconds() int64 {
	return int64(a.Window / time.Second)
}

// Defaults returns a config with hardcoded default values.
func Defaults() *Config {
	return &Config{
		IsProd: false,
		Token: TokenConfig{
			Label: "TOKEN",
		},
		Helius: HeliusConfig{
			APIURL: "https://api.helius.xyz/v0",
		},
		Pushover: PushoverConfig{
			APIURL: "https://api.pushover.net/1",
			Sound:  "cashregister",
		},
		Alerts: AlertsConfig{
			ChatThresholdUSD:       500.0,
			SingleThresholdUSD:     300.0,
			CumulativeThresholdUSD: 300.0,
			Window:                 1 * time.Hour,
			FiveSellsEnabled:       true,
			FiveSellsThresholdUSD:  300.0,
			FiveSellsTrigger:       5,
		},
		Price: PriceConfig{
			CacheTTL:     60 * time.Second,
			DexAPIURL:    "https://api.dexscreener.com/latest/dex/tokens",
			FetchTimeout: 5 * time.Second,
			RatePerSec:   5,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Registry: RegistryConfig{
			Path: "tokenwatch.db",
		},
		Ingress: IngressConfig{
			Port:         8080,
			DrainTimeout: 30 * time.Second,
		},
	}
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		IsProd: envBool("STAGE", "PROD"),

		Token: TokenConfig{
			Mint:  envString("TARGET_TOKEN_MINT", ""),
			Label: envString("TARGET_TOKEN_LABEL", "TOKEN"),
		},

		Helius: HeliusConfig{
			APIKey:     envString("HELIUS_API_KEY", ""),
			APIURL:     envString("HELIUS_API_URL", "https://api.helius.xyz/v0"),
			WebhookURL: envString("WEBHOOK_URL", ""),
		},

		Discord: DiscordConfig{
			BotToken:  envString("DISCORD_BOT_TOKEN", ""),
			ChannelID: envString("DISCORD_CHANNEL_ID", ""),
			AdminIDs:  envStringSlice("DISCORD_ADMIN_IDS"),
		},

		Pushover: PushoverConfig{
			AppToken: envString("PUSHOVER_APP_TOKEN", ""),
			APIURL:   envString("PUSHOVER_API_URL", "https://api.pushover.net/1"),
			Sound:    envString("PUSHOVER_SOUND", "cashregister"),
		},

		Alerts: AlertsConfig{
			ChatThresholdUSD:       envFloat("CHAT_THRESHOLD_USD", 500.0),
			SingleThresholdUSD:     envFloat("SINGLE_THRESHOLD_USD", 300.0),
			CumulativeThresholdUSD: envFloat("CUMULATIVE_THRESHOLD_USD", 300.0),
			Window:                 envDuration("ALERT_WINDOW", 1*time.Hour),
			FiveSellsEnabled:       envBoolDefault("FIVE_SELLS_ENABLED", true),
			FiveSellsThresholdUSD:  envFloat("FIVE_SELLS_THRESHOLD_USD", 300.0),
			FiveSellsTrigger:       envInt64("FIVE_SELLS_TRIGGER", 5),
		},

		Price: PriceConfig{
			CacheTTL:     envDuration("PRICE_CACHE_TTL", 60*time.Second),
			DexAPIURL:    envString("DEX_API_URL", "https://api.dexscreener.com/latest/dex/tokens"),
			FetchTimeout: envDuration("PRICE_FETCH_TIMEOUT", 5*time.Second),
			RatePerSec:   envFloat("PRICE_RATE_PER_SEC", 5),
		},

		Redis: RedisConfig{
			Addr:     envString("REDIS_ADDR", "localhost:6379"),
			Password: envString("REDIS_PASSWORD", ""),
			DB:       envInt("REDIS_DB", 0),
		},

		Registry: RegistryConfig{
			Path: envString("REGISTRY_DB_PATH", "tokenwatch.db"),
		},

		Ingress: IngressConfig{
			Port:          envInt("INGRESS_PORT", 8080),
			DrainTimeout:  envDuration("INGRESS_DRAIN_TIMEOUT", 30*time.Second),
			FilterTracked: envBoolDefault("FILTER_TRACKED_WALLETS", false),
		},
	}
}

// Helper functions for parsing environment variables

func envString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envInt64(key string, defaultVal int64) int64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Bare integers are treated as seconds so WINDOW-style second
		// values keep working.
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return defaultVal
}

func envBool(key, trueValue string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), trueValue)
}

func envBoolDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	return strings.EqualFold(v, "true") || strings.EqualFold(v, "1") || strings.EqualFold(v, "yes")
}

func envStringSlice(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
