package config

import (
	"time"
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of config validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Validate checks the config for invalid values. A non-valid result is fatal
// at startup.
func (c *Config) Validate() ValidationResult {
	var errors []ValidationError

	if c.Token.Mint == "" {
		errors = append(errors, ValidationError{
			Field:   "token.mint",
			Message: "TARGET_TOKEN_MINT is required",
		})
	}

	errors = append(errors, validateAlerts(&c.Alerts)...)
	errors = append(errors, validatePrice(&c.Price)...)
	errors = append(errors, validateRedis(&c.Redis)...)
	errors = append(errors, validateIngress(&c.Ingress)...)

	if c.Registry.Path == "" {
		errors = append(errors, ValidationError{
			Field:   "registry.path",
			Message: "must not be empty",
		})
	}

	return ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
	}
}

func validateAlerts(a *AlertsConfig) []ValidationError {
	var errors []ValidationError

	if a.ChatThresholdUSD < 0 {
		errors = append(errors, ValidationError{
			Field:   "alerts.chat_threshold_usd",
			Message: "must be non-negative",
		})
	}

	if a.SingleThresholdUSD < 0 {
		errors = append(errors, ValidationError{
			Field:   "alerts.single_threshold_usd",
			Message: "must be non-negative",
		})
	}

	if a.CumulativeThresholdUSD < 0 {
		errors = append(errors, ValidationError{
			Field:   "alerts.cumulative_threshold_usd",
			Message: "must be non-negative",
		})
	}

	if a.Window < 1*time.Minute {
		errors = append(errors, ValidationError{
			Field:   "alerts.window",
			Message: "must be at least 1 minute",
		})
	}

	if a.FiveSellsThresholdUSD < 0 {
		errors = append(errors, ValidationError{
			Field:   "alerts.five_sells_threshold_usd",
			Message: "must be non-negative",
		})
	}

	if a.FiveSellsTrigger < 1 {
		errors = append(errors, ValidationError{
			Field:   "alerts.five_sells_trigger",
			Message: "must be at least 1",
		})
	}

	return errors
}

func validatePrice(p *PriceConfig) []ValidationError {
	var errors []ValidationError

	if p.CacheTTL < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "price.cache_ttl",
			Message: "must be at least 1 second",
		})
	}

	if p.DexAPIURL == "" {
		errors = append(errors, ValidationError{
			Field:   "price.dex_api_url",
			Message: "must not be empty",
		})
	}

	if p.FetchTimeout < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "price.fetch_timeout",
			Message: "must be at least 1 second",
		})
	}

	if p.RatePerSec <= 0 {
		errors = append(errors, ValidationError{
			Field:   "price.rate_per_sec",
			Message: "must be positive",
		})
	}

	return errors
}

func validateRedis(r *RedisConfig) []ValidationError {
	var errors []ValidationError

	if r.Addr == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.addr",
			Message: "REDIS_ADDR is required",
		})
	}

	if r.DB < 0 {
		errors = append(errors, ValidationError{
			Field:   "redis.db",
			Message: "must be non-negative",
		})
	}

	return errors
}

func validateIngress(i *IngressConfig) []ValidationError {
	var errors []ValidationError

	if i.Port < 1 || i.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "ingress.port",
			Message: "must be between 1 and 65535",
		})
	}

	if i.DrainTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "ingress.drain_timeout",
			Message: "must be non-negative",
		})
	}

	return errors
}
