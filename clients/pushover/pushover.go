// Package pushover sends mobile push notifications through the Pushover API.
package pushover

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"tokenwatch/config"
)

const priorityHigh = "1"

// Client sends per-user push notifications. A missing app token disables the
// client; sends become logged no-ops.
type Client struct {
	logger   *zap.Logger
	appToken string
	baseURL  string
	sound    string
	http     *http.Client
}

func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	token := cfg.Pushover.AppToken
	if token == "" {
		logger.Warn("PUSHOVER_APP_TOKEN not set, push notifications disabled")
		return &Client{
			logger:  logger,
			baseURL: cfg.Pushover.APIURL,
			sound:   cfg.Pushover.Sound,
		}
	}

	logger.Info("pushover client initialized", zap.String("sound", cfg.Pushover.Sound))

	return &Client{
		logger:   logger,
		appToken: token,
		baseURL:  cfg.Pushover.APIURL,
		sound:    cfg.Pushover.Sound,
		http:     &http.Client{Timeout: 5 * time.Second},
	}
}

// Enabled reports whether the client holds an app token.
func (c *Client) Enabled() bool {
	return c.appToken != ""
}

// Push sends one high-priority message to the given user key.
func (c *Client) Push(ctx context.Context, userKey, title, message string) error {
	if c.appToken == "" {
		return fmt.Errorf("pushover not configured")
	}

	form := url.Values{
		"token":    {c.appToken},
		"user":     {userKey},
		"title":    {title},
		"message":  {message},
		"priority": {priorityHigh},
		"sound":    {c.sound},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/messages.json", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushover API returned status %d", resp.StatusCode)
	}

	return nil
}
