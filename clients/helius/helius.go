// Package helius manages webhook provisioning with the upstream
// enhanced-transaction provider: which wallets it watches and where it
// delivers.
package helius

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"tokenwatch/config"
)

// Webhook is the provider-side webhook registration.
type Webhook struct {
	WebhookID        string   `json:"webhookID"`
	WebhookURL       string   `json:"webhookURL"`
	WebhookType      string   `json:"webhookType,omitempty"`
	TransactionTypes []string `json:"transactionTypes,omitempty"`
	AccountAddresses []string `json:"accountAddresses"`
	AuthHeader       string   `json:"authHeader,omitempty"`
}

// Client is the provisioning API client. It never runs in the hot path; the
// admin endpoints call it on demand.
type Client struct {
	logger  *zap.Logger
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.Helius.APIKey == "" {
		logger.Warn("HELIUS_API_KEY not set, webhook provisioning disabled")
	}

	return &Client{
		logger:  logger,
		apiKey:  cfg.Helius.APIKey,
		baseURL: cfg.Helius.APIURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether the client holds an API key.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// ListWebhooks returns every webhook registered for this API key.
func (c *Client) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	var hooks []Webhook
	if err := c.do(ctx, http.MethodGet, "/webhooks", nil, &hooks); err != nil {
		return nil, err
	}
	return hooks, nil
}

// GetWebhook fetches one webhook by id.
func (c *Client) GetWebhook(ctx context.Context, id string) (*Webhook, error) {
	var hook Webhook
	if err := c.do(ctx, http.MethodGet, "/webhooks/"+id, nil, &hook); err != nil {
		return nil, err
	}
	return &hook, nil
}

// CreateWebhook registers a new webhook delivering to webhookURL for the
// given addresses.
func (c *Client) CreateWebhook(ctx context.Context, webhookURL string, addresses []string) (*Webhook, error) {
	body := Webhook{
		WebhookURL:       webhookURL,
		WebhookType:      "enhanced",
		TransactionTypes: []string{"ANY"},
		AccountAddresses: addresses,
	}
	var hook Webhook
	if err := c.do(ctx, http.MethodPost, "/webhooks", body, &hook); err != nil {
		return nil, err
	}
	return &hook, nil
}

// EditWebhook replaces a webhook registration wholesale.
func (c *Client) EditWebhook(ctx context.Context, id string, hook Webhook) (*Webhook, error) {
	var updated Webhook
	if err := c.do(ctx, http.MethodPut, "/webhooks/"+id, hook, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteWebhook removes a webhook registration.
func (c *Client) DeleteWebhook(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/webhooks/"+id, nil, nil)
}

// AddAddresses merges wallets into a webhook's watch list. The provider has
// no incremental endpoint, so this is read-merge-write.
func (c *Client) AddAddresses(ctx context.Context, id string, addresses []string) (*Webhook, error) {
	hook, err := c.GetWebhook(ctx, id)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(hook.AccountAddresses))
	for _, a := range hook.AccountAddresses {
		seen[a] = struct{}{}
	}
	for _, a := range addresses {
		if _, ok := seen[a]; !ok {
			hook.AccountAddresses = append(hook.AccountAddresses, a)
			seen[a] = struct{}{}
		}
	}

	return c.EditWebhook(ctx, id, *hook)
}

// RemoveAddresses drops wallets from a webhook's watch list.
func (c *Client) RemoveAddresses(ctx context.Context, id string, addresses []string) (*Webhook, error) {
	hook, err := c.GetWebhook(ctx, id)
	if err != nil {
		return nil, err
	}

	drop := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		drop[a] = struct{}{}
	}
	kept := hook.AccountAddresses[:0]
	for _, a := range hook.AccountAddresses {
		if _, ok := drop[a]; !ok {
			kept = append(kept, a)
		}
	}
	hook.AccountAddresses = kept

	return c.EditWebhook(ctx, id, *hook)
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	if c.apiKey == "" {
		return fmt.Errorf("helius not configured")
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	url := c.baseURL + path + "?api-key=" + c.apiKey
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: provider returned status %d", method, path, resp.StatusCode)
	}

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
