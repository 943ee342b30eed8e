// Package dexscreener wraps the DEX quote provider used to price the target
// token in USD.
package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tokenwatch/config"
)

// Client fetches token quotes. Calls are rate limited and run behind a
// circuit breaker so a flapping provider doesn't hold every pipeline task for
// the full timeout.
type Client struct {
	logger  *zap.Logger
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

type pairResponse struct {
	Pairs []pair `json:"pairs"`
}

type pair struct {
	PriceUsd  string `json:"priceUsd"`
	Liquidity struct {
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
}

func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	st := gobreaker.Settings{Name: "dexscreener"}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}
	st.Timeout = 30 * time.Second

	return &Client{
		logger:  logger,
		baseURL: cfg.Price.DexAPIURL,
		http:    &http.Client{Timeout: cfg.Price.FetchTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.Price.RatePerSec), 1),
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

// TokenPrice returns the USD price of mint, taken from the pair with the
// greatest USD liquidity whose priceUsd parses as a positive finite number.
func (c *Client) TokenPrice(ctx context.Context, mint string) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit: %w", err)
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, mint)
	})
	if err != nil {
		return 0, err
	}
	return res.(float64), nil
}

func (c *Client) fetch(ctx context.Context, mint string) (float64, error) {
	url := c.baseURL + "/" + mint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch quote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("quote provider returned status %d", resp.StatusCode)
	}

	var parsed pairResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode quote response: %w", err)
	}

	price, ok := bestPrice(parsed.Pairs)
	if !ok {
		return 0, fmt.Errorf("no usable pair for mint %s", mint)
	}
	return price, nil
}

// bestPrice picks the deepest-liquidity pair with a usable price.
func bestPrice(pairs []pair) (float64, bool) {
	best := -1.0
	price := 0.0
	for _, p := range pairs {
		v, err := strconv.ParseFloat(p.PriceUsd, 64)
		if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		if p.Liquidity.Usd > best {
			best = p.Liquidity.Usd
			price = v
		}
	}
	return price, best >= 0
}
