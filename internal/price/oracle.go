// Package price resolves USD values for token amounts, with a TTL cache in
// front of the DEX quote provider.
package price

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// QuoteProvider fetches the current USD price of a token mint.
type QuoteProvider interface {
	TokenPrice(ctx context.Context, mint string) (float64, error)
}

type quote struct {
	price     float64
	fetchedAt time.Time
}

// Oracle caches quotes for a fixed TTL. Concurrent misses for the same mint
// may fetch in parallel; last writer wins, which is fine because both fetched
// the same upstream price within the TTL.
type Oracle struct {
	logger   *zap.Logger
	provider QuoteProvider
	ttl      time.Duration

	mu    sync.Mutex
	cache map[string]quote

	now func() time.Time
}

func NewOracle(logger *zap.Logger, provider QuoteProvider, ttl time.Duration) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{
		logger:   logger,
		provider: provider,
		ttl:      ttl,
		cache:    make(map[string]quote),
		now:      time.Now,
	}
}

// Price returns the cached or freshly fetched USD price for mint. ok is false
// when the quote provider failed; failures are never cached.
func (o *Oracle) Price(ctx context.Context, mint string) (float64, bool) {
	o.mu.Lock()
	q, hit := o.cache[mint]
	o.mu.Unlock()

	if hit && o.now().Sub(q.fetchedAt) < o.ttl {
		return q.price, true
	}

	p, err := o.provider.TokenPrice(ctx, mint)
	if err != nil {
		o.logger.Warn("quote fetch failed",
			zap.String("mint", mint),
			zap.Error(err),
		)
		return 0, false
	}

	o.mu.Lock()
	o.cache[mint] = quote{price: p, fetchedAt: o.now()}
	o.mu.Unlock()

	return p, true
}

// USDValue converts a raw token amount to USD. ok is false when no price is
// available.
func (o *Oracle) USDValue(ctx context.Context, mint string, rawAmount uint64, decimals uint8) (float64, bool) {
	p, ok := o.Price(ctx, mint)
	if !ok {
		return 0, false
	}
	return float64(rawAmount) / math.Pow10(int(decimals)) * p, true
}
