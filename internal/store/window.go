// Package store holds the shared-state backends: the redis window store used
// for sliding-window aggregation and the sqlite subscription registry.
package store

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix   = "tokenwatch:"
	windowSlack = 300 * time.Second // key TTL beyond the window span

	seqSellTTL = 24 * time.Hour
)

// addToWindowScript evicts expired entries, inserts the new one, refreshes the
// key TTL and returns the sum of all amounts still inside the window. Running
// it as a single script keeps the evict-insert-sum sequence atomic against
// concurrent callers.
var addToWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local member = ARGV[3]
local cutoff = now - window
redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. cutoff)
redis.call('ZADD', key, now, member)
redis.call('EXPIRE', key, window + tonumber(ARGV[4]))
local members = redis.call('ZRANGEBYSCORE', key, cutoff, '+inf')
local sum = 0
for _, m in ipairs(members) do
	local amt = string.match(m, '^%d+:%d+:(.+)$')
	if amt then
		sum = sum + tonumber(amt)
	end
end
return tostring(sum)
`)

// cumulativeScript is the read-only variant: evict then sum, no insert.
var cumulativeScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local period = tonumber(ARGV[2])
local cutoff = now - period
redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. cutoff)
local members = redis.call('ZRANGEBYSCORE', key, cutoff, '+inf')
local sum = 0
for _, m in ipairs(members) do
	local amt = string.match(m, '^%d+:%d+:(.+)$')
	if amt then
		sum = sum + tonumber(amt)
	end
end
return tostring(sum)
`)

// incrWithTTLScript increments a counter and arms its TTL only on first
// increment, so a streak in progress never has its expiry pushed out.
var incrWithTTLScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('EXPIRE', KEYS[1], tonumber(ARGV[1]))
end
return count
`)

// WindowStore provides atomic sliding-window aggregation, cooldown flags and
// sequential-sell counters on top of redis.
type WindowStore struct {
	logger *zap.Logger
	rdb    *redis.Client

	// seq disambiguates members inserted at the same timestamp.
	seq atomic.Uint64
}

// NewWindowStore connects to redis with conservative pool and timeout
// settings.
func NewWindowStore(logger *zap.Logger, addr, password string, db int) *WindowStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	})

	return &WindowStore{
		logger: logger,
		rdb:    rdb,
	}
}

// NewWindowStoreWithClient wraps an existing client. Used by tests.
func NewWindowStoreWithClient(logger *zap.Logger, rdb *redis.Client) *WindowStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WindowStore{logger: logger, rdb: rdb}
}

func windowKey(mint, direction string) string {
	return keyPrefix + "window:" + mint + ":" + direction
}

func cooldownKey(key string) string {
	return keyPrefix + "cooldown:" + key
}

func seqSellKey(wallet string) string {
	return keyPrefix + "seqsells:" + wallet
}

// member encodes (timestamp, sequence, amount) into a sorted-set member that
// never collides across concurrent inserts at the same timestamp.
func (s *WindowStore) member(ts int64, usd float64) string {
	return fmt.Sprintf("%d:%d:%s", ts, s.seq.Add(1), strconv.FormatFloat(usd, 'f', -1, 64))
}

// AddToWindow records a USD amount at ts and returns the cumulative USD over
// [ts - window, +inf) after eviction and insertion.
func (s *WindowStore) AddToWindow(ctx context.Context, mint, direction string, usd float64, ts int64, window time.Duration) (float64, error) {
	res, err := addToWindowScript.Run(ctx, s.rdb,
		[]string{windowKey(mint, direction)},
		ts,
		int64(window/time.Second),
		s.member(ts, usd),
		int64(windowSlack/time.Second),
	).Text()
	if err != nil {
		return 0, fmt.Errorf("add to window: %w", err)
	}

	sum, err := strconv.ParseFloat(res, 64)
	if err != nil {
		return 0, fmt.Errorf("parse window sum %q: %w", res, err)
	}
	return sum, nil
}

// CumulativeAmount returns the USD sum over [now - period, +inf) without
// inserting anything. Expired entries are evicted as a side effect.
func (s *WindowStore) CumulativeAmount(ctx context.Context, mint, direction string, now int64, period time.Duration) (float64, error) {
	res, err := cumulativeScript.Run(ctx, s.rdb,
		[]string{windowKey(mint, direction)},
		now,
		int64(period/time.Second),
	).Text()
	if err != nil {
		return 0, fmt.Errorf("cumulative amount: %w", err)
	}

	sum, err := strconv.ParseFloat(res, 64)
	if err != nil {
		return 0, fmt.Errorf("parse window sum %q: %w", res, err)
	}
	return sum, nil
}

// InCooldown reports whether the cooldown flag for key is currently set.
func (s *WindowStore) InCooldown(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, cooldownKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("check cooldown: %w", err)
	}
	return n > 0, nil
}

// SetCooldown arms the cooldown flag for key; it expires on its own.
func (s *WindowStore) SetCooldown(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, cooldownKey(key), "1", ttl).Err(); err != nil {
		return fmt.Errorf("set cooldown: %w", err)
	}
	return nil
}

// IncrementSequentialSells bumps the wallet's sell streak and returns the new
// count. The 24h TTL is armed on the first increment only.
func (s *WindowStore) IncrementSequentialSells(ctx context.Context, wallet string) (int64, error) {
	n, err := incrWithTTLScript.Run(ctx, s.rdb,
		[]string{seqSellKey(wallet)},
		int64(seqSellTTL/time.Second),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("increment sequential sells: %w", err)
	}
	return n, nil
}

// ResetSequentialSells clears the wallet's sell streak.
func (s *WindowStore) ResetSequentialSells(ctx context.Context, wallet string) error {
	if err := s.rdb.Del(ctx, seqSellKey(wallet)).Err(); err != nil {
		return fmt.Errorf("reset sequential sells: %w", err)
	}
	return nil
}

// SequentialSells returns the wallet's current sell streak, 0 when absent.
func (s *WindowStore) SequentialSells(ctx context.Context, wallet string) (int64, error) {
	res, err := s.rdb.Get(ctx, seqSellKey(wallet)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get sequential sells: %w", err)
	}
	n, err := strconv.ParseInt(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse sequential sells %q: %w", res, err)
	}
	return n, nil
}

// Ping checks backend liveness. The health endpoint gates on it.
func (s *WindowStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the redis connection pool.
func (s *WindowStore) Close() error {
	return s.rdb.Close()
}
