package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// WindowStore is the slice of the shared store the rule engine needs.
type WindowStore interface {
	AddToWindow(ctx context.Context, mint, direction string, usd float64, ts int64, window time.Duration) (float64, error)
	CumulativeAmount(ctx context.Context, mint, direction string, now int64, period time.Duration) (float64, error)
	InCooldown(ctx context.Context, key string) (bool, error)
	SetCooldown(ctx context.Context, key string, ttl time.Duration) error
	IncrementSequentialSells(ctx context.Context, wallet string) (int64, error)
	ResetSequentialSells(ctx context.Context, wallet string) error
	SequentialSells(ctx context.Context, wallet string) (int64, error)
}

// PriceOracle resolves USD values for events.
type PriceOracle interface {
	USDValue(ctx context.Context, mint string, rawAmount uint64, decimals uint8) (float64, bool)
}

// AlertSink receives the engine's dispatch decisions.
type AlertSink interface {
	AnnounceChat(ctx context.Context, ev TransferEvent)
	PushLargeSingle(ctx context.Context, ev TransferEvent)
	PushCumulative(ctx context.Context, ev TransferEvent, cumulative float64, window time.Duration)
	PushSequentialSells(ctx context.Context, ev TransferEvent, count int64)
}

// EngineConfig holds the rule thresholds.
type EngineConfig struct {
	ChatThresholdUSD       float64
	SingleThresholdUSD     float64
	CumulativeThresholdUSD float64
	Window                 time.Duration
	FiveSellsEnabled       bool
	FiveSellsThresholdUSD  float64
	FiveSellsTrigger       int64
}

// Engine applies the alert rule set to each transfer event. Rules run in a
// fixed order; one rule's dispatch failure never aborts the rest, but a
// window-store failure drops the event (its remaining rules all need the
// store).
type Engine struct {
	logger  *zap.Logger
	windows WindowStore
	oracle  PriceOracle
	sink    AlertSink
	cfg     EngineConfig
	stats   *Stats
}

func NewEngine(logger *zap.Logger, windows WindowStore, oracle PriceOracle, sink AlertSink, cfg EngineConfig, stats *Stats) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stats == nil {
		stats = NewStats()
	}
	return &Engine{
		logger:  logger,
		windows: windows,
		oracle:  oracle,
		sink:    sink,
		cfg:     cfg,
		stats:   stats,
	}
}

// Process runs the rule set over one event.
func (e *Engine) Process(ctx context.Context, ev TransferEvent) {
	e.stats.EventsParsed.Add(1)

	usd, hasUSD := e.oracle.USDValue(ctx, ev.Mint, ev.RawAmount, ev.Decimals)
	if hasUSD {
		ev.USD = &usd
	}

	// Rule: chat-announce-large. Independent of the push rules, no cooldown.
	if hasUSD && usd >= e.cfg.ChatThresholdUSD {
		e.stats.ChatAlerts.Add(1)
		e.stats.RecordAlert("chat_large", ev, usd)
		e.sink.AnnounceChat(ctx, ev)
	}

	// Rule: push-large-single. No cooldown.
	if hasUSD && usd >= e.cfg.SingleThresholdUSD {
		e.stats.SinglePushAlerts.Add(1)
		e.stats.RecordAlert("push_large_single", ev, usd)
		e.sink.PushLargeSingle(ctx, ev)
	}

	// Rule: push-cumulative. The window update happens even when the
	// cooldown suppresses the notification, so the window always reflects
	// actual volume.
	if hasUSD {
		if done := e.runCumulative(ctx, ev, usd); done {
			return
		}
	}

	// Rule: sequential-sells.
	if e.cfg.FiveSellsEnabled {
		e.runSequentialSells(ctx, ev, usd, hasUSD)
	}
}

// runCumulative returns true when a store failure means the event must be
// dropped without running further rules.
func (e *Engine) runCumulative(ctx context.Context, ev TransferEvent, usd float64) bool {
	cumulative, err := e.windows.AddToWindow(ctx, ev.Mint, string(ev.Direction), usd, ev.Timestamp, e.cfg.Window)
	if err != nil {
		e.stats.BackendErrors.Add(1)
		e.logger.Error("window update failed, dropping event",
			zap.String("signature", ev.Signature),
			zap.Error(err),
		)
		return true
	}

	if cumulative < e.cfg.CumulativeThresholdUSD {
		return false
	}

	key := ev.Mint + ":" + string(ev.Direction) + ":cumulative"
	inCooldown, err := e.windows.InCooldown(ctx, key)
	if err != nil {
		e.stats.BackendErrors.Add(1)
		e.logger.Error("cooldown check failed, dropping event",
			zap.String("signature", ev.Signature),
			zap.Error(err),
		)
		return true
	}
	if inCooldown {
		e.stats.CooldownSuppressed.Add(1)
		e.logger.Info("cumulative alert suppressed by cooldown",
			zap.String("mint", ev.Mint),
			zap.String("direction", string(ev.Direction)),
			zap.Float64("cumulativeUSD", cumulative),
		)
		return false
	}

	e.stats.CumulativeAlerts.Add(1)
	e.stats.RecordAlert("push_cumulative", ev, cumulative)
	e.sink.PushCumulative(ctx, ev, cumulative, e.cfg.Window)

	if err := e.windows.SetCooldown(ctx, key, e.cfg.Window); err != nil {
		e.stats.BackendErrors.Add(1)
		e.logger.Error("failed to arm cumulative cooldown",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return false
}

func (e *Engine) runSequentialSells(ctx context.Context, ev TransferEvent, usd float64, hasUSD bool) {
	switch ev.Direction {
	case DirectionBuy:
		// Any buy breaks the streak, whatever its size.
		if err := e.windows.ResetSequentialSells(ctx, ev.Wallet); err != nil {
			e.stats.BackendErrors.Add(1)
			e.logger.Error("failed to reset sell streak",
				zap.String("wallet", ev.Wallet),
				zap.Error(err),
			)
		}

	case DirectionSell:
		if !hasUSD || usd < e.cfg.FiveSellsThresholdUSD {
			return
		}
		count, err := e.windows.IncrementSequentialSells(ctx, ev.Wallet)
		if err != nil {
			e.stats.BackendErrors.Add(1)
			e.logger.Error("failed to bump sell streak",
				zap.String("wallet", ev.Wallet),
				zap.Error(err),
			)
			return
		}
		if count < e.cfg.FiveSellsTrigger {
			return
		}

		e.stats.SequentialSellAlerts.Add(1)
		e.stats.RecordAlert("push_sequential_sells", ev, usd)
		e.sink.PushSequentialSells(ctx, ev, count)

		if err := e.windows.ResetSequentialSells(ctx, ev.Wallet); err != nil {
			e.stats.BackendErrors.Add(1)
			e.logger.Error("failed to reset sell streak after alert",
				zap.String("wallet", ev.Wallet),
				zap.Error(err),
			)
		}
	}
}
