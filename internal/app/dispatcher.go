package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tokenwatch/internal/store"
)

const solscanTxURL = "https://solscan.io/tx/"

// ChatClient is the chat channel surface the dispatcher needs.
type ChatClient interface {
	Broadcast(ctx context.Context, message string) error
	DirectMessage(ctx context.Context, userID, message string) error
}

// PushClient sends one push notification to one user key.
type PushClient interface {
	Push(ctx context.Context, userKey, title, message string) error
}

// SubscriberSource is the registry surface the dispatcher reads.
type SubscriberSource interface {
	SubscribersGeneral() ([]store.PushSubscription, error)
	SubscribersSequentialSells() ([]store.PushSubscription, error)
	ChatSubscribers() ([]string, error)
}

// Dispatcher formats alerts and fans them out to the chat channel and the
// per-user push subscribers. Per-subscriber sends run concurrently;
// individual failures are logged and never abort siblings.
type Dispatcher struct {
	logger     *zap.Logger
	chat       ChatClient
	push       PushClient
	registry   SubscriberSource
	tokenLabel string
	stats      *Stats
}

func NewDispatcher(logger *zap.Logger, chat ChatClient, push PushClient, registry SubscriberSource, tokenLabel string, stats *Stats) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stats == nil {
		stats = NewStats()
	}
	return &Dispatcher{
		logger:     logger,
		chat:       chat,
		push:       push,
		registry:   registry,
		tokenLabel: tokenLabel,
		stats:      stats,
	}
}

// AnnounceChat posts a large-trade announcement to the chat channel.
func (d *Dispatcher) AnnounceChat(ctx context.Context, ev TransferEvent) {
	if err := d.chat.Broadcast(ctx, d.formatEvent(ev)); err != nil {
		d.stats.DispatchFailures.Add(1)
		d.logger.Error("chat broadcast failed",
			zap.String("signature", ev.Signature),
			zap.Error(err),
		)
		return
	}
	d.logger.Info("sent chat announcement",
		zap.String("direction", string(ev.Direction)),
		zap.String("wallet", shortAddress(ev.Wallet)),
	)
}

// PushLargeSingle fans a single-trade alert out to the general subscribers.
func (d *Dispatcher) PushLargeSingle(ctx context.Context, ev TransferEvent) {
	subs, err := d.registry.SubscribersGeneral()
	if err != nil {
		d.stats.DispatchFailures.Add(1)
		d.logger.Error("failed to load general subscribers", zap.Error(err))
		return
	}

	title := fmt.Sprintf("%s Large %s", directionSymbol(ev.Direction), strings.ToUpper(string(ev.Direction)))
	d.fanOut(ctx, subs, title, d.formatEvent(ev))
}

// PushCumulative fans a windowed-volume alert out to the general subscribers.
func (d *Dispatcher) PushCumulative(ctx context.Context, ev TransferEvent, cumulative float64, window time.Duration) {
	subs, err := d.registry.SubscribersGeneral()
	if err != nil {
		d.stats.DispatchFailures.Add(1)
		d.logger.Error("failed to load general subscribers", zap.Error(err))
		return
	}

	title := fmt.Sprintf("%s Cumulative %s volume", directionSymbol(ev.Direction), strings.ToUpper(string(ev.Direction)))
	message := fmt.Sprintf("$%.2f of %s %ss in the last %d minutes\nLatest: %s",
		cumulative, d.tokenLabel, ev.Direction, int(window.Minutes()), d.formatEvent(ev))
	d.fanOut(ctx, subs, title, message)
}

// PushSequentialSells fans a sell-streak alert out to its dedicated
// subscriber class.
func (d *Dispatcher) PushSequentialSells(ctx context.Context, ev TransferEvent, count int64) {
	subs, err := d.registry.SubscribersSequentialSells()
	if err != nil {
		d.stats.DispatchFailures.Add(1)
		d.logger.Error("failed to load sequential-sells subscribers", zap.Error(err))
		return
	}

	title := fmt.Sprintf("🔁 %d sells in a row", count)
	message := fmt.Sprintf("%s hit %d qualifying sells in a row\nLatest: %s",
		shortAddress(ev.Wallet), count, d.formatEvent(ev))
	d.fanOut(ctx, subs, title, message)
}

// SendSummary DMs the periodic buy/sell volume summary to every chat
// subscriber.
func (d *Dispatcher) SendSummary(ctx context.Context, buys, sells float64, period time.Duration) {
	subscribers, err := d.registry.ChatSubscribers()
	if err != nil {
		d.stats.DispatchFailures.Add(1)
		d.logger.Error("failed to load chat subscribers", zap.Error(err))
		return
	}
	if len(subscribers) == 0 {
		return
	}

	message := fmt.Sprintf("%s summary — last %s\n🟢 Buys: $%.2f\n🔴 Sells: $%.2f",
		d.tokenLabel, period.String(), buys, sells)

	var wg sync.WaitGroup
	for _, userID := range subscribers {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			if err := d.chat.DirectMessage(ctx, userID, message); err != nil {
				d.stats.DispatchFailures.Add(1)
				d.logger.Warn("summary dm failed",
					zap.String("userID", userID),
					zap.Error(err),
				)
			}
		}(userID)
	}
	wg.Wait()
}

// SendTestNotifications sends a canned message to the chat channel and to the
// first general push subscriber, reporting per-channel success.
func (d *Dispatcher) SendTestNotifications(ctx context.Context) (chatOK, pushOK bool) {
	message := fmt.Sprintf("%s test notification — channels are wired up", d.tokenLabel)

	if err := d.chat.Broadcast(ctx, message); err != nil {
		d.logger.Warn("test chat broadcast failed", zap.Error(err))
	} else {
		chatOK = true
	}

	subs, err := d.registry.SubscribersGeneral()
	if err != nil || len(subs) == 0 {
		return chatOK, false
	}
	if err := d.push.Push(ctx, subs[0].PushKey, "Test notification", message); err != nil {
		d.logger.Warn("test push failed",
			zap.String("userID", subs[0].UserID),
			zap.Error(err),
		)
		return chatOK, false
	}
	return chatOK, true
}

// fanOut delivers one push to every subscriber concurrently and waits for the
// stragglers. Fire-and-collect: failures are logged, siblings unaffected.
func (d *Dispatcher) fanOut(ctx context.Context, subs []store.PushSubscription, title, message string) {
	if len(subs) == 0 {
		d.logger.Debug("no push subscribers for alert", zap.String("title", title))
		return
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub store.PushSubscription) {
			defer wg.Done()
			if err := d.push.Push(ctx, sub.PushKey, title, message); err != nil {
				d.stats.DispatchFailures.Add(1)
				d.logger.Warn("push send failed",
					zap.String("userID", sub.UserID),
					zap.Error(err),
				)
			}
		}(sub)
	}
	wg.Wait()

	d.logger.Info("push fan-out complete",
		zap.String("title", title),
		zap.Int("subscribers", len(subs)),
	)
}

// formatEvent renders the shared event summary line.
func (d *Dispatcher) formatEvent(ev TransferEvent) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s %s %s\n", directionSymbol(ev.Direction), strings.ToUpper(string(ev.Direction)), d.tokenLabel))
	sb.WriteString(fmt.Sprintf("Wallet: %s\n", shortAddress(ev.Wallet)))
	sb.WriteString(fmt.Sprintf("Amount: %s %s", formatAmount(ev.UIAmount()), d.tokenLabel))
	if ev.USD != nil {
		sb.WriteString(fmt.Sprintf(" ($%.2f)", *ev.USD))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Tx: %s%s\n", solscanTxURL, ev.Signature))
	sb.WriteString(time.Unix(ev.Timestamp, 0).UTC().Format("2006-01-02 15:04:05 UTC"))

	return sb.String()
}

func directionSymbol(d Direction) string {
	if d == DirectionSell {
		return "🔴"
	}
	return "🟢"
}
