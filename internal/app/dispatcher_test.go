package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenwatch/internal/store"
)

func usdPtr(v float64) *float64 { return &v }

func testEvent() TransferEvent {
	return TransferEvent{
		Wallet:    "SellerWalletAddress11111111111111111111111",
		Mint:      testMint,
		RawAmount: 1_500_000_000,
		Decimals:  9,
		Signature: "txsig123",
		Timestamp: 1700000000,
		Direction: DirectionSell,
		USD:       usdPtr(420.50),
	}
}

func TestAnnounceChat_Format(t *testing.T) {
	chat := NewMockChat()
	d := NewDispatcher(nil, chat, NewMockPush(), NewMockRegistry(), "WIF", nil)

	d.AnnounceChat(context.Background(), testEvent())

	require.Len(t, chat.Broadcasts, 1)
	msg := chat.Broadcasts[0]
	assert.Contains(t, msg, "🔴 SELL WIF")
	assert.Contains(t, msg, "Seller…111111")
	assert.Contains(t, msg, "1.5 WIF")
	assert.Contains(t, msg, "($420.50)")
	assert.Contains(t, msg, solscanTxURL+"txsig123")
}

func TestAnnounceChat_BroadcastFailureCounted(t *testing.T) {
	chat := NewMockChat()
	chat.broadcastErr = errors.New("channel gone")
	stats := NewStats()
	d := NewDispatcher(nil, chat, NewMockPush(), NewMockRegistry(), "WIF", stats)

	d.AnnounceChat(context.Background(), testEvent())

	assert.Equal(t, int64(1), stats.DispatchFailures.Load())
}

func TestPushLargeSingle_FansOutToGeneral(t *testing.T) {
	registry := NewMockRegistry()
	registry.General = []store.PushSubscription{
		{UserID: "u1", PushKey: "key1"},
		{UserID: "u2", PushKey: "key2"},
	}
	push := NewMockPush()
	d := NewDispatcher(nil, NewMockChat(), push, registry, "WIF", nil)

	d.PushLargeSingle(context.Background(), testEvent())

	sent := push.Sent()
	require.Len(t, sent, 2)
	keys := map[string]bool{sent[0].UserKey: true, sent[1].UserKey: true}
	assert.True(t, keys["key1"] && keys["key2"])
	assert.Contains(t, sent[0].Title, "SELL")
}

func TestFanOut_OneFailureDoesNotBlockOthers(t *testing.T) {
	registry := NewMockRegistry()
	registry.General = []store.PushSubscription{
		{UserID: "u1", PushKey: "bad"},
		{UserID: "u2", PushKey: "good"},
	}
	push := NewMockPush()
	push.failKeys["bad"] = true
	stats := NewStats()
	d := NewDispatcher(nil, NewMockChat(), push, registry, "WIF", stats)

	d.PushLargeSingle(context.Background(), testEvent())

	sent := push.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "good", sent[0].UserKey)
	assert.Equal(t, int64(1), stats.DispatchFailures.Load())
}

func TestPushCumulative_MessageCarriesWindow(t *testing.T) {
	registry := NewMockRegistry()
	registry.General = []store.PushSubscription{{UserID: "u1", PushKey: "key1"}}
	push := NewMockPush()
	d := NewDispatcher(nil, NewMockChat(), push, registry, "WIF", nil)

	d.PushCumulative(context.Background(), testEvent(), 1234.56, time.Hour)

	sent := push.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Message, "$1234.56")
	assert.Contains(t, sent[0].Message, "60 minutes")
}

func TestPushSequentialSells_UsesDedicatedSubscribers(t *testing.T) {
	registry := NewMockRegistry()
	registry.General = []store.PushSubscription{{UserID: "g", PushKey: "generalKey"}}
	registry.SequentialSubs = []store.PushSubscription{{UserID: "s", PushKey: "seqKey"}}
	push := NewMockPush()
	d := NewDispatcher(nil, NewMockChat(), push, registry, "WIF", nil)

	d.PushSequentialSells(context.Background(), testEvent(), 5)

	sent := push.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "seqKey", sent[0].UserKey)
	assert.Contains(t, sent[0].Title, "5 sells in a row")
}

func TestSendSummary_DMsEachChatSubscriber(t *testing.T) {
	registry := NewMockRegistry()
	registry.Chat = []string{"u1", "u2", "u3"}
	chat := NewMockChat()
	d := NewDispatcher(nil, chat, NewMockPush(), registry, "WIF", nil)

	d.SendSummary(context.Background(), 1500.25, 980.75, 30*time.Minute)

	require.Len(t, chat.DMs, 3)
	for _, userID := range registry.Chat {
		require.Len(t, chat.DMs[userID], 1)
		msg := chat.DMs[userID][0]
		assert.Contains(t, msg, "$1500.25")
		assert.Contains(t, msg, "$980.75")
		assert.Contains(t, msg, "30m")
	}
}

func TestSendSummary_NoSubscribersNoDM(t *testing.T) {
	chat := NewMockChat()
	d := NewDispatcher(nil, chat, NewMockPush(), NewMockRegistry(), "WIF", nil)

	d.SendSummary(context.Background(), 100, 200, time.Hour)

	assert.Empty(t, chat.DMs)
}

func TestSendTestNotifications(t *testing.T) {
	t.Run("all channels up", func(t *testing.T) {
		registry := NewMockRegistry()
		registry.General = []store.PushSubscription{{UserID: "u1", PushKey: "key1"}}
		d := NewDispatcher(nil, NewMockChat(), NewMockPush(), registry, "WIF", nil)

		chatOK, pushOK := d.SendTestNotifications(context.Background())
		assert.True(t, chatOK)
		assert.True(t, pushOK)
	})

	t.Run("no push subscribers", func(t *testing.T) {
		d := NewDispatcher(nil, NewMockChat(), NewMockPush(), NewMockRegistry(), "WIF", nil)

		chatOK, pushOK := d.SendTestNotifications(context.Background())
		assert.True(t, chatOK)
		assert.False(t, pushOK)
	})

	t.Run("chat down", func(t *testing.T) {
		chat := NewMockChat()
		chat.broadcastErr = errors.New("no session")
		d := NewDispatcher(nil, chat, NewMockPush(), NewMockRegistry(), "WIF", nil)

		chatOK, _ := d.SendTestNotifications(context.Background())
		assert.False(t, chatOK)
	})
}

func TestFormatEvent_NoUSD(t *testing.T) {
	ev := testEvent()
	ev.USD = nil
	d := NewDispatcher(nil, NewMockChat(), NewMockPush(), NewMockRegistry(), "WIF", nil)

	msg := d.formatEvent(ev)
	assert.NotContains(t, msg, "($")
	assert.Contains(t, msg, "1.5 WIF")
}
