package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"tokenwatch/internal/store"
)

var errPushRejected = errors.New("push rejected")

// MockWindowStore is an in-memory WindowStore for testing.
type MockWindowStore struct {
	mu        sync.Mutex
	entries   map[string][]windowEntry
	cooldowns map[string]bool
	streaks   map[string]int64

	addErr      error
	cooldownErr error
	incrErr     error
	pingErr     error
}

type windowEntry struct {
	ts  int64
	usd float64
}

func NewMockWindowStore() *MockWindowStore {
	return &MockWindowStore{
		entries:   make(map[string][]windowEntry),
		cooldowns: make(map[string]bool),
		streaks:   make(map[string]int64),
	}
}

func (m *MockWindowStore) AddToWindow(_ context.Context, mint, direction string, usd float64, ts int64, window time.Duration) (float64, error) {
	if m.addErr != nil {
		return 0, m.addErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := mint + ":" + direction
	cutoff := ts - int64(window/time.Second)
	kept := m.entries[key][:0]
	for _, e := range m.entries[key] {
		if e.ts >= cutoff {
			kept = append(kept, e)
		}
	}
	kept = append(kept, windowEntry{ts: ts, usd: usd})
	m.entries[key] = kept

	var sum float64
	for _, e := range kept {
		sum += e.usd
	}
	return sum, nil
}

func (m *MockWindowStore) CumulativeAmount(_ context.Context, mint, direction string, now int64, period time.Duration) (float64, error) {
	if m.addErr != nil {
		return 0, m.addErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now - int64(period/time.Second)
	var sum float64
	for _, e := range m.entries[mint+":"+direction] {
		if e.ts >= cutoff {
			sum += e.usd
		}
	}
	return sum, nil
}

func (m *MockWindowStore) InCooldown(_ context.Context, key string) (bool, error) {
	if m.cooldownErr != nil {
		return false, m.cooldownErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cooldowns[key], nil
}

func (m *MockWindowStore) SetCooldown(_ context.Context, key string, _ time.Duration) error {
	if m.cooldownErr != nil {
		return m.cooldownErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldowns[key] = true
	return nil
}

func (m *MockWindowStore) IncrementSequentialSells(_ context.Context, wallet string) (int64, error) {
	if m.incrErr != nil {
		return 0, m.incrErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streaks[wallet]++
	return m.streaks[wallet], nil
}

func (m *MockWindowStore) ResetSequentialSells(_ context.Context, wallet string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streaks, wallet)
	return nil
}

func (m *MockWindowStore) SequentialSells(_ context.Context, wallet string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streaks[wallet], nil
}

func (m *MockWindowStore) Ping(_ context.Context) error {
	return m.pingErr
}

func (m *MockWindowStore) Streak(wallet string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streaks[wallet]
}

// MockOracle resolves every mint at a fixed price.
type MockOracle struct {
	price     float64
	available bool
}

func (m *MockOracle) USDValue(_ context.Context, _ string, rawAmount uint64, decimals uint8) (float64, bool) {
	if !m.available {
		return 0, false
	}
	v := float64(rawAmount)
	for i := uint8(0); i < decimals; i++ {
		v /= 10
	}
	return v * m.price, true
}

// MockSink records every dispatch the engine makes.
type MockSink struct {
	mu sync.Mutex

	ChatEvents       []TransferEvent
	SingleEvents     []TransferEvent
	CumulativeEvents []TransferEvent
	CumulativeSums   []float64
	SequentialEvents []TransferEvent
	SequentialCounts []int64

	panicOnChat bool
}

func (m *MockSink) AnnounceChat(_ context.Context, ev TransferEvent) {
	if m.panicOnChat {
		panic("sink exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChatEvents = append(m.ChatEvents, ev)
}

func (m *MockSink) PushLargeSingle(_ context.Context, ev TransferEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SingleEvents = append(m.SingleEvents, ev)
}

func (m *MockSink) PushCumulative(_ context.Context, ev TransferEvent, cumulative float64, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CumulativeEvents = append(m.CumulativeEvents, ev)
	m.CumulativeSums = append(m.CumulativeSums, cumulative)
}

func (m *MockSink) PushSequentialSells(_ context.Context, ev TransferEvent, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SequentialEvents = append(m.SequentialEvents, ev)
	m.SequentialCounts = append(m.SequentialCounts, count)
}

func (m *MockSink) ChatCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ChatEvents)
}

// MockRegistry serves subscribers and tracked wallets from memory.
type MockRegistry struct {
	mu sync.Mutex

	General        []store.PushSubscription
	SequentialSubs []store.PushSubscription
	Chat           []string
	Tracked        map[string]bool

	subsErr    error
	trackedErr error
}

func NewMockRegistry() *MockRegistry {
	return &MockRegistry{Tracked: make(map[string]bool)}
}

func (m *MockRegistry) SubscribersGeneral() ([]store.PushSubscription, error) {
	if m.subsErr != nil {
		return nil, m.subsErr
	}
	return m.General, nil
}

func (m *MockRegistry) SubscribersSequentialSells() ([]store.PushSubscription, error) {
	if m.subsErr != nil {
		return nil, m.subsErr
	}
	return m.SequentialSubs, nil
}

func (m *MockRegistry) ChatSubscribers() ([]string, error) {
	if m.subsErr != nil {
		return nil, m.subsErr
	}
	return m.Chat, nil
}

func (m *MockRegistry) IsWalletTracked(address string) (bool, error) {
	if m.trackedErr != nil {
		return false, m.trackedErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Empty set means open tracking.
	if len(m.Tracked) == 0 {
		return true, nil
	}
	return m.Tracked[address], nil
}

func (m *MockRegistry) WalletCount() (int, error) {
	return len(m.Tracked), nil
}

func (m *MockRegistry) SubscriberCount() (int, error) {
	return len(m.General) + len(m.SequentialSubs), nil
}

// MockChat records broadcasts and direct messages.
type MockChat struct {
	mu sync.Mutex

	Broadcasts []string
	DMs        map[string][]string

	broadcastErr error
	dmErr        error
}

func NewMockChat() *MockChat {
	return &MockChat{DMs: make(map[string][]string)}
}

func (m *MockChat) Broadcast(_ context.Context, message string) error {
	if m.broadcastErr != nil {
		return m.broadcastErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Broadcasts = append(m.Broadcasts, message)
	return nil
}

func (m *MockChat) DirectMessage(_ context.Context, userID, message string) error {
	if m.dmErr != nil {
		return m.dmErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DMs[userID] = append(m.DMs[userID], message)
	return nil
}

// MockPush records pushes per user key. Keys listed in failKeys error out.
type MockPush struct {
	mu sync.Mutex

	Pushes   []PushRecord
	failKeys map[string]bool
}

type PushRecord struct {
	UserKey string
	Title   string
	Message string
}

func NewMockPush() *MockPush {
	return &MockPush{failKeys: make(map[string]bool)}
}

func (m *MockPush) Push(_ context.Context, userKey, title, message string) error {
	if m.failKeys[userKey] {
		return errPushRejected
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Pushes = append(m.Pushes, PushRecord{UserKey: userKey, Title: title, Message: message})
	return nil
}

func (m *MockPush) Sent() []PushRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PushRecord, len(m.Pushes))
	copy(out, m.Pushes)
	return out
}

// MockSummarySender records summary calls.
type MockSummarySender struct {
	mu    sync.Mutex
	calls []summaryCall
	delay time.Duration
}

type summaryCall struct {
	buys   float64
	sells  float64
	period time.Duration
}

func (m *MockSummarySender) SendSummary(_ context.Context, buys, sells float64, period time.Duration) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, summaryCall{buys: buys, sells: sells, period: period})
}

func (m *MockSummarySender) Calls() []summaryCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]summaryCall, len(m.calls))
	copy(out, m.calls)
	return out
}
