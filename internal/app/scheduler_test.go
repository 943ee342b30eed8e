package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_DefaultJobs(t *testing.T) {
	s := NewScheduler(nil, NewMockWindowStore(), &MockSummarySender{}, testMint)

	require.Len(t, s.jobs, 3)
	assert.Equal(t, 30*time.Minute, s.jobs[0].period)
	assert.Equal(t, 1*time.Hour, s.jobs[1].period)
	assert.Equal(t, 4*time.Hour, s.jobs[2].period)
}

func TestScheduler_SummarizeReadsBothDirections(t *testing.T) {
	windows := NewMockWindowStore()
	now := time.Now().Unix()
	ctx := context.Background()
	_, err := windows.AddToWindow(ctx, testMint, string(DirectionBuy), 120, now-60, time.Hour)
	require.NoError(t, err)
	_, err = windows.AddToWindow(ctx, testMint, string(DirectionSell), 80, now-60, time.Hour)
	require.NoError(t, err)

	sender := &MockSummarySender{}
	s := NewScheduler(nil, windows, sender, testMint)

	s.summarize(ctx, s.jobs[1])

	calls := sender.Calls()
	require.Len(t, calls, 1)
	assert.InDelta(t, 120.0, calls[0].buys, 1e-9)
	assert.InDelta(t, 80.0, calls[0].sells, 1e-9)
	assert.Equal(t, 1*time.Hour, calls[0].period)
}

func TestScheduler_SlowRunSkipsOverlappingTicks(t *testing.T) {
	// A sender slower than the tick interval: overlapping ticks must be
	// skipped, not queued.
	sender := &MockSummarySender{delay: 80 * time.Millisecond}
	s := NewScheduler(nil, NewMockWindowStore(), sender, testMint)
	s.jobs = []*summaryJob{{name: "fast", interval: 10 * time.Millisecond, period: time.Hour}}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	// ~10 ticks fit in the test window; at most two runs can complete.
	assert.LessOrEqual(t, len(sender.Calls()), 2)
	assert.GreaterOrEqual(t, len(sender.Calls()), 1)
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	s := NewScheduler(nil, NewMockWindowStore(), &MockSummarySender{}, testMint)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}
