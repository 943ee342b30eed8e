package app

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

const recentAlertsKept = 50

// RecentAlert is one entry in the recent-alerts feed.
type RecentAlert struct {
	Rule      string  `json:"rule"`
	Wallet    string  `json:"wallet"`
	Direction string  `json:"direction"`
	USD       float64 `json:"usd"`
	Signature string  `json:"signature"`
	At        string  `json:"at"`
}

// Stats collects pipeline counters. All counters are safe for concurrent use.
type Stats struct {
	startTime time.Time

	PayloadsProcessed atomic.Int64
	PayloadsSkipped   atomic.Int64
	EventsParsed      atomic.Int64

	ChatAlerts           atomic.Int64
	SinglePushAlerts     atomic.Int64
	CumulativeAlerts     atomic.Int64
	SequentialSellAlerts atomic.Int64
	CooldownSuppressed   atomic.Int64
	BackendErrors        atomic.Int64
	DispatchFailures     atomic.Int64

	mu     sync.Mutex
	recent []RecentAlert
}

func NewStats() *Stats {
	return &Stats{startTime: time.Now()}
}

// RecordAlert appends to the recent-alerts ring.
func (s *Stats) RecordAlert(rule string, ev TransferEvent, usd float64) {
	entry := RecentAlert{
		Rule:      rule,
		Wallet:    ev.Wallet,
		Direction: string(ev.Direction),
		USD:       usd,
		Signature: ev.Signature,
		At:        time.Now().UTC().Format(time.RFC3339),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, entry)
	if len(s.recent) > recentAlertsKept {
		s.recent = s.recent[len(s.recent)-recentAlertsKept:]
	}
}

// RecentAlerts returns the feed newest-first.
func (s *Stats) RecentAlerts() []RecentAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecentAlert, len(s.recent))
	for i, a := range s.recent {
		out[len(s.recent)-1-i] = a
	}
	return out
}

// ServiceStats is the JSON shape served on /stats and the live stream.
type ServiceStats struct {
	StartTime string `json:"start_time"`
	Uptime    string `json:"uptime"`
	UptimeSec int64  `json:"uptime_seconds"`

	Pipeline struct {
		PayloadsProcessed int64 `json:"payloads_processed"`
		PayloadsSkipped   int64 `json:"payloads_skipped"`
		EventsParsed      int64 `json:"events_parsed"`
	} `json:"pipeline"`

	Alerts struct {
		Chat               int64 `json:"chat"`
		SinglePush         int64 `json:"single_push"`
		Cumulative         int64 `json:"cumulative"`
		SequentialSells    int64 `json:"sequential_sells"`
		CooldownSuppressed int64 `json:"cooldown_suppressed"`
		Total              int64 `json:"total"`
	} `json:"alerts"`

	Errors struct {
		Backend  int64 `json:"backend"`
		Dispatch int64 `json:"dispatch"`
	} `json:"errors"`

	RecentAlerts []RecentAlert `json:"recent_alerts"`

	Runtime struct {
		Goroutines int    `json:"goroutines"`
		HeapAlloc  uint64 `json:"heap_alloc"`
		NumGC      uint32 `json:"num_gc"`
		GoVersion  string `json:"go_version"`
	} `json:"runtime"`
}

// Snapshot renders the current counters.
func (s *Stats) Snapshot() ServiceStats {
	var out ServiceStats

	out.StartTime = s.startTime.UTC().Format(time.RFC3339)
	uptime := time.Since(s.startTime)
	out.Uptime = uptime.Round(time.Second).String()
	out.UptimeSec = int64(uptime.Seconds())

	out.Pipeline.PayloadsProcessed = s.PayloadsProcessed.Load()
	out.Pipeline.PayloadsSkipped = s.PayloadsSkipped.Load()
	out.Pipeline.EventsParsed = s.EventsParsed.Load()

	out.Alerts.Chat = s.ChatAlerts.Load()
	out.Alerts.SinglePush = s.SinglePushAlerts.Load()
	out.Alerts.Cumulative = s.CumulativeAlerts.Load()
	out.Alerts.SequentialSells = s.SequentialSellAlerts.Load()
	out.Alerts.CooldownSuppressed = s.CooldownSuppressed.Load()
	out.Alerts.Total = out.Alerts.Chat + out.Alerts.SinglePush +
		out.Alerts.Cumulative + out.Alerts.SequentialSells

	out.Errors.Backend = s.BackendErrors.Load()
	out.Errors.Dispatch = s.DispatchFailures.Load()

	out.RecentAlerts = s.RecentAlerts()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	out.Runtime.Goroutines = runtime.NumGoroutine()
	out.Runtime.HeapAlloc = memStats.HeapAlloc
	out.Runtime.NumGC = memStats.NumGC
	out.Runtime.GoVersion = runtime.Version()

	return out
}
