package app

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// SummarySender is the dispatcher surface the scheduler uses.
type SummarySender interface {
	SendSummary(ctx context.Context, buys, sells float64, period time.Duration)
}

type summaryJob struct {
	name     string
	interval time.Duration
	period   time.Duration
	running  atomic.Bool
}

// Scheduler DMs periodic volume summaries to chat subscribers. Each job holds
// a non-reentrant guard: a tick that arrives while the previous run is still
// going is skipped with a warning.
type Scheduler struct {
	logger  *zap.Logger
	windows WindowStore
	sender  SummarySender
	mint    string
	jobs    []*summaryJob

	now func() time.Time
}

func NewScheduler(logger *zap.Logger, windows WindowStore, sender SummarySender, mint string) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		logger:  logger,
		windows: windows,
		sender:  sender,
		mint:    mint,
		jobs: []*summaryJob{
			{name: "summary-30m", interval: 30 * time.Minute, period: 30 * time.Minute},
			{name: "summary-1h", interval: 1 * time.Hour, period: 1 * time.Hour},
			{name: "summary-4h", interval: 4 * time.Hour, period: 4 * time.Hour},
		},
		now: time.Now,
	}
}

// Run starts one ticker loop per job and blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	for _, job := range s.jobs {
		go s.runJob(ctx, job)
	}
	<-ctx.Done()
}

func (s *Scheduler) runJob(ctx context.Context, job *summaryJob) {
	ticker := time.NewTicker(job.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !job.running.CompareAndSwap(false, true) {
				s.logger.Warn("summary job still running, skipping tick",
					zap.String("job", job.name),
				)
				continue
			}
			s.summarize(ctx, job)
			job.running.Store(false)
		}
	}
}

func (s *Scheduler) summarize(ctx context.Context, job *summaryJob) {
	now := s.now().Unix()

	buys, err := s.windows.CumulativeAmount(ctx, s.mint, string(DirectionBuy), now, job.period)
	if err != nil {
		s.logger.Error("summary buy volume read failed",
			zap.String("job", job.name),
			zap.Error(err),
		)
		return
	}

	sells, err := s.windows.CumulativeAmount(ctx, s.mint, string(DirectionSell), now, job.period)
	if err != nil {
		s.logger.Error("summary sell volume read failed",
			zap.String("job", job.name),
			zap.Error(err),
		)
		return
	}

	s.sender.SendSummary(ctx, buys, sells, job.period)
	s.logger.Info("sent periodic summary",
		zap.String("job", job.name),
		zap.Float64("buysUSD", buys),
		zap.Float64("sellsUSD", sells),
	)
}
