// internal/usage/scheduler.go
package usage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler drives the Reporter: an hourly sweep aligned to wall-clock hour
// boundaries plus a shorter retry loop. Iteration failures are logged and
// the loops keep running.
type Scheduler struct {
	log           *zap.SugaredLogger
	reporter      *Reporter
	retryInterval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(log *zap.SugaredLogger, reporter *Reporter, retryInterval time.Duration) *Scheduler {
	return &Scheduler{log: log, reporter: reporter, retryInterval: retryInterval}
}

func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(2)
	go s.hourlyLoop(ctx)
	go s.retryLoop(ctx)
}

// Stop cancels both loops and waits for them to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
}

// hourlyLoop waits for the next hour boundary, then reports the hour that
// just closed. The first sweep is never immediate.
func (s *Scheduler) hourlyLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		now := time.Now()
		boundary := now.Truncate(time.Hour).Add(time.Hour)
		timer := time.NewTimer(boundary.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		end := time.Now().Truncate(time.Hour)
		start := end.Add(-time.Hour)
		if err := s.reporter.ReportAllUsage(ctx, start, end); err != nil {
			s.log.Errorw("hourly usage sweep failed", "start", start, "end", end, "err", err)
		}
	}
}

func (s *Scheduler) retryLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.retryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reporter.RetryFailedReports(ctx)
		}
	}
}
