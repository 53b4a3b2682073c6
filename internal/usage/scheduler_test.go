package usage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSchedulerRetryLoopDrainsQueue(t *testing.T) {
	f := newReporterFixture(t)
	f.provisionOrder(t, "consumer-9")
	f.meter.Add("order-1", MetricRequests, 1, windowStart.Add(time.Minute))

	f.billing.reportFails = 1
	f.reporter.ReportUsage(context.Background(), "order-1", windowStart, windowEnd)
	require.Equal(t, 1, f.reporter.FailedReportsCount())

	s := NewScheduler(zap.NewNop().Sugar(), f.reporter, 10*time.Millisecond)
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool {
		return f.reporter.FailedReportsCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerStopReturnsPromptly(t *testing.T) {
	f := newReporterFixture(t)
	s := NewScheduler(zap.NewNop().Sugar(), f.reporter, time.Minute)
	s.Start(context.Background())

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not cancel the loops")
	}
}

func TestSchedulerStopWithoutStart(t *testing.T) {
	f := newReporterFixture(t)
	s := NewScheduler(zap.NewNop().Sugar(), f.reporter, time.Minute)
	assert.NotPanics(t, s.Stop)
}

func TestSchedulerHourlyFirstRunWaitsForBoundary(t *testing.T) {
	// The hourly sweep is aligned to wall-clock hours; starting the
	// scheduler must not trigger an immediate report.
	if time.Until(time.Now().Truncate(time.Hour).Add(time.Hour)) < time.Second {
		t.Skip("too close to an hour boundary")
	}
	f := newReporterFixture(t)
	f.provisionOrder(t, "consumer-9")
	f.meter.Add("order-1", MetricRequests, 1, time.Now().Add(-30*time.Minute))

	s := NewScheduler(zap.NewNop().Sugar(), f.reporter, time.Hour)
	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	assert.Empty(t, f.billing.reportCalls)
	assert.Zero(t, f.billing.checkCalls)
}
