package usage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func queuedReport(orderID string, start time.Time) Report {
	return Report{
		OrderID:    orderID,
		ConsumerID: "consumer-1",
		Start:      start,
		End:        start.Add(time.Hour),
		Metrics:    map[string]int64{"requests": 1},
	}
}

func TestQueueDedupByOrderAndWindow(t *testing.T) {
	q := NewRetryQueue(zap.NewNop().Sugar(), nil)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	q.Put(ctx, queuedReport("order-1", start))
	q.Put(ctx, queuedReport("order-1", start))
	assert.Equal(t, 1, q.Len())

	// Different window for the same order is a separate entry.
	q.Put(ctx, queuedReport("order-1", start.Add(time.Hour)))
	assert.Equal(t, 2, q.Len())

	q.Put(ctx, queuedReport("order-2", start))
	assert.Equal(t, 3, q.Len())
}

func TestQueuePutKeepsHigherRetryCount(t *testing.T) {
	q := NewRetryQueue(zap.NewNop().Sugar(), nil)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	rep := queuedReport("order-1", start)
	rep.RetryCount = 2
	q.Put(ctx, rep)

	// A fresh failure for the same window must not reset the budget.
	q.Put(ctx, queuedReport("order-1", start))

	snap := q.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 2, snap[0].RetryCount)
}

func TestQueueRemove(t *testing.T) {
	q := NewRetryQueue(zap.NewNop().Sugar(), nil)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	rep := queuedReport("order-1", start)
	q.Put(ctx, rep)
	q.Remove(ctx, rep)
	assert.Zero(t, q.Len())

	// Removing an absent entry is a no-op.
	q.Remove(ctx, rep)
	assert.Zero(t, q.Len())
}
