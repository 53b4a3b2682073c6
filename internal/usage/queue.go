// internal/usage/queue.go
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisQueueKey = "billgate:failed_reports"

// Report is a usage report awaiting redelivery. One entry per order and
// window; a repeat failure for the same window replaces the entry instead
// of appending.
type Report struct {
	OrderID      string            `json:"order_id"`
	ConsumerID   string            `json:"consumer_id"`
	Start        time.Time         `json:"start"`
	End          time.Time         `json:"end"`
	Metrics      map[string]int64  `json:"metrics"`
	Labels       map[string]string `json:"labels,omitempty"`
	RetryCount   int               `json:"retry_count"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

func (r Report) key() string {
	return fmt.Sprintf("%s|%d|%d", r.OrderID, r.Start.Unix(), r.End.Unix())
}

// RetryQueue holds failed reports under one mutex shared by the scheduler
// loop and the manual retry endpoint. When a redis client is present the
// queue is mirrored there so it survives a restart; redis failures degrade
// to memory-only and are logged, never fatal.
type RetryQueue struct {
	log     *zap.SugaredLogger
	rdb     *redis.Client
	mu      sync.Mutex
	reports map[string]Report
}

func NewRetryQueue(log *zap.SugaredLogger, rdb *redis.Client) *RetryQueue {
	return &RetryQueue{log: log, rdb: rdb, reports: map[string]Report{}}
}

// Restore loads mirrored reports left over from a previous run.
func (q *RetryQueue) Restore(ctx context.Context) {
	if q.rdb == nil {
		return
	}
	entries, err := q.rdb.HGetAll(ctx, redisQueueKey).Result()
	if err != nil {
		q.log.Warnw("retry queue restore failed", "err", err)
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for key, raw := range entries {
		var rep Report
		if err := json.Unmarshal([]byte(raw), &rep); err != nil {
			q.log.Warnw("retry queue entry unreadable, dropping", "key", key, "err", err)
			continue
		}
		q.reports[key] = rep
	}
	if len(q.reports) > 0 {
		q.log.Infow("retry queue restored", "reports", len(q.reports))
	}
}

// Put inserts or replaces the entry for the report's order and window. The
// retry count of an existing entry is preserved unless the incoming report
// carries a higher one.
func (q *RetryQueue) Put(ctx context.Context, rep Report) {
	key := rep.key()
	q.mu.Lock()
	if prev, ok := q.reports[key]; ok && prev.RetryCount > rep.RetryCount {
		rep.RetryCount = prev.RetryCount
	}
	q.reports[key] = rep
	q.mu.Unlock()
	q.mirror(ctx, key, &rep)
}

// Remove deletes the entry for the report's order and window.
func (q *RetryQueue) Remove(ctx context.Context, rep Report) {
	key := rep.key()
	q.mu.Lock()
	delete(q.reports, key)
	q.mu.Unlock()
	q.mirror(ctx, key, nil)
}

// Snapshot returns a copy of the queued reports for iteration outside the
// lock.
func (q *RetryQueue) Snapshot() []Report {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Report, 0, len(q.reports))
	for _, rep := range q.reports {
		out = append(out, rep)
	}
	return out
}

func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.reports)
}

func (q *RetryQueue) mirror(ctx context.Context, key string, rep *Report) {
	if q.rdb == nil {
		return
	}
	if rep == nil {
		if err := q.rdb.HDel(ctx, redisQueueKey, key).Err(); err != nil {
			q.log.Warnw("retry queue mirror delete failed", "key", key, "err", err)
		}
		return
	}
	raw, err := json.Marshal(rep)
	if err != nil {
		return
	}
	if err := q.rdb.HSet(ctx, redisQueueKey, key, raw).Err(); err != nil {
		q.log.Warnw("retry queue mirror write failed", "key", key, "err", err)
	}
}
