// internal/usage/meter.go
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Meter aggregates the raw usage_events stream written by the agent layer.
// Windows are half-open [start, end).
type Meter interface {
	Aggregate(ctx context.Context, orderID string, start, end time.Time) (map[string]int64, error)
	ActiveOrders(ctx context.Context, start, end time.Time) ([]string, error)
}

// EnsureSchema creates the usage_events table. Safe to call repeatedly
// (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS usage_events (
  id BIGSERIAL PRIMARY KEY,
  order_id text NOT NULL,
  metric text NOT NULL,
  value bigint NOT NULL DEFAULT 1,
  occurred_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS usage_events_order_window ON usage_events(order_id, occurred_at);
`)
	return err
}

type pgMeter struct {
	dbPool *pgxpool.Pool
}

func NewPostgresMeter(dbPool *pgxpool.Pool) Meter {
	return &pgMeter{dbPool: dbPool}
}

func (m *pgMeter) Aggregate(ctx context.Context, orderID string, start, end time.Time) (map[string]int64, error) {
	rows, err := m.dbPool.Query(ctx, `
		SELECT metric, SUM(value)
		FROM usage_events
		WHERE order_id = $1 AND occurred_at >= $2 AND occurred_at < $3
		GROUP BY metric
	`, orderID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var metric string
		var total int64
		if err := rows.Scan(&metric, &total); err != nil {
			return nil, err
		}
		out[metric] = total
	}
	return out, rows.Err()
}

func (m *pgMeter) ActiveOrders(ctx context.Context, start, end time.Time) ([]string, error) {
	rows, err := m.dbPool.Query(ctx, `
		SELECT DISTINCT order_id
		FROM usage_events
		WHERE occurred_at >= $1 AND occurred_at < $2
		ORDER BY order_id
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

type memEvent struct {
	orderID    string
	metric     string
	value      int64
	occurredAt time.Time
}

// MemoryMeter backs dev mode and tests.
type MemoryMeter struct {
	mu     sync.Mutex
	events []memEvent
	err    error
}

func NewMemoryMeter() *MemoryMeter {
	return &MemoryMeter{}
}

func (m *MemoryMeter) Add(orderID, metric string, value int64, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, memEvent{orderID: orderID, metric: metric, value: value, occurredAt: at})
}

// Fail makes subsequent calls return err. Test hook.
func (m *MemoryMeter) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryMeter) Aggregate(ctx context.Context, orderID string, start, end time.Time) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := map[string]int64{}
	for _, e := range m.events {
		if e.orderID != orderID || e.occurredAt.Before(start) || !e.occurredAt.Before(end) {
			continue
		}
		out[e.metric] += e.value
	}
	return out, nil
}

func (m *MemoryMeter) ActiveOrders(ctx context.Context, start, end time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	seen := map[string]bool{}
	out := []string{}
	for _, e := range m.events {
		if e.occurredAt.Before(start) || !e.occurredAt.Before(end) || seen[e.orderID] {
			continue
		}
		seen[e.orderID] = true
		out = append(out, e.orderID)
	}
	return out, nil
}
