// internal/usage/reporter.go
package usage

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"billgate/internal/procurement"
	"billgate/pkg/metrics"
)

// Result is the outcome of one report attempt. Reported distinguishes a
// delivered report from a nothing-to-report no-op, both of which succeed.
type Result struct {
	OrderID  string
	Success  bool
	Reported bool
	Detail   string
}

// DropFunc is invoked when a report exhausts its retries and is removed
// from the queue. Wire it to alerting.
type DropFunc func(Report)

// Reporter aggregates an order's billable usage for a window and delivers
// it with the check-then-report sequence. Failures go to the retry queue,
// bounded by maxRetries.
type Reporter struct {
	log          *zap.SugaredLogger
	entitlements procurement.EntitlementRepo
	meter        Meter
	billing      BillingClient
	mapping      *MetricMap
	queue        *RetryQueue
	maxRetries   int
	onDrop       DropFunc
}

func NewReporter(
	log *zap.SugaredLogger,
	entitlements procurement.EntitlementRepo,
	meter Meter,
	billing BillingClient,
	mapping *MetricMap,
	queue *RetryQueue,
	maxRetries int,
	onDrop DropFunc,
) *Reporter {
	return &Reporter{
		log:          log,
		entitlements: entitlements,
		meter:        meter,
		billing:      billing,
		mapping:      mapping,
		queue:        queue,
		maxRetries:   maxRetries,
		onDrop:       onDrop,
	}
}

func (r *Reporter) ReportUsage(ctx context.Context, orderID string, start, end time.Time) Result {
	ent, err := r.entitlements.Get(ctx, orderID)
	if err != nil {
		// An order that does not exist will not start existing later, so
		// there is nothing to queue.
		if errors.Is(err, procurement.ErrNotFound) {
			return Result{OrderID: orderID, Detail: "order not found"}
		}
		return Result{OrderID: orderID, Detail: "order lookup failed: " + err.Error()}
	}

	raw, err := r.meter.Aggregate(ctx, orderID, start, end)
	if err != nil {
		return Result{OrderID: orderID, Detail: "metering failed: " + err.Error()}
	}
	mapped := r.mapping.Map(raw)
	if len(mapped) == 0 {
		return Result{OrderID: orderID, Success: true}
	}

	rep := Report{
		OrderID:    orderID,
		ConsumerID: consumerID(ent),
		Start:      start,
		End:        end,
		Metrics:    mapped,
		Labels:     map[string]string{"order_id": orderID},
	}
	if err := r.deliver(ctx, rep); err != nil {
		rep.ErrorMessage = err.Error()
		r.queue.Put(ctx, rep)
		metrics.ReportsQueued.Inc()
		r.log.Warnw("usage report failed, queued for retry", "order", orderID, "err", err)
		return Result{OrderID: orderID, Detail: err.Error()}
	}

	// Clear any stale retry entry for the same window.
	r.queue.Remove(ctx, rep)
	metrics.ReportsDelivered.Inc()
	return Result{OrderID: orderID, Success: true, Reported: true}
}

// ReportAllUsage reports every order with metered activity in the window.
// Individual failures are queued by ReportUsage; the sweep keeps going.
func (r *Reporter) ReportAllUsage(ctx context.Context, start, end time.Time) error {
	orders, err := r.meter.ActiveOrders(ctx, start, end)
	if err != nil {
		return err
	}
	for _, orderID := range orders {
		if res := r.ReportUsage(ctx, orderID, start, end); !res.Success {
			r.log.Warnw("usage report unsuccessful", "order", orderID, "detail", res.Detail)
		}
	}
	return nil
}

// RetryFailedReports redelivers every queued report once. The consumer id
// is re-resolved on each attempt since it may have changed. Reports failing
// past maxRetries are dropped and handed to the drop callback.
func (r *Reporter) RetryFailedReports(ctx context.Context) {
	for _, rep := range r.queue.Snapshot() {
		rep.RetryCount++
		if ent, err := r.entitlements.Get(ctx, rep.OrderID); err == nil {
			rep.ConsumerID = consumerID(ent)
		}
		err := r.deliver(ctx, rep)
		if err == nil {
			r.queue.Remove(ctx, rep)
			metrics.ReportsDelivered.Inc()
			r.log.Infow("queued usage report delivered", "order", rep.OrderID, "attempt", rep.RetryCount)
			continue
		}
		if rep.RetryCount > r.maxRetries {
			r.queue.Remove(ctx, rep)
			metrics.ReportsDropped.Inc()
			r.log.Errorw("usage report dropped after max retries",
				"order", rep.OrderID, "retries", rep.RetryCount, "err", err)
			if r.onDrop != nil {
				r.onDrop(rep)
			}
			continue
		}
		rep.ErrorMessage = err.Error()
		r.queue.Put(ctx, rep)
	}
}

func (r *Reporter) FailedReportsCount() int {
	return r.queue.Len()
}

func (r *Reporter) deliver(ctx context.Context, rep Report) error {
	if err := r.billing.CheckConsumer(ctx, rep.ConsumerID); err != nil {
		return err
	}
	return r.billing.Report(ctx, rep.ConsumerID, rep.Start, rep.End, rep.Metrics, rep.Labels)
}

func consumerID(ent *procurement.Entitlement) string {
	if ent.UsageReportingID != "" {
		return ent.UsageReportingID
	}
	return "order:" + ent.ProviderID
}
