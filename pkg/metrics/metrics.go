// pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClientsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billgate_clients_issued_total",
		Help: "OAuth clients created via dynamic registration.",
	})
	ClientsReplayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billgate_clients_replayed_total",
		Help: "DCR requests answered from the existing client record.",
	})
	RegistrationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billgate_registration_errors_total",
		Help: "DCR failures by error code.",
	}, []string{"code"})

	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billgate_marketplace_events_total",
		Help: "Marketplace lifecycle events processed by type.",
	}, []string{"type"})

	ReportsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billgate_usage_reports_delivered_total",
		Help: "Usage reports accepted by the billing control API.",
	})
	ReportsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billgate_usage_reports_queued_total",
		Help: "Usage reports enqueued for retry after a delivery failure.",
	})
	ReportsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billgate_usage_reports_dropped_total",
		Help: "Usage reports dropped after exhausting retries.",
	})
)
