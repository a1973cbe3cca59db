// Package metrics holds the Prometheus collectors reported by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marshmallow",
			Name:      "events_appended_total",
			Help:      "Events persisted by the event store.",
		},
		[]string{"kind"},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marshmallow",
			Name:      "notifications_total",
			Help:      "Notification pipeline outcomes by event kind and terminal stage.",
		},
		[]string{"kind", "outcome"},
	)

	DeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marshmallow",
			Name:      "push_delivery_failures_total",
			Help:      "Push deliveries rejected or not acknowledged by the push provider.",
		},
		[]string{"reason"},
	)

	LiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "marshmallow",
			Name:      "live_subscriptions",
			Help:      "Open live message subscriptions.",
		},
	)

	SnapshotsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "marshmallow",
			Name:      "live_snapshots_total",
			Help:      "Snapshots delivered to live subscribers.",
		},
	)
)
