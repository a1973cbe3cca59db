package notify

import (
	"errors"

	"marshmallow-backend/internal/events"
	"marshmallow-backend/internal/metrics"
)

// MetricsReporter counts pipeline outcomes and delivery failures in Prometheus
type MetricsReporter struct{}

func (MetricsReporter) Report(evt events.Event, res Result) {
	metrics.Notifications.WithLabelValues(string(evt.Kind), string(res.Outcome)).Inc()
	if res.Outcome != OutcomeFailed {
		return
	}

	reason := "error"
	var de *DeliveryError
	if errors.As(res.Err, &de) {
		reason = de.Reason
		if errors.Is(de, ErrInvalidAddress) {
			reason = "invalid_address"
		}
	}
	metrics.DeliveryFailures.WithLabelValues(reason).Inc()
}
