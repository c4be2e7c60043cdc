package events

import (
	"context"

	"github.com/jogardn/food-storefront/internal/metrics"
)

// MeteredPublisher counts published events by type and outcome.
type MeteredPublisher struct {
	next    Publisher
	metrics *metrics.Metrics
}

func NewMeteredPublisher(next Publisher, m *metrics.Metrics) *MeteredPublisher {
	return &MeteredPublisher{next: next, metrics: m}
}

func (p *MeteredPublisher) Publish(ctx context.Context, event OrderEvent) error {
	err := p.next.Publish(ctx, event)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.metrics.EventsOut.WithLabelValues(string(event.Type), outcome).Inc()
	return err
}
