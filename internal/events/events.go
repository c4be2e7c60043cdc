package events

import (
	"context"
	"errors"
	"time"

	"github.com/IBM/sarama"
	"github.com/jogardn/food-storefront/pkg/models"
)

const (
	OrderEventsTopic    = "order.events"
	OrderEventsDLQTopic = "order.events.dlq"
)

type EventType string

const (
	OrderPlaced         EventType = "order.placed"
	OrderConfirmed      EventType = "order.confirmed"
	OrderExpired        EventType = "order.expired"
	OrderCheckoutFailed EventType = "order.checkout_failed"
)

// OrderEvent is one step of an order's lifecycle. Events are keyed by order
// id so a single order's events stay ordered within a partition.
type OrderEvent struct {
	Type         EventType          `json:"type"`
	OrderID      string             `json:"order_id"`
	UserID       string             `json:"user_id,omitempty"`
	RestaurantID string             `json:"restaurant_id,omitempty"`
	Status       models.OrderStatus `json:"status"`
	TotalCents   int64              `json:"total_cents,omitempty"`
	OccurredAt   time.Time          `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event OrderEvent) error
}

type Handler interface {
	HandleOrderEvent(ctx context.Context, event OrderEvent) error
}

type HandlerFunc func(ctx context.Context, event OrderEvent) error

func (f HandlerFunc) HandleOrderEvent(ctx context.Context, event OrderEvent) error {
	return f(ctx, event)
}

// DirectPublisher hands events straight to a handler. It is used when no
// broker is configured.
type DirectPublisher struct {
	handler Handler
}

func NewDirectPublisher(handler Handler) *DirectPublisher {
	return &DirectPublisher{handler: handler}
}

func (p *DirectPublisher) Publish(ctx context.Context, event OrderEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return p.handler.HandleOrderEvent(ctx, event)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

func newSaramaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Version = sarama.V2_6_0_0
	return config
}
