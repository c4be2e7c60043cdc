package orders

import (
	"context"
	"fmt"

	"github.com/jogardn/food-storefront/internal/events"
	"github.com/jogardn/food-storefront/internal/payment"
	"github.com/jogardn/food-storefront/pkg/models"
	"github.com/sirupsen/logrus"
)

// WebhookOutcome describes what a delivery did. Applied is false for
// replays, unrelated event types and orders already in a final state.
type WebhookOutcome struct {
	EventID   string
	EventType string
	OrderID   string
	Applied   bool
}

// WebhookProcessor is the only component that moves orders out of pending
// on the provider's word.
type WebhookProcessor struct {
	verifier  payment.Verifier
	store     Store
	publisher events.Publisher
	logger    *logrus.Logger
}

func NewWebhookProcessor(verifier payment.Verifier, store Store, publisher events.Publisher, logger *logrus.Logger) *WebhookProcessor {
	return &WebhookProcessor{verifier: verifier, store: store, publisher: publisher, logger: logger}
}

func (p *WebhookProcessor) Process(ctx context.Context, payload []byte, signature string) (*WebhookOutcome, error) {
	evt, err := p.verifier.Verify(payload, signature)
	if err != nil {
		p.logger.WithError(err).Warn("Webhook signature verification failed")
		return nil, fmt.Errorf("%w: %v", ErrSignatureVerification, err)
	}

	outcome := &WebhookOutcome{EventID: evt.ID, EventType: evt.Type}
	var target models.OrderStatus
	var eventType events.EventType
	switch evt.Type {
	case payment.EventCheckoutCompleted:
		target, eventType = models.StatusConfirmed, events.OrderConfirmed
	case payment.EventCheckoutExpired:
		target, eventType = models.StatusExpired, events.OrderExpired
	default:
		p.logger.WithField("event_type", evt.Type).Debug("Ignoring webhook event")
		return outcome, nil
	}

	outcome.OrderID = evt.OrderID()
	if outcome.OrderID == "" {
		p.logger.WithFields(logrus.Fields{
			"event_id":   evt.ID,
			"session_id": evt.SessionID,
		}).Error("Webhook event is missing orderId metadata")
		return outcome, ErrMissingCorrelation
	}

	moved, err := p.store.TransitionStatus(ctx, outcome.OrderID, models.StatusPending, target)
	if err == nil && !moved && target == models.StatusConfirmed {
		// Completed payments also confirm orders the sweep already expired.
		moved, err = p.store.TransitionStatus(ctx, outcome.OrderID, models.StatusExpired, target)
	}
	if err != nil {
		p.logger.WithError(err).WithField("order_id", outcome.OrderID).Error("Failed to update order status")
		return outcome, fmt.Errorf("update order %s: %w", outcome.OrderID, err)
	}
	outcome.Applied = moved

	logger := p.logger.WithFields(logrus.Fields{
		"order_id": outcome.OrderID,
		"event_id": evt.ID,
		"status":   target,
	})
	if !moved {
		logger.Info("Order already settled, webhook treated as replay")
		return outcome, nil
	}
	logger.Info("Order status updated from webhook")

	if p.publisher != nil {
		err := p.publisher.Publish(ctx, events.OrderEvent{
			Type:    eventType,
			OrderID: outcome.OrderID,
			UserID:  evt.Metadata[payment.MetadataUserID],
			Status:  target,
		})
		if err != nil {
			logger.WithError(err).Warn("Failed to publish order event")
		}
	}
	return outcome, nil
}
