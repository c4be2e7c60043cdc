package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/jogardn/food-storefront/internal/config"
	"github.com/jogardn/food-storefront/internal/events"
	"github.com/jogardn/food-storefront/internal/metrics"
	"github.com/jogardn/food-storefront/internal/pricing"
	"github.com/jogardn/food-storefront/pkg/models"
	"github.com/sirupsen/logrus"
)

const minAddressLength = 10

type PlaceOrderResult struct {
	OrderID string
	URL     string
}

// Service runs order placement end to end: price, persist, then either
// confirm directly or hand off to hosted checkout.
type Service struct {
	resolver    *pricing.Resolver
	manager     *Manager
	coordinator *Coordinator
	publisher   events.Publisher
	mode        string
	metrics     *metrics.Metrics
	logger      *logrus.Logger
}

type ServiceConfig struct {
	Resolver    *pricing.Resolver
	Manager     *Manager
	Coordinator *Coordinator
	Publisher   events.Publisher
	Mode        string
	Metrics     *metrics.Metrics
}

func NewService(cfg ServiceConfig, logger *logrus.Logger) *Service {
	mode := cfg.Mode
	if mode == "" {
		mode = config.CheckoutModeSession
	}
	return &Service{
		resolver:    cfg.Resolver,
		manager:     cfg.Manager,
		coordinator: cfg.Coordinator,
		publisher:   cfg.Publisher,
		mode:        mode,
		metrics:     cfg.Metrics,
		logger:      logger,
	}
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.Checkouts.WithLabelValues(outcome).Inc()
	}
}

func validateRequest(req models.CreateOrderRequest) error {
	var details []string
	if req.RestaurantID == "" {
		details = append(details, "restaurant_id is required")
	}
	if len(req.CartItems) == 0 {
		details = append(details, "cart_items must not be empty")
	}
	if len(strings.TrimSpace(req.DeliveryAddress)) < minAddressLength {
		details = append(details, "delivery_address is too short")
	}
	if req.DeliveryFeeCents < 0 {
		details = append(details, "delivery_fee_cents must be >= 0")
	}
	if len(details) > 0 {
		return &ValidationError{Message: "invalid order request", Details: details}
	}
	return nil
}

func (s *Service) PlaceOrder(ctx context.Context, ownerID string, req models.CreateOrderRequest) (*PlaceOrderResult, error) {
	if err := validateRequest(req); err != nil {
		s.observe("invalid")
		return nil, err
	}

	quote, err := s.resolver.Resolve(ctx, req.RestaurantID, req.CartItems)
	if err != nil {
		if errors.Is(err, pricing.ErrUnavailableItems) || errors.Is(err, pricing.ErrInvalidQuantity) {
			s.observe("invalid")
			return nil, &ValidationError{Message: "Some items in the cart are not available.", Details: []string{err.Error()}}
		}
		s.observe("creation_failed")
		return nil, err
	}

	initial := models.StatusPending
	if s.mode == config.CheckoutModeDirect {
		initial = models.StatusConfirmed
	}

	order, err := s.manager.Create(ctx, NewOrder{
		OwnerID:          ownerID,
		Quote:            quote,
		DeliveryAddress:  strings.TrimSpace(req.DeliveryAddress),
		DeliveryFeeCents: req.DeliveryFeeCents,
		InitialStatus:    initial,
	})
	if err != nil {
		s.observe("creation_failed")
		return nil, err
	}
	s.publish(ctx, events.OrderPlaced, order)

	if s.mode == config.CheckoutModeDirect {
		s.observe("confirmed_direct")
		return &PlaceOrderResult{OrderID: order.ID}, nil
	}

	sess, err := s.coordinator.Start(ctx, order, quote)
	if err != nil {
		s.observe("session_failed")
		s.publish(ctx, events.OrderCheckoutFailed, order)
		return nil, err
	}
	s.observe("session_created")
	return &PlaceOrderResult{OrderID: order.ID, URL: sess.URL}, nil
}

func (s *Service) publish(ctx context.Context, eventType events.EventType, order *models.Order) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, events.OrderEvent{
		Type:         eventType,
		OrderID:      order.ID,
		UserID:       order.UserID,
		RestaurantID: order.RestaurantID,
		Status:       order.Status,
		TotalCents:   order.TotalCents,
	})
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"order_id":   order.ID,
			"event_type": eventType,
		}).Warn("Failed to publish order event")
	}
}
