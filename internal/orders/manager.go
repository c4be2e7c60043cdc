package orders

import (
	"context"
	"fmt"

	"github.com/jogardn/food-storefront/internal/pricing"
	"github.com/jogardn/food-storefront/pkg/models"
	"github.com/sirupsen/logrus"
)

// Store is the order persistence the workflow needs.
type Store interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	SetPaymentReference(ctx context.Context, orderID, reference string) error
	DeletePendingOrder(ctx context.Context, orderID string) error
	TransitionStatus(ctx context.Context, orderID string, from, to models.OrderStatus) (bool, error)
	GetOrderDetail(ctx context.Context, orderID, ownerID string) (*models.OrderDetail, error)
	ListOrderDetails(ctx context.Context, ownerID string) ([]*models.OrderDetail, error)
}

type NewOrder struct {
	OwnerID          string
	Quote            *pricing.Quote
	DeliveryAddress  string
	DeliveryFeeCents int64
	InitialStatus    models.OrderStatus
}

// Manager is the only writer that brings orders into existence.
type Manager struct {
	store  Store
	logger *logrus.Logger
}

func NewManager(store Store, logger *logrus.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// Create persists the order and its line items atomically. The total is the
// quote's subtotal plus the delivery fee.
func (m *Manager) Create(ctx context.Context, in NewOrder) (*models.Order, error) {
	if in.DeliveryFeeCents < 0 {
		return nil, &ValidationError{Message: "delivery fee cannot be negative"}
	}
	if in.Quote == nil || len(in.Quote.Lines) == 0 {
		return nil, &ValidationError{Message: "order has no items"}
	}
	status := in.InitialStatus
	if status == "" {
		status = models.StatusPending
	}

	order := &models.Order{
		UserID:           in.OwnerID,
		RestaurantID:     in.Quote.RestaurantID,
		TotalCents:       in.Quote.SubtotalCents + in.DeliveryFeeCents,
		DeliveryFeeCents: in.DeliveryFeeCents,
		Status:           status,
		DeliveryAddress:  in.DeliveryAddress,
		Items:            make([]models.OrderItem, 0, len(in.Quote.Lines)),
	}
	for _, line := range in.Quote.Lines {
		order.Items = append(order.Items, models.OrderItem{
			MenuItemID:     line.MenuItemID,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
		})
	}

	if err := m.store.CreateOrder(ctx, order); err != nil {
		m.logger.WithError(err).WithField("user_id", in.OwnerID).Error("Failed to persist order")
		return nil, fmt.Errorf("%w: %v", ErrOrderCreationFailed, err)
	}

	m.logger.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"user_id":     order.UserID,
		"total_cents": order.TotalCents,
		"items_count": len(order.Items),
		"status":      order.Status,
	}).Info("Order persisted")
	return order, nil
}
