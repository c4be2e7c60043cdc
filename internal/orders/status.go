package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jogardn/food-storefront/internal/store"
	"github.com/jogardn/food-storefront/pkg/models"
)

// StatusService answers order reads. Ownership is part of every lookup so a
// foreign order is indistinguishable from a missing one.
type StatusService struct {
	store Store
}

func NewStatusService(store Store) *StatusService {
	return &StatusService{store: store}
}

func (s *StatusService) Get(ctx context.Context, orderID, ownerID string) (*models.OrderDetail, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, ErrNotFound
	}
	detail, err := s.store.GetOrderDetail(ctx, orderID, ownerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *StatusService) List(ctx context.Context, ownerID string) ([]*models.OrderDetail, error) {
	return s.store.ListOrderDetails(ctx, ownerID)
}
