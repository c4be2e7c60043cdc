package orders

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jogardn/food-storefront/internal/events"
	"github.com/jogardn/food-storefront/internal/payment"
	"github.com/jogardn/food-storefront/internal/store"
	"github.com/jogardn/food-storefront/pkg/models"
)

const (
	restaurantID = "6f1c2a9e-3b7d-4c1e-9a55-0d2f6b8e4a11"
	burgerID     = "0a6e4c1b-2d3f-4e5a-8b9c-1d2e3f4a5b6c"
	friesID      = "1b7f5d2c-3e4a-4f6b-9cad-2e3f4a5b6c7d"
	ownerID      = "9d8c7b6a-5f4e-4d3c-8b2a-1f0e9d8c7b6a"
	strangerID   = "4e3d2c1b-0a9f-4e8d-9c7b-6a5f4e3d2c1b"
)

type fakeMenu struct{}

func (fakeMenu) MenuItemsByID(_ context.Context, rid string, ids []string) ([]models.MenuItem, error) {
	catalog := map[string]models.MenuItem{
		burgerID: {ID: burgerID, RestaurantID: restaurantID, Name: "Classic Burger", PriceCents: 1299},
		friesID:  {ID: friesID, RestaurantID: restaurantID, Name: "Loaded Fries", PriceCents: 899},
	}
	var out []models.MenuItem
	for _, id := range ids {
		if item, ok := catalog[id]; ok && item.RestaurantID == rid {
			out = append(out, item)
		}
	}
	return out, nil
}

// memStore keeps orders in memory and enforces ownership on reads the way
// the SQL store does.
type memStore struct {
	mu          sync.Mutex
	orders      map[string]*models.Order
	transitions int
	createErr   error
	updateErr   error
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[string]*models.Order)}
}

func (s *memStore) CreateOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	copied := *order
	s.orders[order.ID] = &copied
	return nil
}

func (s *memStore) SetPaymentReference(_ context.Context, orderID, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	o.StripePaymentIntentID = &reference
	return nil
}

func (s *memStore) DeletePendingOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.Status != models.StatusPending {
		return store.ErrNotFound
	}
	delete(s.orders, orderID)
	return nil
}

func (s *memStore) TransitionStatus(_ context.Context, orderID string, from, to models.OrderStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return false, s.updateErr
	}
	o, ok := s.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	s.transitions++
	return true, nil
}

func (s *memStore) GetOrderDetail(_ context.Context, orderID, owner string) (*models.OrderDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.UserID != owner {
		return nil, store.ErrNotFound
	}
	return &models.OrderDetail{Order: *o, RestaurantName: "Burger Joint", LineItems: []models.OrderItemDetail{}}, nil
}

func (s *memStore) ListOrderDetails(_ context.Context, owner string) ([]*models.OrderDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.OrderDetail{}
	for _, o := range s.orders {
		if o.UserID == owner {
			out = append(out, &models.OrderDetail{Order: *o})
		}
	}
	return out, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) only() *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		return o
	}
	return nil
}

type fakeProvider struct {
	mu       sync.Mutex
	requests []payment.SessionRequest
	session  *payment.Session
	err      error
	before   func(ctx context.Context)
}

func (p *fakeProvider) CreateCheckoutSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if p.before != nil {
		p.before(ctx)
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.session != nil {
		return p.session, nil
	}
	return &payment.Session{ID: "cs_test_" + req.OrderID, URL: "https://checkout.example/" + req.OrderID}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var errProviderDown = errors.New("provider unavailable")
