package catalog

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jogardn/food-storefront/internal/cache"
	"github.com/jogardn/food-storefront/internal/store"
	"github.com/jogardn/food-storefront/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultCategory = "Miscellaneous"
	minSearchLength = 2
	searchLimit     = 8
)

var ErrNotFound = errors.New("restaurant not found")

// Store is the catalog part of the relational store.
type Store interface {
	ListRestaurants(ctx context.Context) ([]models.Restaurant, error)
	GetRestaurant(ctx context.Context, id string) (*models.Restaurant, error)
	ListMenuItems(ctx context.Context, restaurantID string) ([]models.MenuItem, error)
	SearchRestaurants(ctx context.Context, term string, limit int) ([]models.SearchResult, error)
}

// Service answers browse and search reads. Listings and menus go through the
// cache; nothing here is used to price an order.
type Service struct {
	store  Store
	cache  *cache.ReadThrough
	logger *logrus.Logger
}

func NewService(store Store, c *cache.ReadThrough, logger *logrus.Logger) *Service {
	return &Service{store: store, cache: c, logger: logger}
}

func (s *Service) ListRestaurants(ctx context.Context) ([]models.Restaurant, error) {
	return cache.Get(ctx, s.cache, cache.RestaurantListKey, cache.RestaurantListTTL, s.store.ListRestaurants)
}

func (s *Service) GetRestaurant(ctx context.Context, id string) (*models.Restaurant, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	r, err := s.store.GetRestaurant(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *Service) Menu(ctx context.Context, restaurantID string) ([]models.MenuCategory, error) {
	if _, err := uuid.Parse(restaurantID); err != nil {
		return nil, ErrNotFound
	}
	return cache.Get(ctx, s.cache, cache.MenuKey(restaurantID), cache.MenuTTL,
		func(ctx context.Context) ([]models.MenuCategory, error) {
			items, err := s.store.ListMenuItems(ctx, restaurantID)
			if err != nil {
				return nil, err
			}
			return GroupMenu(items), nil
		})
}

// Search matches restaurant and menu item names. Terms shorter than two
// characters return nothing.
func (s *Service) Search(ctx context.Context, term string) ([]models.SearchResult, error) {
	term = strings.TrimSpace(term)
	if len([]rune(term)) < minSearchLength {
		return []models.SearchResult{}, nil
	}
	return s.store.SearchRestaurants(ctx, term, searchLimit)
}

var whitespace = regexp.MustCompile(`\s+`)

func CategoryID(name string) string {
	return whitespace.ReplaceAllString(strings.ToLower(name), "-")
}

// GroupMenu buckets items by category in order of first appearance. Items
// without a category land in Miscellaneous.
func GroupMenu(items []models.MenuItem) []models.MenuCategory {
	categories := []models.MenuCategory{}
	index := make(map[string]int)
	for _, item := range items {
		name := item.Category
		if name == "" {
			name = DefaultCategory
		}
		item.Price = models.CentsToDecimal(item.PriceCents)

		i, ok := index[name]
		if !ok {
			i = len(categories)
			index[name] = i
			categories = append(categories, models.MenuCategory{ID: CategoryID(name), Name: name})
		}
		categories[i].Items = append(categories[i].Items, item)
	}
	return categories
}
