package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jogardn/food-storefront/pkg/models"
)

// Callers surface both errors as validation failures.
var (
	// ErrUnavailableItems is returned when a cart references menu items that
	// do not exist for the restaurant.
	ErrUnavailableItems = errors.New("some items in the cart are not available")
	// ErrInvalidQuantity is returned for an empty cart or a line with a
	// quantity below one.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// MenuSource is the authoritative price lookup. Ids that are unknown to the
// restaurant are absent from the result.
type MenuSource interface {
	MenuItemsByID(ctx context.Context, restaurantID string, ids []string) ([]models.MenuItem, error)
}

type Line struct {
	MenuItemID     string
	Name           string
	Quantity       int64
	UnitPriceCents int64
}

func (l Line) TotalCents() int64 {
	return l.UnitPriceCents * l.Quantity
}

// Quote is a cart priced against the menu. Lines keep the order in which
// each item first appeared in the cart.
type Quote struct {
	RestaurantID  string
	SubtotalCents int64
	Lines         []Line
	UnitPrices    map[string]int64
}

type Resolver struct {
	menu MenuSource
}

func NewResolver(menu MenuSource) *Resolver {
	return &Resolver{menu: menu}
}

// Resolve prices a cart from persisted menu prices only. Repeated ids are
// merged into one line with the summed quantity.
func (r *Resolver) Resolve(ctx context.Context, restaurantID string, cart []models.CartLine) (*Quote, error) {
	if len(cart) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrInvalidQuantity)
	}

	quantities := make(map[string]int64, len(cart))
	ids := make([]string, 0, len(cart))
	for _, line := range cart {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: item %s", ErrInvalidQuantity, line.MenuItemID)
		}
		if _, seen := quantities[line.MenuItemID]; !seen {
			ids = append(ids, line.MenuItemID)
		}
		quantities[line.MenuItemID] += line.Quantity
	}

	items, err := r.menu.MenuItemsByID(ctx, restaurantID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load menu prices: %w", err)
	}

	byID := make(map[string]models.MenuItem, len(items))
	for _, item := range items {
		if item.RestaurantID != "" && item.RestaurantID != restaurantID {
			continue
		}
		byID[item.ID] = item
	}
	if len(byID) != len(ids) {
		return nil, ErrUnavailableItems
	}

	quote := &Quote{
		RestaurantID: restaurantID,
		Lines:        make([]Line, 0, len(ids)),
		UnitPrices:   make(map[string]int64, len(ids)),
	}
	for _, id := range ids {
		item := byID[id]
		line := Line{
			MenuItemID:     id,
			Name:           item.Name,
			Quantity:       quantities[id],
			UnitPriceCents: item.PriceCents,
		}
		quote.Lines = append(quote.Lines, line)
		quote.UnitPrices[id] = item.PriceCents
		quote.SubtotalCents += line.TotalCents()
	}
	return quote, nil
}
