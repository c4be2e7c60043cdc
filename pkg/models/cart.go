package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CartStorageKey is the client-local key a cart is persisted under.
const CartStorageKey = "storefront-cart"

var ErrMixedRestaurant = errors.New("cart can only hold items from one restaurant")

// CartItem is a client-side line. DisplayPriceCents is only shown to the user;
// the server re-derives every price from the menu.
type CartItem struct {
	MenuItemID        string `json:"id"`
	RestaurantID      string `json:"restaurant_id"`
	Name              string `json:"name"`
	DisplayPriceCents int64  `json:"price_cents"`
	Quantity          int64  `json:"quantity"`
}

// Cart is an explicit value passed between the client and the API. Methods
// return a new Cart and never mutate the receiver.
type Cart struct {
	Items []CartItem `json:"items"`
}

func (c Cart) RestaurantID() string {
	if len(c.Items) == 0 {
		return ""
	}
	return c.Items[0].RestaurantID
}

func (c Cart) AddItem(item MenuItem) (Cart, error) {
	if rid := c.RestaurantID(); rid != "" && rid != item.RestaurantID {
		return c, ErrMixedRestaurant
	}

	items := make([]CartItem, 0, len(c.Items)+1)
	found := false
	for _, existing := range c.Items {
		if existing.MenuItemID == item.ID {
			existing.Quantity++
			found = true
		}
		items = append(items, existing)
	}
	if !found {
		items = append(items, CartItem{
			MenuItemID:        item.ID,
			RestaurantID:      item.RestaurantID,
			Name:              item.Name,
			DisplayPriceCents: item.PriceCents,
			Quantity:          1,
		})
	}
	return Cart{Items: items}, nil
}

func (c Cart) RemoveItem(menuItemID string) Cart {
	items := make([]CartItem, 0, len(c.Items))
	for _, existing := range c.Items {
		if existing.MenuItemID != menuItemID {
			items = append(items, existing)
		}
	}
	return Cart{Items: items}
}

// UpdateQuantity sets the quantity of a line; anything below one removes it.
func (c Cart) UpdateQuantity(menuItemID string, quantity int64) Cart {
	if quantity < 1 {
		return c.RemoveItem(menuItemID)
	}
	items := make([]CartItem, len(c.Items))
	copy(items, c.Items)
	for i := range items {
		if items[i].MenuItemID == menuItemID {
			items[i].Quantity = quantity
		}
	}
	return Cart{Items: items}
}

func (c Cart) Clear() Cart {
	return Cart{Items: []CartItem{}}
}

// SubtotalCents is the display subtotal. It is not used for charging.
func (c Cart) SubtotalCents() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.DisplayPriceCents * item.Quantity
	}
	return total
}

// Lines strips display data, leaving what the order endpoint accepts.
func (c Cart) Lines() []CartLine {
	lines := make([]CartLine, 0, len(c.Items))
	for _, item := range c.Items {
		lines = append(lines, CartLine{MenuItemID: item.MenuItemID, Quantity: item.Quantity})
	}
	return lines
}

func (c Cart) Encode() ([]byte, error) {
	return json.Marshal(c)
}

func DecodeCart(data []byte) (Cart, error) {
	var c Cart
	if len(data) == 0 {
		return Cart{Items: []CartItem{}}, nil
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return Cart{}, fmt.Errorf("failed to decode cart: %w", err)
	}
	return c, nil
}
