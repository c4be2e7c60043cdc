package models

import (
	"time"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusPreparing OrderStatus = "preparing"
	StatusOnTheWay  OrderStatus = "on-the-way"
	StatusDelivered OrderStatus = "delivered"
	StatusExpired   OrderStatus = "expired"
)

func (s OrderStatus) String() string {
	return string(s)
}

// Order is the persisted order row. TotalCents always equals the sum of its
// line items plus DeliveryFeeCents and is only ever computed server-side.
type Order struct {
	ID                    string      `json:"id"`
	UserID                string      `json:"user_id"`
	RestaurantID          string      `json:"restaurant_id"`
	TotalCents            int64       `json:"total_cents"`
	DeliveryFeeCents      int64       `json:"delivery_fee_cents"`
	Status                OrderStatus `json:"status"`
	StripePaymentIntentID *string     `json:"stripe_payment_intent_id,omitempty"`
	DeliveryAddress       string      `json:"delivery_address"`
	CreatedAt             time.Time   `json:"created_at"`
	Items                 []OrderItem `json:"items,omitempty"`
}

// OrderItem snapshots the unit price at purchase time.
type OrderItem struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	MenuItemID     string `json:"menu_item_id"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// OrderDetail is an order joined with the names needed for display.
type OrderDetail struct {
	Order
	RestaurantName string            `json:"restaurant_name"`
	LineItems      []OrderItemDetail `json:"line_items"`
}

type OrderItemDetail struct {
	OrderItem
	MenuItemName string `json:"menu_item_name"`
}

// CreateOrderRequest is the canonical input of the order creation endpoint.
type CreateOrderRequest struct {
	CartItems        []CartLine `json:"cart_items"`
	RestaurantID     string     `json:"restaurant_id"`
	DeliveryAddress  string     `json:"delivery_address"`
	DeliveryFeeCents int64      `json:"delivery_fee_cents"`
}

// CartLine is what the server accepts from a cart: a reference and a quantity.
// Prices sent by the client are never part of it.
type CartLine struct {
	MenuItemID string `json:"id"`
	Quantity   int64  `json:"quantity"`
}

type CreateOrderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id"`
	URL     string `json:"url,omitempty"`
}

type OrderResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Order   *OrderDetail `json:"order,omitempty"`
}
