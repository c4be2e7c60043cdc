package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Restaurant struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	CoverImageURL       string          `json:"cover_image_url,omitempty"`
	Rating              decimal.Decimal `json:"rating"`
	DeliveryTimeMinutes int             `json:"delivery_time_minutes"`
	DeliveryFeeCents    int64           `json:"delivery_fee_cents"`
	CreatedAt           time.Time       `json:"created_at"`
}

type MenuItem struct {
	ID           string `json:"id"`
	RestaurantID string `json:"restaurant_id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	PriceCents   int64  `json:"price_cents"`
	ImageURL     string `json:"image_url,omitempty"`
	Category     string `json:"category,omitempty"`
	// Price is PriceCents in major units, for display only.
	Price decimal.Decimal `json:"price"`
}

type MenuCategory struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Items []MenuItem `json:"items"`
}

type SearchResult struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CoverImageURL string `json:"cover_image_url,omitempty"`
	MatchedOn     string `json:"matched_on"`
}

// CentsToDecimal converts minor currency units to a two-place decimal.
func CentsToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
