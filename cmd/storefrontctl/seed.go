package main

import (
	"fmt"

	"github.com/jogardn/food-storefront/pkg/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Catalog struct {
	Restaurants []RestaurantEntry `yaml:"restaurants"`
}

type RestaurantEntry struct {
	Name                string      `yaml:"name"`
	CoverImageURL       string      `yaml:"cover_image_url"`
	Rating              float64     `yaml:"rating"`
	DeliveryTimeMinutes int         `yaml:"delivery_time_minutes"`
	DeliveryFee         string      `yaml:"delivery_fee"`
	Menu                []MenuEntry `yaml:"menu"`
}

type MenuEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Price       string `yaml:"price"`
	ImageURL    string `yaml:"image_url"`
	Category    string `yaml:"category"`
}

// ParseCatalog decodes a seed file and rejects entries the schema would.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("invalid catalog file: %w", err)
	}
	if len(c.Restaurants) == 0 {
		return nil, fmt.Errorf("catalog has no restaurants")
	}
	for _, r := range c.Restaurants {
		if _, _, err := r.toModels(); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// toCents converts a major-unit amount like "12.99" to cents. Amounts with
// more than two decimal places are rejected rather than rounded.
func toCents(amount string) (int64, error) {
	if amount == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %q is negative", amount)
	}
	cents := d.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than two decimal places", amount)
	}
	return cents.IntPart(), nil
}

func (r RestaurantEntry) toModels() (models.Restaurant, []models.MenuItem, error) {
	if r.Name == "" {
		return models.Restaurant{}, nil, fmt.Errorf("restaurant without a name")
	}
	if r.Rating < 0 || r.Rating > 5 {
		return models.Restaurant{}, nil, fmt.Errorf("%s: rating %.2f out of range", r.Name, r.Rating)
	}
	fee, err := toCents(r.DeliveryFee)
	if err != nil {
		return models.Restaurant{}, nil, fmt.Errorf("%s: %w", r.Name, err)
	}

	restaurant := models.Restaurant{
		Name:                r.Name,
		CoverImageURL:       r.CoverImageURL,
		Rating:              decimal.NewFromFloat(r.Rating).Round(2),
		DeliveryTimeMinutes: r.DeliveryTimeMinutes,
		DeliveryFeeCents:    fee,
	}

	menu := make([]models.MenuItem, 0, len(r.Menu))
	for _, m := range r.Menu {
		if m.Name == "" {
			return models.Restaurant{}, nil, fmt.Errorf("%s: menu item without a name", r.Name)
		}
		price, err := toCents(m.Price)
		if err != nil {
			return models.Restaurant{}, nil, fmt.Errorf("%s/%s: %w", r.Name, m.Name, err)
		}
		menu = append(menu, models.MenuItem{
			Name:        m.Name,
			Description: m.Description,
			PriceCents:  price,
			ImageURL:    m.ImageURL,
			Category:    m.Category,
		})
	}
	return restaurant, menu, nil
}
