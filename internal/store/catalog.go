package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jogardn/food-storefront/pkg/models"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const restaurantColumns = `id, name, COALESCE(cover_image_url, ''), rating,
	COALESCE(delivery_time_minutes, 0), delivery_fee_cents, created_at`

func scanRestaurant(row interface{ Scan(...any) error }) (*models.Restaurant, error) {
	r := &models.Restaurant{}
	err := row.Scan(&r.ID, &r.Name, &r.CoverImageURL, &r.Rating,
		&r.DeliveryTimeMinutes, &r.DeliveryFeeCents, &r.CreatedAt)
	return r, err
}

func (s *Store) ListRestaurants(ctx context.Context) ([]models.Restaurant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+restaurantColumns+` FROM restaurants ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	restaurants := []models.Restaurant{}
	for rows.Next() {
		r, err := scanRestaurant(rows)
		if err != nil {
			return nil, err
		}
		restaurants = append(restaurants, *r)
	}
	return restaurants, rows.Err()
}

func (s *Store) GetRestaurant(ctx context.Context, id string) (*models.Restaurant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+restaurantColumns+` FROM restaurants WHERE id = $1`, id)
	r, err := scanRestaurant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) ListMenuItems(ctx context.Context, restaurantID string) ([]models.MenuItem, error) {
	query := `
		SELECT id, restaurant_id, name, COALESCE(description, ''), price_cents,
			COALESCE(image_url, ''), COALESCE(category, '')
		FROM menu_items WHERE restaurant_id = $1 ORDER BY created_at, name
	`
	rows, err := s.db.QueryContext(ctx, query, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.MenuItem{}
	for rows.Next() {
		var item models.MenuItem
		if err := rows.Scan(&item.ID, &item.RestaurantID, &item.Name, &item.Description,
			&item.PriceCents, &item.ImageURL, &item.Category); err != nil {
			return nil, err
		}
		item.Price = models.CentsToDecimal(item.PriceCents)
		items = append(items, item)
	}
	return items, rows.Err()
}

// MenuItemsByID returns the live name and price of each referenced menu item
// that belongs to the restaurant. Unknown ids are simply absent.
func (s *Store) MenuItemsByID(ctx context.Context, restaurantID string, ids []string) ([]models.MenuItem, error) {
	query := `
		SELECT id, restaurant_id, name, price_cents
		FROM menu_items WHERE restaurant_id = $1 AND id = ANY($2::uuid[])
	`
	rows, err := s.db.QueryContext(ctx, query, restaurantID, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.MenuItem
	for rows.Next() {
		var item models.MenuItem
		if err := rows.Scan(&item.ID, &item.RestaurantID, &item.Name, &item.PriceCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Store) SearchRestaurants(ctx context.Context, term string, limit int) ([]models.SearchResult, error) {
	pattern := "%" + likeEscaper.Replace(term) + "%"
	query := `
		SELECT DISTINCT ON (r.id) r.id, r.name, COALESCE(r.cover_image_url, ''),
			CASE WHEN r.name ILIKE $1 THEN r.name ELSE m.name END AS matched_on
		FROM restaurants r
		LEFT JOIN menu_items m ON m.restaurant_id = r.id
		WHERE r.name ILIKE $1 OR m.name ILIKE $1
		ORDER BY r.id
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []models.SearchResult{}
	for rows.Next() {
		var r models.SearchResult
		if err := rows.Scan(&r.ID, &r.Name, &r.CoverImageURL, &r.MatchedOn); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// SeedRestaurant inserts a restaurant and its menu in one transaction.
func (s *Store) SeedRestaurant(ctx context.Context, r models.Restaurant, menu []models.MenuItem) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO restaurants (id, name, cover_image_url, rating, delivery_time_minutes, delivery_fee_cents)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.Name, nullString(r.CoverImageURL), r.Rating, r.DeliveryTimeMinutes, r.DeliveryFeeCents)
	if err != nil {
		return "", fmt.Errorf("failed to insert restaurant %q: %w", r.Name, err)
	}

	for _, item := range menu {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO menu_items (id, restaurant_id, name, description, price_cents, image_url, category)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, item.ID, r.ID, item.Name, nullString(item.Description), item.PriceCents,
			nullString(item.ImageURL), nullString(item.Category))
		if err != nil {
			return "", fmt.Errorf("failed to insert menu item %q: %w", item.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}

	s.logger.WithFields(logrus.Fields{
		"restaurant_id": r.ID,
		"name":          r.Name,
		"menu_items":    len(menu),
	}).Info("Restaurant seeded")
	return r.ID, nil
}
