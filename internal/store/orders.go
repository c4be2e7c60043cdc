package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jogardn/food-storefront/pkg/models"
	"github.com/lib/pq"
)

// CreateOrder writes the order row and all of its line items in a single
// transaction. Either everything is committed or nothing is.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	if len(order.Items) == 0 {
		return errors.New("order has no line items")
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (id, user_id, restaurant_id, total_cents, delivery_fee_cents, status, delivery_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err = tx.QueryRowContext(ctx, query, order.ID, order.UserID, order.RestaurantID,
		order.TotalCents, order.DeliveryFeeCents, string(order.Status),
		nullString(order.DeliveryAddress)).Scan(&order.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, menu_item_id, quantity, unit_price_cents)
		VALUES ($1, $2, $3, $4, $5)
	`
	for i := range order.Items {
		item := &order.Items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.OrderID = order.ID
		_, err = tx.ExecContext(ctx, itemQuery, item.ID, order.ID, item.MenuItemID,
			item.Quantity, item.UnitPriceCents)
		if err != nil {
			return fmt.Errorf("insert order item %s: %w", item.MenuItemID, err)
		}
	}

	return tx.Commit()
}

// SetPaymentReference stores the payment provider's correlation id.
func (s *Store) SetPaymentReference(ctx context.Context, orderID, reference string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET stripe_payment_intent_id = $2 WHERE id = $1`, orderID, reference)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// DeletePendingOrder removes an order that never reached the payment
// provider. Line items go with it through ON DELETE CASCADE.
func (s *Store) DeletePendingOrder(ctx context.Context, orderID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM orders WHERE id = $1 AND status = $2`, orderID, string(models.StatusPending))
	if err != nil {
		return err
	}
	return expectRow(res)
}

// TransitionStatus moves an order from one status to another. It reports
// false without error when the order is not in the expected status, which
// makes repeated transitions no-ops.
func (s *Store) TransitionStatus(ctx context.Context, orderID string, from, to models.OrderStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`, orderID, string(from), string(to))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ExpirePendingBefore marks pending orders created before the cutoff as
// expired and returns the affected ids.
func (s *Store) ExpirePendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	query := `
		UPDATE orders SET status = $1
		WHERE id IN (
			SELECT id FROM orders WHERE status = $2 AND created_at < $3
			ORDER BY created_at LIMIT $4 FOR UPDATE SKIP LOCKED
		)
		RETURNING id
	`
	rows, err := s.db.QueryContext(ctx, query, string(models.StatusExpired),
		string(models.StatusPending), cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const orderDetailColumns = `o.id, o.user_id, o.restaurant_id, r.name, o.total_cents,
	o.delivery_fee_cents, o.status, o.stripe_payment_intent_id,
	COALESCE(o.delivery_address, ''), o.created_at`

func scanOrderDetail(row interface{ Scan(...any) error }) (*models.OrderDetail, error) {
	d := &models.OrderDetail{}
	var status string
	var paymentRef sql.NullString
	err := row.Scan(&d.ID, &d.UserID, &d.RestaurantID, &d.RestaurantName, &d.TotalCents,
		&d.DeliveryFeeCents, &status, &paymentRef, &d.DeliveryAddress, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.Status = models.OrderStatus(status)
	if paymentRef.Valid {
		ref := paymentRef.String
		d.StripePaymentIntentID = &ref
	}
	d.LineItems = []models.OrderItemDetail{}
	return d, nil
}

// GetOrderDetail loads an order only if it belongs to ownerID.
func (s *Store) GetOrderDetail(ctx context.Context, orderID, ownerID string) (*models.OrderDetail, error) {
	query := `SELECT ` + orderDetailColumns + `
		FROM orders o JOIN restaurants r ON r.id = o.restaurant_id
		WHERE o.id = $1 AND o.user_id = $2`
	detail, err := scanOrderDetail(s.db.QueryRowContext(ctx, query, orderID, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.attachLineItems(ctx, map[string]*models.OrderDetail{detail.ID: detail}); err != nil {
		return nil, err
	}
	return detail, nil
}

// ListOrderDetails returns the owner's orders, newest first.
func (s *Store) ListOrderDetails(ctx context.Context, ownerID string) ([]*models.OrderDetail, error) {
	query := `SELECT ` + orderDetailColumns + `
		FROM orders o JOIN restaurants r ON r.id = o.restaurant_id
		WHERE o.user_id = $1 ORDER BY o.created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []*models.OrderDetail{}
	byID := make(map[string]*models.OrderDetail)
	for rows.Next() {
		d, err := scanOrderDetail(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, d)
		byID[d.ID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	if err := s.attachLineItems(ctx, byID); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) attachLineItems(ctx context.Context, byID map[string]*models.OrderDetail) error {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	query := `
		SELECT oi.id, oi.order_id, oi.menu_item_id, m.name, oi.quantity, oi.unit_price_cents
		FROM order_items oi JOIN menu_items m ON m.id = oi.menu_item_id
		WHERE oi.order_id = ANY($1::uuid[])
		ORDER BY m.name
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItemDetail
		if err := rows.Scan(&item.ID, &item.OrderID, &item.MenuItemID, &item.MenuItemName,
			&item.Quantity, &item.UnitPriceCents); err != nil {
			return err
		}
		if d, ok := byID[item.OrderID]; ok {
			d.LineItems = append(d.LineItems, item)
		}
	}
	return rows.Err()
}

// OrderTotals is the raw material of the invariant audit.
type OrderTotals struct {
	OrderID          string
	Status           models.OrderStatus
	TotalCents       int64
	DeliveryFeeCents int64
	ItemsCents       int64
	ItemCount        int64
	CreatedAt        time.Time
}

func (s *Store) ListOrderTotals(ctx context.Context, since time.Time) ([]OrderTotals, error) {
	query := `
		SELECT o.id, o.status, o.total_cents, o.delivery_fee_cents,
			COALESCE(SUM(oi.quantity * oi.unit_price_cents), 0), COUNT(oi.id), o.created_at
		FROM orders o LEFT JOIN order_items oi ON oi.order_id = o.id
		WHERE o.created_at >= $1
		GROUP BY o.id
		ORDER BY o.created_at
	`
	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []OrderTotals
	for rows.Next() {
		var t OrderTotals
		var status string
		if err := rows.Scan(&t.OrderID, &status, &t.TotalCents, &t.DeliveryFeeCents,
			&t.ItemsCents, &t.ItemCount, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Status = models.OrderStatus(status)
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
