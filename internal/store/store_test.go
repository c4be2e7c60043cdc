package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jogardn/food-storefront/pkg/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger, _ := test.NewNullLogger()
	return New(db, logger), mock
}

func sampleOrder() *models.Order {
	return &models.Order{
		UserID:           "user-1",
		RestaurantID:     "rest-1",
		TotalCents:       3896,
		DeliveryFeeCents: 399,
		Status:           models.StatusPending,
		DeliveryAddress:  "12 Long Street, Springfield",
		Items: []models.OrderItem{
			{MenuItemID: "burger", Quantity: 2, UnitPriceCents: 1299},
			{MenuItemID: "fries", Quantity: 1, UnitPriceCents: 899},
		},
	}
}

func TestCreateOrderCommitsOrderAndItems(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO orders").
		WithArgs(sqlmock.AnyArg(), "user-1", "rest-1", 3896, 399, "pending", "12 Long Street, Springfield").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "burger", 2, 1299).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "fries", 1, 899).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	order := sampleOrder()
	require.NoError(t, s.CreateOrder(context.Background(), order))

	assert.NotEmpty(t, order.ID)
	assert.Equal(t, created, order.CreatedAt)
	for _, item := range order.Items {
		assert.Equal(t, order.ID, item.OrderID)
		assert.NotEmpty(t, item.ID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderRollsBackWhenAnItemFails(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO orders").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").WillReturnError(errors.New("fk violation"))
	mock.ExpectRollback()

	err := s.CreateOrder(context.Background(), sampleOrder())
	assert.ErrorContains(t, err, "fk violation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderRejectsEmptyOrder(t *testing.T) {
	s, mock := newMockStore(t)

	err := s.CreateOrder(context.Background(), &models.Order{UserID: "u"})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatusIsNoopWhenStatusDiffers(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`)).
		WithArgs("order-1", "pending", "confirmed").
		WillReturnResult(sqlmock.NewResult(0, 0))

	moved, err := s.TransitionStatus(context.Background(), "order-1", models.StatusPending, models.StatusConfirmed)
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestDeletePendingOrderNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM orders").
		WithArgs("order-1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.DeletePendingOrder(context.Background(), "order-1"), ErrNotFound)
}

func TestGetOrderDetailFiltersByOwner(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE o.id = $1 AND o.user_id = $2")).
		WithArgs("order-1", "intruder").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetOrderDetail(context.Background(), "order-1", "intruder")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetOrderDetailJoinsLineItems(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Now().UTC()

	mock.ExpectQuery("FROM orders o JOIN restaurants r").
		WithArgs("order-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "restaurant_id", "name", "total_cents",
			"delivery_fee_cents", "status", "stripe_payment_intent_id", "delivery_address", "created_at"}).
			AddRow("order-1", "user-1", "rest-1", "Burger Joint", 3896, 399, "confirmed", "cs_123", "addr", created))
	mock.ExpectQuery("FROM order_items oi JOIN menu_items m").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "menu_item_id", "name", "quantity", "unit_price_cents"}).
			AddRow("i1", "order-1", "burger", "Classic Burger", 2, 1299).
			AddRow("i2", "order-1", "fries", "Loaded Fries", 1, 899))

	detail, err := s.GetOrderDetail(context.Background(), "order-1", "user-1")
	require.NoError(t, err)

	assert.Equal(t, "Burger Joint", detail.RestaurantName)
	assert.Equal(t, models.StatusConfirmed, detail.Status)
	require.NotNil(t, detail.StripePaymentIntentID)
	assert.Equal(t, "cs_123", *detail.StripePaymentIntentID)
	require.Len(t, detail.LineItems, 2)
	assert.Equal(t, "Classic Burger", detail.LineItems[0].MenuItemName)
}

func TestMenuItemsByIDScopesToRestaurant(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE restaurant_id = $1 AND id = ANY($2::uuid[])")).
		WithArgs("rest-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "restaurant_id", "name", "price_cents"}).
			AddRow("burger", "rest-1", "Classic Burger", 1299))

	items, err := s.MenuItemsByID(context.Background(), "rest-1", []string{"burger", "ghost"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(1299), items[0].PriceCents)
}

func TestSetDefaultAddressLocksClearsThenSets(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT id FROM addresses WHERE user_id = $1 FOR UPDATE")).
		WithArgs("user-1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE addresses SET is_default = false")).
		WithArgs("user-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE addresses SET is_default = true")).
		WithArgs("addr-2", "user-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SetDefaultAddress(context.Background(), "user-1", "addr-2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetDefaultAddressRollsBackForForeignAddress(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("FOR UPDATE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("is_default = false").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("is_default = true").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.SetDefaultAddress(context.Background(), "user-1", "someone-elses")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpirePendingBeforeReturnsIDs(t *testing.T) {
	s, mock := newMockStore(t)
	cutoff := time.Now().Add(-2 * time.Hour)

	mock.ExpectQuery("UPDATE orders SET status").
		WithArgs("expired", "pending", cutoff, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("o1").AddRow("o2"))

	ids, err := s.ExpirePendingBefore(context.Background(), cutoff, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o2"}, ids)
}

func TestListOrderTotals(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Now().Add(-24 * time.Hour)
	created := time.Now().UTC()

	mock.ExpectQuery("FROM orders o LEFT JOIN order_items oi").
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "total_cents", "delivery_fee_cents", "items", "count", "created_at"}).
			AddRow("o1", "confirmed", 3896, 399, 3497, 2, created))

	totals, err := s.ListOrderTotals(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, models.StatusConfirmed, totals[0].Status)
	assert.Equal(t, int64(3497), totals[0].ItemsCents)
	assert.Equal(t, created, totals[0].CreatedAt)
}
