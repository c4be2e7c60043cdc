package orders

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jogardn/food-storefront/internal/payment"
	"github.com/jogardn/food-storefront/internal/pricing"
	"github.com/jogardn/food-storefront/pkg/models"
	"github.com/sirupsen/logrus"
)

const compensationTimeout = 5 * time.Second

type CheckoutConfig struct {
	Currency      string
	PublicBaseURL string
	SessionTTL    time.Duration
}

// Coordinator opens a hosted checkout session for a pending order and
// deletes the order again when no session could be opened.
type Coordinator struct {
	store    Store
	provider payment.Provider
	cfg      CheckoutConfig
	now      func() time.Time
	logger   *logrus.Logger
}

func NewCoordinator(store Store, provider payment.Provider, cfg CheckoutConfig, logger *logrus.Logger) *Coordinator {
	return &Coordinator{store: store, provider: provider, cfg: cfg, now: time.Now, logger: logger}
}

func (c *Coordinator) sessionRequest(order *models.Order, quote *pricing.Quote) payment.SessionRequest {
	items := make([]payment.LineItem, 0, len(quote.Lines)+1)
	for _, line := range quote.Lines {
		items = append(items, payment.LineItem{
			Name:            line.Name,
			UnitAmountCents: line.UnitPriceCents,
			Quantity:        line.Quantity,
		})
	}
	if order.DeliveryFeeCents > 0 {
		items = append(items, payment.LineItem{
			Name:            "Delivery fee",
			UnitAmountCents: order.DeliveryFeeCents,
			Quantity:        1,
		})
	}

	req := payment.SessionRequest{
		OrderID:    order.ID,
		Currency:   c.cfg.Currency,
		LineItems:  items,
		SuccessURL: c.cfg.PublicBaseURL + "/checkout/success?order_id=" + url.QueryEscape(order.ID),
		CancelURL:  c.cfg.PublicBaseURL + "/cart",
		Metadata: map[string]string{
			payment.MetadataOrderID: order.ID,
			payment.MetadataUserID:  order.UserID,
		},
	}
	if c.cfg.SessionTTL > 0 {
		req.ExpiresAt = c.now().Add(c.cfg.SessionTTL)
	}
	return req
}

// Start returns the provider session for a freshly persisted pending order.
// On any failure the order is deleted and ErrCheckoutSessionFailed returned.
func (c *Coordinator) Start(ctx context.Context, order *models.Order, quote *pricing.Quote) (*payment.Session, error) {
	logger := c.logger.WithField("order_id", order.ID)

	sess, err := c.provider.CreateCheckoutSession(ctx, c.sessionRequest(order, quote))
	if err == nil && (sess == nil || sess.URL == "") {
		err = payment.ErrNoRedirectURL
	}
	if err != nil {
		logger.WithError(err).Error("Checkout session failed, removing pending order")
		c.compensate(ctx, order.ID)
		return nil, fmt.Errorf("%w: %v", ErrCheckoutSessionFailed, err)
	}

	if err := c.store.SetPaymentReference(ctx, order.ID, sess.ID); err != nil {
		logger.WithError(err).WithField("session_id", sess.ID).Warn("Failed to store payment reference")
	}

	logger.WithField("session_id", sess.ID).Info("Checkout session created")
	return sess, nil
}

// compensate runs even if the request was cancelled, otherwise a client
// disconnect would leave the order behind.
func (c *Coordinator) compensate(ctx context.Context, orderID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := c.store.DeletePendingOrder(ctx, orderID); err != nil {
		c.logger.WithError(err).WithField("order_id", orderID).
			Error("Compensating delete failed, order left pending for the sweeper")
		return
	}
	c.logger.WithField("order_id", orderID).Info("Pending order removed after checkout failure")
}
