package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jogardn/food-storefront/pkg/models"
	"github.com/sirupsen/logrus"
)

// Client reads orders from the storefront API on behalf of one signed-in
// user. It backs the success page poll and the watch-order command.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logrus.Logger

	initialDelay time.Duration
	maxDelay     time.Duration
}

func NewClient(baseURL, token string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:       logger,
		initialDelay: 500 * time.Millisecond,
		maxDelay:     8 * time.Second,
	}
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*models.OrderDetail, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/orders/"+orderID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to storefront: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("storefront returned error status: %d", resp.StatusCode)
	}

	var body models.OrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode storefront response: %w", err)
	}
	if body.Order == nil {
		return nil, errors.New("storefront response carries no order")
	}
	return body.Order, nil
}

// WaitForConfirmation polls until the order leaves pending or ctx ends.
// Transient errors are logged and retried; a missing order is final.
func (c *Client) WaitForConfirmation(ctx context.Context, orderID string) (*models.OrderDetail, error) {
	delay := c.initialDelay
	for attempt := 1; ; attempt++ {
		order, err := c.GetOrder(ctx, orderID)
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, err
		case err != nil:
			c.logger.WithError(err).WithFields(logrus.Fields{
				"order_id": orderID,
				"attempt":  attempt,
			}).Warn("Order poll failed")
		case order.Status != models.StatusPending:
			return order, nil
		default:
			c.logger.WithFields(logrus.Fields{
				"order_id": orderID,
				"attempt":  attempt,
			}).Debug("Order still pending")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}
}
