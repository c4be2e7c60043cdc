package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// MockProvider talks to the local hosted-checkout stand-in (cmd/payment-mock).
type MockProvider struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewMockProvider(baseURL string, logger *logrus.Logger) *MockProvider {
	return &MockProvider{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (c *MockProvider) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error) {
	c.logger.WithField("order_id", req.OrderID).Info("Creating mock checkout session")

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach payment mock: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("payment mock returned error status: %d", resp.StatusCode)
	}

	var sess Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, fmt.Errorf("failed to decode payment mock response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"order_id":   req.OrderID,
		"session_id": sess.ID,
	}).Info("Mock checkout session created")
	return &sess, nil
}
