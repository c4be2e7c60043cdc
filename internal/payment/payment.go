package payment

import (
	"context"
	"errors"
	"time"
)

const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"

	// Metadata keys echoed back by the provider on every session event.
	MetadataOrderID = "orderId"
	MetadataUserID  = "userId"
)

var (
	ErrInvalidSignature = errors.New("payment event signature verification failed")
	ErrNoRedirectURL    = errors.New("payment provider returned no redirect url")
)

type LineItem struct {
	Name            string `json:"name"`
	UnitAmountCents int64  `json:"unit_amount_cents"`
	Quantity        int64  `json:"quantity"`
}

type SessionRequest struct {
	OrderID    string            `json:"order_id"`
	Currency   string            `json:"currency"`
	LineItems  []LineItem        `json:"line_items"`
	SuccessURL string            `json:"success_url"`
	CancelURL  string            `json:"cancel_url"`
	ExpiresAt  time.Time         `json:"expires_at"`
	Metadata   map[string]string `json:"metadata"`
}

type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Provider creates hosted checkout sessions.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// Event is a verified provider event reduced to what order handling needs.
type Event struct {
	ID        string
	Type      string
	SessionID string
	Metadata  map[string]string
}

func (e *Event) OrderID() string {
	return e.Metadata[MetadataOrderID]
}

// Verifier authenticates a raw webhook body against its signature header.
type Verifier interface {
	Verify(payload []byte, signature string) (*Event, error)
}
