package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jogardn/food-storefront/internal/circuitbreaker"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

func TestVerifierAcceptsSignedCheckoutEvent(t *testing.T) {
	meta := map[string]string{MetadataOrderID: "order-1", MetadataUserID: "user-1"}
	body, header, err := SignedCheckoutEvent("evt_1", EventCheckoutCompleted, "cs_1", meta, testSecret)
	require.NoError(t, err)

	evt, err := NewStripeVerifier(testSecret).Verify(body, header)
	require.NoError(t, err)

	assert.Equal(t, "evt_1", evt.ID)
	assert.Equal(t, EventCheckoutCompleted, evt.Type)
	assert.Equal(t, "cs_1", evt.SessionID)
	assert.Equal(t, "order-1", evt.OrderID())
}

func TestVerifierRejectsWrongSecretAndTampering(t *testing.T) {
	meta := map[string]string{MetadataOrderID: "order-1"}
	body, header, err := SignedCheckoutEvent("evt_1", EventCheckoutCompleted, "cs_1", meta, testSecret)
	require.NoError(t, err)

	_, err = NewStripeVerifier("whsec_other").Verify(body, header)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	tampered := append([]byte{}, body...)
	tampered[len(tampered)-2] = ' '
	_, err = NewStripeVerifier(testSecret).Verify(tampered, header)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = NewStripeVerifier(testSecret).Verify(body, "")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestMockProviderCreatesSession(t *testing.T) {
	var got SessionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Session{ID: "cs_mock_1", URL: "http://mock/checkout/cs_mock_1"})
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	sess, err := NewMockProvider(srv.URL, logger).CreateCheckoutSession(context.Background(), SessionRequest{
		OrderID:   "order-1",
		LineItems: []LineItem{{Name: "Classic Burger", UnitAmountCents: 1299, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_mock_1", sess.ID)
	assert.Equal(t, "order-1", got.OrderID)
	assert.Len(t, got.LineItems, 1)
}

func TestMockProviderSurfacesErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	_, err := NewMockProvider(srv.URL, logger).CreateCheckoutSession(context.Background(), SessionRequest{})
	assert.ErrorContains(t, err, "502")
}

type stubProvider struct {
	sess  *Session
	err   error
	calls int
}

func (s *stubProvider) CreateCheckoutSession(context.Context, SessionRequest) (*Session, error) {
	s.calls++
	return s.sess, s.err
}

func TestGuardedProviderTreatsEmptyURLAsFailureAndOpens(t *testing.T) {
	logger, _ := test.NewNullLogger()
	breaker := circuitbreaker.New(circuitbreaker.Config{Name: "payment", MaxFailures: 2}, logger)
	stub := &stubProvider{sess: &Session{ID: "cs_1"}}
	g := NewGuardedProvider(stub, breaker)

	for i := 0; i < 2; i++ {
		_, err := g.CreateCheckoutSession(context.Background(), SessionRequest{})
		assert.ErrorIs(t, err, ErrNoRedirectURL)
	}

	_, err := g.CreateCheckoutSession(context.Background(), SessionRequest{})
	assert.True(t, errors.Is(err, circuitbreaker.ErrOpen))
	assert.Equal(t, 2, stub.calls)
}

func TestVerifierWithoutSecretRejectsEverything(t *testing.T) {
	meta := map[string]string{MetadataOrderID: "order-1"}
	body, header, err := SignedCheckoutEvent("evt_1", EventCheckoutCompleted, "cs_1", meta, "")
	require.NoError(t, err)

	_, err = NewStripeVerifier("").Verify(body, header)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestGuardedProviderTreatsNilSessionAsFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	breaker := circuitbreaker.New(circuitbreaker.Config{Name: "payment", MaxFailures: 5}, logger)
	g := NewGuardedProvider(&stubProvider{}, breaker)

	sess, err := g.CreateCheckoutSession(context.Background(), SessionRequest{})
	assert.ErrorIs(t, err, ErrNoRedirectURL)
	assert.Nil(t, sess)
}
