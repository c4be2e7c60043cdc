package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jogardn/food-storefront/internal/payment"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "whsec_mock_test"

func TestMockCheckoutDeliversSignedWebhook(t *testing.T) {
	logger, _ := test.NewNullLogger()
	received := make(chan *payment.Event, 1)

	storefront := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		evt, err := payment.NewStripeVerifier(secret).Verify(body, r.Header.Get("Stripe-Signature"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		received <- evt
		w.WriteHeader(http.StatusOK)
	}))
	defer storefront.Close()

	mock := NewMockServer("http://mock.local", storefront.URL, secret, logger)
	router := mock.Router()

	reqBody, err := json.Marshal(payment.SessionRequest{
		OrderID:    "order-1",
		Currency:   "usd",
		LineItems:  []payment.LineItem{{Name: "Classic Burger", UnitAmountCents: 1299, Quantity: 2}},
		SuccessURL: "http://shop.local/checkout/success?order_id=order-1",
		CancelURL:  "http://shop.local/cart",
		Metadata:   map[string]string{payment.MetadataOrderID: "order-1"},
	})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(reqBody)))
	require.Equal(t, http.StatusCreated, rr.Code)
	var sess payment.Session
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sess))
	assert.Equal(t, "http://mock.local/checkout/"+sess.ID, sess.URL)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/checkout/"+sess.ID, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "25.98")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/checkout/"+sess.ID+"/pay", nil))
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "http://shop.local/checkout/success?order_id=order-1", rr.Header().Get("Location"))

	evt := <-received
	assert.Equal(t, payment.EventCheckoutCompleted, evt.Type)
	assert.Equal(t, sess.ID, evt.SessionID)
	assert.Equal(t, "order-1", evt.OrderID())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/checkout/"+sess.ID+"/pay", nil))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestMockRejectsEmptySession(t *testing.T) {
	logger, _ := test.NewNullLogger()
	router := NewMockServer("http://mock.local", "http://unused", secret, logger).Router()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader([]byte(`{"order_id":"o"}`))))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/checkout/missing/pay", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
