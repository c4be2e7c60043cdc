package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/jogardn/food-storefront/internal/auth"
	"github.com/jogardn/food-storefront/internal/config"
	"github.com/jogardn/food-storefront/internal/payment"
	"github.com/jogardn/food-storefront/pkg/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jwtSecret = "orders-handler-secret"

type handlerFixture struct {
	*fixture
	router *mux.Router
	auth   *auth.Authenticator
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	f := newFixture(t, config.CheckoutModeSession)
	authenticator := auth.NewAuthenticator(jwtSecret, logger)

	h := NewHandler(f.service, f.status, NewWebhookProcessor(payment.NewStripeVerifier(webhookSecret), f.store, f.publisher, logger), logger)
	router := mux.NewRouter()
	h.RegisterRoutes(router, authenticator.Middleware)
	return &handlerFixture{fixture: f, router: router, auth: authenticator}
}

func (hf *handlerFixture) do(t *testing.T, method, path, userID string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := hf.auth.Issue(userID, "user@example.com", time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	hf.router.ServeHTTP(rr, req)
	return rr
}

func orderBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(burgerAndFries())
	require.NoError(t, err)
	return body
}

func TestCreateOrderEndpoint(t *testing.T) {
	hf := newHandlerFixture(t)

	rr := hf.do(t, http.MethodPost, "/orders", ownerID, orderBody(t))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp models.CreateOrderResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.OrderID)
	assert.Contains(t, resp.URL, resp.OrderID)
}

func TestCreateOrderRequiresAuthentication(t *testing.T) {
	hf := newHandlerFixture(t)

	rr := hf.do(t, http.MethodPost, "/orders", "", orderBody(t))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Zero(t, hf.store.count())
}

func TestCreateOrderRejectsClientPricesAndBadShapes(t *testing.T) {
	hf := newHandlerFixture(t)

	bodies := map[string]string{
		"client price": `{"restaurant_id":"` + restaurantID + `","delivery_address":"12 Long Street, Springfield","delivery_fee_cents":0,
			"cart_items":[{"id":"` + burgerID + `","quantity":1,"price":1}]}`,
		"empty cart": `{"restaurant_id":"` + restaurantID + `","delivery_address":"12 Long Street, Springfield","delivery_fee_cents":0,"cart_items":[]}`,
		"bad id":     `{"restaurant_id":"nope","delivery_address":"12 Long Street, Springfield","delivery_fee_cents":0,"cart_items":[{"id":"` + burgerID + `","quantity":1}]}`,
		"not json":   `{`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			rr := hf.do(t, http.MethodPost, "/orders", ownerID, []byte(body))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
	assert.Zero(t, hf.store.count())
}

func TestCreateOrderMapsSessionFailureTo502(t *testing.T) {
	hf := newHandlerFixture(t)
	hf.provider.err = errProviderDown

	rr := hf.do(t, http.MethodPost, "/orders", ownerID, orderBody(t))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.NotContains(t, rr.Body.String(), errProviderDown.Error())
}

func TestCreateOrderMapsPersistenceFailureTo500(t *testing.T) {
	hf := newHandlerFixture(t)
	hf.store.createErr = errors.New("pq: relation does not exist")

	rr := hf.do(t, http.MethodPost, "/orders", ownerID, orderBody(t))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "relation")
}

func TestGetOrderEndpointHidesForeignOrders(t *testing.T) {
	hf := newHandlerFixture(t)
	created, err := hf.service.PlaceOrder(context.Background(), ownerID, burgerAndFries())
	require.NoError(t, err)

	rr := hf.do(t, http.MethodGet, "/orders/"+created.OrderID, ownerID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp models.OrderResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Order)
	assert.Equal(t, models.StatusPending, resp.Order.Status)

	stranger := hf.do(t, http.MethodGet, "/orders/"+created.OrderID, strangerID, nil)
	missing := hf.do(t, http.MethodGet, "/orders/"+"00000000-0000-4000-8000-000000000000", strangerID, nil)
	assert.Equal(t, http.StatusNotFound, stranger.Code)
	assert.Equal(t, missing.Code, stranger.Code)
	assert.Equal(t, missing.Body.String(), stranger.Body.String())
}

func TestListOrdersEndpoint(t *testing.T) {
	hf := newHandlerFixture(t)
	_, err := hf.service.PlaceOrder(context.Background(), ownerID, burgerAndFries())
	require.NoError(t, err)

	rr := hf.do(t, http.MethodGet, "/orders", ownerID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"count":1`)
}

func TestStreamOrderWithoutWatcherIsUnavailable(t *testing.T) {
	hf := newHandlerFixture(t)
	created, err := hf.service.PlaceOrder(context.Background(), ownerID, burgerAndFries())
	require.NoError(t, err)

	rr := hf.do(t, http.MethodGet, "/orders/"+created.OrderID+"/stream", ownerID, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = hf.do(t, http.MethodGet, "/orders/"+created.OrderID+"/stream", strangerID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStripeWebhookEndpointStatusCodes(t *testing.T) {
	hf := newHandlerFixture(t)
	created, err := hf.service.PlaceOrder(context.Background(), ownerID, burgerAndFries())
	require.NoError(t, err)

	post := func(body []byte, sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
		req.Header.Set("Stripe-Signature", sig)
		rr := httptest.NewRecorder()
		hf.router.ServeHTTP(rr, req)
		return rr
	}

	body, sig := signed(t, "evt_1", payment.EventCheckoutCompleted, map[string]string{payment.MetadataOrderID: created.OrderID})

	assert.Equal(t, http.StatusBadRequest, post(body, "t=1,v1=00").Code)

	noMeta, noMetaSig := signed(t, "evt_2", payment.EventCheckoutCompleted, map[string]string{})
	rr := post(noMeta, noMetaSig)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "Missing metadata"))

	rr = post(body, sig)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"received":true}`, rr.Body.String())
	assert.Equal(t, models.StatusConfirmed, hf.store.only().Status)

	assert.Equal(t, http.StatusOK, post(body, sig).Code)

	hf.store.updateErr = errors.New("database is down")
	assert.Equal(t, http.StatusInternalServerError, post(body, sig).Code)
}
