package orders

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jogardn/food-storefront/internal/auth"
	"github.com/jogardn/food-storefront/internal/httpapi"
	"github.com/jogardn/food-storefront/internal/metrics"
	"github.com/jogardn/food-storefront/pkg/models"
	"github.com/sirupsen/logrus"
)

const maxWebhookBytes = 1 << 20

var createOrderSchema = httpapi.MustSchema(`{
	"type": "object",
	"required": ["cart_items", "restaurant_id", "delivery_address", "delivery_fee_cents"],
	"additionalProperties": false,
	"properties": {
		"cart_items": {
			"type": "array",
			"minItems": 1,
			"maxItems": 100,
			"items": {
				"type": "object",
				"required": ["id", "quantity"],
				"additionalProperties": false,
				"properties": {
					"id": {"type": "string", "pattern": "^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$"},
					"quantity": {"type": "integer", "minimum": 1, "maximum": 99}
				}
			}
		},
		"restaurant_id": {"type": "string", "pattern": "^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$"},
		"delivery_address": {"type": "string", "minLength": 10, "maxLength": 500},
		"delivery_fee_cents": {"type": "integer", "minimum": 0}
	}
}`)

// OrderWatcher streams live status updates for one order.
type OrderWatcher interface {
	Serve(w http.ResponseWriter, r *http.Request, orderID string, snapshot interface{})
}

type Handler struct {
	service  *Service
	status   *StatusService
	webhooks *WebhookProcessor
	watcher  OrderWatcher
	metrics  *metrics.Metrics
	logger   *logrus.Logger
}

func NewHandler(service *Service, status *StatusService, webhooks *WebhookProcessor, logger *logrus.Logger) *Handler {
	return &Handler{
		service:  service,
		status:   status,
		webhooks: webhooks,
		logger:   logger,
	}
}

func (h *Handler) SetWatcher(watcher OrderWatcher) {
	h.watcher = watcher
}

func (h *Handler) SetMetrics(m *metrics.Metrics) {
	h.metrics = m
}

// RegisterRoutes mounts the order API. Everything under /orders requires an
// authenticated caller; the webhook authenticates by signature instead.
func (h *Handler) RegisterRoutes(r *mux.Router, requireAuth mux.MiddlewareFunc) {
	orders := r.PathPrefix("/orders").Subrouter()
	orders.Use(requireAuth)
	orders.HandleFunc("", h.CreateOrder).Methods(http.MethodPost)
	orders.HandleFunc("", h.ListOrders).Methods(http.MethodGet)
	orders.HandleFunc("/{id}", h.GetOrder).Methods(http.MethodGet)
	orders.HandleFunc("/{id}/stream", h.StreamOrder).Methods(http.MethodGet)

	r.HandleFunc("/webhooks/stripe", h.StripeWebhook).Methods(http.MethodPost)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var req models.CreateOrderRequest
	if err := httpapi.Decode(r, createOrderSchema, &req); err != nil {
		h.logger.WithError(err).Info("Rejected order request")
		httpapi.WriteDecodeError(w, err)
		return
	}

	result, err := h.service.PlaceOrder(r.Context(), id.UserID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	httpapi.RespondWithJSON(w, http.StatusCreated, models.CreateOrderResponse{
		Success: true,
		OrderID: result.OrderID,
		URL:     result.URL,
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	detail, err := h.status.Get(r.Context(), mux.Vars(r)["id"], id.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpapi.RespondWithJSON(w, http.StatusOK, models.OrderResponse{Success: true, Order: detail})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	orders, err := h.status.List(r.Context(), id.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpapi.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"orders":  orders,
		"count":   len(orders),
	})
}

func (h *Handler) StreamOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	detail, err := h.status.Get(r.Context(), mux.Vars(r)["id"], id.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if h.watcher == nil {
		httpapi.RespondWithError(w, http.StatusServiceUnavailable, "Live tracking is not available")
		return
	}
	h.watcher.Serve(w, r, detail.ID, detail)
}

func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		httpapi.RespondWithError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	outcome, err := h.webhooks.Process(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	eventType := "unknown"
	if outcome != nil {
		eventType = outcome.EventType
	}

	switch {
	case errors.Is(err, ErrSignatureVerification):
		h.observeWebhook(eventType, "bad_signature")
		httpapi.RespondWithJSON(w, http.StatusBadRequest, map[string]string{"error": "Webhook signature verification failed"})
	case errors.Is(err, ErrMissingCorrelation):
		h.observeWebhook(eventType, "missing_metadata")
		httpapi.RespondWithJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing metadata"})
	case err != nil:
		h.observeWebhook(eventType, "storage_error")
		httpapi.RespondWithJSON(w, http.StatusInternalServerError, map[string]string{"error": "Database update failed."})
	default:
		if outcome.Applied {
			h.observeWebhook(eventType, "applied")
		} else {
			h.observeWebhook(eventType, "noop")
		}
		httpapi.RespondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}

func (h *Handler) observeWebhook(eventType, outcome string) {
	if h.metrics != nil {
		h.metrics.Webhooks.WithLabelValues(eventType, outcome).Inc()
	}
}

// writeError maps workflow errors to status codes. Storage details never
// reach the client.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var validation *ValidationError
	switch {
	case errors.As(err, &validation):
		httpapi.RespondWithValidation(w, validation.Message, validation.Details)
	case errors.Is(err, ErrNotFound):
		httpapi.RespondWithError(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, ErrCheckoutSessionFailed):
		httpapi.RespondWithError(w, http.StatusBadGateway, "Could not start checkout, please try again")
	case errors.Is(err, ErrOrderCreationFailed):
		httpapi.RespondWithError(w, http.StatusInternalServerError, "Failed to place order, please try again")
	default:
		h.logger.WithError(err).Error("Order request failed")
		httpapi.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
