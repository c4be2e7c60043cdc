package account

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jogardn/food-storefront/internal/auth"
	"github.com/jogardn/food-storefront/internal/httpapi"
	"github.com/jogardn/food-storefront/pkg/models"
	"github.com/sirupsen/logrus"
)

var updateProfileSchema = httpapi.MustSchema(`{
	"type": "object",
	"required": ["full_name"],
	"additionalProperties": false,
	"properties": {
		"full_name": {"type": "string", "minLength": 1, "maxLength": 200},
		"phone_number": {"type": "string", "maxLength": 20}
	}
}`)

var addAddressSchema = httpapi.MustSchema(`{
	"type": "object",
	"required": ["full_address"],
	"additionalProperties": false,
	"properties": {
		"label": {"type": "string", "maxLength": 100},
		"full_address": {"type": "string", "minLength": 10, "maxLength": 500},
		"is_default": {"type": "boolean"}
	}
}`)

type Handler struct {
	service *Service
	logger  *logrus.Logger
}

func NewHandler(service *Service, logger *logrus.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(r *mux.Router, requireAuth mux.MiddlewareFunc) {
	account := r.PathPrefix("/account").Subrouter()
	account.Use(requireAuth)
	account.HandleFunc("/profile", h.GetProfile).Methods(http.MethodGet)
	account.HandleFunc("/profile", h.UpdateProfile).Methods(http.MethodPut)
	account.HandleFunc("/addresses", h.ListAddresses).Methods(http.MethodGet)
	account.HandleFunc("/addresses", h.AddAddress).Methods(http.MethodPost)
	account.HandleFunc("/addresses/{id}", h.DeleteAddress).Methods(http.MethodDelete)
	account.HandleFunc("/addresses/{id}/default", h.SetDefault).Methods(http.MethodPost)
}

func success(w http.ResponseWriter) {
	httpapi.RespondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	profile, err := h.service.Profile(r.Context(), id.UserID, id.Email)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpapi.RespondWithJSON(w, http.StatusOK, profile)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	var req models.UpdateProfileRequest
	if err := httpapi.Decode(r, updateProfileSchema, &req); err != nil {
		httpapi.WriteDecodeError(w, err)
		return
	}
	if err := h.service.UpdateProfile(r.Context(), id.UserID, req); err != nil {
		h.writeError(w, err)
		return
	}
	success(w)
}

func (h *Handler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	addresses, err := h.service.Addresses(r.Context(), id.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpapi.RespondWithJSON(w, http.StatusOK, addresses)
}

func (h *Handler) AddAddress(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	var req models.AddAddressRequest
	if err := httpapi.Decode(r, addAddressSchema, &req); err != nil {
		httpapi.WriteDecodeError(w, err)
		return
	}
	address, err := h.service.AddAddress(r.Context(), id.UserID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpapi.RespondWithJSON(w, http.StatusCreated, address)
}

func (h *Handler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	if err := h.service.DeleteAddress(r.Context(), id.UserID, mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	success(w)
}

func (h *Handler) SetDefault(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	if err := h.service.SetDefault(r.Context(), id.UserID, mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	success(w)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		httpapi.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		httpapi.RespondWithError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, ErrNotFound):
		httpapi.RespondWithError(w, http.StatusNotFound, "Address not found")
	case errors.Is(err, ErrConflict):
		httpapi.RespondWithError(w, http.StatusConflict, "Default address changed, please retry")
	default:
		h.logger.WithError(err).Error("Account request failed")
		httpapi.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
