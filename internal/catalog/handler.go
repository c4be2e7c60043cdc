package catalog

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jogardn/food-storefront/internal/httpapi"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	service *Service
	logger  *logrus.Logger
}

func NewHandler(service *Service, logger *logrus.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/restaurants", h.ListRestaurants).Methods(http.MethodGet)
	r.HandleFunc("/restaurants/search", h.Search).Methods(http.MethodGet)
	r.HandleFunc("/restaurants/{id}", h.GetRestaurant).Methods(http.MethodGet)
	r.HandleFunc("/restaurants/{id}/menu", h.Menu).Methods(http.MethodGet)
}

func (h *Handler) ListRestaurants(w http.ResponseWriter, r *http.Request) {
	restaurants, err := h.service.ListRestaurants(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpapi.RespondWithJSON(w, http.StatusOK, restaurants)
}

func (h *Handler) GetRestaurant(w http.ResponseWriter, r *http.Request) {
	restaurant, err := h.service.GetRestaurant(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpapi.RespondWithJSON(w, http.StatusOK, restaurant)
}

func (h *Handler) Menu(w http.ResponseWriter, r *http.Request) {
	menu, err := h.service.Menu(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpapi.RespondWithJSON(w, http.StatusOK, menu)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpapi.RespondWithJSON(w, http.StatusOK, results)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		httpapi.RespondWithError(w, http.StatusNotFound, "Restaurant not found")
		return
	}
	h.logger.WithError(err).Error("Catalog request failed")
	httpapi.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
}
