package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jogardn/food-storefront/internal/httpapi"
	"github.com/jogardn/food-storefront/internal/payment"
	"github.com/sirupsen/logrus"
)

type session struct {
	ID      string
	Request payment.SessionRequest
	Status  string
}

func (s *session) TotalCents() int64 {
	var total int64
	for _, item := range s.Request.LineItems {
		total += item.UnitAmountCents * item.Quantity
	}
	return total
}

// SessionStore keeps mock checkout sessions in memory.
type SessionStore struct {
	sessions map[string]*session
	mutex    sync.RWMutex
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*session)}
}

func (s *SessionStore) put(sess *session) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.sessions[sess.ID] = sess
}

func (s *SessionStore) get(id string) (*session, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// complete flips an open session exactly once.
func (s *SessionStore) complete(id, status string) (*session, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Status != "open" {
		return sess, false
	}
	sess.Status = status
	return sess, true
}

type MockServer struct {
	store         *SessionStore
	publicURL     string
	webhookURL    string
	webhookSecret string
	httpClient    *http.Client
	logger        *logrus.Logger
}

func NewMockServer(publicURL, webhookURL, webhookSecret string, logger *logrus.Logger) *MockServer {
	return &MockServer{
		store:         NewSessionStore(),
		publicURL:     publicURL,
		webhookURL:    webhookURL,
		webhookSecret: webhookSecret,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		logger:        logger,
	}
}

func (m *MockServer) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", m.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/sessions", m.CreateSession).Methods(http.MethodPost)
	router.HandleFunc("/checkout/{id}", m.CheckoutPage).Methods(http.MethodGet)
	router.HandleFunc("/checkout/{id}/pay", m.finish(payment.EventCheckoutCompleted, "complete")).Methods(http.MethodPost)
	router.HandleFunc("/checkout/{id}/expire", m.finish(payment.EventCheckoutExpired, "expired")).Methods(http.MethodPost)
	router.HandleFunc("/checkout/{id}/cancel", m.Cancel).Methods(http.MethodPost)
	return router
}

func (m *MockServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httpapi.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "payment-mock"})
}

func (m *MockServer) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req payment.SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.OrderID == "" || len(req.LineItems) == 0 {
		httpapi.RespondWithError(w, http.StatusBadRequest, "order_id and line_items are required")
		return
	}

	sess := &session{ID: "cs_mock_" + uuid.NewString(), Request: req, Status: "open"}
	m.store.put(sess)

	m.logger.WithFields(logrus.Fields{
		"session_id":  sess.ID,
		"order_id":    req.OrderID,
		"total_cents": sess.TotalCents(),
	}).Info("Mock checkout session opened")

	httpapi.RespondWithJSON(w, http.StatusCreated, payment.Session{
		ID:  sess.ID,
		URL: m.publicURL + "/checkout/" + sess.ID,
	})
}

var checkoutPage = template.Must(template.New("checkout").Funcs(template.FuncMap{
	"money": func(cents int64) string { return fmt.Sprintf("%d.%02d", cents/100, cents%100) },
}).Parse(`<!doctype html>
<html><head><title>Mock checkout</title></head>
<body>
<h1>Order {{.Request.OrderID}}</h1>
<table>
{{range .Request.LineItems}}<tr><td>{{.Quantity}} x {{.Name}}</td><td>{{money .UnitAmountCents}}</td></tr>
{{end}}</table>
<p><strong>Total: {{money .TotalCents}} {{.Request.Currency}}</strong></p>
{{if eq .Status "open"}}
<form method="post" action="/checkout/{{.ID}}/pay"><button>Pay</button></form>
<form method="post" action="/checkout/{{.ID}}/cancel"><button>Cancel</button></form>
{{else}}<p>Session is {{.Status}}.</p>{{end}}
</body></html>`))

func (m *MockServer) CheckoutPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := m.store.get(mux.Vars(r)["id"])
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := checkoutPage.Execute(w, sess); err != nil {
		m.logger.WithError(err).Error("Failed to render checkout page")
	}
}

// finish closes the session and delivers a signed webhook for it before
// redirecting the shopper back to the storefront.
func (m *MockServer) finish(eventType, status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		sess, ok := m.store.complete(id, status)
		if !ok {
			if sess == nil {
				http.NotFound(w, r)
				return
			}
			httpapi.RespondWithError(w, http.StatusConflict, "Session is already "+sess.Status)
			return
		}

		if err := m.deliver(eventType, sess); err != nil {
			m.logger.WithError(err).WithField("session_id", id).Error("Webhook delivery failed")
			httpapi.RespondWithError(w, http.StatusBadGateway, "Webhook delivery failed")
			return
		}

		target := sess.Request.SuccessURL
		if eventType == payment.EventCheckoutExpired {
			target = sess.Request.CancelURL
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}

func (m *MockServer) Cancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := m.store.get(mux.Vars(r)["id"])
	if !ok {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, sess.Request.CancelURL, http.StatusSeeOther)
}

func (m *MockServer) deliver(eventType string, sess *session) error {
	body, signature, err := payment.SignedCheckoutEvent("evt_mock_"+uuid.NewString(), eventType, sess.ID,
		sess.Request.Metadata, m.webhookSecret)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, m.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signature)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("storefront rejected webhook with status %d", resp.StatusCode)
	}

	m.logger.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"order_id":   sess.Request.OrderID,
		"event_type": eventType,
	}).Info("Webhook delivered")
	return nil
}
