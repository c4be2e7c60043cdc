package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jogardn/food-storefront/internal/events"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

type Message struct {
	Type      string      `json:"type"`
	OrderID   string      `json:"order_id"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

type Client struct {
	conn    *websocket.Conn
	send    chan Message
	orderID string
	hub     *Hub
	logger  *logrus.Logger
}

type delivery struct {
	orderID string
	message Message
}

// Hub fans order status changes out to the clients watching each order.
type Hub struct {
	subscribers map[string]map[*Client]bool
	deliver     chan delivery
	register    chan *Client
	unregister  chan *Client
	done        chan struct{}
	mutex       sync.RWMutex
	upgrader    websocket.Upgrader
	logger      *logrus.Logger
}

// NewHub builds a hub. allowedOrigin "*" accepts any origin.
func NewHub(allowedOrigin string, logger *logrus.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]map[*Client]bool),
		deliver:     make(chan delivery, 256),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "*" || origin == "" || origin == allowedOrigin
			},
		},
		logger: logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mutex.Lock()
			if h.subscribers[client.orderID] == nil {
				h.subscribers[client.orderID] = make(map[*Client]bool)
			}
			h.subscribers[client.orderID][client] = true
			h.mutex.Unlock()
			h.logger.WithField("order_id", client.orderID).Info("Order watcher connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			h.remove(client)
			h.mutex.Unlock()

		case d := <-h.deliver:
			h.mutex.Lock()
			for client := range h.subscribers[d.orderID] {
				select {
				case client.send <- d.message:
				default:
					h.remove(client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// remove must be called with mutex held.
func (h *Hub) remove(client *Client) {
	watchers, ok := h.subscribers[client.orderID]
	if !ok || !watchers[client] {
		return
	}
	delete(watchers, client)
	close(client.send)
	if len(watchers) == 0 {
		delete(h.subscribers, client.orderID)
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for _, watchers := range h.subscribers {
		for client := range watchers {
			h.remove(client)
		}
	}
}

// HandleOrderEvent forwards a lifecycle event to the order's watchers.
func (h *Hub) HandleOrderEvent(_ context.Context, event events.OrderEvent) error {
	h.Notify(event.OrderID, string(event.Type), event)
	return nil
}

func (h *Hub) Notify(orderID, messageType string, data interface{}) {
	message := Message{
		Type:      messageType,
		OrderID:   orderID,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	select {
	case h.deliver <- delivery{orderID: orderID, message: message}:
	default:
		h.logger.WithField("order_id", orderID).Warn("Delivery channel full, dropping message")
	}
}

// Serve upgrades the request and streams updates for orderID, starting with
// snapshot. Callers must have checked that the requester owns the order.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, orderID string, snapshot interface{}) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}

	client := &Client{
		conn:    conn,
		send:    make(chan Message, 16),
		orderID: orderID,
		hub:     h,
		logger:  h.logger,
	}
	client.send <- Message{
		Type:      "snapshot",
		OrderID:   orderID,
		Data:      snapshot,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) WatcherCount(orderID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.subscribers[orderID])
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket error")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(message)
			if err != nil {
				c.logger.WithError(err).Error("Failed to marshal WebSocket message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
