package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dominichackett/alphaoptions-sub000/pkg/models"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/logger"
)

// Hub maintains the set of connected monitoring clients and fans risk
// alerts out to them. A client receives every alert by default and can
// narrow the stream to specific owners.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	log        *logger.Logger
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	id     string
	owners map[string]bool // empty set means all owners
	mu     sync.RWMutex
}

// Message is the wire form of a hub frame.
type Message struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
	ID    string      `json:"id,omitempty"`
}

// SubscriptionMessage narrows a client's alert stream to given owners.
type SubscriptionMessage struct {
	Type   string   `json:"type"`
	Owners []string `json:"owners"`
	ID     string   `json:"id,omitempty"`
}

type envelope struct {
	owner   string
	payload []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, implement proper origin checking
		return true
	},
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

var clientSeq atomic.Uint64

// NewHub creates an alert hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        logger.GetLogger("websocket.hub"),
	}
}

// Run services registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("Starting alert hub")

	for {
		select {
		case <-ctx.Done():
			h.log.Info("Alert hub shutting down")
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.log.Infof("Client %s registered", client.id)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.log.Infof("Client %s unregistered", client.id)
			}

		case env := <-h.broadcast:
			h.deliver(env)
		}
	}
}

// Publish queues a risk alert for broadcast. Satisfies the engine's alert
// sink; a full broadcast queue drops the alert rather than block a risk
// recompute.
func (h *Hub) Publish(alert models.RiskAlert) {
	payload, err := json.Marshal(Message{Type: "alert", Data: alert})
	if err != nil {
		h.log.Errorf("Alert marshal failed: %v", err)
		return
	}
	select {
	case h.broadcast <- envelope{owner: alert.Owner, payload: payload}:
	default:
		h.log.Warn("Alert broadcast queue full, dropping alert")
	}
}

func (h *Hub) deliver(env envelope) {
	for client := range h.clients {
		if !client.wants(env.owner) {
			continue
		}
		select {
		case client.send <- env.payload:
		default:
			// Slow consumer; disconnect instead of backing up the hub.
			delete(h.clients, client)
			close(client.send)
			h.log.Warnf("Client %s dropped: send buffer full", client.id)
		}
	}
}

// HandleWebSocket upgrades the connection and starts the client pumps.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		id:     fmt.Sprintf("client-%d", clientSeq.Add(1)),
		owners: make(map[string]bool),
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) wants(owner string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.owners) == 0 {
		return true
	}
	return c.owners[owner]
}

// readPump consumes subscription messages from the peer.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Errorf("Client %s read error: %v", c.id, err)
			}
			return
		}

		var sub SubscriptionMessage
		if err := json.Unmarshal(raw, &sub); err != nil {
			c.reply(Message{Type: "error", Error: "malformed message"})
			continue
		}

		switch sub.Type {
		case "subscribe":
			c.subscribe(sub.Owners)
			c.reply(Message{Type: "subscribed", ID: sub.ID})
		case "unsubscribe":
			c.unsubscribe(sub.Owners)
			c.reply(Message{Type: "unsubscribed", ID: sub.ID})
		default:
			c.reply(Message{Type: "error", Error: "unknown message type: " + sub.Type, ID: sub.ID})
		}
	}
}

// writePump pushes queued frames and pings to the peer.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

func (c *Client) subscribe(owners []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, owner := range owners {
		c.owners[owner] = true
	}
}

func (c *Client) unsubscribe(owners []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, owner := range owners {
		delete(c.owners, owner)
	}
}

func (c *Client) reply(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}
