package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"grimm.is/sentinel/internal/events"
	"grimm.is/sentinel/internal/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsSendBuffer = 256
)

// WSMessage is a topic-based message sent to clients
type WSMessage struct {
	Topic string       `json:"topic"`
	Data  events.Event `json:"data"`
}

// wsRequest is a client subscription change.
type wsRequest struct {
	Action string   `json:"action"` // subscribe, unsubscribe
	Topics []string `json:"topics"`
}

// wsClient represents a connected WebSocket client with subscriptions
type wsClient struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	topics map[string]bool
}

func (c *wsClient) subscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics["*"] || c.topics[topic]
}

func (c *wsClient) update(req wsRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range req.Topics {
		switch req.Action {
		case "subscribe":
			c.topics[topic] = true
		case "unsubscribe":
			delete(c.topics, topic)
		}
	}
}

// WSManager forwards hub events to websocket clients by topic.
type WSManager struct {
	hub      *events.Hub
	sub      <-chan events.Event
	upgrader websocket.Upgrader
	logger   *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// NewWSManager subscribes to every hub event and starts forwarding.
// Allowed origins follow the CORS list; "*" accepts any origin.
func NewWSManager(hub *events.Hub, origins []string, logger *logging.Logger) *WSManager {
	m := &WSManager{
		hub:     hub,
		sub:     hub.Subscribe(wsSendBuffer),
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
		done:    make(chan struct{}),
	}
	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(origins),
	}
	go m.run()
	return m
}

// checkOrigin enforces same-origin unless the origin is explicitly allowed.
func checkOrigin(origins []string) func(r *http.Request) bool {
	wildcard := slices.Contains(origins, "*")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || wildcard || slices.Contains(origins, origin) {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	}
}

func (m *WSManager) run() {
	for {
		select {
		case e := <-m.sub:
			m.Publish(e)
		case <-m.done:
			return
		}
	}
}

// Publish sends e to every client subscribed to its topic.
func (m *WSManager) Publish(e events.Event) {
	topic := e.Type.Topic()
	msg, err := json.Marshal(WSMessage{Topic: topic, Data: e})
	if err != nil {
		m.logger.Warn("failed to encode websocket message", "type", e.Type, "error", err)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for c := range m.clients {
		if !c.subscribed(topic) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// Client buffer full, skip
		}
	}
}

// Clients returns the number of connected clients.
func (m *WSManager) Clients() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Close stops forwarding and disconnects every client.
func (m *WSManager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.hub.Unsubscribe(m.sub)

		m.mu.Lock()
		defer m.mu.Unlock()
		for c := range m.clients {
			close(c.send)
			delete(m.clients, c)
		}
	})
}

func (m *WSManager) register(c *wsClient) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.done:
		return false
	default:
	}
	m.clients[c] = struct{}{}
	return true
}

func (m *WSManager) unregister(c *wsClient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[c]; ok {
		delete(m.clients, c)
		close(c.send)
	}
}

// ServeHTTP upgrades the connection. Initial topics may be passed as
// ?topics=rules,logs; with none the client receives every topic until it
// sends its own subscription.
func (m *WSManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", "client", getClientIP(r), "error", err)
		return
	}

	c := &wsClient{
		conn:   conn,
		send:   make(chan []byte, wsSendBuffer),
		topics: make(map[string]bool),
	}
	if raw := r.URL.Query().Get("topics"); raw != "" {
		c.update(wsRequest{Action: "subscribe", Topics: strings.Split(raw, ",")})
	} else {
		c.topics["*"] = true
	}

	if !m.register(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(wsWriteWait))
		conn.Close()
		return
	}
	m.logger.Debug("websocket client connected", "client", getClientIP(r))

	go c.writePump()
	go c.readPump(m)
}

// readPump handles incoming messages from a client (subscriptions)
func (c *wsClient) readPump(m *WSManager) {
	defer func() {
		m.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req wsRequest
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}
		if req.Action == "subscribe" {
			// An explicit subscription replaces the implicit catch-all.
			c.mu.Lock()
			delete(c.topics, "*")
			c.mu.Unlock()
		}
		c.update(req)
	}
}

// writePump sends messages to the client
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
