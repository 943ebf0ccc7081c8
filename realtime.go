package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gitea.kood.tech/petrkubec/soulmate/backend/metrics"
)

// ServerEvent is pushed to browser sockets.
type ServerEvent struct {
	Type          string `json:"type"` // "counts" | "info" | "error"
	Notifications *int   `json:"notifications,omitempty"`
	Messages      *int   `json:"messages,omitempty"`
	Data          any    `json:"data,omitempty"`
}

// clientEvent is what a browser may send. Only "refresh" is understood.
type clientEvent struct {
	Type string `json:"type"`
}

// Client is one websocket connection of a signed-in user.
type Client struct {
	userID string
	conn   *websocket.Conn
	send   chan ServerEvent
}

// Hub tracks open sockets per user.
type Hub struct {
	clientsByUser map[string]map[*Client]bool
	mu            sync.RWMutex
	metrics       *metrics.Metrics
}

func newHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clientsByUser: make(map[string]map[*Client]bool),
		metrics:       m,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clientsByUser[c.userID] == nil {
		h.clientsByUser[c.userID] = make(map[*Client]bool)
	}
	h.clientsByUser[c.userID][c] = true
	h.metrics.RealtimeConnected(1)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if peers, ok := h.clientsByUser[c.userID]; ok {
		if _, ok := peers[c]; !ok {
			return
		}
		delete(peers, c)
		if len(peers) == 0 {
			delete(h.clientsByUser, c.userID)
		}
		h.metrics.RealtimeConnected(-1)
	}
}

// connected reports whether the user has at least one open socket.
func (h *Hub) connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clientsByUser[userID]) > 0
}

func (h *Hub) sendToUser(userID string, evt ServerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if peers, ok := h.clientsByUser[userID]; ok {
		for c := range peers {
			select {
			case c.send <- evt:
			default:
				// Drop message if user's buffer is full
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by the CORS layer for regular requests; the
	// socket carries its own token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// GET /ws/notifications?token=...
func wsNotificationsHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, state := a.resolveSession(r)
		switch state {
		case SessionLoading:
			writeLoading(w)
			return
		case SessionAnonymous:
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			a.log.Warn("ws upgrade", zap.String("user_id", user.ID), zap.Error(err))
			return
		}

		client := &Client{
			userID: user.ID,
			conn:   conn,
			send:   make(chan ServerEvent, 16),
		}
		a.hub.register(client)

		client.send <- ServerEvent{Type: "info", Data: "connected"}
		a.pushCounts(context.WithoutCancel(r.Context()), user.ID)

		go clientWriter(client)
		a.clientReader(client)
	}
}

// pushCounts sends the user's current unread counts to every open socket.
func (a *App) pushCounts(ctx context.Context, userID string) {
	if !a.hub.connected(userID) {
		return
	}
	n, m := a.unreadCounts(ctx, userID)
	a.hub.sendToUser(userID, ServerEvent{Type: "counts", Notifications: &n, Messages: &m})
}

func (a *App) clientReader(c *Client) {
	defer func() {
		a.hub.unregister(c)
		// the hub no longer sends to c, so the writer can be stopped
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4 << 10)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var evt clientEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			c.trySend(ServerEvent{Type: "error", Data: "invalid message format"})
			continue
		}

		switch evt.Type {
		case "refresh":
			n, m := a.unreadCounts(context.Background(), c.userID)
			c.trySend(ServerEvent{Type: "counts", Notifications: &n, Messages: &m})
		default:
			c.trySend(ServerEvent{Type: "error", Data: "unknown message type"})
		}
	}
}

func (c *Client) trySend(evt ServerEvent) {
	select {
	case c.send <- evt:
	default:
	}
}

func clientWriter(c *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			// ping to keep the connection alive
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
