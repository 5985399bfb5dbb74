// Package hub is the daemon side of the command channel: a WebSocket
// endpoint playback clients connect to, with fan-out of outgoing commands
// and validation of everything clients send back.
package hub

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rbelouin/midi-hub/internal/command"
	"github.com/rbelouin/midi-hub/internal/observability"
)

type Hub struct {
	upgrader  websocket.Upgrader
	onCommand func(command.Command)

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// New builds a hub. onCommand is invoked for every well-formed command a
// client sends upstream; it may be nil.
func New(onCommand func(command.Command)) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// The daemon serves the player page itself; no cross-origin auth.
				return true
			},
		},
		onCommand: onCommand,
		clients:   map[*client]struct{}{},
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, 16)}
	h.addClient(c)
	slog.Info("player connected", "client", c.id, "remote", r.RemoteAddr)

	go h.writePump(c)
	h.readPump(c)
}

// Broadcast delivers the command to every connected client. With no client
// connected the command is dropped; nothing queues.
func (h *Hub) Broadcast(cmd command.Command) {
	data, err := command.Marshal(cmd)
	if err != nil {
		slog.Error("cannot encode command", "command", cmd.Tag(), "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		observability.ChannelMessages.WithLabelValues("dropped").Inc()
		slog.Debug("no player connected, dropping command", "command", cmd.Tag())
		return
	}
	for c := range h.clients {
		select {
		case c.send <- data:
			observability.ChannelMessages.WithLabelValues("delivered").Inc()
		default:
			// Slow client; drop it.
			observability.ChannelMessages.WithLabelValues("dropped").Inc()
			delete(h.clients, c)
			close(c.send)
			_ = c.conn.Close()
			observability.Clients.Dec()
			slog.Warn("player too slow, dropped", "client", c.id)
		}
	}
}

// Send satisfies the bridge's sink interface.
func (h *Hub) Send(cmd command.Command) { h.Broadcast(cmd) }

// ClientCount reports how many players are connected.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	observability.Clients.Inc()
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		_ = c.conn.Close()
		observability.Clients.Dec()
		slog.Info("player disconnected", "client", c.id)
	}
}

func (h *Hub) readPump(c *client) {
	defer h.removeClient(c)
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		cmd, err := command.Unmarshal(data)
		if err != nil {
			// Garbage from a client must not kill the connection.
			slog.Warn("malformed command", "client", c.id, "error", err)
			continue
		}
		if h.onCommand != nil {
			h.onCommand(cmd)
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
