package devapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/propsync/internal/auth"
	"github.com/erauner12/propsync/internal/channel"
	"github.com/erauner12/propsync/internal/metrics"
)

const (
	hubSendBuffer   = 64
	hubWriteTimeout = 10 * time.Second
)

type hubClient struct {
	ws   *websocket.Conn
	send chan []byte
	user auth.Identity
}

// Hub fans push frames out to every connected websocket
type Hub struct {
	mu       sync.RWMutex
	clients  map[*hubClient]struct{}
	upgrader websocket.Upgrader
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*hubClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades an authenticated request and keeps the socket until it closes
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	user, _ := auth.IdentityFrom(r.Context())
	c := &hubClient{ws: ws, send: make(chan []byte, hubSendBuffer), user: user}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	logger := log.With().Int64("userId", user.ID).Str("role", string(user.Role)).Logger()
	logger.Info().Int("clients", total).Msg("push client connected")

	go h.write(c)

	// Reading keeps the default ping handler answering the client's pings
	ws.SetReadLimit(4096)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	h.drop(c)
	logger.Info().Msg("push client disconnected")
}

func (h *Hub) write(c *hubClient) {
	for msg := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.ws.Close()
			break
		}
	}
	// Drain so drop never blocks on a dead writer
	for range c.send {
	}
}

func (h *Hub) drop(c *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.ws.Close()
}

// Broadcast sends one frame to every client. Clients whose buffer is full
// are disconnected; the push channel tolerates loss.
func (h *Hub) Broadcast(event string, data any) {
	msg, err := channel.EncodeFrame(event, data)
	if err != nil {
		log.Error().Err(err).Str("eventName", event).Msg("failed to encode push frame")
		return
	}
	metrics.Broadcast(event)

	var slow []*hubClient
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Warn().Int64("userId", c.user.ID).Msg("dropping slow push client")
		h.drop(c)
	}
}

// Clients returns the number of connected sockets
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.drop(c)
	}
}
