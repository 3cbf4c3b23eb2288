package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"github.com/gogotex/gogotex/backend/go-collab/internal/protocol"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/logger"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/metrics"
	"github.com/gorilla/websocket"
)

type Config struct {
	SendBuffer      int
	MaxMessageBytes int64
	// AllowedOrigins lists browser origins allowed to upgrade; "*" allows all.
	AllowedOrigins []string
	Engine         protocol.Options
}

// Handler upgrades HTTP requests and runs one protocol engine per connection.
type Handler struct {
	ctx      context.Context
	rooms    protocol.Rooms
	store    document.Store
	cfg      Config
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewHandler creates the upgrade handler. ctx bounds the store calls made on
// behalf of every connection; cancel it on shutdown.
func NewHandler(ctx context.Context, rooms protocol.Rooms, store document.Store, cfg Config) *Handler {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	h := &Handler{ctx: ctx, rooms: rooms, store: store, cfg: cfg, clients: make(map[*Client]struct{})}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Register mounts the upgrade endpoint on the given router group.
func (h *Handler) Register(r gin.IRoutes, middleware ...gin.HandlerFunc) {
	r.GET("/ws", append(middleware, h.Serve)...)
}

// Serve upgrades the request and blocks until the connection ends.
func (h *Handler) Serve(c *gin.Context) {
	h.ServeHTTP(c.Writer, c.Request)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	client := newClient(conn, h.cfg.SendBuffer)
	engine := protocol.NewEngine(client, h.rooms, h.store, h.cfg.Engine)

	h.track(client, true)
	defer h.track(client, false)
	logger.Debugf("client %s connected from %s", client.ID(), r.RemoteAddr)

	go client.writePump()
	client.readPump(h.ctx, engine, h.cfg.MaxMessageBytes)
	logger.Debugf("client %s disconnected", client.ID())
}

// Close shuts down every open connection. Each one leaves its room through
// the normal close path.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.shutdown()
	}
}

// Connections reports how many websocket connections are open.
func (h *Handler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Handler) track(c *Client, open bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if open {
		h.clients[c] = struct{}{}
		metrics.ConnectionsActive.Inc()
		return
	}
	delete(h.clients, c)
	metrics.ConnectionsActive.Dec()
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
