package api

import (
	"net/http"
	"sync"

	"bleumart/internal/crawler"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Admin tooling connects from other origins during development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// CrawlHub fans crawl progress events out to connected websocket clients.
type CrawlHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	logger  *zap.Logger
}

func NewCrawlHub(logger *zap.Logger) *CrawlHub {
	return &CrawlHub{
		clients: make(map[*websocket.Conn]bool),
		logger:  logger,
	}
}

// Broadcast sends one progress event to every connected client. Clients
// that fail to receive are dropped.
func (h *CrawlHub) Broadcast(event crawler.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteJSON(event); err != nil {
			h.logger.Debug("dropping websocket client", zap.Error(err))
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// Handle upgrades the request and keeps the connection registered until the
// client goes away.
func (h *CrawlHub) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	// Reads are discarded; the socket exists only to push progress out.
	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
