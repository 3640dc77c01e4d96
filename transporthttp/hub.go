package transporthttp

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kestrel-sync/docsync/syncmodel"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to configured origins once the server takes an
		// allow-list; every origin is accepted for now.
		return true
	},
}

// hub manages the server's real-time websocket fan-out, generalizing the
// teacher's WebSocketHub from a single event type to a batch of
// ChangeRecord[T] pushed by handlePush.
type hub[T any] struct {
	clients    map[*websocket.Conn]bool
	broadcastC chan []syncmodel.ChangeRecord[T]
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	stopC      chan struct{}

	mu     sync.RWMutex
	logger *slog.Logger
}

func newHub[T any](logger *slog.Logger) *hub[T] {
	return &hub[T]{
		clients:    make(map[*websocket.Conn]bool),
		broadcastC: make(chan []syncmodel.ChangeRecord[T], 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		stopC:      make(chan struct{}),
		logger:     logger.With("component", "sync_ws_hub"),
	}
}

func (h *hub[T]) run() {
	h.logger.Info("websocket hub starting")
	for {
		select {
		case <-h.stopC:
			h.closeAll()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client registered", "total_clients", count)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "total_clients", count)

		case changes := <-h.broadcastC:
			h.mu.RLock()
			for conn := range h.clients {
				go h.sendTo(conn, changes)
			}
			h.mu.RUnlock()
		}
	}
}

func (h *hub[T]) sendTo(conn *websocket.Conn, changes []syncmodel.ChangeRecord[T]) {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(wireChangeNotification[T]{Changes: changes}); err != nil {
		h.logger.Warn("failed to send change notification", "error", err)
		h.unregister <- conn
	}
}

// broadcast queues changes for delivery to every connected client. It never
// blocks: a full channel means a slow or stuck hub and the batch is dropped.
func (h *hub[T]) broadcast(changes []syncmodel.ChangeRecord[T]) {
	if len(changes) == 0 {
		return
	}
	select {
	case h.broadcastC <- changes:
	default:
		h.logger.Warn("broadcast channel full, dropping change notification", "count", len(changes))
	}
}

func (h *hub[T]) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	h.register <- conn
	go h.readPump(conn)
}

// readPump keeps the connection alive with a ping ticker and drains (and
// discards) anything the client sends; clients are not expected to send data.
func (h *hub[T]) readPump(conn *websocket.Conn) {
	defer func() { h.unregister <- conn }()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	go func() {
		ticker := time.NewTicker(54 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *hub[T]) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
}

func (h *hub[T]) stop() {
	close(h.stopC)
}
