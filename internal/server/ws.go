package server

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"exoclass/internal/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamHub fans prediction events out to connected websocket clients.
// A slow client's buffer filling up drops that client rather than
// blocking the prediction path.
type streamHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan storage.AuditRecord
	closed  bool
}

func newStreamHub() *streamHub {
	return &streamHub{clients: make(map[*websocket.Conn]chan storage.AuditRecord)}
}

func (h *streamHub) broadcast(rec storage.AuditRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- rec:
		default:
			log.Warn().Msg("dropping slow stream client")
			close(ch)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

func (h *streamHub) add(conn *websocket.Conn) chan storage.AuditRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	ch := make(chan storage.AuditRecord, 64)
	h.clients[conn] = ch
	return ch
}

func (h *streamHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	conn.Close()
}

func (h *streamHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn, ch := range h.clients {
		close(ch)
		delete(h.clients, conn)
		conn.Close()
	}
}

// handleStream upgrades to a websocket and forwards every prediction
// event as a JSON message until the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	ch := s.hub.add(conn)
	if ch == nil {
		conn.Close()
		return
	}
	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("stream client connected")

	// Reader goroutine: discard inbound messages, detect disconnect.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.remove(conn)
				return
			}
		}
	}()

	for rec := range ch {
		if err := conn.WriteJSON(rec); err != nil {
			s.hub.remove(conn)
			return
		}
	}
}
