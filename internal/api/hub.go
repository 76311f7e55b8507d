package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"feedbackpipe/internal/logging"
	"feedbackpipe/internal/pipeline"
)

const (
	clientBuffer = 64
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
	readLimit    = 512
)

type subscriber struct {
	send chan []byte
}

// Hub fans pipeline events out to websocket subscribers keyed by session id
// and remembers each session's latest event.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[string]map[*subscriber]struct{}
	latest  map[string]SessionEvent
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logging.NewComponentLogger(logger, "api"),
		clients: make(map[string]map[*subscriber]struct{}),
		latest:  make(map[string]SessionEvent),
	}
}

// Publish records e as the session's latest event and forwards it to every
// subscriber. It never blocks: a subscriber whose buffer is full is dropped.
func (h *Hub) Publish(e pipeline.Event) {
	dto := FromEvent(e)
	data, err := json.Marshal(dto)
	if err != nil {
		h.logger.Warn("event encode failed", logging.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest[dto.SessionID] = dto
	for sub := range h.clients[dto.SessionID] {
		select {
		case sub.send <- data:
		default:
			h.dropLocked(dto.SessionID, sub)
			h.logger.Warn("slow event subscriber dropped",
				logging.String(logging.FieldEventType, "subscriber_dropped"),
				logging.String(logging.FieldSessionID, dto.SessionID),
			)
		}
	}
}

// Latest returns the most recent event published for sessionID.
func (h *Hub) Latest(sessionID string) (SessionEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.latest[sessionID]
	return e, ok
}

// Subscribers reports how many streams are attached to sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[sessionID])
}

// ServeSession upgrades the request and streams sessionID's events until the
// peer disconnects.
func (h *Hub) ServeSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		return
	}
	sub := h.register(sessionID)
	go h.writeLoop(conn, sub)

	conn.SetReadLimit(readLimit)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("event stream closed", logging.Error(err))
			}
			break
		}
	}
	h.unregister(sessionID, sub)
}

// register attaches a subscriber and queues the latest event so the stream
// opens with the current state.
func (h *Hub) register(sessionID string) *subscriber {
	sub := &subscriber{send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[*subscriber]struct{})
	}
	h.clients[sessionID][sub] = struct{}{}
	if latest, ok := h.latest[sessionID]; ok {
		if data, err := json.Marshal(latest); err == nil {
			sub.send <- data
		}
	}
	return sub
}

func (h *Hub) unregister(sessionID string, sub *subscriber) {
	h.mu.Lock()
	h.dropLocked(sessionID, sub)
	h.mu.Unlock()
}

func (h *Hub) dropLocked(sessionID string, sub *subscriber) {
	clients, ok := h.clients[sessionID]
	if !ok {
		return
	}
	if _, ok := clients[sub]; !ok {
		return
	}
	delete(clients, sub)
	close(sub.send)
	if len(clients) == 0 {
		delete(h.clients, sessionID)
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, sub *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case data, ok := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ pipeline.Publisher = (*Hub)(nil)
