package events

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type subscriber struct {
	conn *websocket.Conn
	send chan Event
}

// Hub keeps the websocket subscribers of each workspace.
type Hub struct {
	log  zerolog.Logger
	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{log: log, subs: make(map[string]map[*subscriber]struct{})}
}

// Publish queues ev for every subscriber of its workspace. A subscriber whose
// queue is full misses the event.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[ev.Workspace] {
		select {
		case s.send <- ev:
		default:
			h.log.Warn().Str("workspace", ev.Workspace).Str("type", ev.Type).Msg("websocket subscriber is slow; dropping event")
		}
	}
}

// Subscribers returns the number of live subscribers of workspace.
func (h *Hub) Subscribers(workspace string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[workspace])
}

// ServeWS upgrades the request and streams the workspace's events until the
// client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, workspace string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("workspace", workspace).Msg("websocket upgrade failed")
		return
	}
	s := &subscriber{conn: conn, send: make(chan Event, sendBuffer)}
	h.add(workspace, s)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.readLoop(s)
	}()
	h.writeLoop(s, done)

	h.remove(workspace, s)
	_ = conn.Close()
}

func (h *Hub) add(workspace string, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[workspace]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[workspace] = set
	}
	set[s] = struct{}{}
}

func (h *Hub) remove(workspace string, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[workspace], s)
	if len(h.subs[workspace]) == 0 {
		delete(h.subs, workspace)
	}
}

// readLoop discards client messages and returns when the connection closes.
func (h *Hub) readLoop(s *subscriber) {
	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case ev := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(ev); err != nil {
				h.log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
