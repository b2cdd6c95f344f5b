package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/driftline-systems/driftline/internal/models"
)

// Handler upgrades console connections to WebSocket and bridges them onto
// the hub. One read loop and one write loop per connection; the write loop
// is the subscriber's single dispatch loop, so per-record event order is
// preserved on the wire.
type Handler struct {
	hub               *Hub
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	upgrader          websocket.Upgrader
}

// NewHandler creates a WebSocket stream handler.
func NewHandler(hub *Hub, heartbeatInterval, heartbeatTimeout time.Duration) *Handler {
	return &Handler{
		hub:               hub,
		heartbeatInterval: heartbeatInterval,
		heartbeatTimeout:  heartbeatTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Console origin enforcement happens at the deployment proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// subscribeMessage is the handshake the console sends after connecting.
type subscribeMessage struct {
	Topics []string `json:"topics"`
}

// ServeHTTP handles one console streaming connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}
	defer conn.Close()

	// Subscribe handshake: first frame must carry the topic list.
	conn.SetReadDeadline(time.Now().Add(h.heartbeatTimeout))
	var msg subscribeMessage
	if err := conn.ReadJSON(&msg); err != nil {
		slog.Warn("subscribe handshake failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	sub := h.hub.Subscribe(msg.Topics)
	defer h.hub.Unsubscribe(sub.ID)

	slog.Info("console subscribed",
		slog.String("subscriber_id", sub.ID),
		slog.String("remote_addr", r.RemoteAddr),
		slog.Int("topics", len(msg.Topics)),
	)

	go h.readLoop(conn, sub)
	h.writeLoop(conn, sub)

	slog.Info("console disconnected",
		slog.String("subscriber_id", sub.ID),
		slog.Int64("dropped_events", sub.Dropped()),
	)
}

// readLoop consumes heartbeat acknowledgements and detects dead peers via
// the read deadline. Any read error tears the subscriber down.
func (h *Handler) readLoop(conn *websocket.Conn, sub *Subscriber) {
	conn.SetReadDeadline(time.Now().Add(h.heartbeatTimeout))
	conn.SetPongHandler(func(string) error {
		sub.Heartbeat(time.Now())
		return conn.SetReadDeadline(time.Now().Add(h.heartbeatTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.hub.Unsubscribe(sub.ID)
			return
		}
		// Data frames from the console also count as liveness.
		sub.Heartbeat(time.Now())
		conn.SetReadDeadline(time.Now().Add(h.heartbeatTimeout))
	}
}

// writeLoop is the subscriber's dispatch loop: hub events and periodic pings
// go out on a single goroutine.
func (h *Handler) writeLoop(conn *websocket.Conn, sub *Subscriber) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-sub.C():
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := writeEvent(conn, event); err != nil {
				h.hub.Unsubscribe(sub.ID)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.hub.Unsubscribe(sub.ID)
				return
			}
		case <-sub.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
