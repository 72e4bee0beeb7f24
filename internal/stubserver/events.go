package stubserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/sensorlink/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Events buffered per feed subscriber before it is dropped
	subscriberBuffer = 64
)

// Event kinds
const (
	EventProvision = "provision"
	EventPush      = "push"
	EventPing      = "ping"
	EventParams    = "params"
	EventRejected  = "rejected"
)

// Event is one request the server handled.
type Event struct {
	Time       time.Time       `json:"time"`
	Kind       string          `json:"kind"`
	Node       string          `json:"sensor_name,omitempty"`
	RemoteAddr string          `json:"remote_addr"`
	RequestID  string          `json:"request_id,omitempty"`
	Status     int             `json:"status"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Hub fans events out to feed subscribers and the optional capture file.
type Hub struct {
	mu      sync.Mutex
	subs    map[chan Event]struct{}
	capture *os.File
}

// NewHub creates a hub. When capturePath is not empty every event is
// appended to it as one JSON line.
func NewHub(capturePath string) (*Hub, error) {
	h := &Hub{subs: make(map[chan Event]struct{})}
	if capturePath != "" {
		f, err := os.OpenFile(capturePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open capture file: %w", err)
		}
		h.capture = f
	}
	return h, nil
}

// Publish delivers e to every subscriber. Slow subscribers are dropped.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			logging.Warn("Dropping slow feed subscriber")
			delete(h.subs, ch)
			close(ch)
		}
	}

	if h.capture != nil {
		line, err := json.Marshal(e)
		if err == nil {
			_, err = h.capture.Write(append(line, '\n'))
		}
		if err != nil {
			logging.Error("Failed to write capture line", zap.Error(err))
		}
	}
}

// Subscribe returns a channel of future events and a function that ends
// the subscription.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// Close ends every subscription and closes the capture file.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
	if h.capture != nil {
		err := h.capture.Close()
		h.capture = nil
		return err
	}
	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamEvents writes events to conn until the subscription ends or the
// peer goes away.
func streamEvents(conn *websocket.Conn, events <-chan Event, remoteAddr string) {
	logging.Info("Feed subscriber connected", zap.String("remote_addr", remoteAddr))
	defer func() {
		_ = conn.Close()
		logging.Info("Feed subscriber disconnected", zap.String("remote_addr", remoteAddr))
	}()

	// The read loop only handles control frames and notices the close.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				logging.Debug("Feed write failed", zap.String("remote_addr", remoteAddr), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
