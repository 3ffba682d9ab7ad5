package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrSlowSubscriber is returned by a subscriber whose outbound buffer is full.
var ErrSlowSubscriber = errors.New("subscriber send buffer full")

var subscribersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "crane_realtime_subscribers",
	Help: "Currently connected real-time subscribers.",
})

var droppedCounter = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "crane_realtime_dropped_subscribers_total",
	Help: "Subscribers removed after a failed delivery.",
})

func init() { prometheus.MustRegister(subscribersGauge, droppedCounter) }

// Subscriber is one live connection. Send must not block.
type Subscriber interface {
	Send(msg []byte) error
	Close() error
}

// Hub is the process-wide registry of live subscribers.
type Hub struct {
	upgrader   websocket.Upgrader
	sendBuffer int

	mu   sync.Mutex
	subs map[Subscriber]struct{}
}

func NewHub(sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		sendBuffer: sendBuffer,
		subs:       map[Subscriber]struct{}{},
	}
}

func (h *Hub) Connect(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		return
	}
	h.subs[s] = struct{}{}
	subscribersGauge.Inc()
}

// Disconnect removes s and closes it. Removing an absent subscriber is a no-op.
func (h *Hub) Disconnect(s Subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s]
	if ok {
		delete(h.subs, s)
		subscribersGauge.Dec()
	}
	h.mu.Unlock()
	if ok {
		_ = s.Close()
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Broadcast encodes ev once and offers it to every subscriber. A subscriber
// that fails is removed; the rest still receive the event. Holding the lock
// for the whole fan-out keeps per-subscriber order equal to call order.
func (h *Hub) Broadcast(ev any) {
	b, err := json.Marshal(ev)
	if err != nil {
		slog.Error("realtime: encode event", "error", err)
		return
	}

	var dead []Subscriber
	h.mu.Lock()
	for s := range h.subs {
		if err := safeSend(s, b); err != nil {
			delete(h.subs, s)
			subscribersGauge.Dec()
			droppedCounter.Inc()
			dead = append(dead, s)
			slog.Warn("realtime: dropping subscriber", "error", err)
		}
	}
	h.mu.Unlock()

	for _, s := range dead {
		_ = s.Close()
	}
}

func safeSend(s Subscriber, b []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("subscriber send panicked")
		}
	}()
	return s.Send(b)
}

// ServeHTTP upgrades the request and keeps the socket registered until the
// peer goes away. Inbound frames are read only to service pings and detect
// closure.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newClient(conn, h.sendBuffer)
	h.Connect(c)

	go c.writePump()
	c.readPump()
	h.Disconnect(c)
}

type client struct {
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn, buffer int) *client {
	return &client{conn: conn, send: make(chan []byte, buffer), done: make(chan struct{})}
}

func (c *client) Send(msg []byte) error {
	select {
	case <-c.done:
		return net.ErrClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSlowSubscriber
	}
}

func (c *client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *client) readPump() {
	defer c.Close()
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(25 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
