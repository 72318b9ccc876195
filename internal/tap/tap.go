// Package tap streams published bus events to websocket clients for
// live diagnostics. Each event is forwarded as one JSON message; slow
// clients are dropped rather than allowed to stall the engine.
package tap

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lanternvale/questline/internal/event"
	"github.com/lanternvale/questline/internal/logger"
)

// OriginPolicy decides whether a websocket origin may connect. Wired to
// the engine config's origin check.
type OriginPolicy interface {
	IsOriginAllowed(origin, requestHost string) bool
}

// clientBuffer bounds the per-client send queue. A client that falls
// this far behind is disconnected.
const clientBuffer = 256

// wireEvent is the JSON shape sent to tap clients.
type wireEvent struct {
	Tag          string    `json:"tag"`
	StringParam  string    `json:"string_param,omitempty"`
	StringParam2 string    `json:"string_param2,omitempty"`
	IntParam     int       `json:"int_param,omitempty"`
	FloatParam   float64   `json:"float_param,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	Instigator   string    `json:"instigator,omitempty"`
	Target       string    `json:"target,omitempty"`
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
}

func toWire(p event.Payload) wireEvent {
	we := wireEvent{
		Tag:          string(p.Tag),
		StringParam:  p.StringParam,
		StringParam2: p.StringParam2,
		IntParam:     p.IntParam,
		FloatParam:   p.FloatParam,
		Instigator:   p.Instigator.Key,
		Target:       p.Target.Key,
		ID:           p.ID,
		Timestamp:    p.Timestamp,
	}
	for _, t := range p.Tags.List() {
		we.Tags = append(we.Tags, string(t))
	}
	return we
}

// Tap owns the listener and the connected client set.
type Tap struct {
	origins OriginPolicy

	mu       sync.Mutex
	clients  map[*client]struct{}
	listener net.Listener
	closed   bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func New(origins OriginPolicy) *Tap {
	return &Tap{
		origins: origins,
		clients: make(map[*client]struct{}),
	}
}

// Forward queues an event to every connected client. Safe to install
// directly as a bus subscriber; it never blocks.
func (t *Tap) Forward(p event.Payload) {
	t.mu.Lock()
	if len(t.clients) == 0 {
		t.mu.Unlock()
		return
	}
	data, err := json.Marshal(toWire(p))
	if err != nil {
		t.mu.Unlock()
		logger.Error("Tap event encode failed", "error", err)
		return
	}
	for c := range t.clients {
		select {
		case c.send <- data:
		default:
			// Client too slow; drop it.
			delete(t.clients, c)
			close(c.send)
		}
	}
	t.mu.Unlock()
}

// Listen serves the tap endpoint at /events until Close. It blocks, so
// callers run it on its own goroutine.
func (t *Tap) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		ln.Close()
		return nil
	}
	t.listener = ln
	t.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/events", t.handleUpgrade)

	logger.Info("Diagnostics tap listening", "address", addr)
	err = http.Serve(ln, mux)
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil
	}
	return err
}

// Addr returns the bound listen address, once Listen has bound it.
func (t *Tap) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

func (t *Tap) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if t.origins == nil {
				return origin == ""
			}
			allowed := t.origins.IsOriginAllowed(origin, r.Host)
			if !allowed {
				logger.Warning("Tap connection rejected - origin not allowed",
					"origin", origin,
					"host", r.Host,
					"remote_addr", r.RemoteAddr)
			}
			return allowed
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Tap upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	t.mu.Lock()
	t.clients[c] = struct{}{}
	n := len(t.clients)
	t.mu.Unlock()
	logger.Info("Tap client connected", "remote_addr", conn.RemoteAddr().String(), "clients", n)

	go t.writeLoop(c)
	go t.readLoop(c)
}

func (t *Tap) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			t.drop(c)
			return
		}
	}
}

// readLoop discards inbound frames; tap clients are read-only. It exists
// to notice disconnects.
func (t *Tap) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			t.drop(c)
			return
		}
	}
}

func (t *Tap) drop(c *client) {
	t.mu.Lock()
	if _, ok := t.clients[c]; ok {
		delete(t.clients, c)
		close(c.send)
	}
	t.mu.Unlock()
	c.conn.Close()
}

// ClientCount reports connected tap clients.
func (t *Tap) ClientCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}

// Close disconnects every client and stops the listener.
func (t *Tap) Close() {
	t.mu.Lock()
	t.closed = true
	if t.listener != nil {
		t.listener.Close()
	}
	for c := range t.clients {
		delete(t.clients, c)
		close(c.send)
		c.conn.Close()
	}
	t.mu.Unlock()
}
