package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ZehenForever/dpsmeter/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{conn: conn, send: make(chan []byte, 64), done: make(chan struct{})}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		// send stays open; writers select on done.
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *wsClient) enqueueBytes(b []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *wsClient) enqueueJSON(v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return c.enqueueBytes(b)
}

// Hub fans snapshots out to every websocket subscriber. Slow clients whose
// queue is full are dropped.
type Hub struct {
	mu   sync.Mutex
	subs map[*wsClient]struct{}
	log  zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{subs: make(map[*wsClient]struct{}), log: log}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.subs[c] = struct{}{}
	metrics.WebsocketClients.Set(float64(len(h.subs)))
	h.mu.Unlock()
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.subs, c)
	metrics.WebsocketClients.Set(float64(len(h.subs)))
	h.mu.Unlock()
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) broadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("encode broadcast")
		return
	}
	h.mu.Lock()
	for c := range h.subs {
		if ok := c.enqueueBytes(b); !ok {
			c.close()
			delete(h.subs, c)
		}
	}
	metrics.WebsocketClients.Set(float64(len(h.subs)))
	h.mu.Unlock()
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	defer func() {
		h.remove(c)
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug().Err(err).Msg("ws write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.log.Debug().Err(err).Msg("ws ping failed")
				return
			}
		}
	}
}
