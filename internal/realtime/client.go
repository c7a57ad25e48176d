package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Maximum size of an inbound frame; clients only send small control messages.
	maxMessageSize = 64 * 1024
)

// Client is one live socket connection on the notification endpoint.
type Client struct {
	ID          string
	UserID      string
	ConnectedAt time.Time

	conn *websocket.Conn
	send chan []byte

	mu         sync.RWMutex
	categories []string

	alive atomic.Bool

	// writeTail is closed when the latest queued registry write finishes.
	writeMu   sync.Mutex
	writeTail chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	closeCode int
	closeText string
}

func newClient(id, userID string, conn *websocket.Conn, categories []string, buffer int) *Client {
	c := &Client{
		ID:          id,
		UserID:      userID,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, buffer),
		categories:  categories,
		done:        make(chan struct{}),
	}
	c.alive.Store(true)
	return c
}

// Categories returns a copy of the connection's subscription set.
func (c *Client) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.categories...)
}

func (c *Client) setCategories(categories []string) {
	c.mu.Lock()
	c.categories = categories
	c.mu.Unlock()
}

// subscribedToAny reports whether the connection wants any of targets.
func (c *Client) subscribedToAny(targets []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, want := range targets {
		for _, have := range c.categories {
			if have == want {
				return true
			}
		}
	}
	return false
}

// chainWrite appends a registry write to the connection's queue. It returns
// the channel to wait on before writing and the one to close afterwards.
func (c *Client) chainWrite() (prev <-chan struct{}, done chan struct{}) {
	done = make(chan struct{})
	c.writeMu.Lock()
	if c.writeTail != nil {
		prev = c.writeTail
	}
	c.writeTail = done
	c.writeMu.Unlock()
	return prev, done
}

// trySend queues msg without blocking. Closed or saturated connections are skipped.
func (c *Client) trySend(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close asks the write pump to send a close frame with code and stop.
func (c *Client) close(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.done)
	})
}

func (c *Client) readPump(s *Server) {
	defer s.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		s.persist(c, "touch subscriber", func(ctx context.Context) error {
			return s.subscribers.TouchSubscriber(ctx, c.UserID, c.ID)
		})
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Debug("connection read failed", zap.String("connection_id", c.ID), zap.Error(err))
			}
			return
		}
		s.handleMessage(c, raw)
	}
}

func (c *Client) writePump(s *Server) {
	defer c.conn.Close()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Debug("connection write failed", zap.String("connection_id", c.ID), zap.Error(err))
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, c.closeText),
				time.Now().Add(s.opts.WriteWait))
			return
		}
	}
}
