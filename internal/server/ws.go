package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"spacedrift/internal/net"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
	// maxDrops consecutive full-buffer sends close the connection.
	maxDrops = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Connection is one websocket client. Outbound frames go through a bounded
// channel drained by writePump, so Send never blocks the hub.
type Connection struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	hub     *Hub
	limiter *rate.Limiter
	logger  *zap.Logger

	alive     *atomic.Bool
	drops     *atomic.Int32
	closeOnce sync.Once
}

func NewConnection(conn *websocket.Conn, hub *Hub) *Connection {
	id := uuid.NewString()
	return &Connection{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, hub.cfg.SendBuffer),
		done:    make(chan struct{}),
		hub:     hub,
		limiter: rate.NewLimiter(rate.Limit(hub.cfg.MessageRate), hub.cfg.MessageBurst),
		logger:  hub.logger.With(zap.String("conn", id)),
		alive:   atomic.NewBool(true),
		drops:   atomic.NewInt32(0),
	}
}

func (c *Connection) ID() string { return c.id }

// Send queues data without blocking. A full buffer drops the frame, and a
// long run of drops closes the connection.
func (c *Connection) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		c.drops.Store(0)
		return true
	default:
		n := c.drops.Inc()
		c.logger.Debug("send buffer full", zap.Int32("drops", n))
		if n >= maxDrops {
			c.logger.Warn("closing slow connection", zap.Int32("drops", n))
			// Callers may hold room or queue locks.
			go c.Close()
		}
		return false
	}
}

// Close is safe to call more than once and from any goroutine.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.conn.Close()
	})
}

func (c *Connection) ping() {
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		c.logger.Debug("ping failed", zap.Error(err))
		c.Close()
	}
}

func (c *Connection) readPump(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("connection panic", zap.Any("panic", r), zap.Stack("stack"))
		}
		c.hub.Disconnect(c)
		c.hub.unregister(c)
		c.Close()
		c.logger.Info("client disconnected")
	}()

	deadline := 2*c.hub.cfg.PingInterval + writeWait
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket error", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		if !c.limiter.Allow() {
			c.hub.rejected.Inc()
			send(c, &net.ErrorMessage{Code: net.CodeRateLimit, Message: "Too many messages"})
			continue
		}
		c.hub.Handle(ctx, c, message)
	}
}

func (c *Connection) writePump() {
	defer c.Close()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				return
			}
		}
	}
}

// Serve upgrades the request and runs the connection until it closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := NewConnection(conn, h)
	h.register(c)
	c.logger.Info("client connected", zap.String("remote", r.RemoteAddr))

	go c.writePump()
	c.readPump(r.Context())
}
