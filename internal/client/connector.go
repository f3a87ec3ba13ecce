package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"spacedrift/internal/net"
)

const (
	writeWait   = 10 * time.Second
	retryDelay  = 200 * time.Millisecond
	outboxSize  = 256
	readLimit   = 64 * 1024
	dialTimeout = 5 * time.Second
)

var ErrClosed = errors.New("connector closed")

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Matcher inspects one inbound message for an Expect call. done ends the
// wait with err.
type Matcher func(net.Message) (done bool, err error)

// Connector keeps one websocket to the hub open, reconnecting with backoff.
// Inbound frames are decoded and handed to every registered handler in
// arrival order.
type Connector struct {
	url    string
	dialer *websocket.Dialer
	logger *zap.Logger

	backoff *Backoff
	state   *atomic.Int32
	outbox  chan []byte
	kick    chan struct{}

	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	handlers []func(net.Message)
	onState  []func(State)
	waiters  map[*Pending]struct{}
}

func NewConnector(url string, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		url:     url,
		dialer:  &websocket.Dialer{HandshakeTimeout: dialTimeout},
		logger:  logger,
		backoff: NewBackoff(),
		state:   atomic.NewInt32(int32(Disconnected)),
		outbox:  make(chan []byte, outboxSize),
		kick:    make(chan struct{}, 1),
		closed:  make(chan struct{}),
		waiters: make(map[*Pending]struct{}),
	}
}

func (c *Connector) State() State { return State(c.state.Load()) }

// OnMessage registers fn for every decoded inbound message. It runs on the
// read goroutine and must not block.
func (c *Connector) OnMessage(fn func(net.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// OnStateChange registers fn for connection state transitions.
func (c *Connector) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = append(c.onState, fn)
}

func (c *Connector) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	c.logger.Debug("connection state", zap.Stringer("state", s))
	c.mu.Lock()
	hooks := make([]func(State), len(c.onState))
	copy(hooks, c.onState)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn(s)
	}
}

// Run dials and serves the connection until ctx is done or Close is called.
func (c *Connector) Run(ctx context.Context) error {
	for {
		c.setState(Connecting)
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err == nil {
			c.backoff.Reset()
			c.setState(Connected)
			c.logger.Info("connected", zap.String("url", c.url))
			err = c.serve(ctx, conn)
		}
		c.setState(Disconnected)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return nil
		default:
		}

		delay := c.backoff.Next()
		c.logger.Warn("connection lost, retrying", zap.Duration("in", delay), zap.Error(err))
		if !c.wait(ctx, delay) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
	}
}

// wait sleeps for d. A pending send shortens the sleep to the base delay.
// It returns false when ctx or the connector is done.
func (c *Connector) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-c.closed:
			return false
		case <-timer.C:
			return true
		case <-c.kick:
			if d > c.backoff.Base {
				d = c.backoff.Base
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(d)
			}
		}
	}
}

func (c *Connector) serve(ctx context.Context, conn *websocket.Conn) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-c.closed:
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		return conn.Close()
	})

	g.Go(func() error {
		conn.SetReadLimit(readLimit)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return err
			}
			msg, err := net.DecodeServer(data)
			if err != nil {
				c.logger.Debug("dropping undecodable frame", zap.Error(err))
				continue
			}
			c.dispatch(msg)
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-c.closed:
				return ErrClosed
			case data := <-c.outbox:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return err
				}
			}
		}
	})

	return g.Wait()
}

func (c *Connector) dispatch(msg net.Message) {
	c.mu.Lock()
	handlers := make([]func(net.Message), len(c.handlers))
	copy(handlers, c.handlers)
	waiters := make([]*Pending, 0, len(c.waiters))
	for p := range c.waiters {
		waiters = append(waiters, p)
	}
	c.mu.Unlock()

	for _, fn := range handlers {
		fn(msg)
	}
	for _, p := range waiters {
		if done, err := p.match(msg); done {
			c.release(p)
			p.result <- err
		}
	}
}

// Send encodes msg and queues it. Without an open connection it asks Run to
// connect and retries every 200ms until it goes out or the connector closes,
// so retried sends may overtake older ones.
func (c *Connector) Send(msg net.Message) error {
	data, err := net.Encode(msg)
	if err != nil {
		return err
	}
	if c.trySend(data) {
		return nil
	}
	go c.retry(data)
	return nil
}

func (c *Connector) trySend(data []byte) bool {
	if c.State() != Connected {
		return false
	}
	select {
	case c.outbox <- data:
		return true
	default:
		c.logger.Warn("outbox full, retrying send")
		return false
	}
}

func (c *Connector) retry(data []byte) {
	ticker := time.NewTicker(retryDelay)
	defer ticker.Stop()

	for {
		select {
		case c.kick <- struct{}{}:
		default:
		}
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			if c.trySend(data) {
				return
			}
		}
	}
}

// Pending is one outstanding Expect.
type Pending struct {
	c      *Connector
	match  Matcher
	result chan error
}

// Expect registers match before the request that triggers the reply is sent,
// so the reply cannot slip past. Call Wait on the result.
func (c *Connector) Expect(match Matcher) *Pending {
	p := &Pending{c: c, match: match, result: make(chan error, 1)}
	c.mu.Lock()
	c.waiters[p] = struct{}{}
	c.mu.Unlock()
	return p
}

// Wait blocks until the matcher finishes or ctx is done.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case err := <-p.result:
		return err
	case <-ctx.Done():
		p.c.release(p)
		return ctx.Err()
	case <-p.c.closed:
		p.c.release(p)
		return ErrClosed
	}
}

func (c *Connector) release(p *Pending) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.waiters, p)
}

// Close stops Run, pending retries and waiters.
func (c *Connector) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}
