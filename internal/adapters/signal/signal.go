// Package signal talks to the conference signaling server over a websocket
// and exposes it as the session's Runtime and Conference.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/ScreenShare/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrNotConnected = errors.New("signaling connection is not open")
	ErrBadURL       = errors.New("bad signaling url")
)

type Options struct {
	URL         string
	DialTimeout time.Duration
	PingPeriod  time.Duration
	// NewBackOff builds the reconnect policy; nil retries forever with
	// exponential backoff.
	NewBackOff func() backoff.BackOff
}

// Client keeps one websocket to the signaling server open, redialling
// after every loss, and fans incoming messages out by type.
type Client struct {
	opts      Options
	dialer    *websocket.Dialer
	connected *core.Level

	mu      sync.RWMutex
	conn    *wsConn
	running bool

	hmu      sync.Mutex
	handlers map[string]*core.Listeners[func([]byte)]
}

func NewClient(opts Options) *Client {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 25 * time.Second
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 0
			return b
		}
	}
	return &Client{
		opts:      opts,
		dialer:    &websocket.Dialer{HandshakeTimeout: opts.DialTimeout},
		connected: core.NewLevel(false),
		handlers:  make(map[string]*core.Listeners[func([]byte)]),
	}
}

type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrNotConnected
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (c *Client) Connected() core.Signal { return c.connected }

// Connect starts the connection loop for session id. It returns at once;
// Connected reports the outcome. Calls while the loop runs are no-ops.
func (c *Client) Connect(ctx context.Context, id string) error {
	u, err := url.Parse(c.opts.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("%w: %q", ErrBadURL, c.opts.URL)
	}
	q := u.Query()
	q.Set("session", id)
	u.RawQuery = q.Encode()

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()

	go c.run(ctx, u.String())
	return nil
}

func (c *Client) run(ctx context.Context, target string) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()
	for {
		var ws *websocket.Conn
		dial := func() error {
			dctx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
			defer cancel()
			conn, _, err := c.dialer.DialContext(dctx, target, nil)
			if err != nil {
				return err
			}
			ws = conn
			return nil
		}
		notify := func(err error, next time.Duration) {
			log.Warn().Err(err).Str("module", "signal").Dur("retry_in", next).Msg("dial failed")
		}
		if err := backoff.RetryNotify(dial, backoff.WithContext(c.opts.NewBackOff(), ctx), notify); err != nil {
			log.Info().Err(err).Str("module", "signal").Msg("connection loop stopped")
			return
		}
		c.serve(ctx, ws)
		if ctx.Err() != nil {
			return
		}
	}
}

// serve runs the pumps of one websocket until either of them stops.
func (c *Client) serve(ctx context.Context, ws *websocket.Conn) {
	conn := &wsConn{conn: ws, send: make(chan []byte, 32)}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	log.Info().Str("module", "signal").Str("remote", ws.RemoteAddr().String()).Msg("connected")
	c.connected.Set(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.writePump(gctx, conn) })
	g.Go(func() error { return c.readPump(gctx, conn) })
	err := g.Wait()

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	log.Warn().Err(err).Str("module", "signal").Msg("disconnected")
	c.connected.Set(false)
}

// On registers fn for every incoming message of type typ.
func (c *Client) On(typ string, fn func(data []byte)) (cancel func()) {
	c.hmu.Lock()
	l, ok := c.handlers[typ]
	if !ok {
		l = &core.Listeners[func([]byte)]{}
		c.handlers[typ] = l
	}
	c.hmu.Unlock()
	return l.Add(fn)
}

// Send queues v as JSON on the open websocket.
func (c *Client) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.TrySend(b)
}
