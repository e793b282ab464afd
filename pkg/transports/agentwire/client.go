// Package agentwire implements the websocket client for the agent
// execution side-channel.
package agentwire

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adityow/sourcedesk/pkg/errorsx"
	"github.com/adityow/sourcedesk/pkg/frames"
)

type Config struct {
	URL           string        `mapstructure:"url"`
	SessionID     string        `mapstructure:"session_id"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectBase time.Duration `mapstructure:"reconnect_base"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	Header        http.Header
}

func (c Config) withDefaults() Config {
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 5
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = 2 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	return c
}

// Conn is the subset of a websocket connection the client reads from.
type Conn interface {
	ReadMessage() (int, []byte, error)
	Close() error
}

// Dialer opens one connection. Injectable for tests.
type Dialer func(ctx context.Context, url string, header http.Header) (Conn, error)

func gorillaDialer(timeout time.Duration) Dialer {
	return func(ctx context.Context, url string, header http.Header) (Conn, error) {
		d := websocket.Dialer{HandshakeTimeout: timeout}
		conn, _, err := d.DialContext(ctx, url, header)
		if err != nil {
			return nil, errorsx.Wrap(err, errorsx.ReasonTransportDial)
		}
		return conn, nil
	}
}

// Client owns one streaming connection for one session. An unexpected
// closure triggers a bounded reconnect with linearly increasing delay
// (attempt number times base delay); the attempt counter is cumulative
// for the client's lifetime, so delays keep growing across consecutive
// drops and the ceiling is final. A deliberate Stop or a normal close
// code never reconnects.
type Client struct {
	cfg   Config
	dial  Dialer
	sleep func(time.Duration)
	log   *slog.Logger

	recvCh    chan frames.Frame
	closeRecv sync.Once

	mu       sync.Mutex
	conn     Conn
	attempts int
	closed   atomic.Bool
}

type Option func(*Client)

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dial = d }
}

// WithSleep replaces the reconnect delay sleeper.
func WithSleep(fn func(time.Duration)) Option {
	return func(c *Client) { c.sleep = fn }
}

func New(cfg Config, log *slog.Logger, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		cfg:    cfg,
		dial:   gorillaDialer(cfg.DialTimeout),
		sleep:  time.Sleep,
		log:    log.With(slog.String("component", "agentwire"), slog.String("session_id", cfg.SessionID)),
		recvCh: make(chan frames.Frame, 256),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return "agentwire" }

func (c *Client) Recv() <-chan frames.Frame { return c.recvCh }

// Start dials the side-channel and begins the read loop. Any previous
// connection owned by this client is closed first.
func (c *Client) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.closed.Load() {
		return errorsx.New(errorsx.ReasonSessionClosed, "client already stopped")
	}
	conn, err := c.dial(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if old := c.conn; old != nil {
		_ = old.Close()
	}
	c.conn = conn
	c.mu.Unlock()
	c.emit(frames.NewLifecycleFrame(c.cfg.SessionID, frames.KindConnected, ""))
	go c.readLoop(ctx)
	return nil
}

// Stop closes the connection deliberately; no reconnect follows.
func (c *Client) Stop() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.closeRecv.Do(func() { close(c.recvCh) })
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.emit(frames.NewLifecycleFrame(c.cfg.SessionID, frames.KindDisconnected, "normal_closure"))
				return
			}
			c.emit(frames.NewLifecycleFrame(c.cfg.SessionID, frames.KindTransportError, err.Error()))
			if !c.reconnect(ctx) {
				return
			}
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if f, ok := frames.ParseWire(c.cfg.SessionID, msg); ok {
			c.emit(f)
		}
	}
}

// reconnect runs dial attempts until one succeeds or the ceiling is
// reached. Returns true when reading can resume.
func (c *Client) reconnect(ctx context.Context) bool {
	for {
		if c.closed.Load() || ctx.Err() != nil {
			return false
		}
		if c.attempts >= c.cfg.MaxReconnects {
			c.log.Warn("reconnect_exhausted",
				"reason_code", string(errorsx.ReasonReconnectExhausted),
				"attempts", c.attempts,
			)
			c.emit(frames.NewLifecycleFrame(c.cfg.SessionID, frames.KindDisconnected, "reconnect_exhausted"))
			return false
		}
		c.attempts++
		delay := time.Duration(c.attempts) * c.cfg.ReconnectBase
		c.log.Info("reconnect_scheduled", "attempt", c.attempts, "delay", delay.String())
		c.sleep(delay)
		if c.closed.Load() || ctx.Err() != nil {
			return false
		}
		conn, err := c.dial(ctx, c.cfg.URL, c.cfg.Header)
		if err != nil {
			c.log.Warn("reconnect_failed", "attempt", c.attempts, "error", err.Error())
			continue
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.emit(frames.NewLifecycleFrame(c.cfg.SessionID, frames.KindConnected, "reconnected"))
		return true
	}
}

// emit never blocks the read loop; a full channel drops the frame. The
// lock orders sends against Stop closing the channel.
func (c *Client) emit(f frames.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return
	}
	select {
	case c.recvCh <- f:
	default:
	}
}
