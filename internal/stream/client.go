// Package stream maintains a subscription to the per-session live-update
// channel and decodes its messages into [Event] values.
//
// The channel lives at {endpointBase}/{token} and speaks JSON text frames
// over a WebSocket. A fixed-interval watchdog re-opens the channel whenever
// it is found Closed or Errored and [Client.Stop] has not been called.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"tools.zach/dev/jukeboxrpc/internal/logger"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

const (
	// DefaultWatchdogInterval is how often a dropped channel is re-opened.
	DefaultWatchdogInterval = 5 * time.Second
	// DefaultPingInterval is the keepalive period for an open channel.
	DefaultPingInterval = 30 * time.Second

	writeTimeout = 5 * time.Second
)

// ErrTransport marks a failure of the underlying WebSocket.
var ErrTransport = errors.New("stream transport")

// ///////////////////////////////////////////////
// State
// ///////////////////////////////////////////////

// State is the lifecycle stage of the channel.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DisconnectReason explains why an open channel ended.
type DisconnectReason int

const (
	// UserInitiated follows a call to [Client.Stop].
	UserInitiated DisconnectReason = iota
	// RemoteClosed means the server sent a close frame.
	RemoteClosed
	// TransportError means the connection failed without a close handshake.
	TransportError
)

func (r DisconnectReason) String() string {
	switch r {
	case UserInitiated:
		return "user initiated"
	case RemoteClosed:
		return "remote closed"
	case TransportError:
		return "transport error"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Handler receives channel callbacks. All callbacks for one channel run on
// a single goroutine in arrival order. Nil fields are skipped.
type Handler struct {
	OnOpen  func()
	OnEvent func(Event)
	OnClose func(DisconnectReason)
	OnError func(error)
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Option configures a [Client].
type Option func(*Client)

// WithWatchdogInterval sets the reconnect polling period. Zero disables the
// watchdog goroutine.
func WithWatchdogInterval(d time.Duration) Option {
	return func(c *Client) { c.watchdogInterval = d }
}

// WithPingInterval sets the keepalive period. Zero disables pings and read
// deadlines.
func WithPingInterval(d time.Duration) Option {
	return func(c *Client) { c.pingInterval = d }
}

// WithDialer replaces the default WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// Client owns at most one subscription at a time.
type Client struct {
	dialer           *websocket.Dialer
	watchdogInterval time.Duration
	pingInterval     time.Duration

	// mu protects every field below. Callbacks are never invoked while it
	// is held.
	mu      sync.Mutex
	state   State
	url     string
	handler Handler
	conn    *websocket.Conn
	// gen identifies the current connection attempt; goroutines holding an
	// older value are stale and stay silent.
	gen     uint64
	stopped bool
	// cancel ends the subscription context (dials, pings, watchdog).
	cancel context.CancelFunc
	ctx    context.Context
}

// NewClient returns an idle client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		dialer:           websocket.DefaultDialer,
		watchdogInterval: DefaultWatchdogInterval,
		pingInterval:     DefaultPingInterval,
		stopped:          true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint joins the base URL and token into the channel address.
func Endpoint(endpointBase, token string) (string, error) {
	u, err := url.Parse(endpointBase)
	if err != nil {
		return "", fmt.Errorf("parse websocket url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("websocket url %q: scheme must be ws or wss", endpointBase)
	}
	return strings.TrimSuffix(endpointBase, "/") + "/" + url.PathEscape(token), nil
}

// Subscribe opens the channel at {endpointBase}/{token} in the background
// and starts the watchdog. A previous subscription is stopped first. The
// returned error covers only an unusable endpoint; connection failures are
// reported through h.OnError.
func (c *Client) Subscribe(endpointBase, token string, h Handler) error {
	target, err := Endpoint(endpointBase, token)
	if err != nil {
		return err
	}

	c.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.url = target
	c.handler = h
	c.stopped = false
	c.state = StateIdle
	c.ctx = ctx
	c.cancel = cancel
	c.mu.Unlock()

	if c.watchdogInterval > 0 {
		go c.watchdog(ctx)
	}
	c.open()
	return nil
}

// Stop cancels any pending dial and the watchdog, then closes the channel.
// It does not wait for goroutines to exit. The close that follows is
// reported as [UserInitiated] and never causes a reconnect.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.state = StateIdle
	if c.cancel != nil {
		c.cancel()
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		conn.Close()
	}
}

// State returns the current channel state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// watchdog polls the channel on a fixed interval until ctx ends.
func (c *Client) watchdog(ctx context.Context) {
	ticker := time.NewTicker(c.watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.watchdogTick()
		}
	}
}

// watchdogTick re-opens a Closed or Errored channel unless stopped. It
// reports whether a reconnect was issued.
func (c *Client) watchdogTick() bool {
	c.mu.Lock()
	dropped := !c.stopped && (c.state == StateClosed || c.state == StateErrored)
	c.mu.Unlock()
	if !dropped {
		return false
	}
	slog.Debug("stream watchdog reconnecting")
	return c.open()
}

// open starts a connection attempt unless one is already open or pending.
func (c *Client) open() bool {
	c.mu.Lock()
	if c.stopped || c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return false
	}
	c.state = StateConnecting
	c.gen++
	gen, ctx, target, h := c.gen, c.ctx, c.url, c.handler
	c.mu.Unlock()

	go c.run(ctx, gen, target, h)
	return true
}

// live reports whether gen is still the current, unstopped attempt.
func (c *Client) live(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen && !c.stopped
}

// run dials, then reads until the connection ends.
func (c *Client) run(ctx context.Context, gen uint64, target string, h Handler) {
	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		c.mu.Lock()
		stale := gen != c.gen || c.stopped
		if !stale {
			c.state = StateErrored
		}
		c.mu.Unlock()
		if !stale {
			slog.Warn("stream dial failed", "error", err)
			h.error(fmt.Errorf("%w: dial: %w", ErrTransport, err))
		}
		return
	}

	c.mu.Lock()
	if gen != c.gen || c.stopped {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()

	slog.Info("stream open")
	h.open()
	h.event(Event{Kind: KindIdle, Synthetic: true})

	if c.pingInterval > 0 {
		pongWait := 2 * c.pingInterval
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		pingCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go c.pingLoop(pingCtx, conn)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.closed(gen, conn, err, h)
			return
		}
		if !c.live(gen) {
			continue
		}
		ev := Decode(data)
		logger.Trace(slog.Default(), "stream message", "kind", ev.Kind, "bytes", len(data))
		if ev.Kind == KindMalformed {
			slog.Warn("dropping malformed stream message", "error", ev.Err)
		}
		h.event(ev)
	}
}

// closed records the end of gen's connection and notifies h.
func (c *Client) closed(gen uint64, conn *websocket.Conn, cause error, h Handler) {
	conn.Close()

	var closeErr *websocket.CloseError
	remote := errors.As(cause, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.stopped {
		c.mu.Unlock()
		h.close(UserInitiated)
		return
	}
	c.conn = nil
	if remote {
		c.state = StateClosed
	} else {
		c.state = StateErrored
	}
	c.mu.Unlock()

	if remote {
		slog.Info("stream closed by server", "code", closeErr.Code)
		h.close(RemoteClosed)
		return
	}
	slog.Warn("stream transport error", "error", cause)
	h.error(fmt.Errorf("%w: %w", ErrTransport, cause))
	h.close(TransportError)
}

// pingLoop sends keepalive pings until ctx ends or a write fails.
func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (h Handler) open() {
	if h.OnOpen != nil {
		h.OnOpen()
	}
}

func (h Handler) event(ev Event) {
	if h.OnEvent != nil {
		h.OnEvent(ev)
	}
}

func (h Handler) close(r DisconnectReason) {
	if h.OnClose != nil {
		h.OnClose(r)
	}
}

func (h Handler) error(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}
