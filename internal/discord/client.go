// Package discord provides a client for Discord's local IPC socket,
// enabling Rich Presence updates via the SET_ACTIVITY command.
//
// A [Client] holds at most one session at a time. A session begins with a
// successful handshake in [Client.Connect] and ends when the peer closes the
// socket, a transport error occurs, or [Client.Close] is called. Each session
// reports its end exactly once on the channel returned by [Client.Closed].
//
// Platform-specific socket discovery is handled by conn_unix.go and
// conn_windows.go.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

var (
	// ErrNotConnected is returned when an operation requires an active session.
	ErrNotConnected = errors.New("not connected")
	// ErrHandshakeRejected is returned when Discord refuses the client identity.
	ErrHandshakeRejected = errors.New("handshake rejected")
	// ErrCommandRejected is returned when Discord answers a command with an
	// ERROR event.
	ErrCommandRejected = errors.New("command rejected")
	// ErrRemoteClosed is delivered on [Client.Closed] when Discord ends the
	// session (OP_CLOSE or end of stream).
	ErrRemoteClosed = errors.New("connection closed by discord")
)

// closeWriteTimeout bounds the best-effort activity clear sent by Close.
const closeWriteTimeout = time.Second

// ///////////////////////////////////////////////
// Data Types
// ///////////////////////////////////////////////

// Button represents a clickable button in a Discord Rich Presence activity.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Timestamps holds the start timestamp for an activity.
type Timestamps struct {
	Start int64 `json:"start,omitempty"`
}

// Assets holds image keys and tooltip text for an activity.
type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

// Activity represents a Discord Rich Presence activity.
type Activity struct {
	Details    string      `json:"details,omitempty"`
	State      string      `json:"state,omitempty"`
	Timestamps *Timestamps `json:"timestamps,omitempty"`
	Assets     *Assets     `json:"assets,omitempty"`
	Buttons    []Button    `json:"buttons,omitempty"`
}

// message is the JSON envelope of every OpFrame payload in both directions.
type message struct {
	Cmd   string          `json:"cmd,omitempty"`
	Evt   string          `json:"evt,omitempty"`
	Nonce string          `json:"nonce,omitempty"`
	Args  any             `json:"args,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// errorData is the data object of an ERROR event or OP_CLOSE payload.
type errorData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// describe extracts a human-readable reason from an ERROR payload.
func describe(raw json.RawMessage) string {
	var d errorData
	if err := json.Unmarshal(raw, &d); err != nil || d.Message == "" {
		return "no reason given"
	}
	return fmt.Sprintf("%s (code %d)", d.Message, d.Code)
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// DialFunc opens a raw IPC connection to Discord.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Option configures a [Client].
type Option func(*Client)

// WithDialer replaces the platform socket discovery with dial.
func WithDialer(dial DialFunc) Option {
	return func(c *Client) { c.dial = dial }
}

// Client manages a connection to Discord's IPC socket.
type Client struct {
	dial DialFunc

	// mu protects sess and closed.
	mu sync.Mutex
	// sess is the live session, or nil when disconnected.
	sess *session
	// closed is the close channel of the most recent session. It outlives the
	// session so a late reader still receives the close reason.
	closed chan error
}

// NewClient creates a Discord IPC client that discovers the local socket
// on each Connect.
func NewClient(opts ...Option) *Client {
	c := &Client{dial: dialDiscord}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials Discord and performs the handshake for clientID. Any
// previous session is closed first. Failures are returned to the caller and
// never retried here. Cancelling ctx aborts the dial or handshake.
func (c *Client) Connect(ctx context.Context, clientID string) error {
	if err := c.Close(); err != nil {
		slog.Debug("closing previous ipc session", "error", err)
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	err = handshake(conn, clientID)
	if !stop() {
		conn.Close()
		return ctx.Err()
	}
	if err != nil {
		conn.Close()
		return err
	}

	s := &session{
		conn:    conn,
		pending: make(map[string]chan message),
		done:    make(chan struct{}),
		closed:  make(chan error, 1),
	}

	c.mu.Lock()
	c.sess = s
	c.closed = s.closed
	c.mu.Unlock()

	go c.readLoop(s)
	slog.Debug("ipc session established", "client_id", clientID)
	return nil
}

// SetActivity sends a SET_ACTIVITY command and waits for Discord's reply.
func (c *Client) SetActivity(ctx context.Context, activity *Activity) error {
	return c.setActivity(ctx, activity)
}

// ClearActivity sends a SET_ACTIVITY command with a nil activity, removing
// the presence.
func (c *Client) ClearActivity(ctx context.Context) error {
	return c.setActivity(ctx, nil)
}

func (c *Client) setActivity(ctx context.Context, activity *Activity) error {
	s := c.current()
	if s == nil {
		return ErrNotConnected
	}
	resp, err := s.request(ctx, "SET_ACTIVITY", activityArgs(activity))
	if err != nil {
		return err
	}
	if resp.Evt == "ERROR" {
		return fmt.Errorf("%w: %s", ErrCommandRejected, describe(resp.Data))
	}
	return nil
}

// Close clears the activity on a best-effort basis and ends the session.
// It is idempotent; closing a disconnected client is a no-op. The session's
// Closed channel receives nil.
func (c *Client) Close() error {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	c.mu.Unlock()

	if s == nil {
		return nil
	}

	s.userClosed.Store(true)
	if err := s.send(context.Background(), closeWriteTimeout, "SET_ACTIVITY", activityArgs(nil), ""); err != nil {
		slog.Debug("best-effort activity clear failed", "error", err)
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("closing ipc connection: %w", err)
	}
	return nil
}

// Closed returns the close channel of the most recent session. It yields
// exactly one value per session: nil after [Client.Close], [ErrRemoteClosed]
// when Discord ends the session, or a wrapped transport error. Before the
// first Connect it returns nil, which blocks forever.
func (c *Client) Closed() <-chan error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Connected reports whether the client has a live session.
func (c *Client) Connected() bool {
	return c.current() != nil
}

func (c *Client) current() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// readLoop consumes frames until the connection fails, answering pings and
// routing command responses to their waiters.
func (c *Client) readLoop(s *session) {
	for {
		op, payload, err := DecodeFrame(s.conn)
		if err != nil {
			c.finish(s, err)
			return
		}

		switch op {
		case OpPing:
			if err := s.write(OpPong, payload, 0); err != nil {
				c.finish(s, err)
				return
			}
		case OpClose:
			c.finish(s, fmt.Errorf("%w: %s", ErrRemoteClosed, describe(payload)))
			return
		case OpFrame:
			var msg message
			if err := json.Unmarshal(payload, &msg); err != nil {
				slog.Warn("discarding undecodable ipc frame", "error", err)
				continue
			}
			s.deliver(msg)
		default:
			slog.Debug("ignoring ipc frame", "opcode", op)
		}
	}
}

// finish ends s exactly once and publishes the close reason.
func (c *Client) finish(s *session, cause error) {
	s.once.Do(func() {
		c.mu.Lock()
		if c.sess == s {
			c.sess = nil
		}
		c.mu.Unlock()

		s.conn.Close()
		close(s.done)

		var reason error
		switch {
		case s.userClosed.Load():
			reason = nil
		case errors.Is(cause, ErrRemoteClosed):
			reason = cause
		case errors.Is(cause, io.EOF):
			reason = ErrRemoteClosed
		default:
			reason = fmt.Errorf("ipc transport: %w", cause)
		}
		if reason != nil {
			slog.Info("ipc session lost", "reason", reason)
		}
		s.closed <- reason
	})
}

// activityArgs builds the SET_ACTIVITY argument object.
func activityArgs(activity *Activity) map[string]any {
	return map[string]any{
		"pid":      os.Getpid(),
		"activity": activity,
	}
}

// ///////////////////////////////////////////////
// Handshake
// ///////////////////////////////////////////////

// handshake sends the initial handshake frame and validates the reply.
// It runs before the read loop starts, so it reads the socket directly.
func handshake(conn net.Conn, clientID string) error {
	payload, err := json.Marshal(map[string]any{
		"v":         1,
		"client_id": clientID,
	})
	if err != nil {
		return fmt.Errorf("marshaling handshake: %w", err)
	}

	frame, err := EncodeFrame(OpHandshake, payload)
	if err != nil {
		return fmt.Errorf("encoding handshake: %w", err)
	}
	if _, err = conn.Write(frame); err != nil {
		return fmt.Errorf("writing handshake: %w", err)
	}

	opcode, respData, err := DecodeFrame(conn)
	if err != nil {
		return fmt.Errorf("reading handshake response: %w", err)
	}
	switch opcode {
	case OpFrame:
	case OpClose:
		return fmt.Errorf("%w: %s", ErrHandshakeRejected, describe(respData))
	default:
		return fmt.Errorf("unexpected handshake response opcode: %v", opcode)
	}

	var resp message
	if err := json.Unmarshal(respData, &resp); err != nil {
		return fmt.Errorf("parsing handshake response: %w", err)
	}
	if resp.Evt == "ERROR" {
		return fmt.Errorf("%w: %s", ErrHandshakeRejected, describe(resp.Data))
	}
	return nil
}

// ///////////////////////////////////////////////
// Session
// ///////////////////////////////////////////////

// session is one handshaken IPC connection.
type session struct {
	conn net.Conn

	// writeMu serializes frame writes so frames never interleave.
	writeMu sync.Mutex

	// pendingMu protects pending.
	pendingMu sync.Mutex
	// pending maps command nonces to their response waiters.
	pending map[string]chan message

	// done is closed when the session ends.
	done chan struct{}
	// closed receives the session's single close reason.
	closed chan error

	userClosed atomic.Bool
	once       sync.Once
}

// request sends cmd and waits for the response carrying the same nonce.
func (s *session) request(ctx context.Context, cmd string, args any) (message, error) {
	nonce := uuid.NewString()
	reply := make(chan message, 1)

	s.pendingMu.Lock()
	s.pending[nonce] = reply
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, nonce)
		s.pendingMu.Unlock()
	}()

	if err := s.send(ctx, 0, cmd, args, nonce); err != nil {
		return message{}, err
	}

	select {
	case resp := <-reply:
		return resp, nil
	case <-s.done:
		return message{}, fmt.Errorf("%w: session ended awaiting %s", ErrNotConnected, cmd)
	case <-ctx.Done():
		return message{}, ctx.Err()
	}
}

// send writes a command frame. A positive timeout, or a deadline on ctx,
// bounds the write.
func (s *session) send(ctx context.Context, timeout time.Duration, cmd string, args any, nonce string) error {
	if nonce == "" {
		nonce = uuid.NewString()
	}
	payload, err := json.Marshal(message{Cmd: cmd, Args: args, Nonce: nonce})
	if err != nil {
		return fmt.Errorf("marshaling command: %w", err)
	}
	if dl, ok := ctx.Deadline(); ok {
		if until := time.Until(dl); timeout <= 0 || until < timeout {
			timeout = until
		}
	}
	if err := s.write(OpFrame, payload, timeout); err != nil {
		return fmt.Errorf("writing %s: %w", cmd, err)
	}
	return nil
}

// write encodes and writes one frame under writeMu.
func (s *session) write(op Opcode, payload []byte, timeout time.Duration) error {
	frame, err := EncodeFrame(op, payload)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
		defer s.conn.SetWriteDeadline(time.Time{})
	}
	_, err = s.conn.Write(frame)
	return err
}

// deliver hands a response to the waiter registered for its nonce.
func (s *session) deliver(msg message) {
	if msg.Nonce == "" {
		slog.Debug("ipc event", "evt", msg.Evt)
		return
	}
	s.pendingMu.Lock()
	reply, ok := s.pending[msg.Nonce]
	s.pendingMu.Unlock()
	if !ok {
		return
	}
	select {
	case reply <- msg:
	default:
	}
}
