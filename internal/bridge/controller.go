package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tools.zach/dev/jukeboxrpc/internal/stream"
	"tools.zach/dev/jukeboxrpc/internal/token"
)

// errorCategory groups failures so a success only clears its own kind.
type errorCategory int

const (
	categoryNone errorCategory = iota
	categoryToken
	categoryPresence
	categoryStream
	categoryAutostart
)

// Discord accepts roughly five activity updates per twenty seconds.
const (
	defaultUpdateLimit = rate.Limit(1.0 / 4)
	defaultUpdateBurst = 3
)

// ///////////////////////////////////////////////
// Options
// ///////////////////////////////////////////////

// Option configures a [Controller].
type Option func(*Controller)

// WithObserver registers fn to receive coalesced status snapshots. fn runs
// on a dedicated goroutine and may call Status but must not block for long.
func WithObserver(fn func(Status)) Option {
	return func(c *Controller) { c.observer = fn }
}

// WithAutostart attaches the launch-at-login backend.
func WithAutostart(a Autostarter) Option {
	return func(c *Controller) { c.autostart = a }
}

// WithRateLimit overrides the presence update rate limit.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Controller) {
		c.updateLimit = limit
		c.updateBurst = burst
	}
}

// WithClock replaces time.Now for payload timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// ///////////////////////////////////////////////
// Controller
// ///////////////////////////////////////////////

// Controller is the presence-sync state machine.
type Controller struct {
	presence  Presence
	stream    Stream
	autostart Autostarter
	observer  func(Status)

	updateLimit rate.Limit
	updateBurst int
	now         func() time.Time

	// opMu serializes connect attempts. Disable never takes it, so it can
	// always interrupt a pending connect.
	opMu sync.Mutex

	// mu protects every field below.
	mu       sync.Mutex
	settings Settings
	state    State
	intent   Intent
	token    string
	// gen identifies the current session; completions carrying an older
	// value are discarded.
	gen           uint64
	cancelConnect context.CancelFunc
	cancelSession context.CancelFunc
	pub           *publisher

	lastErr     string
	lastErrCat  errorCategory
	autostartOn bool

	// track and trackStart remember the mirrored track so a repeated
	// announcement keeps its elapsed timer.
	track      *stream.Track
	trackStart time.Time
	lastEvent  *stream.Event

	notify   chan struct{}
	quit     chan struct{}
	wg       sync.WaitGroup
	shutdown sync.Once
}

// New returns a disabled controller.
func New(settings Settings, presence Presence, strm Stream, opts ...Option) *Controller {
	c := &Controller{
		presence:    presence,
		stream:      strm,
		settings:    settings,
		updateLimit: defaultUpdateLimit,
		updateBurst: defaultUpdateBurst,
		now:         time.Now,
		notify:      make(chan struct{}, 1),
		quit:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.autostart != nil {
		on, err := c.autostart.Enabled()
		if err != nil {
			slog.Warn("reading autostart state", "error", err)
		}
		c.autostartOn = on
	}

	if c.observer != nil {
		c.wg.Add(1)
		go c.notifier()
	}
	return c
}

// Enable validates tok, connects the presence service and subscribes to
// the live-update channel. On a connect failure the controller reverts to
// Disabled and the returned error wraps [ErrConnect]. Enabling while a
// session exists replaces it.
func (c *Controller) Enable(ctx context.Context, tok string) error {
	if err := token.Validate(tok); err != nil {
		c.mu.Lock()
		c.setErrorLocked(categoryToken, c.settings.Messages.InvalidToken)
		c.mu.Unlock()
		c.signal()
		return err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state == StateActive && c.token == tok {
		c.mu.Unlock()
		return nil
	}
	if c.state != StateDisabled {
		c.teardownLocked()
	}
	c.clearErrorLocked(categoryToken)
	c.gen++
	gen := c.gen
	connectCtx, cancel := context.WithCancel(ctx)
	c.cancelConnect = cancel
	c.intent = IntentEnabled
	c.state = StateConnecting
	c.token = tok
	settings := c.settings
	c.mu.Unlock()
	c.signal()

	slog.Info("connecting to discord", "client_id", settings.ClientID, "token", token.Redact(tok))
	err := c.presence.Connect(connectCtx, settings.ClientID)
	cancel()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if err == nil {
			// Disable ran while the handshake was in flight.
			_ = c.presence.Close()
		}
		slog.Info("discarding cancelled connect")
		return ErrCancelled
	}
	c.cancelConnect = nil

	if err != nil {
		c.state = StateDisabled
		c.token = ""
		c.setErrorLocked(categoryPresence, settings.Messages.RPCError)
		c.mu.Unlock()
		c.signal()
		slog.Warn("discord connect failed", "error", err)
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	sessCtx, cancelSess := context.WithCancel(context.Background())
	c.cancelSession = cancelSess
	c.pub = newPublisher(c.presence, c.updateLimit, c.updateBurst)
	closed := c.presence.Closed()
	c.wg.Add(2)
	go func(p *publisher) {
		defer c.wg.Done()
		p.run(sessCtx)
	}(c.pub)
	go c.supervise(sessCtx, gen, closed)

	c.activateLocked(gen)
	c.mu.Unlock()
	c.signal()
	return nil
}

// Disable records a user-initiated stop, stops the stream and closes the
// presence connection. It is safe in any state, including mid-connect, and
// calling it repeatedly has the same effect as calling it once.
func (c *Controller) Disable() {
	c.mu.Lock()
	c.intent = IntentDisabled
	c.teardownLocked()
	c.mu.Unlock()
	c.signal()
}

// teardownLocked ends the current session. The caller must hold c.mu.
func (c *Controller) teardownLocked() {
	c.gen++
	if c.state != StateDisabled {
		slog.Info("presence sync stopping", "from", c.state)
	}
	c.state = StateDisabled
	c.token = ""
	c.track = nil
	c.lastEvent = nil
	c.pub = nil
	if c.cancelConnect != nil {
		c.cancelConnect()
		c.cancelConnect = nil
	}
	if c.cancelSession != nil {
		c.cancelSession()
		c.cancelSession = nil
	}
	c.stream.Stop()
	if err := c.presence.Close(); err != nil {
		slog.Warn("closing presence connection", "error", err)
	}
}

// activateLocked enters Active and (re)subscribes the stream. The caller
// must hold c.mu.
func (c *Controller) activateLocked(gen uint64) {
	c.state = StateActive
	c.clearErrorLocked(categoryPresence)
	slog.Info("presence sync active")

	if err := c.stream.Subscribe(c.settings.EndpointBase, c.token, c.streamHandler(gen)); err != nil {
		slog.Error("subscribing to live updates", "error", err)
		c.setErrorLocked(categoryStream, c.settings.Messages.SocketFailure)
	}
}

// supervise waits for the presence connection to drop and, while the
// session is current, reconnects it on a fixed interval.
func (c *Controller) supervise(ctx context.Context, gen uint64, closed <-chan error) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-closed:
			if !c.enterReconnecting(gen, err) {
				return
			}
		}

		next, ok := c.reconnect(ctx, gen)
		if !ok {
			return
		}
		closed = next
	}
}

// enterReconnecting moves an Active session to Reconnecting after an
// unexpected presence close. It reports false when the session is stale.
func (c *Controller) enterReconnecting(gen uint64, cause error) bool {
	c.mu.Lock()
	defer c.signal()
	defer c.mu.Unlock()

	if gen != c.gen || c.intent != IntentEnabled {
		return false
	}
	slog.Warn("discord connection lost", "error", cause)
	c.state = StateReconnecting
	c.setErrorLocked(categoryPresence, c.settings.Messages.RPCError)
	c.stream.Stop()
	return true
}

// reconnect retries the presence connection every ReconnectInterval until
// it succeeds or the session ends. On success it returns the new session's
// close channel.
func (c *Controller) reconnect(ctx context.Context, gen uint64) (<-chan error, bool) {
	c.mu.Lock()
	interval := c.settings.ReconnectInterval
	c.mu.Unlock()
	if interval <= 0 {
		interval = DefaultSettings().ReconnectInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, false
		case <-ticker.C:
		}

		// An Enable in progress owns the connection; try again next tick.
		if !c.opMu.TryLock() {
			continue
		}
		closed, ok, done := c.reconnectOnce(ctx, gen, attempt)
		c.opMu.Unlock()
		if done {
			return closed, ok
		}
	}
}

// reconnectOnce makes one connect attempt. done reports whether the retry
// loop should stop; ok whether the session is Active again.
func (c *Controller) reconnectOnce(ctx context.Context, gen uint64, attempt int) (closed <-chan error, ok, done bool) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateReconnecting {
		c.mu.Unlock()
		return nil, false, true
	}
	clientID := c.settings.ClientID
	c.mu.Unlock()

	slog.Debug("reconnecting to discord", "attempt", attempt)
	err := c.presence.Connect(ctx, clientID)

	c.mu.Lock()
	defer c.signal()
	defer c.mu.Unlock()

	if gen != c.gen {
		if err == nil {
			_ = c.presence.Close()
		}
		return nil, false, true
	}
	if err != nil {
		slog.Debug("reconnect attempt failed", "attempt", attempt, "error", err)
		return nil, false, false
	}

	slog.Info("discord connection restored", "attempts", attempt)
	c.activateLocked(gen)
	return c.presence.Closed(), true, true
}

// ///////////////////////////////////////////////
// Stream Events
// ///////////////////////////////////////////////

// streamHandler binds stream callbacks to session gen.
func (c *Controller) streamHandler(gen uint64) stream.Handler {
	return stream.Handler{
		OnOpen: func() {
			c.mu.Lock()
			if gen == c.gen {
				c.clearErrorLocked(categoryStream)
			}
			c.mu.Unlock()
			c.signal()
		},
		OnEvent: func(ev stream.Event) {
			c.handleEvent(gen, ev)
		},
		OnClose: func(reason stream.DisconnectReason) {
			if reason != stream.RemoteClosed {
				return
			}
			c.streamFailed(gen, func(m Messages) string { return m.SocketClosed })
		},
		OnError: func(err error) {
			slog.Debug("live update error", "error", err)
			c.streamFailed(gen, func(m Messages) string { return m.SocketFailure })
		},
	}
}

func (c *Controller) streamFailed(gen uint64, text func(Messages) string) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateActive {
		c.mu.Unlock()
		return
	}
	c.setErrorLocked(categoryStream, text(c.settings.Messages))
	c.mu.Unlock()
	c.signal()
}

// handleEvent maps ev to a payload and queues it. Events outside an Active
// session, and Unknown or Malformed events, change nothing.
func (c *Controller) handleEvent(gen uint64, ev stream.Event) {
	switch ev.Kind {
	case stream.KindUnknown:
		slog.Info("ignoring unknown live state", "state", ev.RawState)
		return
	case stream.KindMalformed:
		slog.Warn("ignoring malformed live update", "error", ev.Err)
		return
	}

	c.mu.Lock()
	if gen != c.gen || c.state != StateActive {
		c.mu.Unlock()
		slog.Debug("dropping live event outside active session", "kind", ev.Kind)
		return
	}
	c.lastEvent = &ev
	// Queue under c.mu so a concurrent UpdateSettings cannot overwrite this
	// payload with one built from the previous event.
	c.pub.publish(c.payloadLocked(ev))
	c.mu.Unlock()

	c.signal()
}

// payloadLocked builds the payload for ev and updates the now-playing
// bookkeeping. The caller must hold c.mu.
func (c *Controller) payloadLocked(ev stream.Event) Payload {
	now := c.now()
	if ev.Kind == stream.KindPlaying && !ignored(c.settings, ev.Track) {
		if c.track == nil || c.track.URL != ev.Track.URL || c.track.Title != ev.Track.Title {
			t := ev.Track
			c.track = &t
			c.trackStart = now
		}
		return playingPayload(c.settings, ev.Track, c.trackStart)
	}
	if ev.Kind == stream.KindPlaying {
		slog.Debug("track matches privacy ignore list")
	}
	c.track = nil
	return idlePayload(c.settings, now)
}

// ///////////////////////////////////////////////
// Settings, Autostart, Status
// ///////////////////////////////////////////////

// UpdateSettings replaces the settings. Display changes are applied to the
// current presence immediately; connection settings take effect on the
// next connect.
func (c *Controller) UpdateSettings(s Settings) {
	c.mu.Lock()
	old := c.settings
	c.settings = s
	if c.state != StateDisabled && (old.ClientID != s.ClientID || old.EndpointBase != s.EndpointBase) {
		slog.Info("connection settings changed, applied on next enable")
	}
	if c.state == StateActive && c.lastEvent != nil {
		c.pub.publish(c.payloadLocked(*c.lastEvent))
	}
	c.mu.Unlock()

	c.signal()
}

// SetAutostart toggles launch-at-login registration.
func (c *Controller) SetAutostart(on bool) error {
	if c.autostart == nil {
		return ErrAutostartUnsupported
	}
	err := c.autostart.SetEnabled(on)

	c.mu.Lock()
	if err != nil {
		c.setErrorLocked(categoryAutostart, fmt.Sprintf("Could not update start at login: %v", err))
	} else {
		c.autostartOn = on
		c.clearErrorLocked(categoryAutostart)
	}
	c.mu.Unlock()
	c.signal()

	if err != nil {
		return fmt.Errorf("set autostart: %w", err)
	}
	return nil
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		State:     c.state,
		Intent:    c.intent,
		LastError: c.lastErr,
		Autostart: c.autostartOn,
	}
	if c.track != nil && c.state == StateActive {
		st.NowPlaying = c.track.Title
	}
	return st
}

// Shutdown disables the controller and waits for its goroutines.
func (c *Controller) Shutdown() {
	c.shutdown.Do(func() {
		c.Disable()
		close(c.quit)
		c.wg.Wait()
	})
}

// setErrorLocked fills the last-error slot. The caller must hold c.mu.
func (c *Controller) setErrorLocked(cat errorCategory, text string) {
	c.lastErr = text
	c.lastErrCat = cat
}

// clearErrorLocked empties the slot if it holds an error of cat.
func (c *Controller) clearErrorLocked(cat errorCategory) {
	if c.lastErrCat == cat {
		c.lastErr = ""
		c.lastErrCat = categoryNone
	}
}

// signal schedules an observer notification. Bursts coalesce.
func (c *Controller) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// notifier delivers status snapshots to the observer.
func (c *Controller) notifier() {
	defer c.wg.Done()
	for {
		select {
		case <-c.quit:
			return
		case <-c.notify:
			c.observer(c.Status())
		}
	}
}
