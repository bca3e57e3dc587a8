package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"tools.zach/dev/jukeboxrpc/internal/discord"
	"tools.zach/dev/jukeboxrpc/internal/stream"
)

// ///////////////////////////////////////////////
// Fake Presence
// ///////////////////////////////////////////////

// fakePresence stands in for the Discord IPC client.
type fakePresence struct {
	mu         sync.Mutex
	connectErr error
	setErr     error
	// gate, when set, holds Connect until closed. Connect ignores ctx
	// while waiting, like a peer that never notices cancellation.
	gate      chan struct{}
	connects  int
	closes    int
	connected bool
	closed    chan error

	entered    chan struct{}
	activities chan *discord.Activity
}

func newFakePresence() *fakePresence {
	return &fakePresence{
		entered:    make(chan struct{}, 16),
		activities: make(chan *discord.Activity, 64),
	}
}

func (f *fakePresence) Connect(ctx context.Context, clientID string) error {
	f.mu.Lock()
	f.connects++
	gate := f.gate
	f.mu.Unlock()

	select {
	case f.entered <- struct{}{}:
	default:
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	f.closed = make(chan error, 1)
	return nil
}

func (f *fakePresence) SetActivity(ctx context.Context, a *discord.Activity) error {
	f.mu.Lock()
	connected, err := f.connected, f.setErr
	f.mu.Unlock()
	if !connected {
		return discord.ErrNotConnected
	}
	f.activities <- a
	return err
}

func (f *fakePresence) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil
	}
	f.connected = false
	f.closes++
	f.closed <- nil
	return nil
}

func (f *fakePresence) Closed() <-chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// drop simulates Discord going away.
func (f *fakePresence) drop(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.closed <- err
}

func (f *fakePresence) set(fn func(f *fakePresence)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakePresence) isConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePresence) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// nextActivity waits for the next SET_ACTIVITY.
func (f *fakePresence) nextActivity(t *testing.T) *discord.Activity {
	t.Helper()
	select {
	case a := <-f.activities:
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an activity update")
		return nil
	}
}

// noActivity asserts that no update is sent for a short while.
func (f *fakePresence) noActivity(t *testing.T) {
	t.Helper()
	select {
	case a := <-f.activities:
		t.Fatalf("unexpected activity update %+v", a)
	case <-time.After(100 * time.Millisecond):
	}
}

// ///////////////////////////////////////////////
// Fake Stream
// ///////////////////////////////////////////////

// fakeStream records subscriptions and lets tests play the server.
type fakeStream struct {
	mu         sync.Mutex
	subs       int
	stops      int
	subscribed bool
	base       string
	token      string
	handler    stream.Handler
	subErr     error
}

func (f *fakeStream) Subscribe(endpointBase, tok string, h stream.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return f.subErr
	}
	f.subs++
	f.subscribed = true
	f.base, f.token, f.handler = endpointBase, tok, h
	return nil
}

func (f *fakeStream) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.subscribed = false
}

func (f *fakeStream) current() stream.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

func (f *fakeStream) subCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs
}

func (f *fakeStream) isSubscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed
}

// open plays the stream's open sequence: OnOpen then a synthetic Idle.
func (f *fakeStream) open() {
	h := f.current()
	h.OnOpen()
	h.OnEvent(stream.Event{Kind: stream.KindIdle, Synthetic: true})
}

func (f *fakeStream) emit(ev stream.Event) {
	f.current().OnEvent(ev)
}

// ///////////////////////////////////////////////
// Fake Autostart
// ///////////////////////////////////////////////

type fakeAutostart struct {
	mu  sync.Mutex
	on  bool
	err error
}

func (f *fakeAutostart) Enabled() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on, nil
}

func (f *fakeAutostart) SetEnabled(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.on = on
	return nil
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

const validToken = "abcd1234EFGH5678"

var fixedNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func testSettings() Settings {
	s := DefaultSettings()
	s.ClientID = "1089"
	s.EndpointBase = "wss://live.example.com/ws"
	s.LargeImageKey = "jukebox"
	s.LargeImageText = "Jukebox"
	s.ButtonLabel = "Listen on YouTube"
	s.ReconnectInterval = 5 * time.Millisecond
	return s
}

// newTestController builds a controller over fresh fakes with no rate limit.
func newTestController(t *testing.T, opts ...Option) (*Controller, *fakePresence, *fakeStream) {
	t.Helper()
	p := newFakePresence()
	s := &fakeStream{}
	opts = append([]Option{
		WithRateLimit(rate.Inf, 1),
		WithClock(func() time.Time { return fixedNow }),
	}, opts...)
	c := New(testSettings(), p, s, opts...)
	t.Cleanup(c.Shutdown)
	return c, p, s
}

// enable runs a successful Enable and opens the stream, consuming the
// baseline idle update.
func enable(t *testing.T, c *Controller, p *fakePresence, s *fakeStream) {
	t.Helper()
	if err := c.Enable(context.Background(), validToken); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	<-p.entered
	s.open()
	p.nextActivity(t)
}

// waitFor polls cond until it holds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
