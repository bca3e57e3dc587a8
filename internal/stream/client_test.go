package stream

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/goleak"
)

// ///////////////////////////////////////////////
// Test Helpers
// ///////////////////////////////////////////////

// fakeServer accepts WebSocket upgrades and hands the server side of each
// connection to the test.
type fakeServer struct {
	srv      *httptest.Server
	conns    chan *websocket.Conn
	paths    chan string
	accepted atomic.Int32

	mu   sync.Mutex
	open []*websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		conns: make(chan *websocket.Conn, 16),
		paths: make(chan string, 16),
	}
	var upgrader websocket.Upgrader
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.open = append(fs.open, conn)
		fs.mu.Unlock()
		fs.accepted.Add(1)
		fs.paths <- r.URL.Path
		fs.conns <- conn
	}))
	t.Cleanup(fs.close)
	return fs
}

// base returns the ws:// address of the server.
func (fs *fakeServer) base() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http") + "/live"
}

func (fs *fakeServer) close() {
	fs.mu.Lock()
	for _, conn := range fs.open {
		conn.Close()
	}
	fs.open = nil
	fs.mu.Unlock()
	fs.srv.Close()
}

// accept waits for the next server-side connection.
func (fs *fakeServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-fs.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a connection")
		return nil
	}
}

// call is one recorded handler invocation.
type call struct {
	name   string
	event  Event
	reason DisconnectReason
	err    error
}

// recorder captures handler invocations in order.
type recorder struct {
	calls chan call
}

func newRecorder() *recorder {
	return &recorder{calls: make(chan call, 64)}
}

func (r *recorder) handler() Handler {
	return Handler{
		OnOpen:  func() { r.calls <- call{name: "open"} },
		OnEvent: func(ev Event) { r.calls <- call{name: "event", event: ev} },
		OnClose: func(reason DisconnectReason) { r.calls <- call{name: "close", reason: reason} },
		OnError: func(err error) { r.calls <- call{name: "error", err: err} },
	}
}

func (r *recorder) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-r.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a handler call")
		return call{}
	}
}

// expect reads the next call and checks its name.
func (r *recorder) expect(t *testing.T, name string) call {
	t.Helper()
	c := r.next(t)
	if c.name != name {
		t.Fatalf("next call = %q (%+v), want %q", c.name, c, name)
	}
	return c
}

// quiet asserts that no call arrives for a short while.
func (r *recorder) quiet(t *testing.T) {
	t.Helper()
	select {
	case c := <-r.calls:
		t.Fatalf("unexpected call %q (%+v)", c.name, c)
	case <-time.After(100 * time.Millisecond):
	}
}

func writeText(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

// subscribe opens a manual-watchdog client and consumes the open sequence.
func subscribe(t *testing.T, fs *fakeServer, rec *recorder, opts ...Option) (*Client, *websocket.Conn) {
	t.Helper()
	opts = append([]Option{WithWatchdogInterval(0), WithPingInterval(0)}, opts...)
	c := NewClient(opts...)
	t.Cleanup(c.Stop)

	if err := c.Subscribe(fs.base(), "abcd1234EFGH5678", rec.handler()); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	conn := fs.accept(t)
	rec.expect(t, "open")
	if ev := rec.expect(t, "event").event; ev.Kind != KindIdle || !ev.Synthetic {
		t.Fatalf("first event = %+v, want synthetic idle", ev)
	}
	return c, conn
}

// ///////////////////////////////////////////////
// Endpoint
// ///////////////////////////////////////////////

func TestEndpoint(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"wss://live.example.com/ws", "wss://live.example.com/ws/abcd1234EFGH5678", false},
		{"wss://live.example.com/ws/", "wss://live.example.com/ws/abcd1234EFGH5678", false},
		{"ws://localhost:8080", "ws://localhost:8080/abcd1234EFGH5678", false},
		{"https://live.example.com", "", true},
		{"://bad", "", true},
	}
	for _, tt := range tests {
		got, err := Endpoint(tt.base, "abcd1234EFGH5678")
		if (err != nil) != tt.wantErr {
			t.Errorf("Endpoint(%q) err = %v, wantErr %v", tt.base, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Endpoint(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

// ///////////////////////////////////////////////
// Subscribe
// ///////////////////////////////////////////////

func TestSubscribe_DeliversEventsInOrder(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	c, conn := subscribe(t, fs, rec)

	if path := <-fs.paths; path != "/live/abcd1234EFGH5678" {
		t.Errorf("request path = %q", path)
	}
	if c.State() != StateOpen {
		t.Fatalf("State = %v, want open", c.State())
	}

	writeText(t, conn, `{"state":"playing","data":{"title":"T","url":"U","channel":"C"}}`)
	writeText(t, conn, `{not json`)
	writeText(t, conn, `{"state":"buffering"}`)
	writeText(t, conn, `{"state":"idle"}`)

	want := []Kind{KindPlaying, KindMalformed, KindUnknown, KindIdle}
	for i, kind := range want {
		ev := rec.expect(t, "event").event
		if ev.Kind != kind {
			t.Fatalf("event %d kind = %v, want %v", i, ev.Kind, kind)
		}
		if ev.Synthetic {
			t.Fatalf("event %d should not be synthetic", i)
		}
	}
	if c.State() != StateOpen {
		t.Fatalf("malformed input changed state to %v", c.State())
	}
}

func TestSubscribe_RejectsBadEndpoint(t *testing.T) {
	c := NewClient()
	if err := c.Subscribe("http://example.com", "abcd1234EFGH5678", Handler{}); err == nil {
		t.Fatal("expected an error for a non-websocket scheme")
	}
	if c.State() != StateIdle {
		t.Fatalf("State = %v, want idle", c.State())
	}
}

func TestSubscribe_DialFailure(t *testing.T) {
	fs := newFakeServer(t)
	base := fs.base()
	fs.close()

	rec := newRecorder()
	c := NewClient(WithWatchdogInterval(0))
	t.Cleanup(c.Stop)
	if err := c.Subscribe(base, "abcd1234EFGH5678", rec.handler()); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	got := rec.expect(t, "error")
	if !errors.Is(got.err, ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", got.err)
	}
	if c.State() != StateErrored {
		t.Fatalf("State = %v, want errored", c.State())
	}
}

// ///////////////////////////////////////////////
// Disconnects and Watchdog
// ///////////////////////////////////////////////

func TestRemoteClose_WatchdogReconnectsOnce(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	c, conn := subscribe(t, fs, rec)

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "restart")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("server close: %v", err)
	}

	if got := rec.expect(t, "close").reason; got != RemoteClosed {
		t.Fatalf("close reason = %v, want remote closed", got)
	}
	if c.State() != StateClosed {
		t.Fatalf("State = %v, want closed", c.State())
	}

	if !c.watchdogTick() {
		t.Fatal("watchdog should reconnect a closed channel")
	}
	if c.watchdogTick() {
		t.Fatal("second tick while reconnecting must be a no-op")
	}

	fs.accept(t)
	rec.expect(t, "open")
	rec.expect(t, "event")
	if c.watchdogTick() {
		t.Fatal("tick while open must be a no-op")
	}
	if n := fs.accepted.Load(); n != 2 {
		t.Fatalf("server accepted %d connections, want 2", n)
	}
}

func TestTransportError(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	c, conn := subscribe(t, fs, rec)

	// Drop the TCP connection without a close frame.
	conn.UnderlyingConn().Close()

	got := rec.expect(t, "error")
	if !errors.Is(got.err, ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", got.err)
	}
	if reason := rec.expect(t, "close").reason; reason != TransportError {
		t.Fatalf("close reason = %v, want transport error", reason)
	}
	if c.State() != StateErrored {
		t.Fatalf("State = %v, want errored", c.State())
	}
}

func TestStop_PreventsReconnect(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	c, _ := subscribe(t, fs, rec)

	c.Stop()

	if reason := rec.expect(t, "close").reason; reason != UserInitiated {
		t.Fatalf("close reason = %v, want user initiated", reason)
	}
	if c.State() != StateIdle {
		t.Fatalf("State = %v, want idle", c.State())
	}
	if c.watchdogTick() {
		t.Fatal("watchdog must not reconnect after Stop")
	}
	rec.quiet(t)
	if n := fs.accepted.Load(); n != 1 {
		t.Fatalf("server accepted %d connections, want 1", n)
	}

	c.Stop()
}

func TestWatchdog_FixedInterval(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	c, conn := subscribe(t, fs, rec, WithWatchdogInterval(20*time.Millisecond))

	conn.UnderlyingConn().Close()
	rec.expect(t, "error")
	rec.expect(t, "close")

	fs.accept(t)
	rec.expect(t, "open")
	if ev := rec.expect(t, "event").event; !ev.Synthetic {
		t.Fatalf("reconnect should emit a synthetic idle, got %+v", ev)
	}
	if c.State() != StateOpen {
		t.Fatalf("State = %v, want open", c.State())
	}
}

func TestKeepalivePings(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	_, conn := subscribe(t, fs, rec, WithPingInterval(20*time.Millisecond))

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(data string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no keepalive ping received")
	}
}

func TestStop_NoGoroutineLeak(t *testing.T) {
	ignore := goleak.IgnoreCurrent()

	fs := newFakeServer(t)
	rec := newRecorder()
	c := NewClient(WithWatchdogInterval(10*time.Millisecond), WithPingInterval(10*time.Millisecond))
	if err := c.Subscribe(fs.base(), "abcd1234EFGH5678", rec.handler()); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	fs.accept(t)
	rec.expect(t, "open")

	c.Stop()
	rec.expect(t, "event")
	rec.expect(t, "close")
	fs.close()

	goleak.VerifyNone(t, ignore)
}
