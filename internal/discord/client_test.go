// Tests for the [Client] type covering handshake, activity commands,
// ping handling, and the one-close-per-session contract.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"testing"
	"time"
)

// ///////////////////////////////////////////////
// Test Helpers
// ///////////////////////////////////////////////

// pipeClient returns a client whose dialer hands out the client end of a
// net.Pipe, together with the server end acting as Discord.
func pipeClient(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	c := NewClient(WithDialer(func(context.Context) (net.Conn, error) {
		return client, nil
	}))
	return c, server
}

// readFrame reads a single frame from conn and decodes its JSON payload.
func readFrame(t *testing.T, conn net.Conn) (Opcode, map[string]any) {
	t.Helper()
	opcode, payload, err := DecodeFrame(conn)
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		t.Fatalf("failed to parse frame payload: %v", err)
	}
	return opcode, m
}

// writeFrame marshals v and writes it as a frame with the given opcode.
func writeFrame(t *testing.T, conn net.Conn, op Opcode, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := conn.Write(mustEncodeFrame(t, op, data)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// connect runs Connect against the fake peer, answering with READY.
func connect(t *testing.T, c *Client, server net.Conn) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background(), "1089") }()

	if op, _ := readFrame(t, server); op != OpHandshake {
		t.Fatalf("first frame opcode = %v, want HANDSHAKE", op)
	}
	writeFrame(t, server, OpFrame, map[string]any{"cmd": "DISPATCH", "evt": "READY"})

	if err := <-done; err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

// awaitClosed waits for the session close value.
func awaitClosed(t *testing.T, c *Client) error {
	t.Helper()
	select {
	case err := <-c.Closed():
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close notification")
		return nil
	}
}

// ///////////////////////////////////////////////
// Client.Connect
// ///////////////////////////////////////////////

func TestClient_Connect_Handshake(t *testing.T) {
	c, server := pipeClient(t)

	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background(), "1089") }()

	opcode, m := readFrame(t, server)
	if opcode != OpHandshake {
		t.Fatalf("expected opcode HANDSHAKE, got %v", opcode)
	}
	if v, _ := m["v"].(float64); v != 1 {
		t.Errorf("expected v=1, got %v", m["v"])
	}
	if m["client_id"] != "1089" {
		t.Errorf("expected client_id=1089, got %v", m["client_id"])
	}

	writeFrame(t, server, OpFrame, map[string]any{"cmd": "DISPATCH", "evt": "READY"})
	if err := <-done; err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if !c.Connected() {
		t.Fatal("expected Connected() after successful handshake")
	}
}

func TestClient_Connect_Rejected(t *testing.T) {
	tests := []struct {
		name  string
		op    Opcode
		reply map[string]any
	}{
		{
			name:  "error event",
			op:    OpFrame,
			reply: map[string]any{"evt": "ERROR", "data": map[string]any{"code": 4000, "message": "Invalid Client ID"}},
		},
		{
			name:  "close frame",
			op:    OpClose,
			reply: map[string]any{"code": 4000, "message": "Invalid Client ID"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, server := pipeClient(t)

			done := make(chan error, 1)
			go func() { done <- c.Connect(context.Background(), "bad") }()

			readFrame(t, server)
			writeFrame(t, server, tt.op, tt.reply)

			err := <-done
			if !errors.Is(err, ErrHandshakeRejected) {
				t.Fatalf("Connect err = %v, want ErrHandshakeRejected", err)
			}
			if c.Connected() {
				t.Fatal("client must not be connected after a rejected handshake")
			}
		})
	}
}

func TestClient_Connect_DialFailure(t *testing.T) {
	c := NewClient(WithDialer(func(context.Context) (net.Conn, error) {
		return nil, ErrIPCNotAvailable
	}))
	if err := c.Connect(context.Background(), "1089"); !errors.Is(err, ErrIPCNotAvailable) {
		t.Fatalf("Connect err = %v, want ErrIPCNotAvailable", err)
	}
}

func TestClient_Connect_CancelledMidHandshake(t *testing.T) {
	c, server := pipeClient(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.Connect(ctx, "1089") }()

	// Swallow the handshake and never answer.
	readFrame(t, server)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Connect err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return after cancellation")
	}
	if c.Connected() {
		t.Fatal("cancelled connect must not leave a session")
	}
}

// ///////////////////////////////////////////////
// Client.SetActivity
// ///////////////////////////////////////////////

func TestClient_SetActivity(t *testing.T) {
	c, server := pipeClient(t)
	connect(t, c, server)

	activity := &Activity{
		Details:    "Song Title",
		State:      "By Channel",
		Timestamps: &Timestamps{Start: 1000000},
		Assets:     &Assets{LargeImage: "jukebox", LargeText: "Jukebox"},
		Buttons:    []Button{{Label: "Listen", URL: "https://example.com/watch"}},
	}

	done := make(chan error, 1)
	go func() { done <- c.SetActivity(context.Background(), activity) }()

	opcode, m := readFrame(t, server)
	if opcode != OpFrame {
		t.Fatalf("expected opcode FRAME, got %v", opcode)
	}
	if m["cmd"] != "SET_ACTIVITY" {
		t.Fatalf("expected cmd=SET_ACTIVITY, got %v", m["cmd"])
	}
	nonce, _ := m["nonce"].(string)
	if nonce == "" {
		t.Fatal("expected non-empty nonce")
	}

	args := m["args"].(map[string]any)
	if pid, _ := args["pid"].(float64); int(pid) != os.Getpid() {
		t.Errorf("expected pid=%d, got %v", os.Getpid(), args["pid"])
	}
	act := args["activity"].(map[string]any)
	if act["details"] != "Song Title" || act["state"] != "By Channel" {
		t.Errorf("unexpected activity text: %v", act)
	}
	buttons := act["buttons"].([]any)
	if len(buttons) != 1 || buttons[0].(map[string]any)["url"] != "https://example.com/watch" {
		t.Errorf("unexpected buttons: %v", buttons)
	}

	writeFrame(t, server, OpFrame, map[string]any{"cmd": "SET_ACTIVITY", "nonce": nonce, "data": map[string]any{}})
	if err := <-done; err != nil {
		t.Fatalf("SetActivity: %v", err)
	}
}

func TestClient_SetActivity_Rejected(t *testing.T) {
	c, server := pipeClient(t)
	connect(t, c, server)

	done := make(chan error, 1)
	go func() { done <- c.SetActivity(context.Background(), &Activity{State: "Idle"}) }()

	_, m := readFrame(t, server)
	writeFrame(t, server, OpFrame, map[string]any{
		"cmd":   "SET_ACTIVITY",
		"evt":   "ERROR",
		"nonce": m["nonce"],
		"data":  map[string]any{"code": 4000, "message": "child \"activity\" fails"},
	})

	if err := <-done; !errors.Is(err, ErrCommandRejected) {
		t.Fatalf("SetActivity err = %v, want ErrCommandRejected", err)
	}
	if !c.Connected() {
		t.Fatal("a rejected command must not end the session")
	}
}

func TestClient_SetActivity_NotConnected(t *testing.T) {
	c := NewClient()
	if err := c.SetActivity(context.Background(), &Activity{}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SetActivity err = %v, want ErrNotConnected", err)
	}
}

func TestClient_SetActivity_IgnoresUnrelatedResponses(t *testing.T) {
	c, server := pipeClient(t)
	connect(t, c, server)

	done := make(chan error, 1)
	go func() { done <- c.SetActivity(context.Background(), &Activity{State: "Idle"}) }()

	_, m := readFrame(t, server)
	writeFrame(t, server, OpFrame, map[string]any{"evt": "ERROR", "nonce": "someone-else"})
	writeFrame(t, server, OpFrame, map[string]any{"cmd": "SET_ACTIVITY", "nonce": m["nonce"]})

	if err := <-done; err != nil {
		t.Fatalf("SetActivity: %v", err)
	}
}

func TestClient_NonceUniqueness(t *testing.T) {
	c, server := pipeClient(t)
	connect(t, c, server)

	seen := make(map[string]bool)
	for range 3 {
		done := make(chan error, 1)
		go func() { done <- c.ClearActivity(context.Background()) }()

		_, m := readFrame(t, server)
		nonce := m["nonce"].(string)
		if seen[nonce] {
			t.Fatalf("duplicate nonce %q", nonce)
		}
		seen[nonce] = true
		if args := m["args"].(map[string]any); args["activity"] != nil {
			t.Fatalf("ClearActivity should send a null activity, got %v", args["activity"])
		}

		writeFrame(t, server, OpFrame, map[string]any{"cmd": "SET_ACTIVITY", "nonce": nonce})
		if err := <-done; err != nil {
			t.Fatalf("ClearActivity: %v", err)
		}
	}
}

// ///////////////////////////////////////////////
// Read Loop
// ///////////////////////////////////////////////

func TestClient_PingIsAnsweredWithPong(t *testing.T) {
	c, server := pipeClient(t)
	connect(t, c, server)

	writeFrame(t, server, OpPing, map[string]any{"n": 42})

	op, m := readFrame(t, server)
	if op != OpPong {
		t.Fatalf("reply opcode = %v, want PONG", op)
	}
	if n, _ := m["n"].(float64); n != 42 {
		t.Fatalf("pong payload = %v, want echo of ping", m)
	}
}

func TestClient_RemoteClose(t *testing.T) {
	tests := []struct {
		name string
		drop func(t *testing.T, server net.Conn)
	}{
		{
			name: "close frame",
			drop: func(t *testing.T, server net.Conn) {
				writeFrame(t, server, OpClose, map[string]any{"code": 1000, "message": "bye"})
			},
		},
		{
			name: "end of stream",
			drop: func(t *testing.T, server net.Conn) { server.Close() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, server := pipeClient(t)
			connect(t, c, server)

			tt.drop(t, server)

			if err := awaitClosed(t, c); !errors.Is(err, ErrRemoteClosed) {
				t.Fatalf("close reason = %v, want ErrRemoteClosed", err)
			}
			if c.Connected() {
				t.Fatal("client still connected after remote close")
			}
			if err := c.SetActivity(context.Background(), &Activity{}); !errors.Is(err, ErrNotConnected) {
				t.Fatalf("SetActivity after close = %v, want ErrNotConnected", err)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Client.Close
// ///////////////////////////////////////////////

func TestClient_Close_ClearsAndNotifiesOnce(t *testing.T) {
	c, server := pipeClient(t)
	connect(t, c, server)

	done := make(chan error, 1)
	go func() { done <- c.Close() }()

	_, m := readFrame(t, server)
	if m["cmd"] != "SET_ACTIVITY" || m["args"].(map[string]any)["activity"] != nil {
		t.Fatalf("Close should clear the activity first, got %v", m)
	}
	if err := <-done; err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := awaitClosed(t, c); err != nil {
		t.Fatalf("close reason after Close = %v, want nil", err)
	}
	select {
	case v := <-c.Closed():
		t.Fatalf("second close notification %v", v)
	case <-time.After(50 * time.Millisecond):
	}

	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestClient_Close_NeverConnected(t *testing.T) {
	c := NewClient()
	if err := c.Close(); err != nil {
		t.Fatalf("Close on idle client: %v", err)
	}
	if c.Connected() {
		t.Fatal("expected Connected() = false")
	}
}

func TestClient_Connect_ReplacesSession(t *testing.T) {
	server1, client1 := net.Pipe()
	server2, client2 := net.Pipe()
	t.Cleanup(func() {
		for _, conn := range []net.Conn{server1, client1, server2, client2} {
			conn.Close()
		}
	})

	conns := []net.Conn{client1, client2}
	c := NewClient(WithDialer(func(context.Context) (net.Conn, error) {
		conn := conns[0]
		conns = conns[1:]
		return conn, nil
	}))

	connect(t, c, server1)
	first := c.Closed()

	// The second Connect closes the first session, which writes a clear.
	go func() {
		_, _, _ = DecodeFrame(server1)
	}()
	connect(t, c, server2)

	select {
	case err := <-first:
		if err != nil {
			t.Fatalf("replaced session reason = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first session never reported closed")
	}
	if c.Closed() == first {
		t.Fatal("Closed should track the new session")
	}
}
