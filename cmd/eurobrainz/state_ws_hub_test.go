package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

// These tests exercise the hub and broadcaster without network I/O. Clients
// are built with a nil websocket.Conn; the hub never writes to it and close()
// guards against nil.

func newTestHub(t *testing.T, sendBuf int, broadcastBuf int) *Hub {
	t.Helper()
	return NewHub(slog.Default(), HubConfig{
		SendBuf:      sendBuf,
		BroadcastBuf: broadcastBuf,
	})
}

func newTestClient(hub *Hub, name string, buf int) *Client {
	return &Client{
		hub:        hub,
		send:       make(chan []byte, buf),
		remoteAddr: name,
		logger:     slog.Default(),
	}
}

func registerAndWait(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.register <- c
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c]
		return ok
	}, c.remoteAddr+" not registered in time")
}

func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 4, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	c1 := newTestClient(hub, "c1", 4)
	c2 := newTestClient(hub, "c2", 4)
	registerAndWait(t, hub, c1)
	registerAndWait(t, hub, c2)

	msg := []byte(`{"type":"mode_changed","data":{"mode":"parameters","page":"tuning"}}`)
	hub.broadcast <- msg

	for _, c := range []*Client{c1, c2} {
		select {
		case got := <-c.send:
			if string(got) != string(msg) {
				t.Fatalf("%s got %q, want %q", c.remoteAddr, got, msg)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timeout waiting for %s to receive broadcast", c.remoteAddr)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for hub to stop")
	}

	// Shutdown closes every client queue.
	for _, c := range []*Client{c1, c2} {
		if _, ok := <-c.send; ok {
			t.Errorf("%s send channel still open after shutdown", c.remoteAddr)
		}
	}
}

func TestHub_SlowClientDisconnectedOnFullSendBuffer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 1, 8)
	go hub.Run(ctx)

	slow := newTestClient(hub, "slow", 1)
	fast := newTestClient(hub, "fast", 8)
	registerAndWait(t, hub, slow)
	registerAndWait(t, hub, fast)

	// Simulate a stuck client.
	slow.send <- []byte(`"already queued"`)

	msg := []byte(`{"type":"state_changed"}`)
	hub.broadcast <- msg

	select {
	case got := <-fast.send:
		if string(got) != string(msg) {
			t.Fatalf("fast client got %q, want %q", got, msg)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for fast client to receive broadcast")
	}

	select {
	case <-slow.send:
	default:
	}
	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.send:
			return !ok
		default:
			return false
		}
	}, "expected slow send channel to be closed")

	if n := hub.Len(); n != 1 {
		t.Errorf("hub has %d clients, want 1", n)
	}
}

func TestHub_UnregisterTwiceIsSafe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 1, 1)
	go hub.Run(ctx)

	c := newTestClient(hub, "c", 1)
	registerAndWait(t, hub, c)

	hub.unregister <- c
	hub.unregister <- c
	waitUntil(t, 500*time.Millisecond, func() bool { return hub.Len() == 0 }, "client not removed")
}

func decodeEnvelope(t *testing.T, b []byte) (string, json.RawMessage) {
	t.Helper()
	var env struct {
		Type string          `json:"type"`
		Ts   *time.Time      `json:"ts"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("decode frame %q: %v", b, err)
	}
	if env.Ts == nil {
		t.Fatalf("frame %q has no ts", b)
	}
	return env.Type, env.Data
}

func TestRunBroadcaster_CoalescesStateChanged(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The hub loop is not running; frames are read straight off its queue.
	hub := newTestHub(t, 4, 16)
	src := make(chan StateBroadcast, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunBroadcaster(ctx, hub, src, slog.Default())
	}()

	at := time.Unix(1000, 0)
	for i, notice := range []string{"a", "b", "c"} {
		src <- BroadcastStateChanged{Snapshot: StateSnapshot{Notice: notice}, At: at.Add(time.Duration(i) * time.Millisecond)}
	}

	select {
	case msg := <-hub.broadcast:
		typ, data := decodeEnvelope(t, msg)
		if typ != "state_changed" {
			t.Fatalf("type = %q, want state_changed", typ)
		}
		var payload struct {
			Notice string `json:"notice"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Fatalf("decode data: %v", err)
		}
		if payload.Notice != "c" {
			t.Errorf("notice = %q, want latest (c)", payload.Notice)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for coalesced frame")
	}

	select {
	case msg := <-hub.broadcast:
		t.Fatalf("unexpected extra frame %q", msg)
	case <-time.After(3 * wsStateCoalesceWindow):
	}

	close(src)
	<-done
}

func TestRunBroadcaster_ModeChangedFlushesPendingFirst(t *testing.T) {
	hub := newTestHub(t, 4, 16)
	src := make(chan StateBroadcast, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunBroadcaster(context.Background(), hub, src, slog.Default())
	}()

	at := time.Unix(1000, 0)
	src <- BroadcastStateChanged{Snapshot: StateSnapshot{Notice: "x"}, At: at}
	src <- BroadcastModeChanged{Mode: ModeParameters, At: at}
	close(src)
	<-done

	want := []string{"state_changed", "mode_changed"}
	for _, w := range want {
		select {
		case msg := <-hub.broadcast:
			if typ, _ := decodeEnvelope(t, msg); typ != w {
				t.Fatalf("frame type = %q, want %q", typ, w)
			}
		default:
			t.Fatalf("missing %s frame", w)
		}
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}
