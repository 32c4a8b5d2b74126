package conn

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"bridged/internal/events"
	"bridged/pkg/types"
)

func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// wsBackend serves /ws and hands each session to handler.
func wsBackend(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(ws)
	}))
}

func serverPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	addr, ok := srv.Listener.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("unexpected listener addr %T", srv.Listener.Addr())
	}
	return addr.Port
}

func fastConfig() Config {
	return Config{
		ReconnectDelay: 20 * time.Millisecond,
		RedialDelay:    10 * time.Millisecond,
		PortPoll:       10 * time.Millisecond,
		ChatTimeout:    time.Second,
	}
}

// echoHandler replies to each chat frame with a correlated chat_response.
func echoHandler(ws *websocket.Conn) {
	defer ws.Close()
	for {
		var frame types.ChatFrame
		if err := ws.ReadJSON(&frame); err != nil {
			return
		}
		data, _ := json.Marshal(types.ChatReply{Response: "ok:" + frame.Message})
		out := types.InboundFrame{Type: types.FrameTypeChatResponse, ID: frame.ID, Data: data}
		if err := ws.WriteJSON(out); err != nil {
			return
		}
	}
}

func TestSendNotConnected(t *testing.T) {
	c := New(fastConfig(), Deps{}, zerolog.Nop(), nil)
	_, err := c.Send(context.Background(), "hi", "")
	if err == nil || !IsNotConnected(err) {
		t.Fatalf("expected not-connected, got %v", err)
	}
}

func TestChatRoundTrip(t *testing.T) {
	srv := wsBackend(t, echoHandler)
	defer srv.Close()
	port := serverPort(t, srv)

	c := New(fastConfig(), Deps{Port: func() int { return port }}, zerolog.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	if !waitFor(t, 2*time.Second, func() bool { return c.State() == Connected }) {
		t.Fatalf("never connected")
	}
	reply, err := c.Send(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Response != "ok:hello" {
		t.Fatalf("reply=%q", reply.Response)
	}
}

func TestMismatchedReplyDropped(t *testing.T) {
	srv := wsBackend(t, func(ws *websocket.Conn) {
		defer ws.Close()
		var frame types.ChatFrame
		if err := ws.ReadJSON(&frame); err != nil {
			return
		}
		// a reply for some other request must not satisfy this one
		wrong, _ := json.Marshal(types.ChatReply{Response: "wrong"})
		_ = ws.WriteJSON(types.InboundFrame{Type: types.FrameTypeChatResponse, ID: "someone-else", Data: wrong})
		right, _ := json.Marshal(types.ChatReply{Response: "right"})
		_ = ws.WriteJSON(types.InboundFrame{Type: types.FrameTypeChatResponse, ID: frame.ID, Data: right})
	})
	defer srv.Close()
	port := serverPort(t, srv)

	c := New(fastConfig(), Deps{Port: func() int { return port }}, zerolog.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	if !waitFor(t, 2*time.Second, func() bool { return c.State() == Connected }) {
		t.Fatalf("never connected")
	}
	reply, err := c.Send(context.Background(), "q", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Response != "right" {
		t.Fatalf("reply=%q", reply.Response)
	}
}

func TestSendTimeout(t *testing.T) {
	srv := wsBackend(t, func(ws *websocket.Conn) {
		defer ws.Close()
		// swallow everything, never reply
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()
	port := serverPort(t, srv)

	cfg := fastConfig()
	cfg.ChatTimeout = 100 * time.Millisecond
	c := New(cfg, Deps{Port: func() int { return port }}, zerolog.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	if !waitFor(t, 2*time.Second, func() bool { return c.State() == Connected }) {
		t.Fatalf("never connected")
	}
	_, err := c.Send(context.Background(), "hello", "")
	if err == nil || !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	// the pending entry must be released on the timeout path
	c.mu.Lock()
	n := len(c.pending)
	c.mu.Unlock()
	if n != 0 {
		t.Fatalf("pending leak: %d", n)
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	var sessions atomic.Int32
	srv := wsBackend(t, func(ws *websocket.Conn) {
		n := sessions.Add(1)
		if n == 1 {
			// first session drops immediately
			ws.Close()
			return
		}
		echoHandler(ws)
	})
	defer srv.Close()
	port := serverPort(t, srv)

	var connects atomic.Int32
	pub := events.NewMemoryPublisher()
	c := New(fastConfig(), Deps{
		Port:      func() int { return port },
		OnConnect: func() { connects.Add(1) },
	}, zerolog.Nop(), pub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	if !waitFor(t, 3*time.Second, func() bool { return connects.Load() >= 2 }) {
		t.Fatalf("no reconnect, connects=%d", connects.Load())
	}
	if !waitFor(t, 2*time.Second, func() bool { return c.State() == Connected }) {
		t.Fatalf("not connected after retry")
	}

	// the drop produced a disconnected status notification
	sawDown := false
	for _, e := range pub.Events() {
		if e.Name == "backend_status" && e.Fields["connected"] == false {
			sawDown = true
		}
	}
	if !sawDown {
		t.Fatalf("no disconnected notification: %+v", pub.Events())
	}
}

func TestNonChatFrameForwarded(t *testing.T) {
	srv := wsBackend(t, func(ws *websocket.Conn) {
		defer ws.Close()
		data, _ := json.Marshal(map[string]any{"action": "open_browser"})
		_ = ws.WriteJSON(types.InboundFrame{Type: "action_result", Data: data})
		// hold the session open
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()
	port := serverPort(t, srv)

	pub := events.NewMemoryPublisher()
	c := New(fastConfig(), Deps{Port: func() int { return port }}, zerolog.Nop(), pub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	if !waitFor(t, 2*time.Second, func() bool {
		for _, e := range pub.Events() {
			if e.Name == "backend_message" && e.Fields["type"] == "action_result" {
				return true
			}
		}
		return false
	}) {
		t.Fatalf("backend message not forwarded: %+v", pub.Events())
	}
}

func TestLegalTransitions(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{Disconnected, Connecting, true},
		{Connecting, Connected, true},
		{Connecting, Disconnected, true},
		{Connected, Disconnected, true},
		{Disconnected, Connected, false},
		{Connected, Connecting, false},
		{Connecting, Connecting, false},
	}
	for _, tc := range cases {
		if got := tc.from.legalNext(tc.to); got != tc.ok {
			t.Fatalf("%v->%v legal=%v want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestStatusWithoutSession(t *testing.T) {
	c := New(fastConfig(), Deps{
		Port:           func() int { return 8000 },
		BackendRunning: func() bool { return true },
	}, zerolog.Nop(), nil)
	st := c.Status()
	if st.Connected {
		t.Fatalf("connected without session")
	}
	if !st.BackendRunning || st.Port != 8000 {
		t.Fatalf("unexpected status: %+v", st)
	}
}
