package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/solenne/livecast/internal/domain"
	"github.com/solenne/livecast/internal/logger"
)

var upgrader = websocket.Upgrader{}

// wsServer runs handler for every incoming connection.
func wsServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitForCond(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestMessagesHeldUntilAuthAck(t *testing.T) {
	var mu sync.Mutex
	var received []outboundMessage
	authSent := make(chan struct{})

	url := wsServer(t, func(conn *websocket.Conn) {
		// First frame must be the auth event.
		var auth map[string]any
		if err := conn.ReadJSON(&auth); err != nil {
			t.Errorf("reading auth: %v", err)
			return
		}
		if auth["event"] != "auth" || auth["license_key"] != "key-1" {
			t.Errorf("bad auth frame: %v", auth)
		}

		// Hold the ack until the client has queued its messages.
		<-authSent
		conn.WriteJSON(map[string]string{"event": "auth_ok"})

		for i := 0; i < 3; i++ {
			var msg outboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			mu.Lock()
			received = append(received, msg)
			mu.Unlock()
		}
	})

	log := logger.New(logger.LevelOff, nil)
	c := NewChannel(url, "key-1", nil, log, WithReconnectWait(10*time.Millisecond))

	// Queue before the server has acknowledged anything.
	c.Push("u1", "first", 1)
	c.Push("u2", "second", 1)
	c.Push("", "third", domain.CodeStatusEvent)
	close(authSent)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitForCond(t, "all messages to arrive", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	if received[0].Content != "first" || received[1].Content != "second" || received[2].Content != "third" {
		t.Fatalf("messages out of order: %+v", received)
	}
	if received[0].TS == 0 {
		t.Fatal("push must stamp a timestamp")
	}
	if received[2].Type != domain.CodeStatusEvent {
		t.Fatalf("type not preserved: %+v", received[2])
	}
}

func TestReconnectAfterAuthFail(t *testing.T) {
	var conns int32

	url := wsServer(t, func(conn *websocket.Conn) {
		n := atomic.AddInt32(&conns, 1)
		var auth map[string]any
		conn.ReadJSON(&auth)

		if n == 1 {
			conn.WriteJSON(map[string]string{"event": "auth_fail"})
			return
		}
		conn.WriteJSON(map[string]string{"event": "auth_ok"})
		// Drain so the pending message can flush.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	log := logger.New(logger.LevelOff, nil)
	c := NewChannel(url, "key-1", nil, log, WithReconnectWait(10*time.Millisecond))
	c.Push("u", "survives the reconnect", 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitForCond(t, "second connection", func() bool {
		return atomic.LoadInt32(&conns) >= 2
	})
	waitForCond(t, "pending message to flush", func() bool {
		return c.Pending() == 0
	})
}

func TestHeartbeatsFiltered(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn) {
		var auth map[string]any
		conn.ReadJSON(&auth)
		conn.WriteJSON(map[string]string{"event": "auth_ok"})

		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"ping"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		// A real command with a string-typed code.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"10001","nickname":"op","content":""}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":-2}`))

		time.Sleep(100 * time.Millisecond)
	})

	var mu sync.Mutex
	var got []domain.RemoteCommand
	onCommand := func(cmd domain.RemoteCommand) {
		mu.Lock()
		got = append(got, cmd)
		mu.Unlock()
	}

	log := logger.New(logger.LevelOff, nil)
	c := NewChannel(url, "key-1", onCommand, log, WithReconnectWait(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitForCond(t, "commands to arrive", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 2
	})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("heartbeats leaked through: %+v", got)
	}
	if got[0].Code != domain.CodeResume || got[0].Nickname != "op" {
		t.Fatalf("first command wrong: %+v", got[0])
	}
	if got[1].Code != domain.CodeFollow {
		t.Fatalf("second command wrong: %+v", got[1])
	}
}

func TestQueueBoundDropsOldest(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	c := NewChannel("ws://nowhere", "key-1", nil, log, WithQueueLimit(3))

	for i := 0; i < 5; i++ {
		c.Push("", string(rune('a'+i)), 1)
	}
	if c.Pending() != 3 {
		t.Fatalf("pending %d, want 3", c.Pending())
	}
	msg, _ := c.peek()
	if msg.Content != "c" {
		t.Fatalf("oldest not dropped, head is %q", msg.Content)
	}
}

func TestParseInboundShapes(t *testing.T) {
	cases := []struct {
		in   string
		kind inboundKind
		code int
	}{
		{`{"event":"auth_ok"}`, inboundAuthOK, 0},
		{`{"event":"auth_fail"}`, inboundAuthFail, 0},
		{`{"event":"pong"}`, inboundHeartbeat, 0},
		{`{"type":10002}`, inboundCommand, 10002},
		{`{"type":"-3"}`, inboundCommand, -3},
		{`{"nickname":"x"}`, inboundHeartbeat, 0},
		{`garbage`, inboundJunk, 0},
	}
	for _, tc := range cases {
		cmd, kind := parseInbound([]byte(tc.in))
		if kind != tc.kind {
			t.Errorf("%s: kind %d, want %d", tc.in, kind, tc.kind)
		}
		if kind == inboundCommand && cmd.Code != tc.code {
			t.Errorf("%s: code %d, want %d", tc.in, cmd.Code, tc.code)
		}
	}
}

// JSON round-trip sanity for the outbound wire shape.
func TestOutboundWireShape(t *testing.T) {
	data, err := json.Marshal(outboundMessage{Nickname: "n", Content: "c", Type: 1, TS: 9})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"nickname":"n","content":"c","type":1,"ts":9}`
	if string(data) != want {
		t.Fatalf("wire shape %s, want %s", data, want)
	}
}
