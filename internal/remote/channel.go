// Package remote connects the engine to the operator's control service:
// a persistent WebSocket channel for commands and mirrored comments, and
// a router that turns inbound command codes into dispatcher actions.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/solenne/livecast/internal/domain"
	"github.com/solenne/livecast/internal/logger"
)

// ChannelOption configures the channel.
type ChannelOption func(*Channel)

// WithReconnectWait sets the pause between reconnect attempts.
func WithReconnectWait(d time.Duration) ChannelOption {
	return func(c *Channel) {
		c.reconnectWait = d
	}
}

// WithQueueLimit bounds the outbound queue. When full, the oldest
// message is dropped.
func WithQueueLimit(n int) ChannelOption {
	return func(c *Channel) {
		c.queueLimit = n
	}
}

// WithDialer replaces the WebSocket dialer. Tests use this.
func WithDialer(d *websocket.Dialer) ChannelOption {
	return func(c *Channel) {
		c.dialer = d
	}
}

// outboundMessage is the wire shape of everything the engine sends.
type outboundMessage struct {
	Nickname string `json:"nickname"`
	Content  string `json:"content"`
	Type     int    `json:"type"`
	TS       int64  `json:"ts"`
}

// Channel is the WebSocket link to the control service. It
// authenticates with the license key on every connect, holds outbound
// messages until the server acknowledges the auth, and reconnects
// forever on any failure. Messages pushed while offline are queued and
// flushed, in order, once a session is authenticated.
type Channel struct {
	url        string
	licenseKey string
	onCommand  func(domain.RemoteCommand)
	log        *logger.Logger

	dialer        *websocket.Dialer
	reconnectWait time.Duration
	queueLimit    int

	mu      sync.Mutex
	pending []outboundMessage
	notify  chan struct{}
}

// NewChannel creates a channel. onCommand receives every inbound
// command after heartbeat filtering; it is called from the read
// goroutine and must not block for long.
func NewChannel(url, licenseKey string, onCommand func(domain.RemoteCommand), log *logger.Logger, opts ...ChannelOption) *Channel {
	c := &Channel{
		url:           url,
		licenseKey:    licenseKey,
		onCommand:     onCommand,
		log:           log,
		dialer:        websocket.DefaultDialer,
		reconnectWait: 3 * time.Second,
		queueLimit:    1024,
		notify:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Push queues one message for the control service. Never blocks: with
// no session up the message waits for the next authenticated connect.
func (c *Channel) Push(nickname, content string, code int) {
	msg := outboundMessage{
		Nickname: nickname,
		Content:  content,
		Type:     code,
		TS:       time.Now().Unix(),
	}

	c.mu.Lock()
	if len(c.pending) >= c.queueLimit {
		c.log.Warn("outbound queue full (%d), dropping oldest", c.queueLimit)
		c.pending = c.pending[1:]
	}
	c.pending = append(c.pending, msg)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued outbound messages.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Run maintains the connection until ctx is cancelled. Intended to be
// called as a goroutine.
func (c *Channel) Run(ctx context.Context) {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			c.log.Info("channel stopped")
			return
		}
		c.log.Warn("channel disconnected: %v, reconnecting in %s", err, c.reconnectWait)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectWait):
		}
	}
}

// session runs one connect-auth-pump cycle and returns the error that
// ended it.
func (c *Channel) session(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.url, err)
	}
	c.log.Info("channel connected: %s", c.url)

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		// Unblocks both read and write when the session ends.
		<-sessionCtx.Done()
		conn.Close()
	}()

	if err := conn.WriteJSON(map[string]string{"event": "auth", "license_key": c.licenseKey}); err != nil {
		return fmt.Errorf("sending auth: %w", err)
	}

	authed := make(chan struct{})
	authedOnce := false

	go func() {
		select {
		case <-sessionCtx.Done():
			return
		case <-authed:
		}
		// The send loop owns all writes after auth. A write failure
		// leaves the message queued for the next session.
		if err := c.sendLoop(sessionCtx, conn); err != nil {
			c.log.Warn("channel send failed: %v", err)
			cancel()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		switch cmd, kind := parseInbound(data); kind {
		case inboundAuthOK:
			if !authedOnce {
				authedOnce = true
				c.log.Info("channel authenticated")
				close(authed)
			}
		case inboundAuthFail:
			return fmt.Errorf("license key refused: %w", domain.ErrAuthRejected)
		case inboundCommand:
			if c.onCommand != nil {
				c.onCommand(cmd)
			}
		case inboundHeartbeat, inboundJunk:
			// filtered
		}
	}
}

// sendLoop drains the pending queue in order. A message leaves the
// queue only after a successful write, so nothing is lost across
// reconnects.
func (c *Channel) sendLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		msg, ok := c.peek()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-c.notify:
			}
			continue
		}

		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
		c.popFront()
		c.log.Debug("channel sent type=%d", msg.Type)
	}
}

func (c *Channel) peek() (outboundMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return outboundMessage{}, false
	}
	return c.pending[0], true
}

func (c *Channel) popFront() {
	c.mu.Lock()
	if len(c.pending) > 0 {
		c.pending = c.pending[1:]
	}
	c.mu.Unlock()
}

// ── inbound parsing ────────────────────────────────────────────

type inboundKind int

const (
	inboundCommand inboundKind = iota
	inboundAuthOK
	inboundAuthFail
	inboundHeartbeat
	inboundJunk
)

// parseInbound classifies one frame. The control service is loose with
// types: "type" arrives as an int or a numeric string, heartbeats as
// ping/pong events or frames with no type at all.
func parseInbound(data []byte) (domain.RemoteCommand, inboundKind) {
	var raw struct {
		Event    string          `json:"event"`
		Type     json.RawMessage `json:"type"`
		Nickname string          `json:"nickname"`
		Content  string          `json:"content"`
		Seq      string          `json:"seq"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.RemoteCommand{}, inboundJunk
	}

	switch raw.Event {
	case "auth_ok":
		return domain.RemoteCommand{}, inboundAuthOK
	case "auth_fail":
		return domain.RemoteCommand{}, inboundAuthFail
	case "ping", "pong":
		return domain.RemoteCommand{}, inboundHeartbeat
	}

	code, ok := parseCode(raw.Type)
	if !ok {
		return domain.RemoteCommand{}, inboundHeartbeat
	}

	return domain.RemoteCommand{
		Code:     code,
		Nickname: raw.Nickname,
		Content:  raw.Content,
		Seq:      raw.Seq,
	}, inboundCommand
}

func parseCode(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
	}
	return 0, false
}
