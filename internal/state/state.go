// Package state holds the process-wide scheduler context: the ready and
// enabled gates, the pending follow/like flags, and the comment dedupe
// set. One Context is constructed at startup and shared by reference;
// every field is guarded by a single mutex.
package state

import "sync"

// Context is the shared mutable state of the broadcast engine.
type Context struct {
	mu sync.Mutex

	enabled   bool // remote pause/resume switch (codes 10001/10002)
	liveReady bool // set once a real viewer comment has been seen

	pendingFollow bool
	pendingLike   bool

	enableAutoReply  bool
	enableReplyAudio bool

	seenSeq map[string]struct{}
}

// New creates a context. Playback starts enabled; liveReady stays false
// until the first viewer comment confirms a live audience.
func New() *Context {
	return &Context{
		enabled: true,
		seenSeq: make(map[string]struct{}),
	}
}

// SetEnabled flips the remote playback switch.
func (c *Context) SetEnabled(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = on
}

// Enabled reports whether playback is allowed.
func (c *Context) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// MarkLiveReady records that a confirmed live audience exists. Audio is
// never emitted before this.
func (c *Context) MarkLiveReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.liveReady = true
}

// SetLiveReady sets the ready gate explicitly (used by tests and by the
// listener when the stream ends).
func (c *Context) SetLiveReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.liveReady = ready
}

// LiveReady reports whether the system may emit audio.
func (c *Context) LiveReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveReady
}

// Ready reports whether the scheduler may play anything at all.
func (c *Context) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled && c.liveReady
}

// SetPendingFollow arms the "play follow thanks after the current
// rotation item" flag.
func (c *Context) SetPendingFollow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingFollow = true
}

// SetPendingLike arms the "play like thanks after the current rotation
// item" flag.
func (c *Context) SetPendingLike() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingLike = true
}

// TakePendingFollow consumes the follow flag, returning whether it was set.
func (c *Context) TakePendingFollow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.pendingFollow
	c.pendingFollow = false
	return was
}

// TakePendingLike consumes the like flag, returning whether it was set.
func (c *Context) TakePendingLike() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.pendingLike
	c.pendingLike = false
	return was
}

// SetAutoReply toggles keyword text replies.
func (c *Context) SetAutoReply(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enableAutoReply = on
}

// AutoReply reports whether keyword text replies are enabled.
func (c *Context) AutoReply() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enableAutoReply
}

// SetReplyAudio toggles keyword-triggered audio inserts.
func (c *Context) SetReplyAudio(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enableReplyAudio = on
}

// ReplyAudio reports whether keyword-triggered audio inserts are enabled.
func (c *Context) ReplyAudio() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enableReplyAudio
}

// SeenSeq records a message sequence id, returning true if it was
// already seen. Used to dedupe replayed listener events.
func (c *Context) SeenSeq(seq string) bool {
	if seq == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.seenSeq[seq]; dup {
		return true
	}
	c.seenSeq[seq] = struct{}{}
	return false
}
