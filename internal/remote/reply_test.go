package remote

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/solenne/livecast/internal/domain"
	"github.com/solenne/livecast/internal/gate"
	"github.com/solenne/livecast/internal/logger"
	"github.com/solenne/livecast/internal/match"
	"github.com/solenne/livecast/internal/state"
)

type sizeMatcher struct{}

func (sizeMatcher) Match(text string) (match.Result, bool) {
	if strings.Contains(text, "尺寸") {
		return match.Result{Prefix: "尺寸", Reply: "都有详情页哦"}, true
	}
	return match.Result{}, false
}

type insertRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (i *insertRecorder) PushPriority(path string) {
	i.mu.Lock()
	i.paths = append(i.paths, path)
	i.mu.Unlock()
}

type mirrorRecorder struct {
	mu     sync.Mutex
	pushes []struct {
		nickname, content string
		code              int
	}
}

func (m *mirrorRecorder) Push(nickname, content string, code int) {
	m.mu.Lock()
	m.pushes = append(m.pushes, struct {
		nickname, content string
		code              int
	}{nickname, content, code})
	m.mu.Unlock()
}

type responderHarness struct {
	responder *Responder
	inserts   *insertRecorder
	mirror    *mirrorRecorder
	shared    *state.Context
	clock     *time.Time
}

func newResponderHarness(t *testing.T) *responderHarness {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)

	now := time.Unix(1_000_000, 0)
	cooldown := gate.New(log, gate.WithClock(func() time.Time { return now }))

	inserts := &insertRecorder{}
	mirror := &mirrorRecorder{}
	shared := state.New()
	shared.SetAutoReply(true)
	shared.SetReplyAudio(true)

	a := NewResponder(sizeMatcher{}, &prefixRecorder{}, inserts, shared, cooldown, mirror,
		60*time.Second, log)

	return &responderHarness{
		responder: a,
		inserts:   inserts,
		mirror:    mirror,
		shared:    shared,
		clock:     &now,
	}
}

func TestCommentMirroredAndMarksLive(t *testing.T) {
	h := newResponderHarness(t)

	h.responder.OnComment("观众", "随便聊聊")

	if !h.shared.LiveReady() {
		t.Fatal("a comment must mark the stream live")
	}
	if len(h.mirror.pushes) != 1 {
		t.Fatalf("mirror pushes %d, want 1", len(h.mirror.pushes))
	}
	push := h.mirror.pushes[0]
	if push.nickname != "观众" || push.content != "随便聊聊" || push.code != domain.CodeCommentEvent {
		t.Fatalf("mirror push %+v", push)
	}
}

func TestReplyReturnedOnKeywordHit(t *testing.T) {
	h := newResponderHarness(t)

	reply := h.responder.OnComment("小王", "有什么尺寸")
	if reply != "都有详情页哦" {
		t.Fatalf("reply %q", reply)
	}
	if len(h.inserts.paths) != 1 || h.inserts.paths[0] != "/assets/尺寸1.wav" {
		t.Fatalf("inserts %v", h.inserts.paths)
	}
}

func TestReplyCooldownIsPerUser(t *testing.T) {
	h := newResponderHarness(t)

	if h.responder.OnComment("小王", "有什么尺寸") == "" {
		t.Fatal("first user's question must be answered")
	}

	// A different user asking the same category inside the window still
	// gets an answer.
	*h.clock = h.clock.Add(10 * time.Second)
	if h.responder.OnComment("小李", "尺寸多大") == "" {
		t.Fatal("second user must not inherit the first user's cooldown")
	}

	// The same user asking again inside the window is suppressed.
	*h.clock = h.clock.Add(10 * time.Second)
	if h.responder.OnComment("小王", "尺寸呢") != "" {
		t.Fatal("repeat question inside the window must be suppressed")
	}

	// Past the window the same user is answered again.
	*h.clock = h.clock.Add(61 * time.Second)
	if h.responder.OnComment("小王", "尺寸") == "" {
		t.Fatal("question past the window must be answered")
	}
}

func TestAudioInsertNotGatedByReplyCooldown(t *testing.T) {
	h := newResponderHarness(t)

	h.responder.OnComment("小王", "尺寸")
	*h.clock = h.clock.Add(10 * time.Second)
	if h.responder.OnComment("小王", "尺寸") != "" {
		t.Fatal("second reply must be suppressed")
	}
	if len(h.inserts.paths) != 2 {
		t.Fatalf("inserts %d, want one per keyword hit", len(h.inserts.paths))
	}
}

func TestAutoReplyDisabled(t *testing.T) {
	h := newResponderHarness(t)
	h.shared.SetAutoReply(false)

	if h.responder.OnComment("小王", "尺寸") != "" {
		t.Fatal("disabled auto-reply must return nothing")
	}
	if len(h.inserts.paths) != 0 {
		t.Fatalf("inserts %v, want none", h.inserts.paths)
	}
	if len(h.mirror.pushes) != 1 {
		t.Fatal("comments are mirrored regardless of auto-reply")
	}
}

func TestReplyAudioDisabled(t *testing.T) {
	h := newResponderHarness(t)
	h.shared.SetReplyAudio(false)

	if h.responder.OnComment("小王", "尺寸") == "" {
		t.Fatal("reply text is independent of the audio toggle")
	}
	if len(h.inserts.paths) != 0 {
		t.Fatalf("inserts %v, want none", h.inserts.paths)
	}
}

func TestNoMatchNoReply(t *testing.T) {
	h := newResponderHarness(t)

	if h.responder.OnComment("小王", "主播唱首歌") != "" {
		t.Fatal("non-matching comment must not produce a reply")
	}
	if len(h.inserts.paths) != 0 {
		t.Fatalf("inserts %v, want none", h.inserts.paths)
	}
}
