package remote

import (
	"time"

	"github.com/solenne/livecast/internal/domain"
	"github.com/solenne/livecast/internal/gate"
	"github.com/solenne/livecast/internal/logger"
	"github.com/solenne/livecast/internal/match"
	"github.com/solenne/livecast/internal/state"
)

// replyMatcher finds the keyword rule matching a viewer comment.
type replyMatcher interface {
	Match(text string) (match.Result, bool)
}

// audioInserter is the scheduler slice the responder drives.
type audioInserter interface {
	PushPriority(path string)
}

// Responder is the viewer-comment pipeline. Every comment proves the
// stream is live and is mirrored to the control service; a keyword hit
// inserts the category audio and produces a reply text for the listener
// to post on the live platform. Reply texts are throttled per
// commenting user, the audio insert is not.
type Responder struct {
	engine replyMatcher
	picker domain.AssetPicker
	sched  audioInserter
	shared *state.Context
	gate   *gate.Cooldown
	mirror statusSink
	window time.Duration
	log    *logger.Logger
}

// NewResponder wires the comment pipeline. mirror may be nil to skip
// mirroring comments to the control service.
func NewResponder(
	engine replyMatcher,
	picker domain.AssetPicker,
	sched audioInserter,
	shared *state.Context,
	cooldown *gate.Cooldown,
	mirror statusSink,
	window time.Duration,
	log *logger.Logger,
) *Responder {
	return &Responder{
		engine: engine,
		picker: picker,
		sched:  sched,
		shared: shared,
		gate:   cooldown,
		mirror: mirror,
		window: window,
		log:    log,
	}
}

// OnComment handles one viewer comment and returns the reply text the
// listener should post, or "" when no reply is due.
func (a *Responder) OnComment(nickname, content string) string {
	a.shared.MarkLiveReady()
	if a.mirror != nil {
		a.mirror.Push(nickname, content, domain.CodeCommentEvent)
	}

	if !a.shared.AutoReply() || content == "" {
		return ""
	}
	res, ok := a.engine.Match(content)
	if !ok {
		return ""
	}

	// The audio insert fires on every keyword hit. Only the text reply
	// is throttled, and per user, so one viewer asking repeatedly does
	// not silence everyone else's answers.
	if a.shared.ReplyAudio() {
		if path, err := a.picker.Pick(res.Prefix); err != nil {
			a.log.Warn("no reply audio for %q: %v", res.Prefix, err)
		} else {
			a.sched.PushPriority(path)
		}
	}

	if !a.gate.Allow("reply:"+nickname, a.window) {
		a.log.Debug("reply to %s suppressed by cooldown", nickname)
		return ""
	}
	return res.Reply
}
