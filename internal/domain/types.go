// Package domain holds the shared types and ports of the livecast core:
// audio commands, keyword rules, remote command codes, and the small
// interfaces the components are wired through.
package domain

import (
	"sync/atomic"
	"time"
)

// CommandKind classifies a queued audio command. The kind decides both
// queue priority and which post-play branch the dispatcher runs.
type CommandKind int

const (
	// KindReport is a time announcement. Highest priority, preempts
	// everything and is always served next.
	KindReport CommandKind = iota
	// KindUrgent is a remote-inserted recording. Preempts rotation but
	// never an in-flight report.
	KindUrgent
	// KindInsert is a keyword- or remote-triggered category insert.
	KindInsert
	// KindRandom is folder-rotation filler. Lowest priority, dropped
	// rather than queued when anything higher is pending.
	KindRandom
)

// String returns a short label for logs.
func (k CommandKind) String() string {
	switch k {
	case KindReport:
		return "report"
	case KindUrgent:
		return "urgent"
	case KindInsert:
		return "insert"
	case KindRandom:
		return "random"
	default:
		return "unknown"
	}
}

// AudioCommand is one play request. Created by a producer, consumed
// exactly once by the dispatcher, never mutated after creation.
type AudioCommand struct {
	Kind       CommandKind
	Path       string
	OnFinished func() // optional, runs after playback on the scheduler goroutine
}

// StopFlag is a cooperative cancellation flag polled inside the playback
// loop. Any goroutine may set it; the player observes it within one poll
// interval and stops the device.
type StopFlag struct {
	v atomic.Bool
}

// Set requests cancellation of the current playback.
func (f *StopFlag) Set() { f.v.Store(true) }

// Clear re-arms the flag for the next playback.
func (f *StopFlag) Clear() { f.v.Store(false) }

// IsSet reports whether cancellation was requested.
func (f *StopFlag) IsSet() bool { return f.v.Load() }

// Rule is one keyword rule. A rule qualifies against viewer text when all
// Must terms are present, at least one Any term is present (if Any is
// non-empty), and no Deny term is present. Priority is an author-assigned
// tie-break weight.
type Rule struct {
	Prefix   string   `yaml:"prefix" json:"prefix"`
	Priority int      `yaml:"priority" json:"priority"`
	Must     []string `yaml:"must" json:"must"`
	Any      []string `yaml:"any" json:"any"`
	Deny     []string `yaml:"deny" json:"deny"`
	Replies  []string `yaml:"replies" json:"replies"`
}

// Reply returns the first non-empty reply text, or "".
func (r Rule) Reply() string {
	for _, s := range r.Replies {
		if s != "" {
			return s
		}
	}
	return ""
}

// RemoteCommand is the decoded wire shape of an inbound control message.
// Seq, when present, identifies the originating listener event so
// replays can be dropped.
type RemoteCommand struct {
	Code     int
	Nickname string
	Content  string
	Seq      string
}

// Remote command codes. Negative codes are semantic events, the
// 10001-10099 band maps to derived category prefixes, everything else
// is a specific reserved command.
const (
	CodeSimulatedComment = -1 // local testing: treat content as a viewer comment
	CodeFollow           = -2
	CodeLike             = -3

	CodeResume        = 10001
	CodePause         = 10002
	CodeDelayedReport = 10003
	CodeSkipNext      = 10005

	CodeStatusRequest   = 20010
	CodeStatusEvent     = 20011 // outbound: status snapshot replies
	CodeUrgentRecording = 30001

	CodeCommentEvent = 1 // outbound: mirrored viewer comment
	CodeReplyEvent   = 2 // outbound: keyword reply text for the platform

	// PrefixBandLow/High bound the open numeric-prefix band: any code
	// strictly inside maps to the category prefix (code - 10000) unless
	// a reserved command claims it first.
	PrefixBandLow  = 10000
	PrefixBandHigh = 10100
)

// StatusSnapshot is a read-only projection of the scheduler state for
// remote display.
type StatusSnapshot struct {
	Enabled        bool   `json:"enabled"`
	Paused         bool   `json:"paused"`
	CurrentPlaying bool   `json:"current_playing"`
	CurrentName    string `json:"current_name"`
	TS             int64  `json:"ts"`
}

// NewStatusSnapshot stamps a snapshot with the given clock time.
func NewStatusSnapshot(enabled, paused, playing bool, name string, now time.Time) StatusSnapshot {
	return StatusSnapshot{
		Enabled:        enabled,
		Paused:         paused,
		CurrentPlaying: playing,
		CurrentName:    name,
		TS:             now.Unix(),
	}
}
