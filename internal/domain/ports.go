package domain

import "context"

// Driver decodes and plays one audio file on the output device. Play
// blocks until the file finishes or the cancel flag is observed set.
// Implementations must be safe to call Stop concurrently with Play.
type Driver interface {
	Play(path string, cancel *StopFlag) error
	Stop()
}

// RuleStore persists the keyword rule set. Implementations can be
// file-based (yaml) or in-memory. File format and location are the
// store's concern, not the matching engine's.
type RuleStore interface {
	Load() ([]Rule, error)
	Save(rules []Rule) error
	Merge(incoming []Rule) ([]Rule, error)
}

// AssetPicker locates a playable audio file for a category prefix.
type AssetPicker interface {
	Pick(prefix string) (string, error)
}

// Synthesizer turns text into a local audio file, blocking until the
// speech service has produced it or the configured deadline passes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Scheduler is the dispatcher surface the remote command router drives.
type Scheduler interface {
	PushReport(path string)
	PushUrgent(path string)
	PushPriority(path string)
	Skip()
	Clear()
	StopNow()
	Snapshot() StatusSnapshot
}
