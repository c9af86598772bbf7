package domain

import "errors"

// Sentinel errors used across layers.
var (
	ErrNotFound         = errors.New("not found")
	ErrNoAsset          = errors.New("no audio asset for prefix")
	ErrUnsupportedAudio = errors.New("unsupported audio format")
	ErrPlaybackStopped  = errors.New("playback stopped")
	ErrAuthRejected     = errors.New("authentication rejected")
	ErrSynthesisTimeout = errors.New("speech synthesis timed out")
	ErrSynthesisFailed  = errors.New("speech synthesis failed")
)
