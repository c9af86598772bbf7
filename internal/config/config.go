// Package config holds the engine's environment-driven configuration
// and the small mutable runtime state that persists across restarts.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the static configuration, parsed from the environment once
// at startup. A .env file loaded by main feeds the same variables.
type Config struct {
	// Voice service.
	APIBaseURL   string `env:"LIVECAST_API_URL"`
	WSURL        string `env:"LIVECAST_WS_URL"`
	LicenseKey   string `env:"LIVECAST_LICENSE_KEY"`
	VoiceModelID int    `env:"LIVECAST_VOICE_MODEL" envDefault:"1"`

	// Local content.
	AssetDir     string `env:"LIVECAST_ASSET_DIR" envDefault:"audio_assets"`
	RotationDir  string `env:"LIVECAST_ROTATION_DIR" envDefault:"audio_assets"`
	RulesFile    string `env:"LIVECAST_RULES_FILE" envDefault:"keywords.yaml"`
	CacheDir     string `env:"LIVECAST_CACHE_DIR" envDefault:".livecast/tts-cache"`
	RecordingDir string `env:"LIVECAST_RECORDING_DIR" envDefault:".livecast/recordings"`
	StateFile    string `env:"LIVECAST_STATE_FILE" envDefault:"runtime_state.json"`

	// Event audio categories.
	FollowPrefix string `env:"LIVECAST_FOLLOW_PREFIX" envDefault:"关注"`
	LikePrefix   string `env:"LIVECAST_LIKE_PREFIX" envDefault:"点赞"`

	// Suppression windows.
	ReplyWindow time.Duration `env:"LIVECAST_REPLY_WINDOW" envDefault:"60s"`
	EventWindow time.Duration `env:"LIVECAST_EVENT_WINDOW" envDefault:"5m"`

	// Tools and diagnostics.
	FFmpegPath string `env:"LIVECAST_FFMPEG" envDefault:"ffmpeg"`
	Verbose    bool   `env:"LIVECAST_VERBOSE"`
}

// Load parses the configuration from the environment and validates the
// fields that have no sensible default.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if cfg.LicenseKey == "" {
		return nil, errors.New("LIVECAST_LICENSE_KEY is required")
	}
	if cfg.APIBaseURL == "" {
		return nil, errors.New("LIVECAST_API_URL is required")
	}
	if cfg.WSURL == "" {
		return nil, errors.New("LIVECAST_WS_URL is required")
	}
	return cfg, nil
}

// RuntimeState is the operator-tunable state that survives restarts:
// the toggles and the report interval the remote UI can change.
type RuntimeState struct {
	EnableVoiceReport     bool `json:"enable_voice_report"`
	ReportIntervalMinutes int  `json:"report_interval_minutes"`
	EnableAutoReply       bool `json:"enable_auto_reply"`
	EnableReplyAudio      bool `json:"enable_reply_audio"`
}

// DefaultRuntimeState returns the out-of-the-box settings.
func DefaultRuntimeState() RuntimeState {
	return RuntimeState{
		ReportIntervalMinutes: 15,
		EnableAutoReply:       true,
		EnableReplyAudio:      true,
	}
}

// LoadRuntimeState reads the state file. A missing or malformed file
// falls back to defaults; fields absent from the file keep their
// default values.
func LoadRuntimeState(path string) RuntimeState {
	state := DefaultRuntimeState()

	data, err := os.ReadFile(path)
	if err != nil {
		return state
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return DefaultRuntimeState()
	}
	if state.ReportIntervalMinutes <= 0 {
		state.ReportIntervalMinutes = DefaultRuntimeState().ReportIntervalMinutes
	}
	return state
}

// SaveRuntimeState writes the state file, creating it if needed.
func SaveRuntimeState(path string, state RuntimeState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding runtime state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing runtime state: %w", err)
	}
	return nil
}
