package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/solenne/livecast/internal/domain"
	"github.com/solenne/livecast/internal/gate"
	"github.com/solenne/livecast/internal/logger"
	"github.com/solenne/livecast/internal/state"
)

// reportScheduler arms one-shot time announcements.
type reportScheduler interface {
	ScheduleAfter(ctx context.Context, minutes int)
}

// statusSink is where status snapshots go; the Channel satisfies it.
type statusSink interface {
	Push(nickname, content string, code int)
}

// RouterOption configures the router.
type RouterOption func(*Router)

// WithEventWindow sets the follow/like cooldown window.
func WithEventWindow(d time.Duration) RouterOption {
	return func(r *Router) {
		r.eventWindow = d
	}
}

// WithDelayMinutes sets the delay of the one-shot report command.
func WithDelayMinutes(n int) RouterOption {
	return func(r *Router) {
		r.delayMinutes = n
	}
}

// WithRecordingDir sets where urgent recordings are downloaded.
func WithRecordingDir(dir string) RouterOption {
	return func(r *Router) {
		r.recordingDir = dir
	}
}

// WithFFmpeg sets the transcoder binary path.
func WithFFmpeg(path string) RouterOption {
	return func(r *Router) {
		r.ffmpegPath = path
	}
}

// WithDownloadClient replaces the HTTP client used for recordings.
func WithDownloadClient(h *http.Client) RouterOption {
	return func(r *Router) {
		r.http = h
	}
}

// Router maps inbound command codes to engine actions. Every handler is
// best-effort: a failure is logged and swallowed so one bad command
// never takes down the channel's read loop.
type Router struct {
	scheduler domain.Scheduler
	picker    domain.AssetPicker
	shared    *state.Context
	gate      *gate.Cooldown
	reporter  reportScheduler
	status    statusSink
	onComment func(nickname, content string) string
	log       *logger.Logger

	eventWindow  time.Duration
	delayMinutes int
	recordingDir string
	ffmpegPath   string
	http         *http.Client
}

// NewRouter wires the router. onComment receives simulated comments
// (code -1) and returns the reply text to post back, or ""; reporter
// and status may be nil to disable those commands.
func NewRouter(
	scheduler domain.Scheduler,
	picker domain.AssetPicker,
	shared *state.Context,
	cooldown *gate.Cooldown,
	reporter reportScheduler,
	status statusSink,
	onComment func(nickname, content string) string,
	log *logger.Logger,
	opts ...RouterOption,
) *Router {
	r := &Router{
		scheduler:    scheduler,
		picker:       picker,
		shared:       shared,
		gate:         cooldown,
		reporter:     reporter,
		status:       status,
		onComment:    onComment,
		log:          log,
		eventWindow:  5 * time.Minute,
		delayMinutes: 2,
		recordingDir: os.TempDir(),
		ffmpegPath:   "ffmpeg",
		http:         &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle routes one inbound command. Safe to call from the channel's
// read goroutine; the slow urgent-recording path runs detached.
func (r *Router) Handle(ctx context.Context, cmd domain.RemoteCommand) {
	switch {
	case cmd.Code == domain.CodeSimulatedComment:
		if r.shared.SeenSeq(cmd.Seq) {
			r.log.Debug("duplicate comment event %s dropped", cmd.Seq)
			return
		}
		if r.onComment != nil {
			if reply := r.onComment(cmd.Nickname, cmd.Content); reply != "" && r.status != nil {
				r.status.Push(cmd.Nickname, reply, domain.CodeReplyEvent)
			}
		}

	case cmd.Code == domain.CodeFollow:
		if !r.gate.Allow("follow", r.eventWindow) {
			r.log.Debug("follow event in cooldown, ignored")
			return
		}
		r.log.Info("follow event queued for after the current rotation item")
		r.shared.SetPendingFollow()

	case cmd.Code == domain.CodeLike:
		if !r.gate.Allow("like", r.eventWindow) {
			r.log.Debug("like event in cooldown, ignored")
			return
		}
		r.log.Info("like event queued for after the current rotation item")
		r.shared.SetPendingLike()

	case cmd.Code == domain.CodeResume:
		r.log.Info("remote resume")
		r.shared.SetEnabled(true)
		r.pushStatus()

	case cmd.Code == domain.CodePause:
		r.log.Info("remote pause: clearing queues and stopping playback")
		r.shared.SetEnabled(false)
		r.scheduler.Clear()
		r.scheduler.StopNow()
		r.pushStatus()

	case cmd.Code == domain.CodeDelayedReport:
		if r.reporter != nil {
			r.reporter.ScheduleAfter(ctx, r.delayMinutes)
		}

	case cmd.Code == domain.CodeSkipNext:
		r.scheduler.Skip()

	case cmd.Code == domain.CodeStatusRequest:
		r.pushStatus()

	case cmd.Code == domain.CodeUrgentRecording:
		go r.handleUrgentRecording(ctx, cmd.Content)

	case cmd.Code > domain.PrefixBandLow && cmd.Code < domain.PrefixBandHigh:
		r.playPrefix(strconv.Itoa(cmd.Code - domain.PrefixBandLow))

	default:
		r.log.Debug("unhandled command code %d", cmd.Code)
	}
}

// playPrefix picks one numbered asset for the category and inserts it.
func (r *Router) playPrefix(prefix string) {
	path, err := r.picker.Pick(prefix)
	if err != nil {
		r.log.Warn("no asset for remote prefix %q: %v", prefix, err)
		return
	}
	r.log.Info("remote prefix %q: %s", prefix, filepath.Base(path))
	r.scheduler.PushPriority(path)
}

// pushStatus sends a fresh scheduler snapshot to the control service.
func (r *Router) pushStatus() {
	if r.status == nil {
		return
	}
	snap := r.scheduler.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		r.log.Error("encoding status snapshot: %v", err)
		return
	}
	r.status.Push("", string(data), domain.CodeStatusEvent)
}

// handleUrgentRecording downloads the operator's recording, verifies it
// really is audio by sniffing the leading bytes, transcodes it to a
// known-good WAV, and pushes it as urgent.
func (r *Router) handleUrgentRecording(ctx context.Context, rawURL string) {
	if rawURL == "" {
		r.log.Warn("urgent recording command with empty url")
		return
	}

	wav, err := r.fetchRecording(ctx, rawURL)
	if err != nil {
		r.log.Error("urgent recording failed: %v", err)
		return
	}
	r.scheduler.PushUrgent(wav)
}

func (r *Router) fetchRecording(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading recording: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("recording download returned %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading recording: %w", err)
	}

	ext, err := sniffAudioFormat(data)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	rawPath := filepath.Join(r.recordingDir, "rec-"+id+ext)
	if err := os.WriteFile(rawPath, data, 0o644); err != nil {
		return "", fmt.Errorf("saving recording: %w", err)
	}
	defer os.Remove(rawPath)

	wavPath := filepath.Join(r.recordingDir, "rec-"+id+".wav")
	if err := r.transcode(ctx, rawPath, wavPath); err != nil {
		return "", err
	}
	r.log.Info("urgent recording ready: %s (%d bytes raw)", filepath.Base(wavPath), len(data))
	return wavPath, nil
}

// transcode normalizes arbitrary recordings to 16-bit 44.1 kHz WAV so
// the playback device never sees a format it cannot handle.
func (r *Router) transcode(ctx context.Context, in, out string) error {
	cmd := exec.CommandContext(ctx, r.ffmpegPath,
		"-y", "-i", in,
		"-acodec", "pcm_s16le",
		"-ar", "44100",
		"-ac", "1",
		out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %v: %s", err, lastLine(stderr.Bytes()))
	}
	return nil
}

// sniffAudioFormat identifies the container from the first bytes. The
// URL extension is never trusted; operator uploads lie about it.
func sniffAudioFormat(data []byte) (string, error) {
	switch {
	case len(data) >= 3 && bytes.Equal(data[:3], []byte("ID3")):
		return ".mp3", nil
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return ".mp3", nil
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return ".wav", nil
	case len(data) >= 4 && bytes.Equal(data[:4], []byte("OggS")):
		return ".ogg", nil
	case len(data) >= 4 && bytes.Equal(data[:4], []byte("fLaC")):
		return ".flac", nil
	}
	return "", fmt.Errorf("unrecognized recording header: %w", domain.ErrUnsupportedAudio)
}

func lastLine(b []byte) string {
	b = bytes.TrimRight(b, "\n")
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	}
	return string(b)
}
