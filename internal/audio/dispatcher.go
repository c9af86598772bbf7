package audio

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/solenne/livecast/internal/domain"
	"github.com/solenne/livecast/internal/logger"
	"github.com/solenne/livecast/internal/state"
)

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithTickInterval sets how often the scheduler loop polls the queues.
func WithTickInterval(d time.Duration) Option {
	return func(disp *Dispatcher) {
		disp.tickInterval = d
	}
}

// WithEventAudio wires the picker and category prefixes used for the
// follow/like thanks played after a rotation item finishes.
func WithEventAudio(picker domain.AssetPicker, followPrefix, likePrefix string) Option {
	return func(disp *Dispatcher) {
		disp.picker = picker
		disp.followPrefix = followPrefix
		disp.likePrefix = likePrefix
	}
}

// Compile-time interface check.
var _ domain.Scheduler = (*Dispatcher)(nil)

// Dispatcher arbitrates among competing audio requests for the single
// output device, with strict priority and resumable preemption:
// report > urgent > insert > random.
//
// Producers on any goroutine push commands; one scheduler goroutine
// consumes them. All queue state lives behind one mutex, so exactly one
// command is in flight at any instant.
type Dispatcher struct {
	driver domain.Driver
	shared *state.Context
	log    *logger.Logger

	tickInterval time.Duration
	picker       domain.AssetPicker
	followPrefix string
	likePrefix   string

	mu          sync.Mutex
	reportQ     []domain.AudioCommand
	urgentQ     []domain.AudioCommand
	insertQ     []domain.AudioCommand
	randomQ     []domain.AudioCommand
	playing     bool
	currentKind domain.CommandKind
	currentPath string
	paused      bool

	// resume bookkeeping: armed when a Random item was preempted by a
	// report. A second preemption while armed overwrites the pending
	// path rather than stacking it.
	resumePath  string
	resumeArmed bool

	stopFlag domain.StopFlag

	running bool
	cancel  context.CancelFunc
}

// NewDispatcher creates a dispatcher over the given driver and shared state.
func NewDispatcher(driver domain.Driver, shared *state.Context, log *logger.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		driver:       driver,
		shared:       shared,
		log:          log,
		tickInterval: 20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start begins the scheduler loop. Non-blocking.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		d.log.Warn("dispatcher already running")
		return
	}

	childCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true

	go d.loop(childCtx)
	d.log.Info("audio dispatcher started (tick=%s)", d.tickInterval)
}

// Stop shuts down the scheduler loop and interrupts any playback.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	cancel := d.cancel
	d.mu.Unlock()

	cancel()
	d.StopNow()
	d.log.Info("audio dispatcher stopped")
}

func (d *Dispatcher) loop(ctx context.Context) {
	ticker := time.NewTicker(d.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.ProcessOnce()
		}
	}
}

// ── producers ──────────────────────────────────────────────────

// PushReport preempts everything: the pending queues are cleared, the
// in-flight item is interrupted, and the report goes to the very front.
// If the interrupted item was rotation filler, its path is captured for
// resumption after the report finishes.
func (d *Dispatcher) PushReport(path string) {
	if !d.shared.LiveReady() {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.playing {
		if d.currentKind == domain.KindRandom && d.currentPath != "" {
			// Overwrite, never stack: only the most recent preemption
			// is remembered.
			d.resumePath = d.currentPath
			d.resumeArmed = true
		}
		d.interruptLocked()
	}

	d.urgentQ = nil
	d.insertQ = nil
	d.randomQ = nil
	d.reportQ = append([]domain.AudioCommand{{Kind: domain.KindReport, Path: path}}, d.reportQ...)
	d.log.Info("report queued (front): %s", filepath.Base(path))
}

// PushUrgent inserts a remote recording ahead of everything but a
// report. The interrupted item is not resumed.
func (d *Dispatcher) PushUrgent(path string) {
	if !d.shared.LiveReady() {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.playing && d.currentKind != domain.KindReport {
		d.interruptLocked()
	}
	d.insertQ = nil
	d.randomQ = nil
	d.urgentQ = append(d.urgentQ, domain.AudioCommand{Kind: domain.KindUrgent, Path: path})
	d.log.Info("urgent queued: %s", filepath.Base(path))
}

// PushInsert inserts a category item ahead of rotation. The interrupted
// item is not resumed.
func (d *Dispatcher) PushInsert(path string) {
	if !d.shared.LiveReady() {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.playing && d.currentKind != domain.KindReport {
		d.interruptLocked()
	}
	d.randomQ = nil
	d.insertQ = append(d.insertQ, domain.AudioCommand{Kind: domain.KindInsert, Path: path})
	d.log.Info("insert queued: %s", filepath.Base(path))
}

// PushPriority is the escalated insert used for keyword- and
// remote-triggered playback. Insert semantics.
func (d *Dispatcher) PushPriority(path string) {
	d.PushInsert(path)
}

// PushRandom appends rotation filler. The push is silently dropped when
// the system is not ready or anything higher-priority is already
// pending. That is a policy choice, not a failure.
func (d *Dispatcher) PushRandom(path string) {
	if !d.shared.Ready() {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.reportQ)+len(d.urgentQ)+len(d.insertQ) > 0 {
		d.log.Debug("random dropped, higher-priority work pending: %s", filepath.Base(path))
		return
	}
	d.randomQ = append(d.randomQ, domain.AudioCommand{Kind: domain.KindRandom, Path: path})
}

// ── control ────────────────────────────────────────────────────

// SetPaused gates the scheduler step. While paused, ProcessOnce is a
// no-op and queue order is preserved for later resumption.
func (d *Dispatcher) SetPaused(paused bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = paused
}

// StopNow raises the interrupt signal and forces the device to stop
// immediately. Queues are untouched.
func (d *Dispatcher) StopNow() {
	d.mu.Lock()
	d.interruptLocked()
	d.mu.Unlock()
}

// Skip advances past the currently playing item; queued work is kept.
func (d *Dispatcher) Skip() {
	d.mu.Lock()
	if d.playing {
		d.log.Info("skipping current item: %s", filepath.Base(d.currentPath))
		d.interruptLocked()
	}
	d.mu.Unlock()
}

// Clear drops everything queued. The in-flight item is unaffected.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reportQ = nil
	d.urgentQ = nil
	d.insertQ = nil
	d.randomQ = nil
	d.resumeArmed = false
	d.resumePath = ""
}

// interruptLocked sets the cooperative flag and pokes the device.
// Must be called with d.mu held.
func (d *Dispatcher) interruptLocked() {
	d.stopFlag.Set()
	d.driver.Stop()
}

// ── observers ──────────────────────────────────────────────────

// Idle reports whether nothing is playing and nothing is queued.
func (d *Dispatcher) Idle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.playing && len(d.reportQ)+len(d.urgentQ)+len(d.insertQ)+len(d.randomQ) == 0
}

// HasPending reports whether any command is queued.
func (d *Dispatcher) HasPending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.reportQ)+len(d.urgentQ)+len(d.insertQ)+len(d.randomQ) > 0
}

// Snapshot returns the read-only projection of the scheduler state for
// remote display. A remote pause flips the shared enabled gate rather
// than the local pause flag, so both read as paused here.
func (d *Dispatcher) Snapshot() domain.StatusSnapshot {
	d.mu.Lock()
	playing := d.playing
	paused := d.paused
	name := ""
	if playing {
		name = filepath.Base(d.currentPath)
	}
	d.mu.Unlock()

	enabled := d.shared.Enabled()
	return domain.NewStatusSnapshot(enabled, paused || !enabled, playing, name, time.Now())
}

// ── the scheduler step ─────────────────────────────────────────

// ProcessOnce is the scheduler's single step: dequeue at most one
// command, execute it synchronously, then run the post-play branch for
// its kind. Exposed so tests can drive the scheduler without the loop.
func (d *Dispatcher) ProcessOnce() {
	if !d.shared.Ready() {
		return
	}

	d.mu.Lock()
	if d.paused || d.playing {
		d.mu.Unlock()
		return
	}
	cmd, ok := d.nextLocked()
	if !ok {
		d.mu.Unlock()
		return
	}
	d.playing = true
	d.currentKind = cmd.Kind
	d.currentPath = cmd.Path
	d.stopFlag.Clear()
	d.mu.Unlock()

	d.execute(cmd)
}

// nextLocked picks the highest-priority queued command.
// Must be called with d.mu held.
func (d *Dispatcher) nextLocked() (domain.AudioCommand, bool) {
	switch {
	case len(d.reportQ) > 0:
		cmd := d.reportQ[0]
		d.reportQ = d.reportQ[1:]
		return cmd, true
	case len(d.urgentQ) > 0:
		cmd := d.urgentQ[0]
		d.urgentQ = d.urgentQ[1:]
		return cmd, true
	case len(d.insertQ) > 0:
		cmd := d.insertQ[0]
		d.insertQ = d.insertQ[1:]
		return cmd, true
	case len(d.randomQ) > 0:
		cmd := d.randomQ[0]
		d.randomQ = d.randomQ[1:]
		return cmd, true
	}
	return domain.AudioCommand{}, false
}

// execute plays one command and runs its post-play branch. The playing
// flag is reset on every path out of the driver call; a stuck flag
// would wedge the whole scheduler.
func (d *Dispatcher) execute(cmd domain.AudioCommand) {
	var err error
	func() {
		defer func() {
			d.mu.Lock()
			d.playing = false
			d.currentPath = ""
			d.mu.Unlock()
		}()
		err = d.driver.Play(cmd.Path, &d.stopFlag)
	}()

	interrupted := errors.Is(err, domain.ErrPlaybackStopped) || d.stopFlag.IsSet()
	if err != nil && !errors.Is(err, domain.ErrPlaybackStopped) {
		// Playback errors abandon the slot; the loop proceeds to the
		// next queued item.
		d.log.Error("playback failed (%s %s): %v", cmd.Kind, filepath.Base(cmd.Path), err)
	}

	if cmd.OnFinished != nil {
		cmd.OnFinished()
	}

	switch cmd.Kind {
	case domain.KindReport:
		d.afterReport()
	case domain.KindRandom:
		if !interrupted {
			d.afterRandom()
		}
	}
}

// afterReport consumes the resume context: the rotation item the report
// preempted is re-pushed, once, at the front of the rotation queue.
func (d *Dispatcher) afterReport() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.resumeArmed {
		return
	}
	path := d.resumePath
	d.resumeArmed = false
	d.resumePath = ""

	d.randomQ = append([]domain.AudioCommand{{Kind: domain.KindRandom, Path: path}}, d.randomQ...)
	d.log.Info("resuming preempted rotation item: %s", filepath.Base(path))
}

// afterRandom plays the pending follow/like thanks, follow checked
// first. Both are best-effort: a missing asset is logged and dropped.
func (d *Dispatcher) afterRandom() {
	if d.picker == nil {
		return
	}

	if d.shared.TakePendingFollow() {
		d.pushEventAudio(d.followPrefix)
	}
	if d.shared.TakePendingLike() {
		d.pushEventAudio(d.likePrefix)
	}
}

func (d *Dispatcher) pushEventAudio(prefix string) {
	if prefix == "" {
		return
	}
	path, err := d.picker.Pick(prefix)
	if err != nil {
		d.log.Warn("no event audio for %q: %v", prefix, err)
		return
	}
	d.PushPriority(path)
}
