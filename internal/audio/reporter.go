package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/solenne/livecast/internal/domain"
	"github.com/solenne/livecast/internal/logger"
	"github.com/solenne/livecast/internal/state"
)

// ReporterOption configures the reporter.
type ReporterOption func(*Reporter)

// WithReporterClock replaces the wall clock. Tests use this.
func WithReporterClock(now func() time.Time) ReporterOption {
	return func(r *Reporter) {
		r.now = now
	}
}

// WithReporterPoll sets the target-wait poll period.
func WithReporterPoll(d time.Duration) ReporterOption {
	return func(r *Reporter) {
		r.poll = d
	}
}

// Reporter produces periodic time announcements: it pre-synthesizes the
// announcement for the next target minute so the audio is ready the
// moment the minute arrives, then pushes it as a report.
//
// Announcements are synthesized against Beijing time, matching the
// broadcast audience.
type Reporter struct {
	scheduler domain.Scheduler
	synth     domain.Synthesizer
	shared    *state.Context
	log       *logger.Logger

	now  func() time.Time
	poll time.Duration
	loc  *time.Location

	mu       sync.Mutex
	enabled  bool
	interval time.Duration
}

// NewReporter creates a reporter. interval is the announcement period.
func NewReporter(scheduler domain.Scheduler, synth domain.Synthesizer, shared *state.Context, log *logger.Logger, interval time.Duration, opts ...ReporterOption) *Reporter {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		loc = time.FixedZone("CST", 8*3600)
	}

	r := &Reporter{
		scheduler: scheduler,
		synth:     synth,
		shared:    shared,
		log:       log,
		now:       time.Now,
		poll:      500 * time.Millisecond,
		loc:       loc,
		interval:  interval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetEnabled toggles the periodic announcement loop.
func (r *Reporter) SetEnabled(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = on
}

// Enabled reports whether periodic announcements are on.
func (r *Reporter) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// SetInterval changes the announcement period. Takes effect for the next
// cycle.
func (r *Reporter) SetInterval(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d > 0 {
		r.interval = d
	}
}

// Interval returns the announcement period.
func (r *Reporter) Interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

// Run is the periodic announcement loop. Blocks until ctx is cancelled;
// intended to be called as a goroutine.
func (r *Reporter) Run(ctx context.Context) {
	r.log.Info("voice reporter started (interval=%s)", r.Interval())

	for {
		if ctx.Err() != nil {
			return
		}
		if !r.Enabled() {
			if !r.sleep(ctx, time.Second) {
				return
			}
			continue
		}

		target := r.now().In(r.loc).Add(r.Interval()).Truncate(time.Minute)
		if !r.announceAt(ctx, target, r.Enabled) {
			return
		}
	}
}

// ScheduleAfter arms a one-shot announcement the given number of minutes
// from now (remote code 10003). Non-blocking; does not disturb the
// periodic loop.
func (r *Reporter) ScheduleAfter(ctx context.Context, minutes int) {
	target := r.now().In(r.loc).Add(time.Duration(minutes) * time.Minute).Truncate(time.Minute)
	r.log.Info("one-shot report scheduled for %s", target.Format("15:04"))

	go r.announceAt(ctx, target, func() bool { return true })
}

// announceAt pre-synthesizes the announcement for target, waits for the
// minute to arrive, and pushes the report if the system still wants it.
// Returns false when ctx was cancelled.
func (r *Reporter) announceAt(ctx context.Context, target time.Time, stillWanted func() bool) bool {
	text := ReportText(target)

	var wavPath string
	for {
		var err error
		wavPath, err = r.synth.Synthesize(ctx, text)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return false
		}
		// Synthesis is retried until the target minute passes it by.
		r.log.Error("report synthesis failed: %v", err)
		if !r.sleep(ctx, 10*time.Second) {
			return false
		}
		if r.now().In(r.loc).After(target) {
			r.log.Warn("report target %s missed, skipping", target.Format("15:04"))
			return true
		}
	}

	for r.now().In(r.loc).Before(target) {
		if !r.sleep(ctx, r.poll) {
			return false
		}
		if !stillWanted() {
			r.log.Debug("report for %s abandoned, reporter disabled", target.Format("15:04"))
			return true
		}
	}

	if stillWanted() && r.shared.Ready() {
		r.log.Info("pushing time report for %s", target.Format("15:04"))
		r.scheduler.PushReport(wavPath)
	}
	return true
}

// sleep waits d or until ctx is cancelled, reporting whether to keep going.
func (r *Reporter) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// ReportText renders the spoken announcement for the given time.
func ReportText(t time.Time) string {
	return fmt.Sprintf("现在是北京时间，%d 月 %d 日，%d 点 %d 分。",
		int(t.Month()), t.Day(), t.Hour(), t.Minute())
}
