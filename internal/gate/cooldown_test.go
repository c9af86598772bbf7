package gate

import (
	"testing"
	"time"

	"github.com/solenne/livecast/internal/logger"
)

// fakeClock steps time manually.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time        { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestAllowOncePerWindow(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cd := New(log, WithClock(clock.now))

	if !cd.Allow("follow", 300*time.Second) {
		t.Fatal("first Allow should fire")
	}

	clock.advance(299 * time.Second)
	if cd.Allow("follow", 300*time.Second) {
		t.Fatal("Allow inside the window should be suppressed")
	}

	clock.advance(1 * time.Second)
	if !cd.Allow("follow", 300*time.Second) {
		t.Fatal("Allow at exactly the window boundary should fire")
	}
}

func TestDeniedCallDoesNotExtendWindow(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cd := New(log, WithClock(clock.now))

	cd.Allow("k", 10*time.Second)

	// Hammer the key every second; the window must still open 10s after
	// the original firing, not 10s after the last denied attempt.
	for i := 0; i < 9; i++ {
		clock.advance(1 * time.Second)
		if cd.Allow("k", 10*time.Second) {
			t.Fatalf("Allow fired %ds into the window", i+1)
		}
	}
	clock.advance(1 * time.Second)
	if !cd.Allow("k", 10*time.Second) {
		t.Fatal("window should have reopened")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cd := New(log, WithClock(clock.now))

	if !cd.Allow("wx:alice", 60*time.Second) {
		t.Fatal("alice should fire")
	}
	if !cd.Allow("wx:bob", 60*time.Second) {
		t.Fatal("bob has his own window")
	}
	if cd.Allow("wx:alice", 60*time.Second) {
		t.Fatal("alice is still cooling down")
	}
}

func TestReset(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cd := New(log, WithClock(clock.now))

	cd.Allow("k", time.Hour)
	cd.Reset("k")
	if !cd.Allow("k", time.Hour) {
		t.Fatal("Allow after Reset should fire")
	}
}
