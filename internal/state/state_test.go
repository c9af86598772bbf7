package state

import "testing"

func TestReadyRequiresBothGates(t *testing.T) {
	c := New()
	if !c.Enabled() {
		t.Fatal("engine must start enabled")
	}
	if c.Ready() {
		t.Fatal("not ready before a live comment")
	}

	c.MarkLiveReady()
	if !c.Ready() {
		t.Fatal("ready after live comment")
	}

	c.SetEnabled(false)
	if c.Ready() {
		t.Fatal("remote pause must gate readiness")
	}
	c.SetEnabled(true)
	if !c.Ready() {
		t.Fatal("resume restores readiness, liveReady is sticky")
	}
}

func TestPendingFlagsConsumeOnce(t *testing.T) {
	c := New()

	if c.TakePendingFollow() || c.TakePendingLike() {
		t.Fatal("flags must start clear")
	}

	c.SetPendingFollow()
	c.SetPendingLike()
	if !c.TakePendingFollow() || !c.TakePendingLike() {
		t.Fatal("armed flags must read true once")
	}
	if c.TakePendingFollow() || c.TakePendingLike() {
		t.Fatal("flags must clear on take")
	}
}

func TestSeenSeq(t *testing.T) {
	c := New()

	if c.SeenSeq("evt-1") {
		t.Fatal("first sighting must not read as duplicate")
	}
	if !c.SeenSeq("evt-1") {
		t.Fatal("second sighting must read as duplicate")
	}
	if c.SeenSeq("") {
		t.Fatal("empty seq is never a duplicate")
	}
	if c.SeenSeq("") {
		t.Fatal("empty seq must not be recorded")
	}
}
