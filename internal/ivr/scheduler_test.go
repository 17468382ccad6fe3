package ivr

import (
	"testing"
	"time"
)

func TestManualSchedulerFiresInDueOrder(t *testing.T) {
	s := NewManualScheduler()
	var got []string
	s.AfterFunc(3*time.Second, func() { got = append(got, "c") })
	s.AfterFunc(1*time.Second, func() {
		got = append(got, "a")
		s.AfterFunc(500*time.Millisecond, func() { got = append(got, "b") })
	})
	stopped := s.AfterFunc(2*time.Second, func() { got = append(got, "x") })
	if !stopped.Stop() {
		t.Fatalf("Stop() = false, want true")
	}

	s.Advance(2 * time.Second)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("fired = %q, want [a b]", got)
	}
	s.Advance(time.Second)
	if len(got) != 3 || got[2] != "c" {
		t.Fatalf("fired = %q, want [a b c]", got)
	}
	if s.Elapsed() != 3*time.Second {
		t.Fatalf("Elapsed() = %v, want 3s", s.Elapsed())
	}
	if s.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", s.Pending())
	}
	if stopped.Stop() {
		t.Fatalf("second Stop() = true, want false")
	}
}
