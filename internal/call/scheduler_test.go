package call

import (
	"math"
	"testing"

	"github.com/antoniostano/voicelink/internal/audio"
)

func mustBuffer(t *testing.T, sec float64) *audio.PlaybackBuffer {
	t.Helper()
	buf, err := audio.DecodePlayback(pcmOfSeconds(sec), 24000, 1)
	if err != nil {
		t.Fatalf("DecodePlayback() error = %v", err)
	}
	return buf
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSchedulerLaysBuffersEndToEnd(t *testing.T) {
	out := &fakeOutput{log: &recorder{}}
	s := NewScheduler(out)

	for i, want := range []float64{0, 0.5, 1.0} {
		got, err := s.Schedule(mustBuffer(t, 0.5))
		if err != nil {
			t.Fatalf("Schedule(%d) error = %v", i, err)
		}
		if !approx(got, want) {
			t.Fatalf("start[%d] = %v, want %v", i, got, want)
		}
	}
	if !approx(s.Cursor(), 1.5) {
		t.Fatalf("cursor = %v, want 1.5", s.Cursor())
	}

	// The clock overtook the queue: the next buffer starts now, not in the past.
	out.setNow(5)
	got, _ := s.Schedule(mustBuffer(t, 0.25))
	if !approx(got, 5) || !approx(s.Cursor(), 5.25) {
		t.Fatalf("start = %v cursor = %v, want 5 and 5.25", got, s.Cursor())
	}
	if s.Pending() != 4 {
		t.Fatalf("pending = %d, want 4", s.Pending())
	}
}

func TestSchedulerInterruptStopsAndResets(t *testing.T) {
	out := &fakeOutput{log: &recorder{}}
	s := NewScheduler(out)
	_, _ = s.Schedule(mustBuffer(t, 1))
	_, _ = s.Schedule(mustBuffer(t, 1))

	if n := s.Interrupt(); n != 2 {
		t.Fatalf("Interrupt() = %d, want 2", n)
	}
	for i, st := range out.starts() {
		if !st.src.isStopped() {
			t.Fatalf("source %d not stopped", i)
		}
	}
	if s.Pending() != 0 || s.Cursor() != 0 {
		t.Fatalf("pending=%d cursor=%v after interrupt", s.Pending(), s.Cursor())
	}

	out.setNow(2.5)
	got, _ := s.Schedule(mustBuffer(t, 0.1))
	if !approx(got, 2.5) {
		t.Fatalf("start after interrupt = %v, want 2.5", got)
	}
}

func TestSchedulerForgetsFinishedBuffers(t *testing.T) {
	out := &fakeOutput{log: &recorder{}}
	s := NewScheduler(out)
	_, _ = s.Schedule(mustBuffer(t, 0.1))
	_, _ = s.Schedule(mustBuffer(t, 0.1))

	out.starts()[0].src.onEnded()
	if s.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", s.Pending())
	}
	// A late callback for a buffer that was already interrupted is harmless.
	s.Interrupt()
	out.starts()[1].src.onEnded()
	if s.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", s.Pending())
	}
}

func TestSchedulerRejectsEmptyBuffer(t *testing.T) {
	s := NewScheduler(&fakeOutput{log: &recorder{}})
	if _, err := s.Schedule(&audio.PlaybackBuffer{SampleRate: 24000, Channels: 1}); err == nil {
		t.Fatal("expected error for empty buffer")
	}
	if s.Cursor() != 0 {
		t.Fatalf("cursor moved: %v", s.Cursor())
	}
}
