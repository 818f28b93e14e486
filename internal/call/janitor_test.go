package call

import (
	"errors"
	"testing"
	"time"
)

func TestSweepExpiresIdleCalls(t *testing.T) {
	m := NewManager(&fakeDialer{log: &recorder{}}, Options{IdleTimeout: time.Minute, Retention: time.Hour}, nil)
	stale, _ := m.Dial("1", "")
	fresh, _ := m.Dial("2", "")
	m.mu.Lock()
	m.calls[stale.ID].call.CreatedAt = time.Now().Add(-2 * time.Minute)
	m.mu.Unlock()

	expired, forgotten := m.sweep(time.Now())
	if expired != 1 || forgotten != 0 {
		t.Fatalf("sweep() = %d expired, %d forgotten", expired, forgotten)
	}
	got, _ := m.Get(stale.ID)
	if got.State != StateEnded || got.EndReason != ReasonExpired {
		t.Fatalf("stale call = %+v", got)
	}
	if got, _ := m.Get(fresh.ID); got.State != StateIdle {
		t.Fatalf("fresh call = %+v", got)
	}
}

func TestSweepForgetsEndedCallsAfterRetention(t *testing.T) {
	m := NewManager(&fakeDialer{log: &recorder{}}, Options{Retention: time.Minute}, nil)
	c, _ := m.Dial("1", "")
	if _, err := m.End(c.ID); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	if _, forgotten := m.sweep(time.Now()); forgotten != 0 {
		t.Fatal("ended call forgotten before retention elapsed")
	}
	if _, forgotten := m.sweep(time.Now().Add(2 * time.Minute)); forgotten != 1 {
		t.Fatal("ended call kept past retention")
	}
	if _, err := m.Get(c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestSweepDisabledByZeroOptions(t *testing.T) {
	m := NewManager(&fakeDialer{log: &recorder{}}, Options{}, nil)
	c, _ := m.Dial("1", "")
	m.mu.Lock()
	m.calls[c.ID].call.CreatedAt = time.Now().Add(-24 * time.Hour)
	m.mu.Unlock()
	if expired, forgotten := m.sweep(time.Now()); expired != 0 || forgotten != 0 {
		t.Fatalf("sweep() = %d, %d with sweeps disabled", expired, forgotten)
	}
}
