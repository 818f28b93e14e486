package call

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestManagerDialRequiresNumber(t *testing.T) {
	m := NewManager(&fakeDialer{log: &recorder{}}, Options{}, nil)
	if _, err := m.Dial("  ", "x"); !errors.Is(err, ErrNumberRequired) {
		t.Fatalf("Dial() error = %v", err)
	}
	c, err := m.Dial("112", "")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if c.ID == "" || c.State != StateIdle {
		t.Fatalf("call = %+v", c)
	}
}

func TestManagerNewCallTearsDownPrevious(t *testing.T) {
	log := &recorder{}
	m := NewManager(&fakeDialer{log: log}, Options{Window: 4}, nil)

	first, _ := m.Dial("1", "first")
	second, _ := m.Dial("2", "second")

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- m.Attach(context.Background(), first.ID, newFakeDevices("a:", log), Hooks{})
	}()
	waitFor(t, "first call active", func() bool {
		c, _ := m.Get(first.ID)
		return c.State == StateActive
	})

	secondDone := make(chan error, 1)
	go func() {
		secondDone <- m.Attach(context.Background(), second.ID, newFakeDevices("b:", log), Hooks{})
	}()
	select {
	case err := <-firstDone:
		if err != nil {
			t.Fatalf("first Attach() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first call not torn down")
	}
	waitFor(t, "second call active", func() bool {
		c, _ := m.Get(second.ID)
		return c.State == StateActive
	})

	lines := log.snapshot()
	idx := func(s string) int {
		for i, l := range lines {
			if l == s {
				return i
			}
		}
		return -1
	}
	if a, b := idx("a:close_output"), idx("b:open_input"); a < 0 || b < 0 || a > b {
		t.Fatalf("second call acquired resources before first released them: %v", lines)
	}
	if active, ok := m.Active(); !ok || active.ID != second.ID {
		t.Fatalf("active = %+v ok=%v", active, ok)
	}
	if m.ActiveCount() != 1 {
		t.Fatalf("active count = %d", m.ActiveCount())
	}

	if _, err := m.End(second.ID); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	<-secondDone
	c, _ := m.Get(second.ID)
	if c.State != StateEnded || c.EndReason != "hangup" {
		t.Fatalf("second call = %+v", c)
	}
	waitFor(t, "no active call", func() bool { return m.ActiveCount() == 0 })
}

func TestManagerEndBeforeAttach(t *testing.T) {
	m := NewManager(&fakeDialer{log: &recorder{}}, Options{}, nil)
	c, _ := m.Dial("800-AI-HELP", "Tech Support")
	ended, err := m.End(c.ID)
	if err != nil || ended.State != StateEnded {
		t.Fatalf("End() = %+v, %v", ended, err)
	}
	err = m.Attach(context.Background(), c.ID, newFakeDevices("", &recorder{}), Hooks{})
	if !errors.Is(err, ErrEnded) {
		t.Fatalf("Attach() = %v, want ErrEnded", err)
	}
	if _, err := m.SetMuted(c.ID, true); !errors.Is(err, ErrEnded) {
		t.Fatalf("SetMuted() = %v, want ErrEnded", err)
	}
}

func TestManagerMuteCarriesIntoSession(t *testing.T) {
	log := &recorder{}
	dialer := &fakeDialer{log: log}
	m := NewManager(dialer, Options{Window: 4}, nil)
	c, _ := m.Dial("1", "")
	if got, err := m.SetMuted(c.ID, true); err != nil || !got.Muted {
		t.Fatalf("SetMuted() = %+v, %v", got, err)
	}

	devices := newFakeDevices("", log)
	done := make(chan error, 1)
	go func() { done <- m.Attach(context.Background(), c.ID, devices, Hooks{}) }()
	waitFor(t, "active", func() bool {
		got, _ := m.Get(c.ID)
		return got.State == StateActive
	})
	devices.input.frames <- window(0.1, 4)
	select {
	case chunk := <-dialer.current().sent:
		t.Fatalf("muted call transmitted %+v", chunk)
	case <-time.After(50 * time.Millisecond):
	}
	m.Shutdown()
	<-done
}

func TestManagerUnknownCall(t *testing.T) {
	m := NewManager(&fakeDialer{log: &recorder{}}, Options{}, nil)
	if _, err := m.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() = %v", err)
	}
	if _, err := m.End("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("End() = %v", err)
	}
	if err := m.Attach(context.Background(), "nope", nil, Hooks{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Attach() = %v", err)
	}
}

func TestReasonCode(t *testing.T) {
	cases := map[string]error{
		"hangup":              nil,
		"media_access_denied": ErrMediaAccessDenied,
		"connection_failed":   ErrConnectionInit,
		"remote_error":        ErrRemoteStream,
		"error":               errors.New("other"),
	}
	for want, err := range cases {
		if got := ReasonCode(err); got != want {
			t.Fatalf("ReasonCode(%v) = %q, want %q", err, got, want)
		}
	}
}
