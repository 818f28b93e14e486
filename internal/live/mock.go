package live

import (
	"context"
	"sync"
	"time"

	"github.com/antoniostano/voicelink/internal/audio"
)

// MockDialer answers locally: every EveryChunks outbound chunks it replies with a short
// tone at OutputRate. Used when no remote endpoint is configured.
type MockDialer struct {
	EveryChunks int
	OutputRate  int
	ToneHz      int
	ToneLength  time.Duration
}

func NewMockDialer(outputRate int) *MockDialer {
	return &MockDialer{EveryChunks: 8, OutputRate: outputRate, ToneHz: 440, ToneLength: 600 * time.Millisecond}
}

func (d *MockDialer) Dial(_ context.Context, _ Config) (Conn, error) {
	every := d.EveryChunks
	if every <= 0 {
		every = 8
	}
	rate := d.OutputRate
	if rate <= 0 {
		rate = 24000
	}
	c := &mockConn{
		pump:  newPump(64),
		every: every,
		tone:  audio.SineTonePCM16LE(d.ToneHz, rate, d.ToneLength, 0.2),
	}
	c.pump.emit(Event{Type: EventOpen})
	return c, nil
}

type mockConn struct {
	mu     sync.Mutex
	pump   *pump
	every  int
	tone   []byte
	chunks int
	closed bool
}

func (c *mockConn) Send(_ context.Context, _ audio.Chunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.chunks++
	if c.chunks%c.every != 0 {
		return nil
	}
	select {
	case c.pump.events <- Event{Type: EventMessage, Message: &Message{Audio: [][]byte{c.tone}, TurnComplete: true}}:
	default:
	}
	return nil
}

func (c *mockConn) Events() <-chan Event { return c.pump.events }

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.pump.markClosed()
	c.pump.finish(nil)
	return nil
}
