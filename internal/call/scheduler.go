package call

import (
	"errors"
	"sync"

	"github.com/antoniostano/voicelink/internal/audio"
)

var errEmptyBuffer = errors.New("empty playback buffer")

// Scheduler lays inbound buffers end to end on an output timeline and tracks the ones
// that have not finished playing.
type Scheduler struct {
	out OutputContext

	mu        sync.Mutex
	nextStart float64
	seq       uint64
	sources   map[uint64]Source
}

func NewScheduler(out OutputContext) *Scheduler {
	return &Scheduler{out: out, sources: make(map[uint64]Source)}
}

// Schedule starts buf at max(cursor, now) and advances the cursor by its duration.
// It returns the chosen start time.
func (s *Scheduler) Schedule(buf *audio.PlaybackBuffer) (float64, error) {
	if buf == nil || buf.Frames() == 0 {
		return 0, errEmptyBuffer
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.nextStart
	if now := s.out.CurrentTime(); now > start {
		start = now
	}
	s.seq++
	id := s.seq
	src, err := s.out.Start(buf, start, func() { s.release(id) })
	if err != nil {
		return 0, err
	}
	s.sources[id] = src
	s.nextStart = start + buf.Duration()
	return start, nil
}

// Interrupt stops every scheduled buffer and resets the cursor so the next buffer
// starts immediately.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.sources)
	for id, src := range s.sources {
		src.Stop()
		delete(s.sources, id)
	}
	s.nextStart = 0
	return n
}

// Discard forgets scheduled buffers without stopping them; used right before the
// output context itself is closed.
func (s *Scheduler) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.sources)
	s.nextStart = 0
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

func (s *Scheduler) Cursor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

func (s *Scheduler) release(id uint64) {
	s.mu.Lock()
	delete(s.sources, id)
	s.mu.Unlock()
}
