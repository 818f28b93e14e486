package call

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/antoniostano/voicelink/internal/audio"
	"github.com/antoniostano/voicelink/internal/live"
)

// recorder is an ordered log shared by the fakes of one test.
type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) add(line string) {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

type fakeDevices struct {
	prefix   string
	log      *recorder
	input    *fakeInput
	output   *fakeOutput
	mediaErr error
	stopErr  error
}

func newFakeDevices(prefix string, log *recorder) *fakeDevices {
	return &fakeDevices{
		prefix: prefix,
		log:    log,
		input:  &fakeInput{prefix: prefix, log: log, frames: make(chan []float32, 16)},
		output: &fakeOutput{prefix: prefix, log: log},
	}
}

func (d *fakeDevices) NewInputContext(int) (InputContext, error) {
	d.log.add(d.prefix + "open_input")
	return d.input, nil
}

func (d *fakeDevices) NewOutputContext(int) (OutputContext, error) {
	d.log.add(d.prefix + "open_output")
	return d.output, nil
}

func (d *fakeDevices) UserMedia(context.Context) (MediaStream, error) {
	if d.mediaErr != nil {
		return nil, d.mediaErr
	}
	d.log.add(d.prefix + "user_media")
	return &fakeStream{prefix: d.prefix, log: d.log, err: d.stopErr}, nil
}

type fakeStream struct {
	prefix string
	log    *recorder
	err    error
}

func (s *fakeStream) StopTracks() error {
	s.log.add(s.prefix + "stop_tracks")
	return s.err
}

type fakeInput struct {
	prefix string
	log    *recorder
	frames chan []float32

	mu     sync.Mutex
	closed bool
}

func (i *fakeInput) Capture(MediaStream, int) (<-chan []float32, error) {
	return i.frames, nil
}

// push offers a window without blocking and reports false once the input is closed.
func (i *fakeInput) push(w []float32) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return false
	}
	select {
	case i.frames <- w:
	default:
	}
	return true
}

func (i *fakeInput) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	i.log.add(i.prefix + "close_input")
	close(i.frames)
	return nil
}

type scheduled struct {
	at       float64
	duration float64
	src      *fakeSource
}

type fakeOutput struct {
	prefix string
	log    *recorder

	mu      sync.Mutex
	now     float64
	started []scheduled
}

func (o *fakeOutput) setNow(v float64) {
	o.mu.Lock()
	o.now = v
	o.mu.Unlock()
}

func (o *fakeOutput) CurrentTime() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) Start(buf *audio.PlaybackBuffer, at float64, onEnded func()) (Source, error) {
	src := &fakeSource{onEnded: onEnded}
	o.mu.Lock()
	o.started = append(o.started, scheduled{at: at, duration: buf.Duration(), src: src})
	o.mu.Unlock()
	return src, nil
}

func (o *fakeOutput) Close() error {
	o.log.add(o.prefix + "close_output")
	return nil
}

func (o *fakeOutput) starts() []scheduled {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]scheduled(nil), o.started...)
}

type fakeSource struct {
	mu      sync.Mutex
	stopped bool
	onEnded func()
}

func (s *fakeSource) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *fakeSource) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeConn struct {
	prefix string
	log    *recorder
	events chan live.Event
	sent   chan audio.Chunk
	once   sync.Once
	err    error
}

func (c *fakeConn) Send(ctx context.Context, chunk audio.Chunk) error {
	select {
	case c.sent <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Events() <-chan live.Event { return c.events }

func (c *fakeConn) Close() error {
	c.once.Do(func() { c.log.add(c.prefix + "close_conn") })
	return c.err
}

type fakeDialer struct {
	mu       sync.Mutex
	prefix   string
	log      *recorder
	err      error
	closeErr error
	calls    int
	lastCfg  live.Config
	conn     *fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, cfg live.Config) (live.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.lastCfg = cfg
	if d.err != nil {
		return nil, d.err
	}
	d.conn = &fakeConn{
		prefix: d.prefix,
		log:    d.log,
		events: make(chan live.Event, 16),
		sent:   make(chan audio.Chunk, 64),
		err:    d.closeErr,
	}
	d.conn.events <- live.Event{Type: live.EventOpen}
	return d.conn, nil
}

func (d *fakeDialer) current() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// stateLog collects state transitions reported through Hooks.
type stateLog struct {
	mu     sync.Mutex
	states []State
	ends   int
}

func (l *stateLog) hooks() Hooks {
	return Hooks{
		OnState: func(s State, _ error) {
			l.mu.Lock()
			l.states = append(l.states, s)
			l.mu.Unlock()
		},
		OnEnd: func(error) {
			l.mu.Lock()
			l.ends++
			l.mu.Unlock()
		},
	}
}

func (l *stateLog) snapshot() ([]State, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...), l.ends
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

// pcmOfSeconds returns silent 24 kHz PCM16 of the given length.
func pcmOfSeconds(sec float64) []byte {
	return make([]byte, int(sec*24000)*2)
}

func window(v float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}
