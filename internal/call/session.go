package call

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/antoniostano/voicelink/internal/audio"
	"github.com/antoniostano/voicelink/internal/live"
	"github.com/antoniostano/voicelink/internal/observability"
	"github.com/antoniostano/voicelink/internal/policy"
)

var (
	ErrMediaAccessDenied = errors.New("microphone access denied")
	ErrConnectionInit    = errors.New("live connection could not be established")
	ErrRemoteStream      = errors.New("live stream failed")
	ErrNotFound          = errors.New("call not found")
	ErrEnded             = errors.New("call already ended")
)

type State string

const (
	StateIdle        State = "idle"
	StateConnecting  State = "connecting"
	StateActive      State = "active"
	StateInterrupted State = "interrupted"
	StateEnded       State = "ended"
)

// Params fixes everything a session needs before Run.
type Params struct {
	CallID     string
	Number     string
	Name       string
	Model      string
	Voice      string
	InputRate  int
	OutputRate int
	Window     int
	DumpDir    string
}

// Hooks let the presentation layer follow a session. They are called from session
// goroutines and must not block.
type Hooks struct {
	OnState func(state State, reason error)
	OnLevel func(level float64)
	OnTick  func(elapsed time.Duration)
	OnEnd   func(reason error)
}

// Session is one voice call. It owns every resource it acquires and releases all of
// them in a single teardown, whichever way the call ends.
type Session struct {
	params  Params
	devices Devices
	dialer  live.Dialer
	hooks   Hooks
	metrics *observability.Metrics

	mu        sync.Mutex
	state     State
	muted     bool
	closed    bool
	started   bool
	startedAt time.Time
	endedAt   time.Time
	reason    error
	cancel    context.CancelFunc

	input     InputContext
	output    OutputContext
	stream    MediaStream
	conn      live.Conn
	scheduler *Scheduler
	inbound   []byte
	timerStop chan struct{}
	capture   sync.WaitGroup

	endOnce sync.Once
	done    chan struct{}
}

func NewSession(params Params, devices Devices, dialer live.Dialer, hooks Hooks, metrics *observability.Metrics) *Session {
	if params.InputRate <= 0 {
		params.InputRate = 16000
	}
	if params.OutputRate <= 0 {
		params.OutputRate = 24000
	}
	if params.Window <= 0 {
		params.Window = 4096
	}
	return &Session{
		params:  params,
		devices: devices,
		dialer:  dialer,
		hooks:   hooks,
		metrics: metrics,
		state:   StateIdle,
		done:    make(chan struct{}),
	}
}

// Run drives the call until it ends and returns the end reason; nil means the call was
// hung up normally.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.closed || s.started {
		s.mu.Unlock()
		return ErrEnded
	}
	s.started = true
	s.cancel = cancel
	s.startedAt = time.Now()
	s.timerStop = make(chan struct{})
	s.mu.Unlock()

	s.metrics.CallEvent("started")
	go s.runTimer(s.timerStop)
	s.setState(StateConnecting, nil)

	logger := log.With().Str("call_id", s.params.CallID).Logger()

	in, err := s.devices.NewInputContext(s.params.InputRate)
	if err != nil {
		s.end(fmt.Errorf("open input context: %w", err))
		return s.Err()
	}
	if !s.keep(func() { s.input = in }, in.Close) {
		return s.Err()
	}

	out, err := s.devices.NewOutputContext(s.params.OutputRate)
	if err != nil {
		s.end(fmt.Errorf("open output context: %w", err))
		return s.Err()
	}
	if !s.keep(func() { s.output = out; s.scheduler = NewScheduler(out) }, out.Close) {
		return s.Err()
	}

	stream, err := s.devices.UserMedia(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.end(nil)
			return s.Err()
		}
		if !errors.Is(err, ErrMediaAccessDenied) {
			err = fmt.Errorf("%w: %w", ErrMediaAccessDenied, err)
		}
		logger.Warn().Err(err).Msg("microphone unavailable, ending call")
		s.metrics.CallEvent("media_denied")
		s.end(err)
		return s.Err()
	}
	if !s.keep(func() { s.stream = stream }, stream.StopTracks) {
		return s.Err()
	}

	dialStarted := time.Now()
	conn, err := s.dialer.Dial(ctx, live.Config{
		Model:             s.params.Model,
		Modality:          live.ModalityAudio,
		Voice:             s.params.Voice,
		SystemInstruction: SystemInstruction(s.params.Number, s.params.Name),
	})
	if err != nil {
		if ctx.Err() != nil {
			s.end(nil)
			return s.Err()
		}
		logger.Error().Str("error", policy.RedactError(err)).Msg("live connect failed")
		s.metrics.CallEvent("connect_failed")
		s.end(fmt.Errorf("%w: %w", ErrConnectionInit, err))
		return s.Err()
	}
	s.metrics.ObserveConnectLatency(time.Since(dialStarted))
	if !s.keep(func() { s.conn = conn }, conn.Close) {
		return s.Err()
	}

	events := conn.Events()
	for {
		select {
		case <-ctx.Done():
			s.end(nil)
			return s.Err()
		case ev, ok := <-events:
			if !ok {
				s.end(nil)
				return s.Err()
			}
			switch ev.Type {
			case live.EventOpen:
				if err := s.onOpen(ctx, in, stream, conn); err != nil {
					s.end(err)
					return s.Err()
				}
			case live.EventMessage:
				s.onMessage(ev.Message)
			case live.EventError:
				logger.Error().Str("error", policy.RedactError(ev.Err)).Msg("live stream error")
				s.metrics.CallEvent("remote_error")
				s.end(fmt.Errorf("%w: %w", ErrRemoteStream, ev.Err))
				return s.Err()
			case live.EventClose:
				s.end(nil)
				return s.Err()
			}
		}
	}
}

func (s *Session) onOpen(ctx context.Context, in InputContext, stream MediaStream, conn live.Conn) error {
	frames, err := in.Capture(stream, s.params.Window)
	if err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.capture.Add(1)
	s.mu.Unlock()
	s.setState(StateActive, nil)
	go func() {
		defer s.capture.Done()
		s.captureLoop(ctx, frames, conn)
	}()
	return nil
}

// captureLoop is the only sender on conn, so chunks leave in capture order.
func (s *Session) captureLoop(ctx context.Context, frames <-chan []float32, conn live.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case win, ok := <-frames:
			if !ok {
				return
			}
			muted := s.Muted()
			if s.hooks.OnLevel != nil {
				s.hooks.OnLevel(audio.Level(win))
			}
			if muted {
				s.metrics.AudioChunk("muted")
				continue
			}
			if err := conn.Send(ctx, audio.EncodeChunk(win, s.params.InputRate)); err != nil {
				s.metrics.AudioChunk("error")
				log.Debug().Err(err).Str("call_id", s.params.CallID).Msg("audio chunk not sent")
				continue
			}
			s.metrics.AudioChunk("sent")
		}
	}
}

func (s *Session) onMessage(msg *live.Message) {
	if msg == nil {
		return
	}
	for _, part := range msg.Audio {
		buf, err := audio.DecodePlayback(part, s.params.OutputRate, 1)
		if err != nil || buf.Frames() == 0 {
			s.metrics.PlaybackBuffer("invalid")
			log.Debug().Err(err).Str("call_id", s.params.CallID).Msg("skipping undecodable audio part")
			continue
		}
		if s.params.DumpDir != "" {
			s.mu.Lock()
			s.inbound = append(s.inbound, part...)
			s.mu.Unlock()
		}
		if _, err := s.scheduler.Schedule(buf); err != nil {
			s.metrics.PlaybackBuffer("error")
			log.Debug().Err(err).Str("call_id", s.params.CallID).Msg("playback scheduling failed")
			continue
		}
		s.metrics.PlaybackBuffer("scheduled")
	}
	if msg.Interrupted {
		stopped := s.scheduler.Interrupt()
		s.metrics.Interruption()
		log.Info().Str("call_id", s.params.CallID).Int("stopped", stopped).Msg("playback interrupted")
		s.setState(StateInterrupted, nil)
		s.setState(StateActive, nil)
	}
}

// End hangs up. It is safe to call from any goroutine and more than once.
func (s *Session) End() {
	s.end(nil)
}

func (s *Session) end(reason error) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.reason = reason
		s.endedAt = time.Now()
		if s.startedAt.IsZero() {
			s.startedAt = s.endedAt
		}
		cancel := s.cancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if err := s.teardown(); err != nil {
			log.Warn().Err(err).Str("call_id", s.params.CallID).Msg("call teardown incomplete")
		}
		// Teardown closed the connection and the input, so the loop cannot stay
		// blocked; no level report may follow the end.
		s.capture.Wait()
		s.writeDump()

		s.metrics.CallEvent("ended")
		s.metrics.ObserveCallDuration(s.Elapsed())
		s.transition(StateEnded, reason)
		if s.hooks.OnEnd != nil {
			s.hooks.OnEnd(reason)
		}
		log.Info().Str("call_id", s.params.CallID).AnErr("reason", reason).Dur("elapsed", s.Elapsed()).Msg("call ended")
		close(s.done)
	})
}

// teardown releases every held resource in a fixed order. All steps run even when an
// earlier one fails.
func (s *Session) teardown() error {
	s.mu.Lock()
	timerStop := s.timerStop
	conn, stream, in, out, sched := s.conn, s.stream, s.input, s.output, s.scheduler
	s.timerStop, s.conn, s.stream, s.input, s.output = nil, nil, nil, nil, nil
	s.mu.Unlock()

	var errs []error
	if timerStop != nil {
		close(timerStop)
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close live connection: %w", err))
		}
	}
	if stream != nil {
		if err := stream.StopTracks(); err != nil {
			errs = append(errs, fmt.Errorf("stop microphone: %w", err))
		}
	}
	if in != nil {
		if err := in.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close input context: %w", err))
		}
	}
	if out != nil {
		if sched != nil {
			sched.Discard()
		}
		if err := out.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output context: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Session) writeDump() {
	s.mu.Lock()
	pcm := s.inbound
	s.inbound = nil
	s.mu.Unlock()
	if s.params.DumpDir == "" || len(pcm) == 0 {
		return
	}
	if err := os.MkdirAll(s.params.DumpDir, 0o755); err != nil {
		log.Warn().Err(err).Str("call_id", s.params.CallID).Msg("audio dump dir unavailable")
		return
	}
	path := filepath.Join(s.params.DumpDir, s.params.CallID+".wav")
	if err := audio.WriteWAVPCM16LEFile(path, pcm, s.params.OutputRate); err != nil {
		log.Warn().Err(err).Str("call_id", s.params.CallID).Msg("audio dump failed")
	}
}

// keep stores a freshly acquired resource. If the call ended while it was being
// acquired, the resource is released right away and keep reports false.
func (s *Session) keep(assign func(), release func() error) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = release()
		return false
	}
	assign()
	s.mu.Unlock()
	return true
}

func (s *Session) runTimer(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.hooks.OnTick != nil {
				s.hooks.OnTick(s.Elapsed())
			}
		}
	}
}

func (s *Session) setState(state State, reason error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.transition(state, reason)
}

func (s *Session) transition(state State, reason error) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()
	if s.hooks.OnState != nil {
		s.hooks.OnState(state, reason)
	}
}

func (s *Session) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
}

func (s *Session) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elapsed is the time since Run started, frozen once the call has ended.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0
	}
	if !s.endedAt.IsZero() {
		return s.endedAt.Sub(s.startedAt)
	}
	return time.Since(s.startedAt)
}

// Err is the end reason once Done is closed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Session) Done() <-chan struct{} { return s.done }

// Pending reports how many inbound buffers are scheduled and not yet finished.
func (s *Session) Pending() int {
	s.mu.Lock()
	sched := s.scheduler
	s.mu.Unlock()
	if sched == nil {
		return 0
	}
	return sched.Pending()
}

func (s *Session) ID() string { return s.params.CallID }
