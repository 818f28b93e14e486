// Package device implements the call audio devices on top of a websocket client: the
// client's microphone feeds the input context and the client's speaker plays what the
// output context schedules.
package device

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/antoniostano/voicelink/internal/audio"
	"github.com/antoniostano/voicelink/internal/call"
	"github.com/antoniostano/voicelink/internal/observability"
	"github.com/antoniostano/voicelink/internal/protocol"
)

var (
	ErrClosed           = errors.New("device closed")
	ErrSampleRate       = errors.New("sample rate does not match input context")
	ErrAlreadyCapturing = errors.New("input context is already capturing")
)

// SendFunc delivers one server message to the client. It must be safe for concurrent use.
type SendFunc func(msg any) error

type micAnswer struct {
	granted bool
	reason  string
}

// Remote implements call.Devices for one websocket client.
type Remote struct {
	callID     string
	send       SendFunc
	micTimeout time.Duration
	metrics    *observability.Metrics

	mic chan micAnswer

	mu     sync.Mutex
	input  *inputContext
	output *outputContext
}

func NewRemote(callID string, send SendFunc, micTimeout time.Duration) *Remote {
	if micTimeout <= 0 {
		micTimeout = 30 * time.Second
	}
	return &Remote{
		callID:     callID,
		send:       send,
		micTimeout: micTimeout,
		mic:        make(chan micAnswer, 1),
	}
}

// WithMetrics records device-side losses, such as capture windows dropped because the
// call is not keeping up, on m.
func (r *Remote) WithMetrics(m *observability.Metrics) *Remote {
	r.metrics = m
	return r
}

func (r *Remote) NewInputContext(sampleRate int) (call.InputContext, error) {
	in := &inputContext{rate: sampleRate, callID: r.callID, metrics: r.metrics}
	r.mu.Lock()
	r.input = in
	r.mu.Unlock()
	return in, nil
}

func (r *Remote) NewOutputContext(sampleRate int) (call.OutputContext, error) {
	out := &outputContext{
		remote:   r,
		rate:     sampleRate,
		openedAt: time.Now(),
		sources:  make(map[string]*source),
	}
	r.mu.Lock()
	r.output = out
	r.mu.Unlock()
	return out, nil
}

// UserMedia asks the client for its microphone and waits for the answer. No answer
// within the mic timeout counts as a refusal.
func (r *Remote) UserMedia(ctx context.Context) (call.MediaStream, error) {
	if err := r.send(protocol.SystemEvent{
		Type:   protocol.TypeSystemEvent,
		CallID: r.callID,
		Code:   protocol.CodeMicRequest,
	}); err != nil {
		return nil, fmt.Errorf("request microphone: %w", err)
	}

	timer := time.NewTimer(r.micTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: no answer within %s", call.ErrMediaAccessDenied, r.micTimeout)
	case ans := <-r.mic:
		if !ans.granted {
			if ans.reason == "" {
				ans.reason = "denied by user"
			}
			return nil, fmt.Errorf("%w: %s", call.ErrMediaAccessDenied, ans.reason)
		}
		return &mediaStream{}, nil
	}
}

// AnswerMicrophone records the client's answer to a pending microphone request. Only
// the first answer counts.
func (r *Remote) AnswerMicrophone(granted bool, reason string) {
	select {
	case r.mic <- micAnswer{granted: granted, reason: reason}:
	default:
	}
}

// PushAudio feeds one client microphone frame into the input context.
func (r *Remote) PushAudio(chunk protocol.ClientAudioChunk) error {
	r.mu.Lock()
	in := r.input
	r.mu.Unlock()
	if in == nil {
		return nil
	}
	if chunk.SampleRate != in.rate {
		return fmt.Errorf("%w: got %d, want %d", ErrSampleRate, chunk.SampleRate, in.rate)
	}
	pcm, err := base64.StdEncoding.DecodeString(chunk.PCM16Base64)
	if err != nil {
		return fmt.Errorf("decode audio frame: %w", err)
	}
	samples, err := audio.DecodePCM16LE(pcm)
	if err != nil {
		return fmt.Errorf("decode audio frame: %w", err)
	}
	in.push(samples)
	return nil
}

type mediaStream struct {
	stopped atomic.Bool
}

func (m *mediaStream) StopTracks() error {
	m.stopped.Store(true)
	return nil
}

type inputContext struct {
	rate    int
	callID  string
	metrics *observability.Metrics

	mu     sync.Mutex
	win    *audio.Windower
	frames chan []float32
	stream *mediaStream
	closed bool
}

func (i *inputContext) Capture(stream call.MediaStream, windowSize int) (<-chan []float32, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil, ErrClosed
	}
	if i.frames != nil {
		return nil, ErrAlreadyCapturing
	}
	i.win = audio.NewWindower(windowSize)
	i.frames = make(chan []float32, 64)
	i.stream, _ = stream.(*mediaStream)
	return i.frames, nil
}

func (i *inputContext) push(samples []float32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed || i.frames == nil {
		return
	}
	if i.stream != nil && i.stream.stopped.Load() {
		return
	}
	for _, w := range i.win.Push(samples) {
		select {
		case i.frames <- w:
		default:
			i.metrics.AudioChunk("dropped")
			log.Debug().Str("call_id", i.callID).Msg("device: capture window dropped, consumer behind")
		}
	}
}

func (i *inputContext) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	if i.frames != nil {
		close(i.frames)
	}
	return nil
}

// outputContext keeps a playback clock that starts when the context is opened; the
// client is expected to align its own timeline to the first scheduled buffer.
type outputContext struct {
	remote   *Remote
	rate     int
	openedAt time.Time

	mu      sync.Mutex
	sources map[string]*source
	closed  bool
}

func (o *outputContext) CurrentTime() float64 {
	return time.Since(o.openedAt).Seconds()
}

func (o *outputContext) Start(buf *audio.PlaybackBuffer, at float64, onEnded func()) (call.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrClosed
	}
	src := &source{id: uuid.NewString(), out: o}
	err := o.remote.send(protocol.PlaybackScheduled{
		Type:        protocol.TypePlaybackScheduled,
		CallID:      o.remote.callID,
		BufferID:    src.id,
		StartTime:   at,
		Duration:    buf.Duration(),
		SampleRate:  buf.SampleRate,
		AudioBase64: base64.StdEncoding.EncodeToString(buf.PCM16LE()),
	})
	if err != nil {
		return nil, fmt.Errorf("send playback: %w", err)
	}

	delay := audio.SecondsToDuration(at + buf.Duration() - o.CurrentTime())
	if delay < 0 {
		delay = 0
	}
	o.sources[src.id] = src
	src.mu.Lock()
	src.timer = time.AfterFunc(delay, func() {
		if o.forget(src.id) && onEnded != nil {
			onEnded()
		}
	})
	src.mu.Unlock()
	return src, nil
}

func (o *outputContext) forget(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.sources[id]; !ok {
		return false
	}
	delete(o.sources, id)
	return true
}

func (o *outputContext) stopped(id string) {
	_ = o.remote.send(protocol.PlaybackStopped{
		Type:     protocol.TypePlaybackStopped,
		CallID:   o.remote.callID,
		BufferID: id,
	})
}

func (o *outputContext) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	pending := make([]*source, 0, len(o.sources))
	for id, src := range o.sources {
		pending = append(pending, src)
		delete(o.sources, id)
	}
	o.mu.Unlock()

	for _, src := range pending {
		src.stopTimer()
		o.stopped(src.id)
	}
	return nil
}

type source struct {
	id  string
	out *outputContext

	mu    sync.Mutex
	timer *time.Timer
}

func (s *source) Stop() {
	if !s.out.forget(s.id) {
		return
	}
	s.stopTimer()
	s.out.stopped(s.id)
}

func (s *source) stopTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
}
