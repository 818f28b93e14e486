package call

import (
	"context"

	"github.com/antoniostano/voicelink/internal/audio"
)

// Devices hands out the audio resources a call needs. Every resource it returns must be
// released by the session exactly once.
type Devices interface {
	NewInputContext(sampleRate int) (InputContext, error)
	NewOutputContext(sampleRate int) (OutputContext, error)
	// UserMedia blocks until the microphone is granted or refused. Refusal must
	// return an error wrapping ErrMediaAccessDenied.
	UserMedia(ctx context.Context) (MediaStream, error)
}

type MediaStream interface {
	StopTracks() error
}

type InputContext interface {
	// Capture delivers fixed windows of mono samples in capture order. The channel
	// closes when the context is closed.
	Capture(stream MediaStream, windowSize int) (<-chan []float32, error)
	Close() error
}

// OutputContext is a playback timeline. CurrentTime and the at argument of Start are
// seconds on that timeline.
type OutputContext interface {
	CurrentTime() float64
	// Start schedules buf at the given time. onEnded fires once, asynchronously, when
	// playback finishes naturally; it is not called from inside Start.
	Start(buf *audio.PlaybackBuffer, at float64, onEnded func()) (Source, error)
	Close() error
}

type Source interface {
	Stop()
}
