// Package live talks to the remote conversational voice endpoint. A Conn is a
// message-passing handle: audio chunks go out through Send, and everything the remote
// side does (open, audio, interruption, error, close) comes back on Events.
package live

import (
	"context"
	"errors"

	"github.com/antoniostano/voicelink/internal/audio"
)

var ErrClosed = errors.New("live connection closed")

const ModalityAudio = "AUDIO"

// Config is sent once when the connection is opened.
type Config struct {
	Model             string
	Modality          string
	Voice             string
	SystemInstruction string
}

type EventType string

const (
	EventOpen    EventType = "open"
	EventMessage EventType = "message"
	EventError   EventType = "error"
	EventClose   EventType = "close"
)

// Message is one server fragment. Audio payloads are raw PCM16LE, implicitly 24 kHz mono.
type Message struct {
	Audio        [][]byte
	Interrupted  bool
	TurnComplete bool
}

func (m *Message) HasAudio() bool {
	return m != nil && len(m.Audio) > 0
}

type Event struct {
	Type    EventType
	Message *Message
	Err     error
}

// Conn is one open streaming session. Events delivers EventOpen first and EventClose
// last, then the channel is closed. Close is idempotent and safe to call concurrently
// with Send.
type Conn interface {
	Send(ctx context.Context, chunk audio.Chunk) error
	Events() <-chan Event
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, cfg Config) (Conn, error)
}
