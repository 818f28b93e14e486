package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientAudioChunk  MessageType = "client_audio_chunk"
	TypeClientControl     MessageType = "client_control"
	TypeCallState         MessageType = "call_state"
	TypeAudioLevel        MessageType = "audio_level"
	TypeCallTimer         MessageType = "call_timer"
	TypePlaybackScheduled MessageType = "playback_scheduled"
	TypePlaybackStopped   MessageType = "playback_stopped"
	TypeSystemEvent       MessageType = "system_event"
	TypeErrorEvent        MessageType = "error_event"
)

// Control actions sent by the device.
const (
	ActionMicGranted = "mic_granted"
	ActionMicDenied  = "mic_denied"
	ActionMute       = "mute"
	ActionUnmute     = "unmute"
	ActionEnd        = "end"
)

// System event codes sent to the device.
const (
	CodeMicRequest = "mic_request"
	CodeCallReady  = "call_ready"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientAudioChunk struct {
	Type        MessageType `json:"type"`
	CallID      string      `json:"call_id"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
	TSMs        int64       `json:"ts_ms"`
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Action string      `json:"action"`
	Reason string      `json:"reason,omitempty"`
	TSMs   int64       `json:"ts_ms,omitempty"`
}

type CallState struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	State  string      `json:"state"`
	Reason string      `json:"reason,omitempty"`
}

type AudioLevel struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Level  float64     `json:"level"`
}

type CallTimer struct {
	Type     MessageType `json:"type"`
	CallID   string      `json:"call_id"`
	ElapsedS int         `json:"elapsed_s"`
}

// PlaybackScheduled asks the device to play AudioBase64 (PCM16LE) at StartTime seconds
// on its output timeline.
type PlaybackScheduled struct {
	Type        MessageType `json:"type"`
	CallID      string      `json:"call_id"`
	BufferID    string      `json:"buffer_id"`
	StartTime   float64     `json:"start_time"`
	Duration    float64     `json:"duration"`
	SampleRate  int         `json:"sample_rate"`
	AudioBase64 string      `json:"audio_base64"`
}

type PlaybackStopped struct {
	Type     MessageType `json:"type"`
	CallID   string      `json:"call_id"`
	BufferID string      `json:"buffer_id"`
}

type SystemEvent struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Code   string      `json:"code"`
	Source string      `json:"source"`
	Detail string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAudioChunk:
		var msg ClientAudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.CallID == "" || msg.PCM16Base64 == "" || msg.SampleRate <= 0 {
			return nil, errors.New("invalid client_audio_chunk")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.CallID == "" || !validAction(msg.Action) {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

func validAction(action string) bool {
	switch action {
	case ActionMicGranted, ActionMicDenied, ActionMute, ActionUnmute, ActionEnd:
		return true
	default:
		return false
	}
}
