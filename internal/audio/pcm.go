package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrOddPCMLength = errors.New("pcm16 payload has odd byte length")

// Chunk is one captured window in transport encoding.
type Chunk struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

// PCMMIMEType returns the mime type advertised for raw PCM16 at the given rate.
func PCMMIMEType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// EncodePCM16LE converts float samples in [-1, 1] to 16-bit little-endian PCM.
// Out-of-range samples are clamped.
func EncodePCM16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(v)))
	}
	return out
}

// DecodePCM16LE converts 16-bit little-endian PCM to float samples in [-1, 1).
func DecodePCM16LE(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, ErrOddPCMLength
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return out, nil
}

// EncodeChunk wraps a capture window as base64 PCM16 tagged with its sample rate.
func EncodeChunk(samples []float32, sampleRate int) Chunk {
	return Chunk{
		Data:     base64.StdEncoding.EncodeToString(EncodePCM16LE(samples)),
		MIMEType: PCMMIMEType(sampleRate),
	}
}

// PCM returns the raw PCM16 bytes carried by the chunk.
func (c Chunk) PCM() ([]byte, error) {
	return base64.StdEncoding.DecodeString(c.Data)
}

// Level is the loudness used for visual feedback: RMS of the window scaled by 100.
func Level(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum/float64(len(samples))) * 100
}

func floatToInt16(v float32) int16 {
	s := float64(v) * 32768.0
	if s >= math.MaxInt16 {
		return math.MaxInt16
	}
	if s <= math.MinInt16 {
		return math.MinInt16
	}
	return int16(s)
}

// PlaybackBuffer is one decoded response segment ready to be scheduled.
// Samples are interleaved when Channels > 1.
type PlaybackBuffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// DecodePlayback decodes an inbound PCM16LE payload into a playback buffer.
func DecodePlayback(pcm []byte, sampleRate, channels int) (*PlaybackBuffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if channels <= 0 {
		channels = 1
	}
	samples, err := DecodePCM16LE(pcm)
	if err != nil {
		return nil, err
	}
	if len(samples)%channels != 0 {
		samples = samples[:len(samples)-len(samples)%channels]
	}
	return &PlaybackBuffer{Samples: samples, SampleRate: sampleRate, Channels: channels}, nil
}

// Frames is the number of sample frames per channel.
func (b *PlaybackBuffer) Frames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration in seconds on the output timeline.
func (b *PlaybackBuffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// PCM16LE re-encodes the buffer for transport to a playback device.
func (b *PlaybackBuffer) PCM16LE() []byte {
	if b == nil {
		return nil
	}
	return EncodePCM16LE(b.Samples)
}

// SecondsToDuration converts a timeline offset in seconds to a time.Duration.
func SecondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
