package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

func TestEncodePCM16LEClampsAndOrders(t *testing.T) {
	got := EncodePCM16LE([]float32{0, 0.5, -0.5, 1.5, -1.5})
	want := []int16{0, 16384, -16384, math.MaxInt16, math.MinInt16}
	if len(got) != len(want)*2 {
		t.Fatalf("len = %d, want %d", len(got), len(want)*2)
	}
	for i, w := range want {
		if s := int16(binary.LittleEndian.Uint16(got[i*2:])); s != w {
			t.Fatalf("sample[%d] = %d, want %d", i, s, w)
		}
	}
}

func TestDecodePCM16LE(t *testing.T) {
	pcm := []byte{0x00, 0x40, 0x00, 0xC0}
	got, err := DecodePCM16LE(pcm)
	if err != nil {
		t.Fatalf("DecodePCM16LE() error = %v", err)
	}
	if got[0] != 0.5 || got[1] != -0.5 {
		t.Fatalf("samples = %v, want [0.5 -0.5]", got)
	}
	if _, err := DecodePCM16LE([]byte{1, 2, 3}); !errors.Is(err, ErrOddPCMLength) {
		t.Fatalf("odd length error = %v, want ErrOddPCMLength", err)
	}
}

func TestEncodeChunk(t *testing.T) {
	c := EncodeChunk([]float32{0.25, -0.25}, 16000)
	if c.MIMEType != "audio/pcm;rate=16000" {
		t.Fatalf("MIMEType = %q", c.MIMEType)
	}
	raw, err := base64.StdEncoding.DecodeString(c.Data)
	if err != nil {
		t.Fatalf("chunk data is not base64: %v", err)
	}
	pcm, err := c.PCM()
	if err != nil {
		t.Fatalf("PCM() error = %v", err)
	}
	if !bytes.Equal(raw, pcm) || len(pcm) != 4 {
		t.Fatalf("PCM() = %v, want %v", pcm, raw)
	}
}

func TestLevel(t *testing.T) {
	if got := Level(nil); got != 0 {
		t.Fatalf("Level(nil) = %v, want 0", got)
	}
	if got := Level([]float32{0.5, -0.5, 0.5, -0.5}); math.Abs(got-50) > 1e-9 {
		t.Fatalf("Level(square 0.5) = %v, want 50", got)
	}
	if got := Level(make([]float32, 4096)); got != 0 {
		t.Fatalf("Level(silence) = %v, want 0", got)
	}
}

func TestDecodePlaybackDuration(t *testing.T) {
	pcm := make([]byte, 24000*2/2) // 0.5s of 24 kHz mono
	buf, err := DecodePlayback(pcm, 24000, 1)
	if err != nil {
		t.Fatalf("DecodePlayback() error = %v", err)
	}
	if buf.Frames() != 12000 {
		t.Fatalf("Frames() = %d, want 12000", buf.Frames())
	}
	if math.Abs(buf.Duration()-0.5) > 1e-12 {
		t.Fatalf("Duration() = %v, want 0.5", buf.Duration())
	}
	if !bytes.Equal(buf.PCM16LE(), pcm) {
		t.Fatalf("PCM16LE() did not round trip silence")
	}
	if _, err := DecodePlayback(pcm, 0, 1); err == nil {
		t.Fatalf("DecodePlayback() expected error for zero sample rate")
	}
}

func TestSecondsToDuration(t *testing.T) {
	if got := SecondsToDuration(1.5); got != 1500*time.Millisecond {
		t.Fatalf("SecondsToDuration(1.5) = %v", got)
	}
}

func TestWindowerEmitsFixedWindows(t *testing.T) {
	w := NewWindower(4)
	if got := w.Push([]float32{1, 2, 3}); len(got) != 0 {
		t.Fatalf("Push(3) emitted %d windows, want 0", len(got))
	}
	got := w.Push([]float32{4, 5, 6, 7, 8, 9})
	if len(got) != 2 {
		t.Fatalf("Push(6) emitted %d windows, want 2", len(got))
	}
	if got[0][0] != 1 || got[0][3] != 4 || got[1][0] != 5 || got[1][3] != 8 {
		t.Fatalf("windows out of order: %v", got)
	}
	if w.Buffered() != 1 {
		t.Fatalf("Buffered() = %d, want 1", w.Buffered())
	}
	w.Reset()
	if w.Buffered() != 0 {
		t.Fatalf("Buffered() after Reset = %d, want 0", w.Buffered())
	}
}

func TestSineTonePCM16LE(t *testing.T) {
	pcm := SineTonePCM16LE(440, 24000, 100*time.Millisecond, 0.2)
	if len(pcm) != 2400*2 {
		t.Fatalf("len = %d, want %d", len(pcm), 2400*2)
	}
	if SineTonePCM16LE(0, 24000, time.Second, 0.2) != nil {
		t.Fatalf("zero frequency should render nothing")
	}
}
