package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// SineTonePCM16LE renders a mono sine tone as PCM16LE.
func SineTonePCM16LE(freqHz, sampleRateHz int, d time.Duration, amp float64) []byte {
	if sampleRateHz <= 0 || d <= 0 || freqHz <= 0 {
		return nil
	}
	if amp <= 0 {
		amp = 0.2
	}
	if amp > 1.0 {
		amp = 1.0
	}
	samples := int(float64(sampleRateHz) * d.Seconds())
	if samples <= 0 {
		samples = 1
	}
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		t := float64(i) / float64(sampleRateHz)
		v := amp * math.Sin(2*math.Pi*float64(freqHz)*t)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*32767.0)))
	}
	return out
}
