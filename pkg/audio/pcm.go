package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOddPCM is returned when a PCM16 payload has an odd byte count.
var ErrOddPCM = errors.New("audio: odd byte count in PCM16 data")

// EncodePCM16 encodes samples as little-endian signed 16-bit PCM, the wire
// format spoken by speech services and audio devices.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DecodePCM16 decodes little-endian signed 16-bit PCM. It is the exact inverse
// of [EncodePCM16].
func DecodePCM16(pcm []byte) ([]int16, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddPCM, len(pcm))
	}
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out, nil
}

// ToFloat converts PCM16 samples to float32 in [-1, 1).
func ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// ToPCM16 converts float32 samples to PCM16, clamping to the int16 range.
func ToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = FloatToInt16(s)
	}
	return out
}

// FloatToInt16 converts one float sample to int16 with clamping.
func FloatToInt16(s float32) int16 {
	v := s * 32767
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// ClipFromPCM16 decodes a PCM16 payload at rate into a [Clip].
func ClipFromPCM16(pcm []byte, rate int) (*Clip, error) {
	samples, err := DecodePCM16(pcm)
	if err != nil {
		return nil, err
	}
	return &Clip{Samples: ToFloat(samples), SampleRate: rate}, nil
}

// PCM16 encodes the clip as little-endian PCM16.
func (c *Clip) PCM16() []byte {
	return EncodePCM16(ToPCM16(c.Samples))
}
