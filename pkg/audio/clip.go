// Package audio provides the mono sample buffers that flow through storymix,
// the PCM16 wire codec used by speech services, silence trimming, resampling
// and WAV export.
//
// All generation and compositing happens at [SampleRate] on float32 samples in
// [-1, 1]. Conversion to 16-bit PCM only happens at the edges: when decoding
// speech-service responses and when writing audio to a device or file.
package audio

import "time"

// SampleRate is the fixed rate of every clip produced or consumed by the
// generation pipeline.
const SampleRate = 24000

// Clip is a raw mono sample sequence.
type Clip struct {
	Samples    []float32
	SampleRate int
}

// NewClip returns a silent clip of duration d at [SampleRate].
func NewClip(d time.Duration) *Clip {
	return &Clip{
		Samples:    make([]float32, SamplesFor(d, SampleRate)),
		SampleRate: SampleRate,
	}
}

// SamplesFor returns the number of samples that cover d at rate.
func SamplesFor(d time.Duration, rate int) int {
	if d <= 0 || rate <= 0 {
		return 0
	}
	return int(d.Seconds() * float64(rate))
}

// DurationOf returns the play time of n samples at rate.
func DurationOf(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(rate) * float64(time.Second))
}

// Len returns the number of samples. A nil clip has length zero.
func (c *Clip) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Samples)
}

// Duration returns the clip's play time.
func (c *Clip) Duration() time.Duration {
	if c == nil {
		return 0
	}
	return DurationOf(len(c.Samples), c.SampleRate)
}

// MixAt adds src into c starting at sample offset. Samples that would fall
// outside c are dropped.
func (c *Clip) MixAt(src *Clip, offset int) {
	if src == nil || offset >= len(c.Samples) {
		return
	}
	for i, s := range src.Samples {
		j := offset + i
		if j < 0 {
			continue
		}
		if j >= len(c.Samples) {
			return
		}
		c.Samples[j] += s
	}
}

// WriteAt copies src into c starting at sample offset, overwriting what was
// there. Samples that would fall outside c are dropped.
func (c *Clip) WriteAt(src *Clip, offset int) {
	if src == nil || offset >= len(c.Samples) {
		return
	}
	if offset < 0 {
		if -offset >= len(src.Samples) {
			return
		}
		copy(c.Samples, src.Samples[-offset:])
		return
	}
	copy(c.Samples[offset:], src.Samples)
}

// Peak returns the largest absolute sample value.
func (c *Clip) Peak() float32 {
	var peak float32
	for _, s := range c.Samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// Clone returns a deep copy of c.
func (c *Clip) Clone() *Clip {
	if c == nil {
		return nil
	}
	out := &Clip{Samples: make([]float32, len(c.Samples)), SampleRate: c.SampleRate}
	copy(out.Samples, c.Samples)
	return out
}
