// Package synth renders sound effects, ambience and musical score entirely
// from parameters. No sampled assets are used; every sound is built from
// noise, oscillators, filters and envelopes.
//
// All renderers take an explicit *rand.Rand so output is reproducible for a
// given seed.
package synth

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/MrWong99/storymix/pkg/audio"
)

const rate = audio.SampleRate

// buffer is a float64 working buffer at the package sample rate.
type buffer []float64

func newBuffer(d time.Duration) buffer {
	return make(buffer, audio.SamplesFor(d, rate))
}

func seconds(n int) float64 { return float64(n) / rate }

func at(sec float64) int { return int(sec * rate) }

// clip converts b to a clip scaled so its peak equals peak. A silent buffer
// stays silent.
func (b buffer) clip(peak float64) *audio.Clip {
	var m float64
	for _, v := range b {
		m = max(m, math.Abs(v))
	}
	g := 0.0
	if m > 0 {
		g = peak / m
	}
	out := &audio.Clip{Samples: make([]float32, len(b)), SampleRate: rate}
	for i, v := range b {
		out.Samples[i] = float32(v * g)
	}
	return out
}

// add mixes src into b starting at sample offset with gain g.
func (b buffer) add(src buffer, offset int, g float64) {
	for i, v := range src {
		j := offset + i
		if j < 0 {
			continue
		}
		if j >= len(b) {
			return
		}
		b[j] += v * g
	}
}

// noise fills a buffer of n samples with white noise in [-1, 1).
func noise(n int, rng *rand.Rand) buffer {
	b := make(buffer, n)
	for i := range b {
		b[i] = rng.Float64()*2 - 1
	}
	return b
}

// lowpass is a one-pole low-pass filter.
type lowpass struct {
	a, y float64
}

func newLowpass(cutoff float64) *lowpass {
	return &lowpass{a: 1 - math.Exp(-2*math.Pi*cutoff/rate)}
}

func (f *lowpass) step(x float64) float64 {
	f.y += f.a * (x - f.y)
	return f.y
}

// highpass is the complement of a one-pole low-pass.
type highpass struct{ lp *lowpass }

func newHighpass(cutoff float64) *highpass { return &highpass{lp: newLowpass(cutoff)} }

func (f *highpass) step(x float64) float64 { return x - f.lp.step(x) }

// bandpass is an RBJ biquad band-pass with 0 dB peak gain.
type bandpass struct {
	b0, b2, a1, a2 float64
	x1, x2, y1, y2 float64
}

func newBandpass(center, q float64) *bandpass {
	f := &bandpass{}
	f.tune(center, q)
	return f
}

func (f *bandpass) tune(center, q float64) {
	w := 2 * math.Pi * center / rate
	alpha := math.Sin(w) / (2 * q)
	a0 := 1 + alpha
	f.b0 = alpha / a0
	f.b2 = -alpha / a0
	f.a1 = -2 * math.Cos(w) / a0
	f.a2 = (1 - alpha) / a0
}

func (f *bandpass) step(x float64) float64 {
	y := f.b0*x + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

// filter applies step to every sample of b in place and returns b.
func (b buffer) filter(step func(float64) float64) buffer {
	for i, v := range b {
		b[i] = step(v)
	}
	return b
}

// oscillator is a phase accumulator producing one waveform.
type oscillator struct {
	phase float64
	wave  func(phase float64) float64
}

func sine(p float64) float64 { return math.Sin(2 * math.Pi * p) }

func saw(p float64) float64 { return 2*p - 1 }

func triangle(p float64) float64 { return 1 - 4*math.Abs(p-0.5) }

// next advances the oscillator by one sample at freq Hz.
func (o *oscillator) next(freq float64) float64 {
	v := o.wave(o.phase)
	o.phase += freq / rate
	o.phase -= math.Floor(o.phase)
	return v
}

// tone renders n samples of wave with a frequency curve freq(t) in seconds.
func tone(n int, wave func(float64) float64, freq func(t float64) float64) buffer {
	o := &oscillator{wave: wave}
	b := make(buffer, n)
	for i := range b {
		b[i] = o.next(freq(seconds(i)))
	}
	return b
}

func constant(f float64) func(float64) float64 { return func(float64) float64 { return f } }

// glide returns a frequency curve moving exponentially from f0 to f1 over d
// seconds and holding f1 afterwards.
func glide(f0, f1, d float64) func(float64) float64 {
	return func(t float64) float64 {
		if t >= d {
			return f1
		}
		return f0 * math.Pow(f1/f0, t/d)
	}
}

// decay multiplies b by exp(-t/tau).
func (b buffer) decay(tau float64) buffer {
	k := math.Exp(-1 / (tau * rate))
	g := 1.0
	for i := range b {
		b[i] *= g
		g *= k
	}
	return b
}

// envelope applies a linear attack and release with a sustained middle.
func (b buffer) envelope(attack, release float64) buffer {
	na, nr := at(attack), at(release)
	for i := range b {
		g := 1.0
		if na > 0 && i < na {
			g = float64(i) / float64(na)
		}
		if r := len(b) - 1 - i; nr > 0 && r < nr {
			g = min(g, float64(r)/float64(nr))
		}
		b[i] *= g
	}
	return b
}

// modulate multiplies b by mod(t).
func (b buffer) modulate(mod func(t float64) float64) buffer {
	for i := range b {
		b[i] *= mod(seconds(i))
	}
	return b
}

// lfo returns a sinusoidal modulator oscillating between lo and hi.
func lfo(freq, lo, hi, phase float64) func(float64) float64 {
	return func(t float64) float64 {
		return lo + (hi-lo)*(0.5+0.5*math.Sin(2*math.Pi*(freq*t+phase)))
	}
}

// feedbackDelay applies a single-tap feedback delay and mixes the echoes
// back in at wet.
func (b buffer) feedbackDelay(delay time.Duration, feedback, wet float64) buffer {
	d := audio.SamplesFor(delay, rate)
	if d <= 0 {
		return b
	}
	line := make(buffer, len(b))
	for i, v := range b {
		echo := 0.0
		if i >= d {
			echo = line[i-d]
		}
		line[i] = v + echo*feedback
		b[i] = v + wet*echo
	}
	return b
}

func between(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
