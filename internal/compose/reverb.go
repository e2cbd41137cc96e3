package compose

import (
	"math"
	"math/bits"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Reverb defaults.
const (
	DefaultIRLength = 1500 * time.Millisecond
	DefaultDecay    = 3.0
	DefaultWet      = 0.10
)

// irSeed fixes the noise of the impulse response so every process renders
// the same room.
const irSeed = 0x5eed

// Reverb is a convolution reverb with a fixed synthetic impulse response.
// Process is safe for concurrent use.
type Reverb struct {
	wet float64

	// ir is the unit-energy impulse response.
	ir []float64

	// fftSize is the overlap-add transform length and spectrum the
	// impulse response's transform at that length.
	fftSize  int
	spectrum []complex128
}

var (
	defaultOnce   sync.Once
	defaultReverb *Reverb
)

// DefaultReverb returns the shared reverb built from the default parameters.
// The impulse response is generated on first use and reused afterwards.
func DefaultReverb(rate int) *Reverb {
	defaultOnce.Do(func() {
		defaultReverb = NewReverb(ImpulseResponse(rate, DefaultIRLength, DefaultDecay), DefaultWet)
	})
	return defaultReverb
}

// ImpulseResponse returns band-limited noise with a power-law decay envelope
// (1 - t/T)^decay, normalised to unit energy.
func ImpulseResponse(rate int, length time.Duration, decay float64) []float64 {
	n := int(length.Seconds() * float64(rate))
	if n <= 0 {
		return []float64{1}
	}
	rng := rand.New(rand.NewPCG(irSeed, irSeed))
	ir := make([]float64, n)

	// One-pole low-pass around 5 kHz band-limits the noise.
	alpha := 1 - math.Exp(-2*math.Pi*5000/float64(rate))
	var lp, energy float64
	for i := range ir {
		lp += alpha * (rng.Float64()*2 - 1 - lp)
		env := math.Pow(1-float64(i)/float64(n), decay)
		ir[i] = lp * env
		energy += ir[i] * ir[i]
	}
	if energy > 0 {
		norm := 1 / math.Sqrt(energy)
		for i := range ir {
			ir[i] *= norm
		}
	}
	return ir
}

// NewReverb returns a reverb mixing wet parts of the convolved signal with
// 1-wet parts of the dry input.
func NewReverb(ir []float64, wet float64) *Reverb {
	if len(ir) == 0 {
		ir = []float64{1}
	}
	size := 1 << bits.Len(uint(2*len(ir)-1))
	padded := make([]float64, size)
	copy(padded, ir)
	return &Reverb{
		wet:      wet,
		ir:       ir,
		fftSize:  size,
		spectrum: fourier.NewFFT(size).Coefficients(nil, padded),
	}
}

// Process returns dry convolved with the impulse response, mixed at the wet
// ratio and truncated to len(dry). The tail beyond the input is dropped; the
// timeline reserves room for it.
func (r *Reverb) Process(dry []float32) []float32 {
	out := make([]float32, len(dry))
	if len(dry) == 0 {
		return out
	}
	wetBuf := r.convolve(dry)
	dryGain := float32(1 - r.wet)
	wetGain := float32(r.wet)
	for i, s := range dry {
		out[i] = dryGain*s + wetGain*float32(wetBuf[i])
	}
	return out
}

// convolve runs overlap-add FFT convolution of x with the impulse response.
// The result has len(x) samples.
func (r *Reverb) convolve(x []float32) []float64 {
	n := r.fftSize
	block := n - len(r.ir) + 1
	fft := fourier.NewFFT(n)
	out := make([]float64, len(x)+len(r.ir))
	seq := make([]float64, n)
	coeff := make([]complex128, n/2+1)
	scale := 1 / float64(n)

	for start := 0; start < len(x); start += block {
		end := min(start+block, len(x))
		clear(seq)
		for i := start; i < end; i++ {
			seq[i-start] = float64(x[i])
		}
		fft.Coefficients(coeff, seq)
		for k := range coeff {
			coeff[k] *= r.spectrum[k]
		}
		fft.Sequence(seq, coeff)
		limit := min(n, len(out)-start)
		for i := 0; i < limit; i++ {
			out[start+i] += seq[i] * scale
		}
	}
	return out[:len(x)]
}
