package audio

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := min(max((l+r)/2, -32768), 32767)
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. The input must be little-endian int16 samples. If srcRate ==
// dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	samples, err := DecodePCM16(pcm[:len(pcm)&^1])
	if err != nil {
		return pcm
	}
	src := make([]float32, len(samples))
	for i, s := range samples {
		src[i] = float32(s)
	}
	dst := resampleLinear(src, srcRate, dstRate)
	out := make([]int16, len(dst))
	for i, s := range dst {
		out[i] = int16(min(max(s, -32768), 32767))
	}
	return EncodePCM16(out)
}

// Resample returns c converted to rate with linear interpolation. The clip is
// returned as is when it already has that rate.
func Resample(c *Clip, rate int) *Clip {
	if c == nil || c.SampleRate == rate || c.SampleRate <= 0 || rate <= 0 {
		return c
	}
	return &Clip{Samples: resampleLinear(c.Samples, c.SampleRate, rate), SampleRate: rate}
}

func resampleLinear(src []float32, srcRate, dstRate int) []float32 {
	n := int(int64(len(src)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		s0 := src[idx]
		s1 := s0
		if idx+1 < len(src) {
			s1 = src[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}
