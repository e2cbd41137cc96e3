package transport

import (
	"encoding/binary"
	"math"

	"github.com/MrWong99/storymix/pkg/audio"
	"github.com/MrWong99/storymix/pkg/script"
)

// Read renders the next block of the mix into p as interleaved PCM16 LE
// frames. It reads the current gains and speed once, resamples every track
// at the shared position with linear interpolation, sums them into the master
// bus and runs the bus through the compressor. Score and ambience wrap around
// their own length; dialogue and sfx fall silent past their end.
//
// While stopped, Read writes silence. It never returns an error.
func (t *Transport) Read(p []byte) (int, error) {
	frameBytes := 2 * t.pc.Channels()
	frames := len(p) / frameBytes

	tracks, playing := t.live.Load(), t.playing.Load()

	t.mixMu.Lock()
	defer t.mixMu.Unlock()

	if cap(t.frame) < frames {
		t.frame = make([]float64, frames)
	}
	bus := t.frame[:frames]
	clear(bus)

	if playing && tracks != nil {
		step := t.Speed() * float64(audio.SampleRate) / float64(t.pc.SampleRate())
		for _, tr := range script.Tracks {
			g := t.Volume(tr)
			if g == 0 {
				continue
			}
			mixTrack(bus, tracks.Clip(tr), tr.Loops(), t.pos, step, g)
		}
		t.pos += step * float64(frames)
		for i, v := range bus {
			bus[i] = t.comp.process(v)
		}
	}

	for i, v := range bus {
		s := uint16(audio.FloatToInt16(float32(v)))
		for ch := range t.pc.Channels() {
			binary.LittleEndian.PutUint16(p[i*frameBytes+2*ch:], s)
		}
	}
	return frames * frameBytes, nil
}

// mixTrack adds clip, read from position pos advancing by step per frame, into
// bus with gain g.
func mixTrack(bus []float64, clip *audio.Clip, loop bool, pos, step, g float64) {
	n := clip.Len()
	if n == 0 {
		return
	}
	for i := range bus {
		x := pos + float64(i)*step
		if loop {
			x = math.Mod(x, float64(n))
		} else if x >= float64(n) {
			return
		}
		idx := int(x)
		frac := x - float64(idx)
		s0 := float64(clip.Samples[idx])
		s1 := s0
		if idx+1 < n {
			s1 = float64(clip.Samples[idx+1])
		} else if loop {
			s1 = float64(clip.Samples[0])
		}
		bus[i] += g * (s0 + (s1-s0)*frac)
	}
}
