package synth

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/MrWong99/storymix/pkg/audio"
	"github.com/MrWong99/storymix/pkg/script"
)

// noteTable maps MIDI note numbers 24 (C1) to 96 (C7) to equal-tempered
// frequencies.
var noteTable = func() [97]float64 {
	var t [97]float64
	for n := range t {
		t[n] = 440 * math.Pow(2, float64(n-69)/12)
	}
	return t
}()

const beatsPerMeasure = 4

// moodStyle holds the musical parameters of one mood.
type moodStyle struct {
	root        int   // MIDI note of the tonic in octave 3
	scale       []int // semitone offsets of the seven scale degrees
	progression []int // chord roots as zero-based scale degrees, one per measure
	bpm         float64

	// bass marks which of the eight eighth-note steps of a measure play.
	bass [8]bool

	chordWave    func(float64) float64
	melody       bool
	melodyChance float64
	percussion   bool
}

var (
	major         = []int{0, 2, 4, 5, 7, 9, 11}
	naturalMinor  = []int{0, 2, 3, 5, 7, 8, 10}
	harmonicMinor = []int{0, 2, 3, 5, 7, 8, 11}
	phrygian      = []int{0, 1, 3, 5, 7, 8, 10}
)

var moods = map[script.Mood]moodStyle{
	script.MoodHappy: {
		root: 60, scale: major, progression: []int{0, 4, 5, 3}, bpm: 112,
		bass:      [8]bool{true, false, true, false, true, false, true, true},
		chordWave: triangle, melody: true, melodyChance: 0.6, percussion: true,
	},
	script.MoodSad: {
		root: 57, scale: naturalMinor, progression: []int{0, 5, 2, 6}, bpm: 66,
		bass:      [8]bool{true, false, false, false, true, false, false, false},
		chordWave: sine, melody: true, melodyChance: 0.3, percussion: false,
	},
	script.MoodTense: {
		root: 50, scale: phrygian, progression: []int{0, 1, 0, 4}, bpm: 96,
		bass:      [8]bool{true, true, true, true, true, true, true, true},
		chordWave: saw, melody: true, melodyChance: 0.35, percussion: true,
	},
	script.MoodMysterious: {
		root: 52, scale: harmonicMinor, progression: []int{0, 3, 5, 4}, bpm: 60,
		bass:      [8]bool{true, false, false, false, false, false, false, false},
		chordWave: sine, melody: false, percussion: false,
	},
	script.MoodRomantic: {
		root: 53, scale: major, progression: []int{0, 5, 1, 4}, bpm: 76,
		bass:      [8]bool{true, false, false, true, false, false, true, false},
		chordWave: triangle, melody: true, melodyChance: 0.45, percussion: false,
	},
}

// degree returns the MIDI note of scale degree d above root, wrapping into
// higher octaves.
func (m moodStyle) degree(d int) int {
	oct := d / len(m.scale)
	if d < 0 && d%len(m.scale) != 0 {
		oct--
	}
	idx := d - oct*len(m.scale)
	return m.root + 12*oct + m.scale[idx]
}

func freq(note int) float64 {
	return noteTable[min(max(note, 24), 96)]
}

// Score renders a score of the given mood and duration. Neutral and unknown
// moods yield silence.
func Score(mood script.Mood, duration time.Duration, rng *rand.Rand) *audio.Clip {
	n := audio.SamplesFor(duration, rate)
	style, ok := moods[mood]
	if !ok || n == 0 {
		return &audio.Clip{Samples: make([]float32, n), SampleRate: rate}
	}

	beat := 60 / style.bpm
	measure := beat * beatsPerMeasure
	measures := int(math.Ceil(seconds(n) / measure))

	chords := make(buffer, n)
	bass := make(buffer, n)
	melody := make(buffer, n)
	drums := make(buffer, n)

	walk := 7 + rng.IntN(3)
	for m := range measures {
		start := float64(m) * measure
		root := style.progression[m%len(style.progression)]

		renderChord(chords, style, root, start, measure)
		renderBass(bass, style, root, start, beat)
		if style.melody {
			walk = renderMelody(melody, style, walk, start, beat, rng)
		}
		if style.percussion {
			renderDrums(drums, start, beat, rng)
		}
	}

	out := make(buffer, n)
	out.add(chords, 0, 0.35)
	out.add(bass, 0, 0.4)
	if style.melody {
		melody.feedbackDelay(time.Duration(beat*0.75*float64(time.Second)), 0.35, 0.3)
		out.add(melody, 0, 0.3)
	}
	if style.percussion {
		out.add(drums, 0, 0.2)
	}
	return out.clip(0.6)
}

// renderChord plays a triad on scale degrees root, root+2 and root+4 with two
// slightly detuned oscillators per tone and one swell per measure.
func renderChord(dst buffer, style moodStyle, root int, start, length float64) {
	n := at(length)
	chord := make(buffer, n)
	for _, step := range []int{0, 2, 4} {
		f := freq(style.degree(root + step))
		for _, cents := range []float64{-4, 4} {
			detuned := f * math.Pow(2, cents/1200)
			chord.add(tone(n, style.chordWave, constant(detuned)), 0, 1)
		}
	}
	lp := newLowpass(1800)
	chord.filter(lp.step).envelope(length*0.15, length*0.25)
	dst.add(chord, at(start), 1)
}

func renderBass(dst buffer, style moodStyle, root int, start, beat float64) {
	step := beat / 2
	note := freq(style.degree(root) - 24)
	for i, on := range style.bass {
		if !on {
			continue
		}
		pluck := tone(at(step*0.95), triangle, constant(note)).decay(step * 0.6).envelope(0.005, 0.02)
		dst.add(pluck, at(start+float64(i)*step), 1)
	}
}

// renderMelody places eighth notes with probability melodyChance, moving the
// scale position by a small random step each time. It returns the position
// reached so the walk continues in the next measure.
func renderMelody(dst buffer, style moodStyle, pos int, start, beat float64, rng *rand.Rand) int {
	step := beat / 2
	for i := range 8 {
		if rng.Float64() >= style.melodyChance {
			continue
		}
		pos += rng.IntN(5) - 2
		pos = min(max(pos, 5), 14)
		f := freq(style.degree(pos) + 12)
		d := step * (1 + float64(rng.IntN(2)))
		note := tone(at(d), sine, constant(f)).envelope(0.01, d*0.5)
		dst.add(note, at(start+float64(i)*step), between(rng, 0.6, 1))
	}
	return pos
}

func renderDrums(dst buffer, start, beat float64, rng *rand.Rand) {
	for b := range beatsPerMeasure {
		t := start + float64(b)*beat
		if b%2 == 0 {
			lp := newLowpass(150)
			kick := noise(at(0.15), rng).filter(lp.step).decay(0.04)
			kick.add(tone(at(0.15), sine, glide(110, 45, 0.08)).decay(0.05), 0, 0.8)
			dst.add(kick, at(t), 1)
		}
		for _, off := range []float64{0, 0.5} {
			if rng.Float64() < 0.7 {
				hp := newHighpass(7000)
				hat := noise(at(0.03), rng).filter(hp.step).decay(0.008)
				dst.add(hat, at(t+off*beat), between(rng, 0.3, 0.6))
			}
		}
	}
}
