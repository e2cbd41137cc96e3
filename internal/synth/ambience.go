package synth

import (
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/MrWong99/storymix/pkg/audio"
	"github.com/MrWong99/storymix/pkg/script"
)

const (
	// MaxAmbienceLoop caps the rendered ambience; playback loops it.
	MaxAmbienceLoop = 30 * time.Second

	// MaxAmbienceLayers is the number of keyword layers over the noise bed.
	MaxAmbienceLayers = 4

	ambienceFade = 0.5
)

// layer renders n samples of one ambience element at unit scale.
type layer func(n int, rng *rand.Rand) buffer

type ambienceRule struct {
	name  string
	words []string
	gain  float64
	make  layer
}

var ambienceRules = []ambienceRule{
	{name: "wind", words: []string{"wind", "breeze", "storm"}, gain: 0.5, make: windLayer},
	{name: "birds", words: []string{"bird", "chirp", "song"}, gain: 0.25, make: birdsLayer},
	{name: "crickets", words: []string{"cricket", "insect", "cicada"}, gain: 0.15, make: cricketsLayer},
	{name: "water", words: []string{"water", "river", "stream", "rain", "wave", "sea", "ocean"}, gain: 0.4, make: waterLayer},
	{name: "traffic", words: []string{"traffic", "car", "street", "road"}, gain: 0.4, make: trafficLayer},
	{name: "crowd", words: []string{"crowd", "murmur", "chatter", "people", "voices"}, gain: 0.35, make: crowdLayer},
	{name: "hum", words: []string{"hum", "machine", "engine", "fridge", "generator"}, gain: 0.2, make: humLayer},
	{name: "announcement", words: []string{"announcement", "pa ", "speaker", "intercom", "station"}, gain: 0.3, make: announcementLayer},
	{name: "clock", words: []string{"clock", "tick"}, gain: 0.25, make: clockLayer},
}

// AmbienceLayers returns the layer names the scene's ambient sounds select,
// in selection order, at most [MaxAmbienceLayers].
func AmbienceLayers(scene script.Scene) []string {
	rules := selectLayers(scene)
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.name
	}
	return names
}

func selectLayers(scene script.Scene) []ambienceRule {
	var picked []ambienceRule
	seen := make(map[string]bool)
	for _, sound := range scene.AmbientSounds {
		s := strings.ToLower(sound) + " "
		for _, r := range ambienceRules {
			if seen[r.name] || !matchesAny(s, r.words) {
				continue
			}
			seen[r.name] = true
			picked = append(picked, r)
			if len(picked) == MaxAmbienceLayers {
				return picked
			}
			break
		}
	}
	return picked
}

func matchesAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Ambience renders a loopable background for scene. The output covers
// duration but never exceeds [MaxAmbienceLoop]; it fades in and out so the
// loop point does not click.
func Ambience(scene script.Scene, duration time.Duration, rng *rand.Rand) *audio.Clip {
	n := audio.SamplesFor(min(duration, MaxAmbienceLoop), rate)
	if n == 0 {
		return &audio.Clip{SampleRate: rate}
	}
	out := make(buffer, n)

	lp := newLowpass(bedCutoff(scene.RoomTone))
	bed := noise(n, rng).filter(lp.step)
	out.add(bed, 0, 0.6)

	for _, r := range selectLayers(scene) {
		out.add(r.make(n, rng), 0, r.gain)
	}

	fade := min(ambienceFade, seconds(n)/4)
	return out.envelope(fade, fade).clip(0.3)
}

// bedCutoff darkens the noise bed for enclosed rooms.
func bedCutoff(roomTone string) float64 {
	t := strings.ToLower(roomTone)
	switch {
	case strings.Contains(t, "small"), strings.Contains(t, "indoor"), strings.Contains(t, "room"):
		return 250
	case strings.Contains(t, "large"), strings.Contains(t, "hall"), strings.Contains(t, "cave"):
		return 400
	default:
		return 800
	}
}

func windLayer(n int, rng *rand.Rand) buffer {
	bp := newBandpass(400, 0.9)
	sweep := lfo(0.07, 250, 700, rng.Float64())
	b := noise(n, rng)
	for i, v := range b {
		if i%128 == 0 {
			bp.tune(sweep(seconds(i)), 0.9)
		}
		b[i] = bp.step(v)
	}
	return b.modulate(lfo(0.11, 0.3, 1, rng.Float64()))
}

func birdsLayer(n int, rng *rand.Rand) buffer {
	out := make(buffer, n)
	for t := between(rng, 0.2, 1.5); t < seconds(n); t += between(rng, 0.8, 3) {
		calls := 1 + rng.IntN(4)
		f0 := between(rng, 2200, 4000)
		for c := range calls {
			d := between(rng, 0.06, 0.14)
			chirp := tone(at(d), sine, glide(f0, f0*between(rng, 1.2, 1.6), d)).envelope(d*0.2, d*0.5)
			out.add(chirp, at(t+float64(c)*d*1.4), between(rng, 0.5, 1))
		}
	}
	return out
}

func cricketsLayer(n int, rng *rand.Rand) buffer {
	carrier := between(rng, 4200, 4800)
	pulse := between(rng, 14, 18)
	period := between(rng, 0.8, 1.2)
	b := tone(n, sine, constant(carrier))
	return b.modulate(func(t float64) float64 {
		if math.Mod(t, period) > 0.35 {
			return 0
		}
		return math.Max(0, math.Sin(2*math.Pi*pulse*t))
	})
}

func waterLayer(n int, rng *rand.Rand) buffer {
	lp := newLowpass(1200)
	b := noise(n, rng).filter(lp.step)
	bp := newBandpass(600, 2)
	babble := noise(n, rng)
	for i, v := range babble {
		if i%256 == 0 {
			bp.tune(between(rng, 400, 1400), 3)
		}
		babble[i] = bp.step(v)
	}
	b.add(babble, 0, 0.8)
	return b.modulate(lfo(0.15, 0.6, 1, rng.Float64()))
}

func trafficLayer(n int, rng *rand.Rand) buffer {
	lp := newLowpass(200)
	b := noise(n, rng).filter(lp.step)
	// Passing cars: slow swells at irregular intervals.
	var passes []float64
	for t := between(rng, 0, 3); t < seconds(n); t += between(rng, 3, 8) {
		passes = append(passes, t)
	}
	return b.modulate(func(t float64) float64 {
		g := 0.3
		for _, p := range passes {
			d := (t - p) / 1.5
			g += math.Exp(-d * d)
		}
		return g
	})
}

func crowdLayer(n int, rng *rand.Rand) buffer {
	out := make(buffer, n)
	for range 4 {
		bp := newBandpass(between(rng, 300, 900), 1.5)
		voice := noise(n, rng).filter(bp.step)
		voice.modulate(lfo(between(rng, 3, 5), 0.1, 1, rng.Float64()))
		out.add(voice, 0, 0.5)
	}
	return out
}

func humLayer(n int, rng *rand.Rand) buffer {
	mains := 50.0
	if rng.IntN(2) == 0 {
		mains = 60
	}
	b := tone(n, sine, constant(mains))
	b.add(tone(n, sine, constant(mains*2)), 0, 0.5)
	b.add(tone(n, sine, constant(mains*3)), 0, 0.25)
	lp := newLowpass(300)
	b.add(noise(n, rng).filter(lp.step), 0, 0.2)
	return b
}

func announcementLayer(n int, rng *rand.Rand) buffer {
	out := make(buffer, n)
	for t := between(rng, 2, 6); t < seconds(n)-3; t += between(rng, 10, 20) {
		ding := tone(at(0.6), sine, constant(659.25)).decay(0.3)
		dong := tone(at(0.9), sine, constant(523.25)).decay(0.4)
		out.add(ding, at(t), 0.6)
		out.add(dong, at(t+0.45), 0.6)

		// Muffled speech: band-passed noise chopped at syllable rate.
		bp := newBandpass(800, 1.2)
		speech := noise(at(2), rng).filter(bp.step)
		speech.modulate(lfo(between(rng, 4, 6), 0, 1, rng.Float64())).envelope(0.1, 0.3)
		out.add(speech, at(t+1.4), 0.5)
	}
	return out
}

func clockLayer(n int, rng *rand.Rand) buffer {
	out := make(buffer, n)
	hp := newHighpass(2500)
	click := noise(at(0.015), rng).filter(hp.step).decay(0.003)
	offset := between(rng, 0, 0.5)
	for i := 0; ; i++ {
		t := offset + float64(i)
		if t >= seconds(n) {
			break
		}
		g := 1.0
		if i%2 == 1 {
			g = 0.7
		}
		out.add(click, at(t), g)
	}
	return out
}
