package synth

import (
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/MrWong99/storymix/pkg/audio"
)

// Recipe renders one effect.
type Recipe func(rng *rand.Rand) buffer

type sfxRule struct {
	name  string
	words []string
	make  Recipe
}

// sfxRules is checked in order and the first rule with a matching word wins,
// so "wind chimes shatter" renders as wind.
var sfxRules = []sfxRule{
	{name: "thunder", words: []string{"thunder"}, make: thunder},
	{name: "wind", words: []string{"wind"}, make: windGust},
	{name: "creak", words: []string{"door", "creak"}, make: creak},
	{name: "footsteps", words: []string{"footstep"}, make: footsteps},
	{name: "shatter", words: []string{"glass", "shatter"}, make: shatter},
	{name: "breath", words: []string{"breath"}, make: breath},
	{name: "rustle", words: []string{"rustle"}, make: rustle},
}

// ImpactRecipe names the fallback recipe for unmatched keywords.
const ImpactRecipe = "impact"

// ClassifySFX returns the recipe name keyword dispatches to.
func ClassifySFX(keyword string) string {
	if r, ok := matchSFX(keyword); ok {
		return r.name
	}
	return ImpactRecipe
}

func matchSFX(keyword string) (sfxRule, bool) {
	k := strings.ToLower(keyword)
	for _, r := range sfxRules {
		for _, w := range r.words {
			if strings.Contains(k, w) {
				return r, true
			}
		}
	}
	return sfxRule{}, false
}

// SFX renders the effect for keyword. Amplitude is randomised per call.
func SFX(keyword string, rng *rand.Rand) *audio.Clip {
	recipe := Recipe(impact)
	if r, ok := matchSFX(keyword); ok {
		recipe = r.make
	}
	return recipe(rng).clip(between(rng, 0.6, 0.85))
}

func thunder(rng *rand.Rand) buffer {
	out := newBuffer(time.Duration(between(rng, 3, 4.5) * float64(time.Second)))

	hp := newHighpass(2000)
	crack := noise(at(0.12), rng).filter(hp.step).decay(0.04)
	out.add(crack, 0, 0.6)

	lp := newLowpass(between(rng, 90, 160))
	rumble := noise(len(out), rng).filter(lp.step)
	swell := between(rng, 0.5, 1.2)
	flicker := between(rng, 3, 7)
	rumble.modulate(func(t float64) float64 {
		attack := min(t/0.15, 1)
		return attack * math.Exp(-t/swell) * (0.7 + 0.3*math.Sin(2*math.Pi*flicker*t))
	})
	out.add(rumble, at(0.03), 1)
	return out
}

func windGust(rng *rand.Rand) buffer {
	n := at(between(rng, 2.5, 3.5))
	bp := newBandpass(500, 1.2)
	sweep := lfo(between(rng, 0.2, 0.4), 300, 900, rng.Float64())
	b := noise(n, rng)
	for i, v := range b {
		if i%64 == 0 {
			bp.tune(sweep(seconds(i)), 1.2)
		}
		b[i] = bp.step(v)
	}
	return b.modulate(lfo(0.3, 0.4, 1, rng.Float64())).envelope(0.6, 0.9)
}

func creak(rng *rand.Rand) buffer {
	d := between(rng, 1.1, 1.7)
	n := at(d)
	base := between(rng, 70, 110)
	freq := func(t float64) float64 {
		return base*(1+0.6*t/d) + 8*math.Sin(2*math.Pi*13*t)
	}
	b := tone(n, saw, freq)
	bp := newBandpass(between(rng, 700, 1100), 4)
	b.filter(bp.step)
	// Stick-slip friction: irregular amplitude bursts.
	slip := between(rng, 18, 24)
	return b.modulate(func(t float64) float64 {
		return 0.5 + 0.5*math.Abs(math.Sin(2*math.Pi*slip*t))
	}).envelope(0.08, 0.25)
}

func footsteps(rng *rand.Rand) buffer {
	steps := 4
	interval := between(rng, 0.45, 0.6)
	out := make(buffer, at(interval*float64(steps)+0.3))
	for s := range steps {
		lp := newLowpass(between(rng, 300, 600))
		thud := noise(at(0.12), rng).filter(lp.step).decay(0.03)
		body := tone(at(0.12), sine, glide(90, 50, 0.1)).decay(0.04)
		thud.add(body, 0, 0.5)
		jitter := between(rng, -0.03, 0.03)
		out.add(thud, at(float64(s)*interval+jitter+0.05), between(rng, 0.7, 1))
	}
	return out
}

func shatter(rng *rand.Rand) buffer {
	out := make(buffer, at(between(rng, 1, 1.4)))
	hp := newHighpass(3000)
	burst := noise(at(0.4), rng).filter(hp.step).decay(0.08)
	out.add(burst, 0, 1)
	for range 6 + rng.IntN(6) {
		ping := tone(at(0.5), sine, constant(between(rng, 2500, 6500))).decay(between(rng, 0.05, 0.2))
		out.add(ping, at(between(rng, 0, 0.5)), between(rng, 0.1, 0.35))
	}
	return out
}

func breath(rng *rand.Rand) buffer {
	d := between(rng, 1.6, 2.2)
	bp := newBandpass(between(rng, 900, 1400), 0.8)
	b := noise(at(d), rng).filter(bp.step)
	inhale := between(rng, 0.4, 0.5)
	return b.modulate(func(t float64) float64 {
		p := t / d
		if p < inhale {
			return math.Sin(math.Pi * p / inhale)
		}
		return 0.8 * math.Sin(math.Pi*(p-inhale)/(1-inhale))
	})
}

func rustle(rng *rand.Rand) buffer {
	out := make(buffer, at(between(rng, 1.2, 1.8)))
	hp := newHighpass(1500)
	for range 20 + rng.IntN(15) {
		grain := noise(at(between(rng, 0.01, 0.05)), rng).filter(hp.step).envelope(0.004, 0.01)
		out.add(grain, rng.IntN(len(out)), between(rng, 0.2, 1))
	}
	lp := newLowpass(6000)
	return out.filter(lp.step)
}

func impact(rng *rand.Rand) buffer {
	out := make(buffer, at(0.6))
	lp := newLowpass(between(rng, 600, 1500))
	hit := noise(len(out), rng).filter(lp.step).decay(between(rng, 0.05, 0.12))
	out.add(hit, 0, 1)
	body := tone(len(out), sine, glide(between(rng, 100, 160), 45, 0.2)).decay(0.1)
	out.add(body, 0, 0.6)
	return out
}
