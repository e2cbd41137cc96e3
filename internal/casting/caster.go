package casting

import (
	"maps"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/storymix/pkg/script"
)

// Voice is one entry of the voice catalogue.
type Voice struct {
	ID     string        `yaml:"id" json:"id"`
	Gender script.Gender `yaml:"gender" json:"gender"`
}

// DefaultCatalogue lists the built-in voices of the OpenAI speech models.
func DefaultCatalogue() []Voice {
	return []Voice{
		{ID: "alloy", Gender: script.GenderFemale},
		{ID: "ash", Gender: script.GenderMale},
		{ID: "ballad", Gender: script.GenderMale},
		{ID: "coral", Gender: script.GenderFemale},
		{ID: "echo", Gender: script.GenderMale},
		{ID: "nova", Gender: script.GenderFemale},
		{ID: "onyx", Gender: script.GenderMale},
		{ID: "sage", Gender: script.GenderFemale},
		{ID: "shimmer", Gender: script.GenderFemale},
		{ID: "verse", Gender: script.GenderMale},
	}
}

// Built-in voice roles.
const (
	DefaultNarratorVoice = "fable"
	DefaultFallbackVoice = "alloy"
)

// firstPersonPronoun is the speaker name analysis uses for an unnamed
// first-person protagonist.
const firstPersonPronoun = "I"

// Caster holds the voice profile of one session: a fixed speaker to voice
// mapping. It is safe for concurrent use.
type Caster struct {
	voices   []Voice
	narrator string
	fallback string

	mu   sync.Mutex
	rng  *rand.Rand
	cast map[string]string
}

// CasterOption configures a [Caster].
type CasterOption func(*Caster)

// WithNarratorVoice sets the dedicated third-person narrator voice.
func WithNarratorVoice(id string) CasterOption {
	return func(c *Caster) { c.narrator = id }
}

// WithFallbackVoice sets the voice used when no other choice applies.
func WithFallbackVoice(id string) CasterOption {
	return func(c *Caster) { c.fallback = id }
}

// WithRand sets the random source used to pick character voices.
func WithRand(r *rand.Rand) CasterOption {
	return func(c *Caster) { c.rng = r }
}

// NewCaster returns a caster drawing from voices. An empty catalogue selects
// [DefaultCatalogue].
func NewCaster(voices []Voice, opts ...CasterOption) *Caster {
	if len(voices) == 0 {
		voices = DefaultCatalogue()
	}
	c := &Caster{
		voices:   slices.Clone(voices),
		narrator: DefaultNarratorVoice,
		fallback: DefaultFallbackVoice,
		cast:     make(map[string]string),
	}
	for _, o := range opts {
		o(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return c
}

// VoiceFor returns the voice of a character, assigning one on first use. The
// pool is filtered by gender and falls back to the whole catalogue when no
// voice of that gender exists.
func (c *Caster) VoiceFor(speaker string, gender script.Gender) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voiceForLocked(speaker, gender)
}

func (c *Caster) voiceForLocked(speaker string, gender script.Gender) string {
	if v, ok := c.cast[speaker]; ok {
		return v
	}
	pool := c.voices
	if gender == script.GenderMale || gender == script.GenderFemale {
		var matched []Voice
		for _, v := range c.voices {
			if v.Gender == gender {
				matched = append(matched, v)
			}
		}
		if len(matched) > 0 {
			pool = matched
		}
	}
	v := pool[c.rng.IntN(len(pool))].ID
	c.cast[speaker] = v
	return v
}

// Assign fills in Voice on every segment of s. Characters are cast first so a
// first-person narrator can inherit the protagonist's voice.
func (c *Caster) Assign(s *script.Script) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range s.Segments {
		seg := &s.Segments[i]
		if !seg.IsNarrator {
			seg.Voice = c.voiceForLocked(seg.Speaker, seg.Gender)
		}
	}
	narrator := c.narratorVoiceLocked(s.Scene)
	c.cast[script.NarratorName] = narrator
	for i := range s.Segments {
		if s.Segments[i].IsNarrator {
			s.Segments[i].Voice = narrator
		}
	}
}

func (c *Caster) narratorVoiceLocked(scene script.Scene) string {
	if scene.Perspective != script.FirstPerson {
		return c.narrator
	}
	if name := strings.TrimSpace(scene.Protagonist); name != "" {
		speakers := slices.DeleteFunc(slices.Sorted(maps.Keys(c.cast)), func(s string) bool {
			return s == script.NarratorName || s == firstPersonPronoun
		})
		if speaker, ok := matchProtagonist(name, speakers); ok {
			return c.cast[speaker]
		}
	}
	if v, ok := c.cast[firstPersonPronoun]; ok {
		return v
	}
	return c.fallback
}

// Cast returns a copy of the current speaker to voice mapping.
func (c *Caster) Cast() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.cast)
}

// Plan assigns voices on s and merges its segments into speech tasks.
func (c *Caster) Plan(s *script.Script) []script.SpeechTask {
	c.Assign(s)
	return Merge(s.Segments)
}
