package script

import "strings"

// Mood selects the score's scale, progression and tempo.
type Mood string

const (
	MoodHappy      Mood = "happy"
	MoodSad        Mood = "sad"
	MoodTense      Mood = "tense"
	MoodMysterious Mood = "mysterious"
	MoodRomantic   Mood = "romantic"
	MoodNeutral    Mood = "neutral"
)

// IsValid reports whether m is a recognised mood.
func (m Mood) IsValid() bool {
	switch m {
	case MoodHappy, MoodSad, MoodTense, MoodMysterious, MoodRomantic, MoodNeutral:
		return true
	}
	return false
}

// ParseMood normalises a free-form mood. Unknown values map to [MoodNeutral].
func ParseMood(s string) Mood {
	m := Mood(strings.ToLower(strings.TrimSpace(s)))
	if m.IsValid() {
		return m
	}
	return MoodNeutral
}

// Perspective is the narrative point of view. It decides the narrator voice.
type Perspective string

const (
	FirstPerson Perspective = "first_person"
	ThirdPerson Perspective = "third_person"
)

// ParsePerspective normalises a free-form perspective. Anything that is not
// recognisably first person is treated as third person.
func ParsePerspective(s string) Perspective {
	switch strings.ToLower(strings.NewReplacer("-", "_", " ", "_").Replace(strings.TrimSpace(s))) {
	case "first_person", "first", "1st", "1st_person":
		return FirstPerson
	default:
		return ThirdPerson
	}
}

// Scene describes the setting of the whole script.
type Scene struct {
	Location    string      `json:"location"`
	Mood        Mood        `json:"mood"`
	TimeOfDay   string      `json:"time_of_day"`
	RoomTone    string      `json:"room_tone"`
	MusicStyle  string      `json:"music_style"`
	Perspective Perspective `json:"perspective"`

	// Protagonist is the narrating character's name in first-person scripts.
	Protagonist string `json:"protagonist,omitempty"`

	// AmbientSounds holds 3–5 keywords describing the background.
	AmbientSounds []string `json:"ambient_sounds"`
}
