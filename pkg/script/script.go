// Package script defines the data model shared by every storymix stage: the
// segments and scene produced by text analysis, the speech tasks derived from
// them, the timeline that places them, and the finished audio tracks.
//
// These types are deliberately plain structs. Each stage fills in the fields it
// owns and passes the values on; nothing here is safe for concurrent mutation.
package script

import (
	"strings"
	"time"

	"github.com/MrWong99/storymix/pkg/audio"
)

// NarratorName is the speaker name carried by every narration segment.
const NarratorName = "Narrator"

// Gender is the speaker gender tag recorded by text analysis. It only drives
// voice selection.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// ParseGender normalises a free-form gender tag.
func ParseGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m", "man":
		return GenderMale
	case "female", "f", "woman":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

// Segment is the smallest unit of script text.
//
// Text, Speaker, IsNarrator, Gender, Emotion and SFX come from text analysis
// and are never changed afterwards. Voice and SpeechDuration are filled in by
// the generation stages.
type Segment struct {
	// Text is the verbatim slice of the source prose.
	Text string `json:"text"`

	// Speaker is the character name, or [NarratorName] for narration.
	Speaker string `json:"speaker"`

	// IsNarrator marks narration. Narration and dialogue never share a segment.
	IsNarrator bool `json:"is_narrator"`

	// Gender is the speaker's gender tag.
	Gender Gender `json:"gender,omitempty"`

	// Emotion is the delivery tag (e.g. "angry", "whispering").
	Emotion string `json:"emotion,omitempty"`

	// SFX is an optional sound-effect keyword (e.g. "door creak"). Empty means
	// the segment has no effect.
	SFX string `json:"sfx,omitempty"`

	// Voice is the voice id assigned by casting.
	Voice string `json:"voice,omitempty"`

	// SpeechDuration is the segment's estimated share of its task's clip.
	SpeechDuration time.Duration `json:"speech_duration,omitempty"`
}

// HasSFX reports whether the segment carries an effect keyword.
func (s Segment) HasSFX() bool {
	return strings.TrimSpace(s.SFX) != ""
}

// Script is the result of one analysis run.
type Script struct {
	Segments []Segment `json:"segments"`
	Scene    Scene     `json:"scene"`
}

// SpeechTask is a contiguous run of segments that share speaker and narrator
// status and contain no effect segments. It is synthesised as one request.
type SpeechTask struct {
	Speaker     string `json:"speaker"`
	IsNarrator  bool   `json:"is_narrator"`
	Voice       string `json:"voice"`
	Instruction string `json:"instruction"`

	// Text is the member segments' text joined with single spaces.
	Text string `json:"text"`

	// Segments lists the originating segment indices in order. Segments[0]
	// owns the task's clip; later members only reserve time on the timeline.
	Segments []int `json:"segments"`
}

// Owner returns the index of the segment that owns the task's clip.
func (t SpeechTask) Owner() int {
	return t.Segments[0]
}

// Timeline places every segment on the shared mix timeline.
type Timeline struct {
	// Offsets holds the start offset of each segment, indexed like the
	// segment slice. Offsets are non-decreasing.
	Offsets []time.Duration

	// Duration is the total mix length. It is at least the end of every
	// placed clip.
	Duration time.Duration
}

// Track identifies one of the four independently mixed channels.
type Track int

const (
	TrackDialogue Track = iota
	TrackScore
	TrackAmbience
	TrackSFX
)

// Tracks lists every track in mixing order.
var Tracks = [...]Track{TrackDialogue, TrackScore, TrackAmbience, TrackSFX}

// String returns the track's wire name.
func (t Track) String() string {
	switch t {
	case TrackDialogue:
		return "dialogue"
	case TrackScore:
		return "score"
	case TrackAmbience:
		return "ambience"
	case TrackSFX:
		return "sfx"
	default:
		return "unknown"
	}
}

// ParseTrack returns the track named s.
func ParseTrack(s string) (Track, bool) {
	for _, t := range Tracks {
		if t.String() == strings.ToLower(s) {
			return t, true
		}
	}
	return 0, false
}

// Loops reports whether the track repeats during playback. Score and ambience
// are looped beds; dialogue and sfx play once.
func (t Track) Loops() bool {
	return t == TrackScore || t == TrackAmbience
}

// AudioTracks holds the four finished buffers of one mix. It is immutable once
// produced.
type AudioTracks struct {
	Dialogue *audio.Clip
	Score    *audio.Clip
	Ambience *audio.Clip
	SFX      *audio.Clip

	// Duration is the shared mix length.
	Duration time.Duration
}

// Clip returns the buffer for track t.
func (a *AudioTracks) Clip(t Track) *audio.Clip {
	switch t {
	case TrackDialogue:
		return a.Dialogue
	case TrackScore:
		return a.Score
	case TrackAmbience:
		return a.Ambience
	case TrackSFX:
		return a.SFX
	default:
		return nil
	}
}
