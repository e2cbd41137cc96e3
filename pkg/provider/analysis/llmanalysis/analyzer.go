// Package llmanalysis implements [analysis.Analyzer] on top of an
// [llm.Provider].
//
// The model is asked for a single JSON object describing every segment and
// the scene. The response is normalised (moods, perspectives and genders are
// mapped onto their enumerations) and validated before it is returned:
// the segment list must be non-empty, no segment may have empty text, and
// narration always carries the speaker [script.NarratorName].
package llmanalysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/storymix/pkg/provider/analysis"
	"github.com/MrWong99/storymix/pkg/provider/llm"
	"github.com/MrWong99/storymix/pkg/script"
)

const (
	defaultTemperature = 0.2

	// maxAmbientSounds bounds the scene's ambient keyword list.
	maxAmbientSounds = 5
)

// ErrTooLong is returned when the prompt would not fit the model's context
// window.
var ErrTooLong = errors.New("llmanalysis: input exceeds model context window")

const systemPrompt = `You are a script editor turning prose into an audio drama.

Split the text into consecutive segments. Rules:
- Every character of the input must appear in exactly one segment, in order. Concatenating all segment texts must reproduce the input verbatim, including whitespace and punctuation.
- Narration and spoken dialogue must never share a segment.
- Narration segments use speaker "Narrator" and is_narrator true.
- Dialogue segments use the character's name as speaker. Use "I" for an unnamed first-person narrator who speaks.
- gender is "male", "female" or "unknown".
- emotion is a short delivery tag such as "calm", "angry", "whispering", "excited".
- sfx is a short sound-effect keyword (e.g. "door creak", "thunder", "footsteps") when the segment describes a distinct sound, otherwise "".

Describe the scene:
- location, time_of_day: short phrases.
- mood: one of happy, sad, tense, mysterious, romantic, neutral.
- room_tone: e.g. "small room", "hall", "outdoors", "forest", "street".
- music_style: short phrase.
- perspective: "first_person" or "third_person".
- protagonist: the narrating character's name in first-person stories, otherwise "".
- ambient_sounds: 3 to 5 keywords (e.g. "wind", "birds", "rain", "traffic", "crowd").

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "segments": [
    {"text": "...", "speaker": "...", "is_narrator": true, "gender": "unknown", "emotion": "neutral", "sfx": ""}
  ],
  "scene": {
    "location": "...", "mood": "...", "time_of_day": "...", "room_tone": "...",
    "music_style": "...", "perspective": "...", "protagonist": "", "ambient_sounds": ["..."]
  }
}`

// llmSegment and llmScene mirror the JSON the model is asked to produce.
type llmSegment struct {
	Text       string `json:"text"`
	Speaker    string `json:"speaker"`
	IsNarrator bool   `json:"is_narrator"`
	Gender     string `json:"gender"`
	Emotion    string `json:"emotion"`
	SFX        string `json:"sfx"`
}

type llmScene struct {
	Location      string   `json:"location"`
	Mood          string   `json:"mood"`
	TimeOfDay     string   `json:"time_of_day"`
	RoomTone      string   `json:"room_tone"`
	MusicStyle    string   `json:"music_style"`
	Perspective   string   `json:"perspective"`
	Protagonist   string   `json:"protagonist"`
	AmbientSounds []string `json:"ambient_sounds"`
}

type llmResponse struct {
	Segments []llmSegment `json:"segments"`
	Scene    llmScene     `json:"scene"`
}

// Option is a functional option for configuring an [Analyzer].
type Option func(*Analyzer)

// WithTemperature sets the LLM sampling temperature. Default: 0.2.
func WithTemperature(temp float64) Option {
	return func(a *Analyzer) {
		a.temperature = temp
	}
}

// WithLogger sets the logger used for reconstruction warnings.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		a.log = l
	}
}

// Analyzer implements [analysis.Analyzer] with an [llm.Provider]. It is safe
// for concurrent use.
type Analyzer struct {
	llm         llm.Provider
	temperature float64
	log         *slog.Logger
}

var _ analysis.Analyzer = (*Analyzer)(nil)

// New returns an [Analyzer] backed by provider.
func New(provider llm.Provider, opts ...Option) *Analyzer {
	a := &Analyzer{
		llm:         provider,
		temperature: defaultTemperature,
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Analyze implements [analysis.Analyzer].
func (a *Analyzer) Analyze(ctx context.Context, text string) (*script.Script, error) {
	req := llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Temperature:  a.temperature,
		JSON:         true,
		Messages: []llm.Message{
			{Role: "user", Content: text},
		},
	}

	caps := a.llm.Capabilities()
	if caps.ContextWindow > 0 {
		// The response repeats the input, so budget for it twice.
		need := 2*llm.EstimateTokens(req.Messages) + llm.EstimateTokens([]llm.Message{{Content: systemPrompt}})
		if need > caps.ContextWindow {
			return nil, fmt.Errorf("%w: need ~%d tokens, window is %d", ErrTooLong, need, caps.ContextWindow)
		}
	}

	resp, err := a.llm.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("llmanalysis: complete: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: empty completion", analysis.ErrMalformed)
	}

	s, err := parseResponse(resp.Content)
	if err != nil {
		return nil, err
	}

	if !reconstructs(s.Segments, text) {
		a.log.Warn("llmanalysis: segments do not reconstruct input",
			"segments", len(s.Segments),
			"input_len", len(text),
		)
	}
	return s, nil
}

// parseResponse decodes, normalises and validates the model output.
func parseResponse(content string) (*script.Script, error) {
	var r llmResponse
	if err := json.Unmarshal([]byte(stripMarkdown(content)), &r); err != nil {
		return nil, fmt.Errorf("%w: %w", analysis.ErrMalformed, err)
	}
	if len(r.Segments) == 0 {
		return nil, fmt.Errorf("%w: no segments", analysis.ErrMalformed)
	}

	var errs []error
	segments := make([]script.Segment, 0, len(r.Segments))
	for i, ls := range r.Segments {
		seg, err := normaliseSegment(ls)
		if err != nil {
			errs = append(errs, fmt.Errorf("segment %d: %w", i, err))
			continue
		}
		segments = append(segments, seg)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", analysis.ErrMalformed, err)
	}

	return &script.Script{
		Segments: segments,
		Scene:    normaliseScene(r.Scene),
	}, nil
}

func normaliseSegment(ls llmSegment) (script.Segment, error) {
	if strings.TrimSpace(ls.Text) == "" {
		return script.Segment{}, errors.New("empty text")
	}
	speaker := strings.TrimSpace(ls.Speaker)
	narrator := ls.IsNarrator || strings.EqualFold(speaker, script.NarratorName)
	if narrator {
		speaker = script.NarratorName
	} else if speaker == "" {
		return script.Segment{}, errors.New("dialogue without speaker")
	}
	return script.Segment{
		Text:       ls.Text,
		Speaker:    speaker,
		IsNarrator: narrator,
		Gender:     script.ParseGender(ls.Gender),
		Emotion:    strings.ToLower(strings.TrimSpace(ls.Emotion)),
		SFX:        strings.TrimSpace(ls.SFX),
	}, nil
}

func normaliseScene(ls llmScene) script.Scene {
	sounds := make([]string, 0, len(ls.AmbientSounds))
	for _, s := range ls.AmbientSounds {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		sounds = append(sounds, s)
		if len(sounds) == maxAmbientSounds {
			break
		}
	}
	sc := script.Scene{
		Location:      strings.TrimSpace(ls.Location),
		Mood:          script.ParseMood(ls.Mood),
		TimeOfDay:     strings.TrimSpace(ls.TimeOfDay),
		RoomTone:      strings.ToLower(strings.TrimSpace(ls.RoomTone)),
		MusicStyle:    strings.TrimSpace(ls.MusicStyle),
		Perspective:   script.ParsePerspective(ls.Perspective),
		AmbientSounds: sounds,
	}
	if sc.Perspective == script.FirstPerson {
		sc.Protagonist = strings.TrimSpace(ls.Protagonist)
	}
	return sc
}

// reconstructs reports whether the segment texts concatenate to input,
// ignoring differences in whitespace.
func reconstructs(segments []script.Segment, input string) bool {
	var sb strings.Builder
	for _, s := range segments {
		sb.WriteString(s.Text)
	}
	return collapse(sb.String()) == collapse(input)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models wrap around JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
