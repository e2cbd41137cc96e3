package llmanalysis_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/MrWong99/storymix/pkg/provider/analysis"
	"github.com/MrWong99/storymix/pkg/provider/analysis/llmanalysis"
	"github.com/MrWong99/storymix/pkg/provider/llm"
	"github.com/MrWong99/storymix/pkg/provider/llm/mock"
	"github.com/MrWong99/storymix/pkg/script"
)

const input = `The door creaked open. "Who's there?" Mara whispered.`

const validJSON = `{
  "segments": [
    {"text": "The door creaked open. ", "speaker": "Narrator", "is_narrator": true, "gender": "unknown", "emotion": "neutral", "sfx": "door creak"},
    {"text": "\"Who's there?\"", "speaker": "Mara", "is_narrator": false, "gender": "Female", "emotion": "Whispering", "sfx": ""},
    {"text": " Mara whispered.", "speaker": "narrator", "is_narrator": false, "gender": "", "emotion": "", "sfx": ""}
  ],
  "scene": {
    "location": "old house", "mood": "Tense", "time_of_day": "night", "room_tone": "Small Room",
    "music_style": "strings", "perspective": "third person", "protagonist": "Mara",
    "ambient_sounds": ["Wind", "", "clock", "rain", "crickets", "owls", "traffic"]
  }
}`

func TestAnalyze_ParsesAndNormalises(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: validJSON}}
	a := llmanalysis.New(p)

	s, err := a.Analyze(context.Background(), input)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(s.Segments) != 3 {
		t.Fatalf("segments = %d, want 3", len(s.Segments))
	}

	if got := s.Segments[0]; !got.IsNarrator || got.SFX != "door creak" {
		t.Errorf("segment 0 = %+v", got)
	}
	if got := s.Segments[1]; got.Speaker != "Mara" || got.Gender != script.GenderFemale || got.Emotion != "whispering" {
		t.Errorf("segment 1 = %+v", got)
	}
	if got := s.Segments[2]; !got.IsNarrator || got.Speaker != script.NarratorName {
		t.Errorf("speaker %q should be promoted to narration, got %+v", "narrator", got)
	}

	sc := s.Scene
	if sc.Mood != script.MoodTense {
		t.Errorf("Mood = %q, want tense", sc.Mood)
	}
	if sc.Perspective != script.ThirdPerson {
		t.Errorf("Perspective = %q, want third_person", sc.Perspective)
	}
	if sc.Protagonist != "" {
		t.Errorf("Protagonist = %q, want empty in third person", sc.Protagonist)
	}
	if sc.RoomTone != "small room" {
		t.Errorf("RoomTone = %q", sc.RoomTone)
	}
	if len(sc.AmbientSounds) != 5 || sc.AmbientSounds[0] != "wind" {
		t.Errorf("AmbientSounds = %v, want 5 lowercased keywords", sc.AmbientSounds)
	}
}

func TestAnalyze_Request(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: validJSON}}
	if _, err := llmanalysis.New(p, llmanalysis.WithTemperature(0.7)).Analyze(context.Background(), input); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(p.CompleteCalls) != 1 {
		t.Fatalf("Complete calls = %d, want 1", len(p.CompleteCalls))
	}
	req := p.CompleteCalls[0].Req
	if !req.JSON {
		t.Error("request should ask for JSON")
	}
	if req.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", req.Temperature)
	}
	if !strings.Contains(req.SystemPrompt, "ambient_sounds") {
		t.Error("system prompt should describe the scene schema")
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != input {
		t.Errorf("messages = %+v, want the raw input as the user message", req.Messages)
	}
}

func TestAnalyze_MarkdownFences(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "```json\n" + validJSON + "\n```"}}
	if _, err := llmanalysis.New(p).Analyze(context.Background(), input); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
}

func TestAnalyze_FirstPersonKeepsProtagonist(t *testing.T) {
	t.Parallel()

	content := `{"segments":[{"text":"I ran.","speaker":"Narrator","is_narrator":true}],
		"scene":{"mood":"happy","perspective":"first_person","protagonist":" Jo "}}`
	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: content}}
	s, err := llmanalysis.New(p).Analyze(context.Background(), "I ran.")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if s.Scene.Perspective != script.FirstPerson || s.Scene.Protagonist != "Jo" {
		t.Errorf("scene = %+v", s.Scene)
	}
}

func TestAnalyze_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"not json", "Sure! Here are your segments."},
		{"no segments", `{"segments": [], "scene": {}}`},
		{"empty text", `{"segments": [{"text": "  ", "speaker": "Narrator", "is_narrator": true}]}`},
		{"dialogue without speaker", `{"segments": [{"text": "Hi.", "speaker": "", "is_narrator": false}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: tc.content}}
			s, err := llmanalysis.New(p).Analyze(context.Background(), "Hi.")
			if !errors.Is(err, analysis.ErrMalformed) {
				t.Fatalf("err = %v, want ErrMalformed", err)
			}
			if s != nil {
				t.Error("no partial script may be returned")
			}
		})
	}
}

func TestAnalyze_ProviderError(t *testing.T) {
	t.Parallel()

	boom := errors.New("rate limited")
	p := &mock.Provider{CompleteErr: boom}
	_, err := llmanalysis.New(p).Analyze(context.Background(), input)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped provider error", err)
	}
}

func TestAnalyze_ContextWindow(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse:  &llm.CompletionResponse{Content: validJSON},
		ModelCapabilities: llm.ModelCapabilities{ContextWindow: 100},
	}
	_, err := llmanalysis.New(p).Analyze(context.Background(), strings.Repeat("word ", 500))
	if !errors.Is(err, llmanalysis.ErrTooLong) {
		t.Fatalf("err = %v, want ErrTooLong", err)
	}
	if len(p.CompleteCalls) != 0 {
		t.Error("no request should be sent for oversized input")
	}
}

func TestAnalyze_ReconstructionMismatchWarns(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: validJSON}}

	if _, err := llmanalysis.New(p, llmanalysis.WithLogger(log)).Analyze(context.Background(), input); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if strings.Contains(buf.String(), "reconstruct") {
		t.Errorf("unexpected warning for matching input: %s", buf.String())
	}

	if _, err := llmanalysis.New(p, llmanalysis.WithLogger(log)).Analyze(context.Background(), "Something else entirely."); err != nil {
		t.Fatalf("mismatch must not fail analysis: %v", err)
	}
	if !strings.Contains(buf.String(), "do not reconstruct") {
		t.Errorf("expected reconstruction warning, log: %s", buf.String())
	}
}
