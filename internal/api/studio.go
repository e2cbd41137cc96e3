package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/storymix/internal/resilience"
	"github.com/MrWong99/storymix/internal/studio"
	"github.com/MrWong99/storymix/pkg/audio"
	"github.com/MrWong99/storymix/pkg/script"
)

type analyzeRequest struct {
	Text string `json:"text"`
}

type taskView struct {
	Speaker  string `json:"speaker"`
	Voice    string `json:"voice"`
	Text     string `json:"text"`
	Segments []int  `json:"segments"`
}

type analyzeResponse struct {
	Session  string            `json:"session"`
	Segments []script.Segment  `json:"segments"`
	Scene    script.Scene      `json:"scene"`
	Tasks    []taskView        `json:"tasks"`
	Cast     map[string]string `json:"cast"`
}

// handleAnalyze handles POST /v1/analyze.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.sessions.Current()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sc, err := sess.Analyze(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tasks := sess.Tasks()
	views := make([]taskView, len(tasks))
	for i, t := range tasks {
		views[i] = taskView{Speaker: t.Speaker, Voice: t.Voice, Text: t.Text, Segments: t.Segments}
	}
	writeJSON(w, http.StatusOK, analyzeResponse{
		Session:  sess.ID(),
		Segments: sc.Segments,
		Scene:    sc.Scene,
		Tasks:    views,
		Cast:     sess.Cast(),
	})
}

type prefetchResponse struct {
	Speech  int `json:"speech"`
	Effects int `json:"effects"`
}

// handlePrefetch handles POST /v1/prefetch. Generation continues after the
// response is written.
func (s *Server) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Current()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	speech, effects, err := sess.Prefetch(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, prefetchResponse{Speech: speech, Effects: effects})
}

type segmentTiming struct {
	Speaker       string  `json:"speaker"`
	OffsetSeconds float64 `json:"offset_seconds"`
	SpeechSeconds float64 `json:"speech_seconds"`
	SFX           string  `json:"sfx,omitempty"`
}

type generateResponse struct {
	DurationSeconds float64         `json:"duration_seconds"`
	Tracks          []string        `json:"tracks"`
	Timeline        []segmentTiming `json:"timeline"`
}

// handleGenerate handles POST /v1/generate.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Current()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tracks, err := sess.Generate(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := generateResponse{DurationSeconds: tracks.Duration.Seconds()}
	for _, t := range script.Tracks {
		resp.Tracks = append(resp.Tracks, t.String())
	}
	sc, tl := sess.Script(), sess.Timeline()
	if sc != nil {
		for i, seg := range sc.Segments {
			if i >= len(tl.Offsets) {
				break
			}
			resp.Timeline = append(resp.Timeline, segmentTiming{
				Speaker:       seg.Speaker,
				OffsetSeconds: tl.Offsets[i].Seconds(),
				SpeechSeconds: seg.SpeechDuration.Seconds(),
				SFX:           seg.SFX,
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTrack handles GET /v1/tracks/{file}, where file is a track name with
// a .wav suffix.
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	name, ok := strings.CutSuffix(r.PathValue("file"), ".wav")
	track, known := script.ParseTrack(name)
	if !ok || !known {
		http.NotFound(w, r)
		return
	}
	sess, err := s.sessions.Current()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tracks := sess.Tracks()
	if tracks == nil {
		s.writeError(w, r, fmt.Errorf("api: export %s: %w", track, studio.ErrNoTracks))
		return
	}

	// The WAV encoder patches its header after writing, so it needs a seekable
	// sink; the temp file also lets ServeContent answer range requests.
	f, err := os.CreateTemp("", "storymix-*.wav")
	if err != nil {
		s.writeError(w, r, fmt.Errorf("api: export %s: %w", track, err))
		return
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if err := audio.WriteWAV(f, tracks.Clip(track)); err != nil {
		s.writeError(w, r, fmt.Errorf("api: export %s: %w", track, err))
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		s.writeError(w, r, fmt.Errorf("api: export %s: %w", track, err))
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", track.String()+".wav"))
	http.ServeContent(w, r, track.String()+".wav", time.Time{}, f)
}

type resetResponse struct {
	Session string `json:"session"`
}

// handleReset handles POST /v1/session/reset.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Reset(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resetResponse{Session: sess.ID()})
}

type voiceView struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Provider string            `json:"provider,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type voicesResponse struct {
	Voices []voiceView       `json:"voices"`
	Cast   map[string]string `json:"cast,omitempty"`
}

// handleVoices handles GET /v1/voices.
func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	if s.voices == nil {
		s.writeError(w, r, resilience.ErrNoVoiceList)
		return
	}
	profiles, err := s.voices.ListVoices(r.Context())
	if err != nil {
		s.writeError(w, r, fmt.Errorf("api: list voices: %w", err))
		return
	}
	resp := voicesResponse{Voices: make([]voiceView, 0, len(profiles))}
	for _, p := range profiles {
		resp.Voices = append(resp.Voices, voiceView(p))
	}
	slices.SortFunc(resp.Voices, func(a, b voiceView) int { return strings.Compare(a.ID, b.ID) })
	if sess, err := s.sessions.Current(); err == nil {
		if cast := sess.Cast(); len(cast) > 0 {
			resp.Cast = cast
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
