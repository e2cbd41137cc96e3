package api

import (
	"math"
	"net/http"
	"time"

	"github.com/MrWong99/storymix/internal/transport"
	"github.com/MrWong99/storymix/pkg/script"
)

type progressResponse struct {
	State           string             `json:"state"`
	Progress        float64            `json:"progress"`
	PositionSeconds float64            `json:"position_seconds"`
	DurationSeconds float64            `json:"duration_seconds"`
	Speed           float64            `json:"speed"`
	Volumes         map[string]float64 `json:"volumes"`
}

// progressOf snapshots tr. Progress goes first because it stops a transport
// that has played past the end, which the state must reflect.
func progressOf(tr *transport.Transport) progressResponse {
	progress := tr.Progress()
	resp := progressResponse{
		State:           tr.State().String(),
		Progress:        progress,
		PositionSeconds: tr.Position().Seconds(),
		DurationSeconds: tr.Duration().Seconds(),
		Speed:           tr.Speed(),
		Volumes:         make(map[string]float64, len(script.Tracks)),
	}
	for _, t := range script.Tracks {
		resp.Volumes[t.String()] = tr.Volume(t)
	}
	return resp
}

// transportFor resolves the current session's transport.
func (s *Server) transportFor(w http.ResponseWriter, r *http.Request) (*transport.Transport, bool) {
	sess, err := s.sessions.Current()
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	tr, err := sess.Transport()
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return tr, true
}

// handlePlay handles POST /v1/transport/play.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Current()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := sess.Play(); err != nil {
		s.writeError(w, r, err)
		return
	}
	tr, err := sess.Transport()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progressOf(tr))
}

// handlePause handles POST /v1/transport/pause.
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	tr, ok := s.transportFor(w, r)
	if !ok {
		return
	}
	if err := tr.Pause(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progressOf(tr))
}

type seekRequest struct {
	OffsetSeconds float64 `json:"offset_seconds"`
}

// handleSeek handles POST /v1/transport/seek.
func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.OffsetSeconds < 0 || math.IsNaN(req.OffsetSeconds) || math.IsInf(req.OffsetSeconds, 0) {
		s.writeError(w, r, badRequest("offset_seconds must be a non-negative number"))
		return
	}
	tr, ok := s.transportFor(w, r)
	if !ok {
		return
	}
	tr.Seek(time.Duration(req.OffsetSeconds * float64(time.Second)))
	writeJSON(w, http.StatusOK, progressOf(tr))
}

type speedRequest struct {
	Speed float64 `json:"speed"`
}

// handleSpeed handles POST /v1/transport/speed. Speeds outside the supported
// range are clamped.
func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req speedRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !(req.Speed > 0) || math.IsInf(req.Speed, 0) {
		s.writeError(w, r, badRequest("speed must be a positive number"))
		return
	}
	tr, ok := s.transportFor(w, r)
	if !ok {
		return
	}
	tr.SetSpeed(req.Speed)
	writeJSON(w, http.StatusOK, progressOf(tr))
}

type volumeRequest struct {
	Track  string  `json:"track"`
	Volume float64 `json:"volume"`
}

// handleVolume handles POST /v1/transport/volume.
func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	track, ok := script.ParseTrack(req.Track)
	if !ok {
		s.writeError(w, r, badRequest("unknown track %q", req.Track))
		return
	}
	if req.Volume < 0 || math.IsNaN(req.Volume) || math.IsInf(req.Volume, 0) {
		s.writeError(w, r, badRequest("volume must be a non-negative number"))
		return
	}
	tr, ok := s.transportFor(w, r)
	if !ok {
		return
	}
	if err := tr.SetVolume(track, req.Volume); err != nil {
		s.writeError(w, r, badRequest("%v", err))
		return
	}
	writeJSON(w, http.StatusOK, progressOf(tr))
}

// handleProgress handles GET /v1/transport/progress.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	tr, ok := s.transportFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, progressOf(tr))
}
