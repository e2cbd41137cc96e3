package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrWong99/storymix/internal/observe"
	"github.com/MrWong99/storymix/internal/resilience"
	"github.com/MrWong99/storymix/internal/studio"
	"github.com/MrWong99/storymix/internal/transport"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// errBadRequest marks request validation failures.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, studio.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, studio.ErrNoScript), errors.Is(err, studio.ErrNoTracks),
		errors.Is(err, transport.ErrNoTracks):
		return http.StatusConflict
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, studio.ErrNoPlayback):
		return http.StatusServiceUnavailable
	case errors.Is(err, studio.ErrAnalysis), errors.Is(err, studio.ErrGeneration):
		return http.StatusBadGateway
	case errors.Is(err, resilience.ErrNoVoiceList):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, studio.ErrClosed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := s.log
	if id := observe.CorrelationID(r.Context()); id != "" {
		log = log.With("trace_id", id)
	}
	if status >= http.StatusInternalServerError {
		log.Error("api: request failed", "path", r.URL.Path, "status", status, "err", err)
	} else {
		log.Debug("api: request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v, rejecting unknown fields.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return badRequest("body exceeds %d bytes", tooLarge.Limit)
		}
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}
