// Package api serves the storymix HTTP interface: analysis, generation, track
// export, playback control, voice listing and the health and metrics probes.
//
// Routes:
//
//	POST /v1/analyze              analyze prose into segments and a scene
//	POST /v1/prefetch             start generation without waiting
//	POST /v1/generate             generate the four tracks
//	GET  /v1/tracks/{file}        export one track as WAV (e.g. dialogue.wav)
//	POST /v1/session/reset        discard the session and its caches
//	GET  /v1/voices               list the speech service's voices
//	POST /v1/transport/play
//	POST /v1/transport/pause
//	POST /v1/transport/seek       {"offset_seconds": 12.5}
//	POST /v1/transport/speed      {"speed": 1.25}
//	POST /v1/transport/volume     {"track": "score", "volume": 0.4}
//	GET  /v1/transport/progress
//	GET  /healthz, GET /readyz, GET /metrics
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/MrWong99/storymix/internal/health"
	"github.com/MrWong99/storymix/internal/observe"
	"github.com/MrWong99/storymix/internal/studio"
	"github.com/MrWong99/storymix/pkg/provider/tts"
)

// defaultMaxBody bounds request bodies. Analysis input is prose, so this is
// generous.
const defaultMaxBody = 4 << 20

// Sessions resolves the session a request works on.
type Sessions interface {
	// Current returns the active session, creating one if needed.
	Current() (*studio.Session, error)

	// Reset closes the active session and starts a fresh one.
	Reset(ctx context.Context) (*studio.Session, error)
}

// Server holds the HTTP handlers. Build it with [New] and mount
// [Server.Handler].
type Server struct {
	sessions Sessions
	voices   tts.VoiceLister
	health   *health.Handler
	scrape   http.Handler
	metrics  *observe.Metrics
	maxBody  int64
	log      *slog.Logger
}

// Option configures a [Server].
type Option func(*Server)

// WithVoiceLister enables GET /v1/voices.
func WithVoiceLister(l tts.VoiceLister) Option {
	return func(s *Server) { s.voices = l }
}

// WithHealth mounts the liveness and readiness probes.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.scrape = h }
}

// WithMetrics sets the instruments the request middleware records to.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMaxBodyBytes bounds the size of JSON request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// WithLogger sets the logger for request failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns a server that resolves sessions through sessions.
func New(sessions Sessions, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		metrics:  observe.DefaultMetrics(),
		maxBody:  defaultMaxBody,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed handler wrapped in the observability middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /v1/prefetch", s.handlePrefetch)
	mux.HandleFunc("POST /v1/generate", s.handleGenerate)
	mux.HandleFunc("GET /v1/tracks/{file}", s.handleTrack)
	mux.HandleFunc("POST /v1/session/reset", s.handleReset)
	mux.HandleFunc("GET /v1/voices", s.handleVoices)

	mux.HandleFunc("POST /v1/transport/play", s.handlePlay)
	mux.HandleFunc("POST /v1/transport/pause", s.handlePause)
	mux.HandleFunc("POST /v1/transport/seek", s.handleSeek)
	mux.HandleFunc("POST /v1/transport/speed", s.handleSpeed)
	mux.HandleFunc("POST /v1/transport/volume", s.handleVolume)
	mux.HandleFunc("GET /v1/transport/progress", s.handleProgress)

	if s.health != nil {
		s.health.Register(mux)
	}
	if s.scrape != nil {
		mux.Handle("GET /metrics", s.scrape)
	}
	return observe.Middleware(s.metrics)(mux)
}
