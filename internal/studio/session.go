// Package studio runs one storymix session: it analyzes prose into a script,
// casts voices, schedules speech and effect generation through the content
// caches, and assembles the four tracks of the mix.
//
// A [Session] owns its caches, its voice profile and its playback context.
// Everything generated in a session is kept until [Session.Close], so
// re-analyzing edited text only synthesizes the lines that changed.
package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/storymix/internal/cache"
	"github.com/MrWong99/storymix/internal/casting"
	"github.com/MrWong99/storymix/internal/observe"
	"github.com/MrWong99/storymix/internal/scheduler"
	"github.com/MrWong99/storymix/internal/transport"
	"github.com/MrWong99/storymix/pkg/audio"
	"github.com/MrWong99/storymix/pkg/provider/analysis"
	"github.com/MrWong99/storymix/pkg/provider/tts"
	"github.com/MrWong99/storymix/pkg/script"
)

// Sentinel errors. Analysis and generation failures wrap the cause, so both
// the sentinel and the underlying error match with errors.Is.
var (
	ErrEmptyInput  = errors.New("studio: input text is empty")
	ErrAnalysis    = errors.New("studio: analysis failed")
	ErrGeneration  = errors.New("studio: generation failed")
	ErrNoScript    = errors.New("studio: no script analyzed")
	ErrNoTracks    = errors.New("studio: no tracks generated")
	ErrClosed      = errors.New("studio: session closed")
	ErrNoPlayback  = errors.New("studio: playback is not configured")
	errNilAnalysis = errors.New("analyzer returned no script")
)

// Random stream identifiers derived from the session seed.
const (
	streamCasting uint64 = iota + 1
	streamScore
	streamAmbience
)

// Session is one user's working session. All methods are safe for concurrent
// use.
type Session struct {
	id       string
	analyzer analysis.Analyzer
	speech   tts.Provider
	sched    *scheduler.Scheduler
	opts     options
	caster   *casting.Caster
	created  time.Time
	log      *slog.Logger

	speechCache *cache.Cache[*audio.Clip]
	effectCache *cache.Cache[*audio.Clip]
	// submitMu keeps one submit call's reservations contiguous.
	submitMu sync.Mutex

	// ctx bounds queued generation work. It outlives individual requests so
	// that prefetched work keeps running after the request that started it.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	script   *script.Script
	tasks    []script.SpeechTask
	timeline script.Timeline
	tracks   *script.AudioTracks
	pc       *transport.Context
	tr       *transport.Transport
	closed   bool
}

// New returns a session that analyzes with analyzer, synthesizes with speech
// and schedules generation on sched.
func New(analyzer analysis.Analyzer, speech tts.Provider, sched *scheduler.Scheduler, opts ...Option) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.seed == 0 {
		o.seed = rand.Uint64()
	}
	if sched == nil {
		sched = scheduler.New(0, 0)
	}

	s := &Session{
		id:       uuid.NewString(),
		analyzer: analyzer,
		speech:   speech,
		sched:    sched,
		opts:     o,
		created:  time.Now(),
	}
	s.log = o.logger.With("session", s.id)
	s.caster = casting.NewCaster(o.voices,
		casting.WithNarratorVoice(o.narrator),
		casting.WithFallbackVoice(o.fallback),
		casting.WithRand(s.rng(streamCasting)),
	)
	s.speechCache = cache.New[*audio.Clip](cache.WithObserver(func(hit bool) {
		o.metrics.RecordCacheLookup(context.Background(), "speech", hit)
	}))
	s.effectCache = cache.New[*audio.Clip](cache.WithObserver(func(hit bool) {
		o.metrics.RecordCacheLookup(context.Background(), "effect", hit)
	}))
	s.ctx, s.cancel = context.WithCancel(context.Background())

	o.metrics.ActiveSessions.Add(s.ctx, 1)
	s.log.Debug("studio: session created", "seed", o.seed)
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.created }

// Seed returns the seed all random choices of the session derive from.
func (s *Session) Seed() uint64 { return s.opts.seed }

// Analyze sends text to the analysis service, assigns voices and plans the
// speech tasks. A failed analysis leaves the previous script in place.
func (s *Session) Analyze(ctx context.Context, text string) (*script.Script, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if s.isClosed() {
		return nil, ErrClosed
	}

	ctx, span := observe.StartSpan(ctx, "studio.analyze", observe.Session(s.id))
	start := time.Now()
	sc, err := s.analyzer.Analyze(ctx, text)
	if err == nil && (sc == nil || len(sc.Segments) == 0) {
		err = errNilAnalysis
	}
	s.opts.metrics.RecordProviderRequest(ctx, s.opts.metrics.AnalysisDuration, s.opts.analysisName, "analysis", time.Since(start), err)
	observe.EndSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalysis, err)
	}

	tasks := s.caster.Plan(sc)

	s.mu.Lock()
	s.script = sc
	s.tasks = tasks
	s.mu.Unlock()

	observe.Logger(ctx).Info("studio: script analyzed",
		"session", s.id,
		"segments", len(sc.Segments),
		"tasks", len(tasks),
		"mood", sc.Scene.Mood,
		"perspective", sc.Scene.Perspective,
	)
	return cloneScript(sc), nil
}

// Script returns a copy of the current script, or nil before analysis.
func (s *Session) Script() *script.Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneScript(s.script)
}

// Tasks returns a copy of the planned speech tasks.
func (s *Session) Tasks() []script.SpeechTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]script.SpeechTask, len(s.tasks))
	for i, t := range s.tasks {
		t.Segments = append([]int(nil), t.Segments...)
		out[i] = t
	}
	return out
}

// Cast returns the session's speaker to voice mapping.
func (s *Session) Cast() map[string]string {
	return s.caster.Cast()
}

// Tracks returns the most recently generated tracks, or nil.
func (s *Session) Tracks() *script.AudioTracks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracks
}

// Timeline returns the timeline of the most recent generation.
func (s *Session) Timeline() script.Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline
}

// CacheStats returns the speech and effect cache counters.
func (s *Session) CacheStats() (speech, effects cache.Stats) {
	return s.speechCache.Stats(), s.effectCache.Stats()
}

// Close stops playback, releases the playback context and abandons queued
// generation. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	tr, pc := s.tr, s.pc
	s.mu.Unlock()

	s.cancel()
	s.opts.metrics.ActiveSessions.Add(context.Background(), -1)

	var errs []error
	if tr != nil {
		errs = append(errs, tr.Close())
	}
	if pc != nil {
		errs = append(errs, pc.Close())
	}
	s.log.Debug("studio: session closed")
	return errors.Join(errs...)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// rng returns an independent random stream derived from the session seed.
func (s *Session) rng(stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(s.opts.seed, stream))
}

func cloneScript(sc *script.Script) *script.Script {
	if sc == nil {
		return nil
	}
	out := &script.Script{
		Segments: append([]script.Segment(nil), sc.Segments...),
		Scene:    sc.Scene,
	}
	out.Scene.AmbientSounds = append([]string(nil), sc.Scene.AmbientSounds...)
	return out
}
