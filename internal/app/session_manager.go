package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/storymix/internal/config"
	"github.com/MrWong99/storymix/internal/scheduler"
	"github.com/MrWong99/storymix/internal/studio"
	"github.com/MrWong99/storymix/pkg/provider/analysis"
	"github.com/MrWong99/storymix/pkg/provider/tts"
)

// ErrStopped is returned by [SessionManager] after [SessionManager.Close].
var ErrStopped = errors.New("app: session manager stopped")

// SessionInfo holds metadata about the active session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// StartedAt is when the session was created.
	StartedAt time.Time

	// Seed is the random seed of the session.
	Seed uint64
}

// SessionManager owns the single active studio session. A session is created
// on first use and lives until it is reset or the manager is closed.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	mu      sync.Mutex
	current *studio.Session
	voices  config.VoicesConfig
	stopped bool

	// Dependencies injected at construction.
	analyzer analysis.Analyzer
	speech   tts.Provider
	sched    *scheduler.Scheduler
	seed     uint64
	opts     []studio.Option
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Analyzer  analysis.Analyzer
	Speech    tts.Provider
	Scheduler *scheduler.Scheduler
	Voices    config.VoicesConfig

	// Seed fixes every session's seed. Zero draws one per session.
	Seed uint64

	// Options are applied to every new session.
	Options []studio.Option
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	return &SessionManager{
		analyzer: cfg.Analyzer,
		speech:   cfg.Speech,
		sched:    cfg.Scheduler,
		voices:   cfg.Voices,
		seed:     cfg.Seed,
		opts:     cfg.Options,
	}
}

// Current returns the active session, starting one if none exists.
func (sm *SessionManager) Current() (*studio.Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.stopped {
		return nil, ErrStopped
	}
	if sm.current == nil {
		sm.current = sm.newSessionLocked()
	}
	return sm.current, nil
}

// Reset closes the active session, dropping its caches and playback context,
// and starts a fresh one.
func (sm *SessionManager) Reset(ctx context.Context) (*studio.Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.stopped {
		return nil, ErrStopped
	}
	if old := sm.current; old != nil {
		if err := old.Close(); err != nil {
			slog.WarnContext(ctx, "session: close error", "session_id", old.ID(), "err", err)
		}
		slog.Info("session reset", "old_session_id", old.ID())
	}
	sm.current = sm.newSessionLocked()
	return sm.current, nil
}

// SetVoices replaces the voice configuration. The active session keeps its
// voice profile; sessions started afterwards cast from v.
func (sm *SessionManager) SetVoices(v config.VoicesConfig) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.voices = v
}

// Info returns metadata about the active session. ok is false when no
// session has been started.
func (sm *SessionManager) Info() (info SessionInfo, ok bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.current == nil {
		return SessionInfo{}, false
	}
	return SessionInfo{
		SessionID: sm.current.ID(),
		StartedAt: sm.current.CreatedAt(),
		Seed:      sm.current.Seed(),
	}, true
}

// Close closes the active session. Later calls to Current and Reset fail with
// [ErrStopped].
func (sm *SessionManager) Close() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.stopped {
		return nil
	}
	sm.stopped = true
	if sm.current == nil {
		return nil
	}
	id := sm.current.ID()
	err := sm.current.Close()
	sm.current = nil
	slog.Info("session stopped", "session_id", id)
	return err
}

func (sm *SessionManager) newSessionLocked() *studio.Session {
	opts := append([]studio.Option{
		studio.WithVoices(sm.voices.Catalogue, sm.voices.Narrator, sm.voices.Default),
		studio.WithSeed(sm.seed),
	}, sm.opts...)
	s := studio.New(sm.analyzer, sm.speech, sm.sched, opts...)
	slog.Info("session started",
		"session_id", s.ID(),
		"seed", s.Seed(),
		"voices", len(sm.voices.Catalogue),
	)
	return s
}
