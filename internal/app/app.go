// Package app wires all storymix subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API until ctx is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithMetrics,
// WithOutputFactory, etc.) and mock providers through [Providers].
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/storymix/internal/api"
	"github.com/MrWong99/storymix/internal/config"
	"github.com/MrWong99/storymix/internal/health"
	"github.com/MrWong99/storymix/internal/observe"
	"github.com/MrWong99/storymix/internal/resilience"
	"github.com/MrWong99/storymix/internal/scheduler"
	"github.com/MrWong99/storymix/internal/studio"
	"github.com/MrWong99/storymix/internal/transport"
	"github.com/MrWong99/storymix/pkg/audio"
	"github.com/MrWong99/storymix/pkg/provider/analysis"
	"github.com/MrWong99/storymix/pkg/provider/analysis/llmanalysis"
	"github.com/MrWong99/storymix/pkg/provider/tts"
	"github.com/MrWong99/storymix/pkg/script"
)

// ErrNotConfigured is returned by a service whose provider is missing from
// the configuration.
var ErrNotConfigured = errors.New("app: provider not configured")

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics   *observe.Metrics
	level     *slog.LevelVar
	scrape    http.Handler
	newOutput studio.OutputFactory

	// Subsystems, initialised in New and torn down in Shutdown.
	sched    *scheduler.Scheduler
	speech   tts.Provider
	analyzer analysis.Analyzer
	breakers []health.Checker
	sessions *SessionManager
	api      *api.Server
	server   *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics sets the metric instruments instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets config reloads change the log level through lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithMetricsHandler replaces the /metrics handler. The default serves the
// Prometheus default registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.scrape = h }
}

// WithOutputFactory replaces the playback device selected by the config.
func WithOutputFactory(f studio.OutputFactory) Option {
	return func(a *App) { a.newOutput = f }
}

// New creates an App by wiring all subsystems together. The providers come
// from [BuildProviders]; a nil provider leaves its service unavailable and
// reported as not ready.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is nil")
	}
	if providers == nil {
		providers = &Providers{}
	}
	c := cfg.WithDefaults()
	a := &App{cfg: &c, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.scrape == nil {
		a.scrape = promhttp.Handler()
	}
	if a.newOutput == nil {
		a.newOutput = outputFactory(a.cfg.Playback)
	}

	// ── 1. Scheduler ─────────────────────────────────────────────────────
	a.sched = scheduler.New(a.cfg.Generation.SpeechConcurrency, a.cfg.Generation.EffectsConcurrency)

	// ── 2. Guarded services ──────────────────────────────────────────────
	a.initServices()

	// ── 3. Sessions ──────────────────────────────────────────────────────
	rate := a.cfg.Playback.SampleRate
	if rate == 0 {
		rate = audio.SampleRate
	}
	a.sessions = NewSessionManager(SessionManagerConfig{
		Analyzer:  a.analyzer,
		Speech:    a.speech,
		Scheduler: a.sched,
		Voices:    a.cfg.Voices,
		Seed:      a.cfg.Generation.Seed,
		Options: []studio.Option{
			studio.WithMetrics(a.metrics),
			studio.WithLogger(slog.Default()),
			studio.WithProviderNames(a.cfg.Providers.LLM.Name, a.cfg.Providers.TTS.Name),
			studio.WithOutput(a.newOutput, rate, a.cfg.Playback.Channels),
		},
	})
	a.closers = append(a.closers, a.sessions.Close)

	// ── 4. HTTP API ──────────────────────────────────────────────────────
	checkers := []health.Checker{
		health.Configured("analysis", a.providers.LLM != nil),
		health.Configured("speech", a.providers.TTS != nil),
	}
	checkers = append(checkers, a.breakers...)

	probes := health.New(checkers...)
	if rep := probes.Report(ctx); !rep.OK() {
		slog.WarnContext(ctx, "storymix is not ready", "failing", rep.Failed)
	}

	apiOpts := []api.Option{
		api.WithHealth(probes),
		api.WithMetrics(a.metrics),
		api.WithMetricsHandler(a.scrape),
	}
	if l, ok := a.speech.(tts.VoiceLister); ok {
		apiOpts = append(apiOpts, api.WithVoiceLister(l))
	}
	a.api = api.New(a.sessions, apiOpts...)
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	slog.InfoContext(ctx, "app initialised",
		"speech_concurrency", a.cfg.Generation.SpeechConcurrency,
		"effects_concurrency", a.cfg.Generation.EffectsConcurrency,
		"playback", a.cfg.Playback.Device,
		"analysis_ready", a.providers.LLM != nil,
		"speech_ready", a.providers.TTS != nil,
	)
	return a, nil
}

// initServices puts each configured provider behind a circuit breaker and
// substitutes an always-failing service for missing ones.
func (a *App) initServices() {
	bc := a.cfg.Generation.Breaker
	breakerConfig := func(name string) resilience.CircuitBreakerConfig {
		return resilience.CircuitBreakerConfig{
			Name:         name,
			MaxFailures:  bc.MaxFailures,
			ResetTimeout: bc.ResetTimeout,
			Logger:       slog.Default(),
			OnStateChange: func(name string, to resilience.State) {
				a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
			},
		}
	}

	if p := a.providers.TTS; p != nil {
		guard := resilience.NewTTSGuard(p, breakerConfig("tts/"+a.cfg.Providers.TTS.Name))
		a.speech = guard
		a.breakers = append(a.breakers, health.Breaker("speech_breaker", guard.Breaker()))
	} else {
		a.speech = unconfigured{kind: "tts"}
	}

	if p := a.providers.LLM; p != nil {
		guard := resilience.NewLLMGuard(p, breakerConfig("llm/"+a.cfg.Providers.LLM.Name))
		a.analyzer = llmanalysis.New(guard, llmanalysis.WithLogger(slog.Default()))
		a.breakers = append(a.breakers, health.Breaker("analysis_breaker", guard.Breaker()))
	} else {
		a.analyzer = unconfigured{kind: "llm"}
	}
}

// Handler returns the HTTP handler of the API.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager {
	return a.sessions
}

// Run serves the HTTP API and blocks until ctx is cancelled or the server
// fails. It returns ctx.Err() on cancellation.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if t := a.cfg.Server.TLS; t != nil {
			err = a.server.ListenAndServeTLS(t.CertFile, t.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()
	slog.Info("http server listening", "addr", a.server.Addr, "tls", a.cfg.Server.TLS != nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	}
}

// ApplyConfig applies the hot-reloadable parts of a config reload: the log
// level and the voice catalogue of new sessions. Other changes are logged as
// requiring a restart. It matches [config.ReloadFunc].
func (a *App) ApplyConfig(d config.ConfigDiff, next *config.Config) {
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VoicesChanged {
		voices := next.WithDefaults().Voices
		a.sessions.SetVoices(voices)
		slog.Info("voice catalogue reloaded", "voices", len(voices.Catalogue), "narrator", voices.Narrator)
	}
	for _, section := range d.RestartRequired {
		slog.Warn("config change requires restart", "section", section)
	}
}

// Shutdown stops the HTTP server and tears down all subsystems. It respects
// the context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// SlogLevel converts a configured log level to a [slog.Level].
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// outputFactory opens the playback device selected by p.
func outputFactory(p config.PlaybackConfig) studio.OutputFactory {
	if p.Device == "null" {
		return func() (transport.Output, error) { return &transport.NullOutput{}, nil }
	}
	return func() (transport.Output, error) {
		rate := p.SampleRate
		if rate == 0 {
			rate = audio.SampleRate
		}
		out, err := transport.NewOtoOutput(rate, p.Channels, p.Buffer())
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

// unconfigured stands in for a service whose provider is missing.
type unconfigured struct {
	kind string
}

var (
	_ analysis.Analyzer = unconfigured{}
	_ tts.Provider      = unconfigured{}
)

func (u unconfigured) Analyze(context.Context, string) (*script.Script, error) {
	return nil, fmt.Errorf("%w: %s", ErrNotConfigured, u.kind)
}

func (u unconfigured) Synthesize(context.Context, tts.Request) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", ErrNotConfigured, u.kind)
}
