package studio

import (
	"log/slog"

	"github.com/MrWong99/storymix/internal/casting"
	"github.com/MrWong99/storymix/internal/compose"
	"github.com/MrWong99/storymix/internal/observe"
	"github.com/MrWong99/storymix/internal/transport"
	"github.com/MrWong99/storymix/pkg/audio"
)

// OutputFactory opens the playback device for a session.
type OutputFactory func() (transport.Output, error)

type options struct {
	voices   []casting.Voice
	narrator string
	fallback string
	seed     uint64

	reverb  *compose.Reverb
	metrics *observe.Metrics
	logger  *slog.Logger

	analysisName string
	speechName   string

	newOutput   OutputFactory
	outRate     int
	outChannels int
}

func defaultOptions() options {
	return options{
		narrator:     casting.DefaultNarratorVoice,
		fallback:     casting.DefaultFallbackVoice,
		reverb:       compose.DefaultReverb(audio.SampleRate),
		metrics:      observe.DefaultMetrics(),
		logger:       slog.Default(),
		analysisName: "analysis",
		speechName:   "tts",
		outRate:      audio.SampleRate,
		outChannels:  1,
	}
}

// Option configures a [Session].
type Option func(*options)

// WithVoices sets the casting catalogue and the narrator and fallback voices.
// Empty values keep the built-in defaults.
func WithVoices(catalogue []casting.Voice, narrator, fallback string) Option {
	return func(o *options) {
		o.voices = catalogue
		if narrator != "" {
			o.narrator = narrator
		}
		if fallback != "" {
			o.fallback = fallback
		}
	}
}

// WithSeed fixes the seed for casting and procedural audio. Zero draws a
// random seed.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed = seed }
}

// WithReverb replaces the dialogue reverb. Nil disables it.
func WithReverb(r *compose.Reverb) Option {
	return func(o *options) { o.reverb = r }
}

// WithMetrics sets the metrics instruments. The default is
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithProviderNames sets the provider labels recorded on metrics.
func WithProviderNames(analysis, speech string) Option {
	return func(o *options) {
		if analysis != "" {
			o.analysisName = analysis
		}
		if speech != "" {
			o.speechName = speech
		}
	}
}

// WithOutput sets how the playback device is opened and its format. Without
// it, playback is unavailable.
func WithOutput(f OutputFactory, rate, channels int) Option {
	return func(o *options) {
		o.newOutput = f
		if rate > 0 {
			o.outRate = rate
		}
		if channels > 0 {
			o.outChannels = channels
		}
	}
}
