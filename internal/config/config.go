// Package config provides the configuration schema, loader, and provider registry
// for storymix.
package config

import (
	"time"

	"github.com/MrWong99/storymix/internal/casting"
)

// LogLevel controls log verbosity for the storymix server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [Config.WithDefaults].
const (
	DefaultListenAddr         = ":8080"
	DefaultSpeechConcurrency  = 4
	DefaultEffectsConcurrency = 2
	DefaultBufferMS           = 100
	DefaultBreakerFailures    = 5
	DefaultBreakerReset       = 30 * time.Second
)

// Config is the root configuration structure for storymix.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Generation GenerationConfig `yaml:"generation"`
	Voices     VoicesConfig     `yaml:"voices"`
	Playback   PlaybackConfig   `yaml:"playback"`
}

// ServerConfig holds network and logging settings for the HTTP API.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation backs each external
// service. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	// LLM backs the text analysis service.
	LLM ProviderEntry `yaml:"llm"`

	// TTS is the speech synthesis service.
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "coqui").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o", "gpt-4o-mini-tts").
	Model string `yaml:"model"`

	// Timeout bounds one request. Zero leaves the provider default.
	Timeout time.Duration `yaml:"timeout"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// GenerationConfig tunes the generation scheduler.
type GenerationConfig struct {
	// SpeechConcurrency bounds concurrent speech synthesis requests.
	SpeechConcurrency int `yaml:"speech_concurrency"`

	// EffectsConcurrency bounds concurrent effect renders.
	EffectsConcurrency int `yaml:"effects_concurrency"`

	// Seed fixes the random source for voice casting and procedural audio.
	// Zero draws a fresh seed per session.
	Seed uint64 `yaml:"seed"`

	// Breaker configures the circuit breakers in front of the analysis and
	// speech services.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes a circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long the breaker stays open.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// VoicesConfig is the voice catalogue used for casting.
type VoicesConfig struct {
	// Catalogue lists the character voices. Empty selects the built-in
	// catalogue.
	Catalogue []casting.Voice `yaml:"catalogue"`

	// Narrator is the third-person narrator voice.
	Narrator string `yaml:"narrator"`

	// Default is used when no other voice applies.
	Default string `yaml:"default"`
}

// PlaybackConfig configures the output device.
type PlaybackConfig struct {
	// Device selects the output: "oto" for the system device or "null" to
	// discard audio. Empty means "oto".
	Device string `yaml:"device"`

	// SampleRate is the device rate. Zero uses the mix rate.
	SampleRate int `yaml:"sample_rate"`

	// Channels is 1 or 2. Zero means stereo.
	Channels int `yaml:"channels"`

	// BufferMS is the device buffer length in milliseconds.
	BufferMS int `yaml:"buffer_ms"`
}

// Buffer returns the device buffer as a duration.
func (p PlaybackConfig) Buffer() time.Duration {
	return time.Duration(p.BufferMS) * time.Millisecond
}

// WithDefaults returns a copy of cfg with zero values replaced by defaults.
func (cfg Config) WithDefaults() Config {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Generation.SpeechConcurrency == 0 {
		cfg.Generation.SpeechConcurrency = DefaultSpeechConcurrency
	}
	if cfg.Generation.EffectsConcurrency == 0 {
		cfg.Generation.EffectsConcurrency = DefaultEffectsConcurrency
	}
	if cfg.Generation.Breaker.MaxFailures == 0 {
		cfg.Generation.Breaker.MaxFailures = DefaultBreakerFailures
	}
	if cfg.Generation.Breaker.ResetTimeout == 0 {
		cfg.Generation.Breaker.ResetTimeout = DefaultBreakerReset
	}
	if len(cfg.Voices.Catalogue) == 0 {
		cfg.Voices.Catalogue = casting.DefaultCatalogue()
	}
	if cfg.Voices.Narrator == "" {
		cfg.Voices.Narrator = casting.DefaultNarratorVoice
	}
	if cfg.Voices.Default == "" {
		cfg.Voices.Default = casting.DefaultFallbackVoice
	}
	if cfg.Playback.Device == "" {
		cfg.Playback.Device = "oto"
	}
	if cfg.Playback.Channels == 0 {
		cfg.Playback.Channels = 2
	}
	if cfg.Playback.BufferMS == 0 {
		cfg.Playback.BufferMS = DefaultBufferMS
	}
	return cfg
}
