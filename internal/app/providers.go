package app

import (
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/storymix/internal/config"
	"github.com/MrWong99/storymix/pkg/provider/llm"
	"github.com/MrWong99/storymix/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/storymix/pkg/provider/llm/openai"
	"github.com/MrWong99/storymix/pkg/provider/tts"
	"github.com/MrWong99/storymix/pkg/provider/tts/coqui"
	"github.com/MrWong99/storymix/pkg/provider/tts/elevenlabs"
	oaitts "github.com/MrWong99/storymix/pkg/provider/tts/openai"
)

// Providers are the external services of one server. A nil field is a
// service that is not configured.
type Providers struct {
	LLM llm.Provider
	TTS tts.Provider
}

// RegisterBuiltinProviders adds every backend compiled into storymix to reg.
// OpenAI analysis uses the native SDK adapter; the other chat backends go
// through any-llm-go.
func RegisterBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", newOpenAILLM)
	for _, backend := range anyllm.Backends {
		if backend == "openai" {
			continue
		}
		reg.RegisterLLM(backend, func(e config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if e.APIKey != "" && backend != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			return anyllm.New(backend, e.Model, opts...)
		})
	}

	reg.RegisterTTS("openai", newOpenAITTS)
	reg.RegisterTTS("elevenlabs", newElevenLabs)
	reg.RegisterTTS("coqui", newCoqui)

	slog.Debug("registered providers", "llm", reg.Names("llm"), "tts", reg.Names("tts"))
}

func newOpenAILLM(e config.ProviderEntry) (llm.Provider, error) {
	var opts []oaillm.Option
	if e.BaseURL != "" {
		opts = append(opts, oaillm.WithBaseURL(e.BaseURL))
	}
	if org := e.OptString("organization"); org != "" {
		opts = append(opts, oaillm.WithOrganization(org))
	}
	if e.Timeout > 0 {
		opts = append(opts, oaillm.WithTimeout(e.Timeout))
	}
	return oaillm.New(e.APIKey, e.Model, opts...)
}

func newOpenAITTS(e config.ProviderEntry) (tts.Provider, error) {
	var opts []oaitts.Option
	if e.Model != "" {
		opts = append(opts, oaitts.WithModel(e.Model))
	}
	if e.BaseURL != "" {
		opts = append(opts, oaitts.WithBaseURL(e.BaseURL))
	}
	if e.Timeout > 0 {
		opts = append(opts, oaitts.WithTimeout(e.Timeout))
	}
	if speed, ok := e.OptFloat("speed"); ok {
		opts = append(opts, oaitts.WithSpeed(speed))
	}
	return oaitts.New(e.APIKey, opts...)
}

func newElevenLabs(e config.ProviderEntry) (tts.Provider, error) {
	var opts []elevenlabs.Option
	if e.Model != "" {
		opts = append(opts, elevenlabs.WithModel(e.Model))
	}
	if f := e.OptString("output_format"); f != "" {
		opts = append(opts, elevenlabs.WithOutputFormat(f))
	}
	if ws, rest := e.OptString("ws_url"), e.OptString("api_url"); ws != "" || rest != "" {
		opts = append(opts, elevenlabs.WithBaseURLs(ws, rest))
	}
	vs := elevenlabs.DefaultVoiceSettings
	stability, okS := e.OptFloat("stability")
	similarity, okB := e.OptFloat("similarity_boost")
	if okS {
		vs.Stability = stability
	}
	if okB {
		vs.SimilarityBoost = similarity
	}
	if okS || okB {
		opts = append(opts, elevenlabs.WithVoiceSettings(vs))
	}
	return elevenlabs.New(e.APIKey, opts...)
}

func newCoqui(e config.ProviderEntry) (tts.Provider, error) {
	var opts []coqui.Option
	if lang := e.OptString("language"); lang != "" {
		opts = append(opts, coqui.WithLanguage(lang))
	}
	if mode := e.OptString("api_mode"); mode != "" {
		opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
	}
	if e.Timeout > 0 {
		opts = append(opts, coqui.WithTimeout(e.Timeout))
	}
	return coqui.New(e.BaseURL, opts...)
}

// BuildProviders creates the backends named in cfg. A name without a factory
// is logged and left nil so the server still starts and reports not ready;
// a factory error aborts.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	var ps Providers
	var err error
	if ps.LLM, err = build("llm", cfg.Providers.LLM, reg.CreateLLM); err != nil {
		return nil, err
	}
	if ps.TTS, err = build("tts", cfg.Providers.TTS, reg.CreateTTS); err != nil {
		return nil, err
	}
	return &ps, nil
}

func build[P any](kind string, e config.ProviderEntry, create func(config.ProviderEntry) (P, error)) (P, error) {
	var zero P
	if e.Name == "" {
		return zero, nil
	}
	p, err := create(e)
	switch {
	case errors.Is(err, config.ErrProviderNotRegistered):
		slog.Warn("provider not available, skipping", "kind", kind, "name", e.Name)
		return zero, nil
	case err != nil:
		return zero, fmt.Errorf("create %s provider %q: %w", kind, e.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", e.Name, "model", e.Model)
	return p, nil
}
