package app_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/storymix/internal/app"
	"github.com/MrWong99/storymix/internal/config"
	"github.com/MrWong99/storymix/pkg/provider/llm"
	llmmock "github.com/MrWong99/storymix/pkg/provider/llm/mock"
	"github.com/MrWong99/storymix/pkg/provider/tts"
	ttsmock "github.com/MrWong99/storymix/pkg/provider/tts/mock"
)

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)

	for _, name := range []string{"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"} {
		if !slices.Contains(reg.Names("llm"), name) {
			t.Errorf("llm provider %q not registered", name)
		}
	}
	if got := reg.Names("tts"); !slices.Equal(got, []string{"coqui", "elevenlabs", "openai"}) {
		t.Errorf("tts providers = %v", got)
	}
}

func TestRegisterBuiltinProviders_Create(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)

	tests := []struct {
		name    string
		create  func() error
		wantErr bool
	}{
		{"openai llm", func() error {
			_, err := reg.CreateLLM(config.ProviderEntry{Name: "openai", APIKey: "sk-test", Model: "gpt-4o-mini"})
			return err
		}, false},
		{"openai llm without key", func() error {
			_, err := reg.CreateLLM(config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"})
			return err
		}, true},
		{"openai tts", func() error {
			_, err := reg.CreateTTS(config.ProviderEntry{Name: "openai", APIKey: "sk-test"})
			return err
		}, false},
		{"openai tts with speed", func() error {
			_, err := reg.CreateTTS(config.ProviderEntry{Name: "openai", APIKey: "sk-test", Options: map[string]any{"speed": 1.2}})
			return err
		}, false},
		{"openai tts speed out of range", func() error {
			_, err := reg.CreateTTS(config.ProviderEntry{Name: "openai", APIKey: "sk-test", Options: map[string]any{"speed": 9}})
			return err
		}, true},
		{"coqui", func() error {
			_, err := reg.CreateTTS(config.ProviderEntry{
				Name:    "coqui",
				BaseURL: "http://localhost:5002",
				Options: map[string]any{"api_mode": "standard", "language": "en"},
			})
			return err
		}, false},
		{"elevenlabs", func() error {
			_, err := reg.CreateTTS(config.ProviderEntry{
				Name:    "elevenlabs",
				APIKey:  "xi-test",
				Options: map[string]any{"output_format": "pcm_24000", "stability": 0.3},
			})
			return err
		}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.create()
			if (err != nil) != tc.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })
	reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Provider, error) { return &ttsmock.Provider{}, nil })

	cfg := &config.Config{Providers: config.ProvidersConfig{
		LLM: config.ProviderEntry{Name: "mock"},
		TTS: config.ProviderEntry{Name: "mock"},
	}}
	ps, err := app.BuildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("BuildProviders() error: %v", err)
	}
	if ps.LLM == nil || ps.TTS == nil {
		t.Errorf("providers = %+v, want both set", ps)
	}
}

func TestBuildProviders_UnregisteredSkipped(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Providers: config.ProvidersConfig{
		LLM: config.ProviderEntry{Name: "nope"},
	}}
	ps, err := app.BuildProviders(cfg, config.NewRegistry())
	if err != nil {
		t.Fatalf("BuildProviders() error: %v", err)
	}
	if ps.LLM != nil || ps.TTS != nil {
		t.Errorf("providers = %+v, want none", ps)
	}
}

func TestBuildProviders_FactoryError(t *testing.T) {
	t.Parallel()
	boom := errors.New("bad key")
	reg := config.NewRegistry()
	reg.RegisterTTS("broken", func(config.ProviderEntry) (tts.Provider, error) { return nil, boom })

	cfg := &config.Config{Providers: config.ProvidersConfig{TTS: config.ProviderEntry{Name: "broken"}}}
	if _, err := app.BuildProviders(cfg, reg); !errors.Is(err, boom) {
		t.Errorf("BuildProviders() error = %v, want %v", err, boom)
	}
}
