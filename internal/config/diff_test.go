package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/storymix/internal/casting"
	"github.com/MrWong99/storymix/internal/config"
	"github.com/MrWong99/storymix/pkg/script"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080", LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "openai", Model: "gpt-4o"},
			TTS: config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini-tts"},
		},
		Generation: config.GenerationConfig{SpeechConcurrency: 4, EffectsConcurrency: 2},
		Voices: config.VoicesConfig{
			Catalogue: []casting.Voice{{ID: "alloy", Gender: script.GenderFemale}},
			Narrator:  "fable",
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.LogLevelChanged || d.VoicesChanged || len(d.RestartRequired) != 0 {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("LogLevelChanged should be true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel: got %q, want %q", d.NewLogLevel, config.LogDebug)
	}
}

func TestDiff_Voices(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"narrator", func(c *config.Config) { c.Voices.Narrator = "onyx" }},
		{"default", func(c *config.Config) { c.Voices.Default = "echo" }},
		{"catalogue gender", func(c *config.Config) {
			c.Voices.Catalogue = []casting.Voice{{ID: "alloy", Gender: script.GenderMale}}
		}},
		{"catalogue added", func(c *config.Config) {
			c.Voices.Catalogue = append(c.Voices.Catalogue, casting.Voice{ID: "echo", Gender: script.GenderMale})
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			new := baseConfig()
			tc.mutate(new)
			d := config.Diff(baseConfig(), new)
			if !d.VoicesChanged {
				t.Error("VoicesChanged should be true")
			}
			if len(d.RestartRequired) != 0 {
				t.Errorf("voice change should not require a restart, got %v", d.RestartRequired)
			}
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.ListenAddr = ":9090"
	new.Providers.TTS.Timeout = 10 * time.Second
	new.Generation.SpeechConcurrency = 8
	new.Playback.BufferMS = 200

	d := config.Diff(old, new)
	want := []string{"server.listen_addr", "providers.tts", "generation", "playback"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired: got %v, want %v", d.RestartRequired, want)
	}
}

func TestDiff_ProviderOptionsIgnored(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Providers.TTS.Options = map[string]any{"language": "de"}

	d := config.Diff(old, new)
	if len(d.RestartRequired) != 0 {
		t.Errorf("options-only change should not be reported, got %v", d.RestartRequired)
	}
}

func TestDiff_Empty(t *testing.T) {
	t.Parallel()
	if !config.Diff(baseConfig(), baseConfig()).Empty() {
		t.Error("identical configs should give an empty diff")
	}
	changed := baseConfig()
	changed.Server.TLS = &config.TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"}
	d := config.Diff(baseConfig(), changed)
	if d.Empty() || !slices.Contains(d.RestartRequired, "server.tls") {
		t.Errorf("TLS change not reported: %+v", d)
	}
}
