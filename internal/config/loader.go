package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/storymix/pkg/script"
)

// knownProviders are the backend names the binary registers. Other names are
// allowed for embedders that register their own factories, but draw a
// warning.
var knownProviders = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"openai", "elevenlabs", "coqui"},
}

// Load reads and validates the YAML file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes one YAML document from r and validates it. Unknown
// keys are errors; an empty document yields the zero Config.
func LoadFromReader(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// problems collects every validation failure of one config, each prefixed
// with the YAML path of the offending key.
type problems []error

func (p *problems) addf(path, format string, args ...any) {
	*p = append(*p, fmt.Errorf("%s "+format, append([]any{path}, args...)...))
}

func (p *problems) count(path string, n int) {
	if n < 0 {
		p.addf(path, "%d must not be negative", n)
	}
}

func (p *problems) duration(path string, d time.Duration) {
	if d < 0 {
		p.addf(path, "%v must not be negative", d)
	}
}

// Validate reports every incoherent value of cfg in one joined error.
// Missing providers and unfamiliar provider names are logged, not rejected.
func Validate(cfg *Config) error {
	var p problems

	if lvl := cfg.Server.LogLevel; lvl != "" && !lvl.IsValid() {
		p.addf("server.log_level", "%q is invalid; valid values: debug, info, warn, error", lvl)
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		p.addf("server.tls", "requires both cert_file and key_file")
	}

	for kind, entry := range map[string]ProviderEntry{"llm": cfg.Providers.LLM, "tts": cfg.Providers.TTS} {
		checkProviderName(kind, entry.Name)
		p.duration("providers."+kind+".timeout", entry.Timeout)
	}

	gen := cfg.Generation
	p.count("generation.speech_concurrency", gen.SpeechConcurrency)
	p.count("generation.effects_concurrency", gen.EffectsConcurrency)
	p.count("generation.breaker.max_failures", gen.Breaker.MaxFailures)
	p.duration("generation.breaker.reset_timeout", gen.Breaker.ResetTimeout)

	firstUse := make(map[string]int, len(cfg.Voices.Catalogue))
	for i, v := range cfg.Voices.Catalogue {
		at := fmt.Sprintf("voices.catalogue[%d]", i)
		if v.ID == "" {
			p.addf(at+".id", "is required")
		} else if prev, dup := firstUse[v.ID]; dup {
			p.addf(at+".id", "%q is a duplicate of voices.catalogue[%d]", v.ID, prev)
		} else {
			firstUse[v.ID] = i
		}
		if !slices.Contains([]script.Gender{"", script.GenderMale, script.GenderFemale, script.GenderUnknown}, v.Gender) {
			p.addf(at+".gender", "%q is invalid; valid values: male, female, unknown", v.Gender)
		}
	}

	play := cfg.Playback
	if play.Device != "" && play.Device != "oto" && play.Device != "null" {
		p.addf("playback.device", "%q is invalid; valid values: oto, null", play.Device)
	}
	p.count("playback.sample_rate", play.SampleRate)
	if play.Channels < 0 || play.Channels > 2 {
		p.addf("playback.channels", "%d is invalid; valid values: 1, 2", play.Channels)
	}
	p.count("playback.buffer_ms", play.BufferMS)

	return errors.Join(p...)
}

func checkProviderName(kind, name string) {
	if name == "" {
		slog.Warn("provider not configured", "kind", kind)
		return
	}
	if !slices.Contains(knownProviders[kind], name) {
		slog.Warn("unknown provider name", "kind", kind, "name", name, "known", knownProviders[kind])
	}
}
