package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/storymix/pkg/provider/llm"
	"github.com/MrWong99/storymix/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned for a provider name without a factory.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its configuration entry.
type Factory[P any] func(ProviderEntry) (P, error)

// Registry resolves provider names from the config file to constructors, one
// namespace per service kind. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]Factory[llm.Provider]
	tts map[string]Factory[tts.Provider]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		llm: map[string]Factory[llm.Provider]{},
		tts: map[string]Factory[tts.Provider]{},
	}
}

// RegisterLLM binds name to an analysis backend factory, replacing any
// earlier one.
func (r *Registry) RegisterLLM(name string, f func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = f
}

// RegisterTTS binds name to a speech backend factory, replacing any earlier
// one.
func (r *Registry) RegisterTTS(name string, f func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = f
}

// CreateLLM builds the analysis backend named by entry.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(r, r.llm, "llm", entry)
}

// CreateTTS builds the speech backend named by entry.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return create(r, r.tts, "tts", entry)
}

func create[P any](r *Registry, factories map[string]Factory[P], kind string, entry ProviderEntry) (P, error) {
	r.mu.RLock()
	f, ok := factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return f(entry)
}

// Names lists the registered names of kind "llm" or "tts", sorted.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "llm":
		return slices.Sorted(maps.Keys(r.llm))
	case "tts":
		return slices.Sorted(maps.Keys(r.tts))
	}
	return nil
}

// OptString returns the string option key, or "" when it is absent or not a
// string.
func (e ProviderEntry) OptString(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// OptFloat returns the numeric option key. YAML integers are accepted.
func (e ProviderEntry) OptFloat(key string) (float64, bool) {
	switch v := e.Options[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
