package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/storymix/pkg/provider/llm"
	"github.com/MrWong99/storymix/pkg/provider/tts"
)

// ErrNoVoiceList is returned by [TTSGuard.ListVoices] when the wrapped
// provider cannot list voices.
var ErrNoVoiceList = errors.New("resilience: provider does not list voices")

// TTSGuard implements [tts.Provider] by forwarding to one backend through a
// [CircuitBreaker].
type TTSGuard struct {
	provider tts.Provider
	breaker  *CircuitBreaker
}

// Compile-time interface assertions.
var (
	_ tts.Provider    = (*TTSGuard)(nil)
	_ tts.VoiceLister = (*TTSGuard)(nil)
)

// NewTTSGuard wraps p with a breaker built from cfg.
func NewTTSGuard(p tts.Provider, cfg CircuitBreakerConfig) *TTSGuard {
	return &TTSGuard{provider: p, breaker: NewCircuitBreaker(cfg)}
}

// Synthesize forwards to the wrapped provider unless the breaker is open.
func (g *TTSGuard) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	pcm, err := Call(g.breaker, func() ([]byte, error) {
		return g.provider.Synthesize(ctx, req)
	})
	if errors.Is(err, ErrCircuitOpen) {
		return nil, fmt.Errorf("resilience: %s: %w", g.breaker.Name(), err)
	}
	return pcm, err
}

// ListVoices forwards to the wrapped provider when it implements
// [tts.VoiceLister]. Listing bypasses the breaker.
func (g *TTSGuard) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	l, ok := g.provider.(tts.VoiceLister)
	if !ok {
		return nil, ErrNoVoiceList
	}
	return l.ListVoices(ctx)
}

// Breaker exposes the guard's breaker for health reporting.
func (g *TTSGuard) Breaker() *CircuitBreaker {
	return g.breaker
}

// LLMGuard implements [llm.Provider] by forwarding to one backend through a
// [CircuitBreaker].
type LLMGuard struct {
	provider llm.Provider
	breaker  *CircuitBreaker
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMGuard)(nil)

// NewLLMGuard wraps p with a breaker built from cfg.
func NewLLMGuard(p llm.Provider, cfg CircuitBreakerConfig) *LLMGuard {
	return &LLMGuard{provider: p, breaker: NewCircuitBreaker(cfg)}
}

// Complete forwards to the wrapped provider unless the breaker is open.
func (g *LLMGuard) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := Call(g.breaker, func() (*llm.CompletionResponse, error) {
		return g.provider.Complete(ctx, req)
	})
	if errors.Is(err, ErrCircuitOpen) {
		return nil, fmt.Errorf("resilience: %s: %w", g.breaker.Name(), err)
	}
	return resp, err
}

// Capabilities returns the wrapped provider's capabilities. This does not pass
// through the breaker because capabilities are static metadata.
func (g *LLMGuard) Capabilities() llm.ModelCapabilities {
	return g.provider.Capabilities()
}

// Breaker exposes the guard's breaker for health reporting.
func (g *LLMGuard) Breaker() *CircuitBreaker {
	return g.breaker
}
