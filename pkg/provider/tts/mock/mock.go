// Package mock is an in-memory speech backend. It returns a fixed clip or
// runs a callback, and remembers every line it was asked to speak.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/storymix/pkg/provider/tts"
)

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

// SynthesizeCall is one recorded Synthesize invocation.
type SynthesizeCall struct {
	Ctx context.Context
	Req tts.Request
}

// Provider is a scripted tts.Provider and tts.VoiceLister. Set the fields
// before handing it to the code under test.
type Provider struct {
	// PCM is the clip every line returns; each call gets its own copy.
	PCM []byte
	// SynthesizeErr fails every line.
	SynthesizeErr error
	// SynthesizeFunc replaces PCM and SynthesizeErr when set. It runs
	// without the mock's lock held so it may block on ctx.
	SynthesizeFunc func(ctx context.Context, req tts.Request) ([]byte, error)

	ListVoicesResult []tts.VoiceProfile
	ListVoicesErr    error

	SynthesizeCalls []SynthesizeCall

	mu sync.Mutex
}

// Synthesize records req and answers it.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Req: req})
	fn, pcm, err := p.SynthesizeFunc, slices.Clone(p.PCM), p.SynthesizeErr
	p.mu.Unlock()

	switch {
	case fn != nil:
		return fn(ctx, req)
	case err != nil:
		return nil, err
	}
	return pcm, nil
}

// ListVoices returns the configured catalogue.
func (p *Provider) ListVoices(context.Context) ([]tts.VoiceProfile, error) {
	return p.ListVoicesResult, p.ListVoicesErr
}

// Calls snapshots the recorded Synthesize calls.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.SynthesizeCalls)
}
