// Package mock is an in-memory llm.Provider for analyzer and pipeline tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/storymix/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// CompleteCall is one recorded Complete invocation.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider answers Complete from a script. Configure it before use; the
// recorded calls may be read once the code under test has returned.
//
// Complete consumes Script front to back, then falls back to
// CompleteResponse and CompleteErr.
type Provider struct {
	CompleteResponse  *llm.CompletionResponse
	CompleteErr       error
	Script            []Reply
	ModelCapabilities llm.ModelCapabilities

	CompleteCalls []CompleteCall

	mu sync.Mutex
}

// Reply is one scripted Complete result.
type Reply struct {
	Content string
	Err     error
}

// Complete records req and returns the next scripted reply.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	if len(p.Script) == 0 {
		return p.CompleteResponse, p.CompleteErr
	}
	next := p.Script[0]
	p.Script = p.Script[1:]
	if next.Err != nil {
		return nil, next.Err
	}
	return &llm.CompletionResponse{Content: next.Content}, nil
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// Requests returns the requests seen so far, in order.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.CompletionRequest, len(p.CompleteCalls))
	for i, c := range p.CompleteCalls {
		out[i] = c.Req
	}
	return out
}
