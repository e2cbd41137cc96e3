// Package mock provides a test double for the analysis.Analyzer interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/storymix/pkg/provider/analysis"
	"github.com/MrWong99/storymix/pkg/script"
)

// AnalyzeCall records a single invocation of Analyze.
type AnalyzeCall struct {
	Ctx  context.Context
	Text string
}

// Analyzer is a mock implementation of analysis.Analyzer. Analyze returns a
// copy of Script so callers may fill in voices and durations freely.
type Analyzer struct {
	mu sync.Mutex

	// Script is returned (copied) by Analyze. May be nil (returns nil, Err).
	Script *script.Script

	// Err, if non-nil, is returned as the error from Analyze.
	Err error

	// Calls records every invocation of Analyze in order.
	Calls []AnalyzeCall
}

// Analyze records the call and returns a copy of Script, Err.
func (a *Analyzer) Analyze(ctx context.Context, text string) (*script.Script, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls = append(a.Calls, AnalyzeCall{Ctx: ctx, Text: text})
	if a.Err != nil {
		return nil, a.Err
	}
	if a.Script == nil {
		return nil, nil
	}
	out := &script.Script{
		Segments: make([]script.Segment, len(a.Script.Segments)),
		Scene:    a.Script.Scene,
	}
	copy(out.Segments, a.Script.Segments)
	out.Scene.AmbientSounds = append([]string(nil), a.Script.Scene.AmbientSounds...)
	return out, nil
}

// CallCount returns the number of Analyze invocations. Thread-safe.
func (a *Analyzer) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Calls)
}

var _ analysis.Analyzer = (*Analyzer)(nil)
