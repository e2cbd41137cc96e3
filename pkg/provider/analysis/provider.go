// Package analysis defines the Text Analysis Service boundary: raw prose in,
// an ordered segment list plus a scene descriptor out.
//
// Implementations must return either a complete, validated script or an
// error. A partial script is never returned.
//
// Implementors must be safe for concurrent use.
package analysis

import (
	"context"
	"errors"

	"github.com/MrWong99/storymix/pkg/script"
)

// ErrMalformed is wrapped by every error caused by an unusable service
// response (unparseable, empty, or violating the segment rules).
var ErrMalformed = errors.New("analysis: malformed response")

// Analyzer converts raw prose into segments and a scene.
type Analyzer interface {
	// Analyze splits text into narration and dialogue segments and describes
	// the scene. Concatenated segment texts should reconstruct text.
	Analyze(ctx context.Context, text string) (*script.Script, error)
}
