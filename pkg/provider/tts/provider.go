// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., OpenAI speech,
// ElevenLabs, or a local Coqui instance) and presents a uniform batch
// interface: one line of text plus a voice and a delivery instruction in, one
// complete clip of raw PCM out.
//
// Every provider returns mono, signed 16-bit little-endian PCM at
// [SampleRate], converting from the backend's native format when needed.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// SampleRate is the sample rate of all PCM returned by Synthesize.
const SampleRate = 24000

// ErrEmptyText is returned when a request has no text to speak.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Request describes one synthesis call.
type Request struct {
	// Text is the line to speak.
	Text string

	// Voice is the provider-specific voice identifier.
	Voice string

	// Instruction is a free-text delivery instruction (tone, emotion,
	// character). Providers without instruction support ignore it.
	Instruction string
}

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis requests
// may run in parallel (e.g., several speakers at once).
type Provider interface {
	// Synthesize speaks req.Text with req.Voice and returns the full clip as
	// mono PCM16 LE at [SampleRate]. It blocks until the whole clip has been
	// received or ctx is cancelled.
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

// VoiceLister is implemented by providers that can report their voice
// catalogue.
type VoiceLister interface {
	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
