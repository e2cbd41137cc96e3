// Package openai speaks lines through the OpenAI audio speech endpoint.
//
// The "pcm" response format is already 24 kHz mono PCM16, the rate the rest
// of storymix works at, so clips are returned as delivered. Delivery
// instructions reach the model unless it is one of the tts-1 family, which
// rejects them.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/storymix/pkg/provider/tts"
)

const defaultModel = "gpt-4o-mini-tts"

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

// ErrNoVoice is returned for a request without a voice.
var ErrNoVoice = errors.New("openai tts: voice is required")

// builtinVoices is the fixed voice set of the speech endpoint.
var builtinVoices = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer", "verse"}

// Provider is a tts.Provider and tts.VoiceLister for OpenAI speech models.
type Provider struct {
	client oai.Client
	model  string
	speed  float64
}

type settings struct {
	model   string
	baseURL string
	timeout time.Duration
	speed   float64
}

// Option customises a Provider.
type Option func(*settings)

// WithModel selects the speech model, gpt-4o-mini-tts by default.
func WithModel(model string) Option {
	return func(s *settings) { s.model = model }
}

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.baseURL = url }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithSpeed sets the playback speed, 0.25 to 4. Zero keeps the model's pace.
func WithSpeed(speed float64) Option {
	return func(s *settings) { s.speed = speed }
}

// New returns a provider authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: api key is required")
	}
	s := settings{model: defaultModel}
	for _, o := range opts {
		o(&s)
	}
	if s.speed != 0 && (s.speed < 0.25 || s.speed > 4) {
		return nil, fmt.Errorf("openai tts: speed %v outside [0.25, 4]", s.speed)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if s.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(s.baseURL))
	}
	if s.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: s.timeout}))
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: s.model, speed: s.speed}, nil
}

// Synthesize speaks one line.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	switch {
	case strings.TrimSpace(req.Text) == "":
		return nil, tts.ErrEmptyText
	case req.Voice == "":
		return nil, ErrNoVoice
	}

	resp, err := p.client.Audio.Speech.New(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("openai tts: speech: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio: %w", err)
	}
	return pcm[:len(pcm)&^1], nil
}

func (p *Provider) params(req tts.Request) oai.AudioSpeechNewParams {
	out := oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(req.Voice),
		Input:          req.Text,
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if req.Instruction != "" && !strings.HasPrefix(strings.ToLower(p.model), "tts-1") {
		out.Instructions = param.NewOpt(req.Instruction)
	}
	if p.speed != 0 {
		out.Speed = param.NewOpt(p.speed)
	}
	return out
}

// ListVoices returns the built-in voices without calling the API.
func (p *Provider) ListVoices(context.Context) ([]tts.VoiceProfile, error) {
	out := make([]tts.VoiceProfile, len(builtinVoices))
	for i, v := range builtinVoices {
		out[i] = tts.VoiceProfile{ID: v, Name: v, Provider: "openai"}
	}
	return out, nil
}
