// Package coqui synthesizes speech on a self-hosted Coqui TTS server.
//
// Two server flavours are supported:
//
//   - [APIModeStandard] (default): the stock Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Lines go to GET /api/tts as query
//     parameters; voices come from GET /details.
//   - [APIModeXTTS]: the XTTS v2 API server. Lines go to POST /tts_to_audio/
//     as JSON; voices come from GET /studio_speakers.
//
// Either way the server answers with a WAV file at the model's native rate,
// which is decoded, folded to mono and resampled to tts.SampleRate. Coqui
// models take no delivery instructions, so Request.Instruction is ignored.
//
//	p, err := coqui.New("http://localhost:5002", coqui.WithLanguage("de"))
package coqui

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/storymix/pkg/audio"
	"github.com/MrWong99/storymix/pkg/provider/tts"
)

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	standardSpeakPath  = "/api/tts"
	standardVoicesPath = "/details"
	xttsSpeakPath      = "/tts_to_audio/"
	xttsVoicesPath     = "/studio_speakers"
)

// APIMode selects the server flavour.
type APIMode string

const (
	APIModeStandard APIMode = "standard"
	APIModeXTTS     APIMode = "xtts"
)

// ErrNoSpeaker is returned in XTTS mode for a request without a voice; XTTS
// has no default speaker.
var ErrNoSpeaker = errors.New("coqui: xtts needs a voice")

// Option customises a Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent with every line. Default "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout bounds each HTTP request. Default 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.client.Timeout = d }
}

// WithAPIMode selects the server flavour. Default [APIModeStandard].
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) { p.mode = mode }
}

// Provider implements tts.Provider and tts.VoiceLister against one Coqui
// server. It is safe for concurrent use.
type Provider struct {
	base     string
	language string
	mode     APIMode
	client   *http.Client
}

// New returns a provider for the server at baseURL, e.g.
// "http://localhost:5002".
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("coqui: server url is required")
	}
	p := &Provider{
		base:     strings.TrimRight(baseURL, "/"),
		language: defaultLanguage,
		mode:     APIModeStandard,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.mode {
	case APIModeStandard, APIModeXTTS:
	default:
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.mode)
	}
	return p, nil
}

// xttsLine is the JSON body of POST /tts_to_audio/.
type xttsLine struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize speaks one line with one request and returns mono PCM16 at
// tts.SampleRate.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, tts.ErrEmptyText
	}
	httpReq, err := p.speakRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "audio/wav")

	body, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}
	clip, err := audio.ReadWAV(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	return audio.Resample(clip, tts.SampleRate).PCM16(), nil
}

func (p *Provider) speakRequest(ctx context.Context, req tts.Request) (*http.Request, error) {
	if p.mode == APIModeXTTS {
		if req.Voice == "" {
			return nil, ErrNoSpeaker
		}
		body, err := json.Marshal(xttsLine{Text: req.Text, SpeakerWav: req.Voice, Language: p.language})
		if err != nil {
			return nil, fmt.Errorf("coqui: encode line: %w", err)
		}
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+xttsSpeakPath, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("coqui: %w", err)
		}
		r.Header.Set("Content-Type", "application/json")
		return r, nil
	}

	q := url.Values{"text": {req.Text}}
	if req.Voice != "" {
		q.Set("speaker_id", req.Voice)
	}
	if p.language != "" {
		q.Set("language_id", p.language)
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+standardSpeakPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	return r, nil
}

// do sends r and returns the body of a 200 response.
func (p *Provider) do(r *http.Request) ([]byte, error) {
	resp, err := p.client.Do(r)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", r.Method, r.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("coqui: %s %s: status %d: %s",
			r.Method, r.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read %s: %w", r.URL.Path, err)
	}
	return body, nil
}

func (p *Provider) getJSON(ctx context.Context, path string, v any) error {
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+path, nil)
	if err != nil {
		return fmt.Errorf("coqui: %w", err)
	}
	r.Header.Set("Accept", "application/json")
	body, err := p.do(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("coqui: decode %s: %w", path, err)
	}
	return nil
}

// ListVoices returns the server's speakers sorted by id. A single-speaker
// standard model is reported as one voice named after the model.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	if p.mode == APIModeXTTS {
		var speakers map[string]json.RawMessage
		if err := p.getJSON(ctx, xttsVoicesPath, &speakers); err != nil {
			return nil, err
		}
		return profiles(slices.Sorted(maps.Keys(speakers)), map[string]string{"type": "studio"}), nil
	}

	var details struct {
		ModelName string   `json:"model_name"`
		Speakers  []string `json:"speakers"`
	}
	if err := p.getJSON(ctx, standardVoicesPath, &details); err != nil {
		return nil, err
	}
	if len(details.Speakers) == 0 {
		name := cmp.Or(details.ModelName, "default")
		return profiles([]string{name}, map[string]string{"type": "single-speaker", "model_name": name}), nil
	}
	speakers := slices.Sorted(slices.Values(details.Speakers))
	return profiles(speakers, map[string]string{"type": "speaker", "model_name": details.ModelName}), nil
}

func profiles(ids []string, meta map[string]string) []tts.VoiceProfile {
	out := make([]tts.VoiceProfile, len(ids))
	for i, id := range ids {
		out[i] = tts.VoiceProfile{ID: id, Name: id, Provider: "coqui", Metadata: maps.Clone(meta)}
	}
	return out
}
