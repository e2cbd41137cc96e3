// Package elevenlabs synthesizes speech with the ElevenLabs streaming
// WebSocket API.
//
// Every line gets its own socket: an authenticating first message, the line,
// then an empty flush message. The streamed base64 PCM chunks are joined into
// one clip and resampled to tts.SampleRate when the requested output format
// uses another rate. ElevenLabs takes no free-text delivery instruction, so
// Request.Instruction is ignored.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/storymix/pkg/audio"
	"github.com/MrWong99/storymix/pkg/provider/tts"
)

const (
	defaultWSBase    = "wss://api.elevenlabs.io"
	defaultAPIBase   = "https://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_24000"

	// maxMessage bounds one streamed chunk.
	maxMessage = 4 << 20
)

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

// ErrNoVoice is returned for a request without a voice id.
var ErrNoVoice = errors.New("elevenlabs: voice id is required")

// VoiceSettings mirrors the voice_settings object of the stream API.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// DefaultVoiceSettings favour consistency across the lines of one character.
var DefaultVoiceSettings = VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75}

// Option customises a Provider.
type Option func(*Provider)

// WithModel selects the model id, e.g. "eleven_multilingual_v2".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat selects a "pcm_<rate>" output format.
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.format = format }
}

// WithVoiceSettings overrides [DefaultVoiceSettings].
func WithVoiceSettings(vs VoiceSettings) Option {
	return func(p *Provider) { p.settings = vs }
}

// WithBaseURLs points the provider at other WebSocket and REST endpoints.
func WithBaseURLs(wsBase, apiBase string) Option {
	return func(p *Provider) {
		if wsBase != "" {
			p.wsBase = strings.TrimRight(wsBase, "/")
		}
		if apiBase != "" {
			p.apiBase = strings.TrimRight(apiBase, "/")
		}
	}
}

// Provider implements tts.Provider and tts.VoiceLister for ElevenLabs.
type Provider struct {
	apiKey   string
	model    string
	format   string
	rate     int
	settings VoiceSettings
	wsBase   string
	apiBase  string
	client   *http.Client
}

// New returns a provider authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: api key is required")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		format:   defaultOutputFmt,
		settings: DefaultVoiceSettings,
		wsBase:   defaultWSBase,
		apiBase:  defaultAPIBase,
		client:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	rate, err := formatRate(p.format)
	if err != nil {
		return nil, err
	}
	p.rate = rate
	return p, nil
}

// streamMessage is every message storymix sends on the socket. Only the first
// carries settings and the key; an empty Text flushes.
type streamMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *VoiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

// streamReply is one message from the server.
type streamReply struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Synthesize speaks one line and returns mono PCM16 at tts.SampleRate.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	switch {
	case strings.TrimSpace(req.Text) == "":
		return nil, tts.ErrEmptyText
	case req.Voice == "":
		return nil, ErrNoVoice
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(req.Voice), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMessage)

	settings := p.settings
	// The opening message must carry non-empty text.
	for _, m := range []streamMessage{
		{Text: " ", VoiceSettings: &settings, XiAPIKey: p.apiKey},
		{Text: req.Text + " "},
		{Text: ""},
	} {
		if err := writeJSON(ctx, conn, m); err != nil {
			return nil, err
		}
	}

	pcm, err := readStream(ctx, conn)
	if err != nil {
		return nil, err
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
	return audio.ResampleMono16(pcm[:len(pcm)&^1], p.rate, tts.SampleRate), nil
}

func writeJSON(ctx context.Context, conn *websocket.Conn, m streamMessage) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("elevenlabs: encode: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("elevenlabs: send: %w", err)
	}
	return nil
}

// readStream joins audio chunks until the final marker or a normal close.
// Messages that are not JSON are skipped.
func readStream(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var pcm bytes.Buffer
	for {
		_, data, err := conn.Read(ctx)
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return pcm.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: read: %w", err)
		}
		var r streamReply
		if json.Unmarshal(data, &r) != nil {
			continue
		}
		if r.Error != "" {
			return nil, fmt.Errorf("elevenlabs: %s: %s", r.Error, r.Message)
		}
		if r.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(r.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			pcm.Write(chunk)
		}
		if r.IsFinal {
			return pcm.Bytes(), nil
		}
	}
}

func (p *Provider) streamURL(voice string) string {
	q := url.Values{"model_id": {p.model}, "output_format": {p.format}}
	return p.wsBase + "/v1/text-to-speech/" + url.PathEscape(voice) + "/stream-input?" + q.Encode()
}

// formatRate extracts the rate of a "pcm_<rate>" output format.
func formatRate(format string) (int, error) {
	s, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: output format %q is not raw pcm", format)
	}
	rate, err := strconv.Atoi(s)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: bad output format %q", format)
	}
	return rate, nil
}

// ListVoices returns the voices available to the API key, in the order the
// API lists them. Labels and the category end up in Metadata.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: status %d", resp.StatusCode)
	}

	var body struct {
		Voices []struct {
			VoiceID  string            `json:"voice_id"`
			Name     string            `json:"name"`
			Category string            `json:"category"`
			Labels   map[string]string `json:"labels"`
		} `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: decode: %w", err)
	}

	out := make([]tts.VoiceProfile, 0, len(body.Voices))
	for _, v := range body.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		out = append(out, tts.VoiceProfile{ID: v.VoiceID, Name: v.Name, Provider: "elevenlabs", Metadata: meta})
	}
	return out, nil
}
