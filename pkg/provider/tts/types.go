package tts

// VoiceProfile is one entry of a backend's voice catalogue, as served by the
// voices endpoint.
type VoiceProfile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	// Metadata carries backend labels such as gender or accent.
	Metadata map[string]string `json:"metadata,omitempty"`
}
