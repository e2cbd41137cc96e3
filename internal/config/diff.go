package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VoicesChanged is true when the catalogue, narrator or default voice
	// changed. Sessions created after the reload cast from the new voices;
	// existing sessions keep their voice profile.
	VoicesChanged bool

	// RestartRequired lists sections that changed but are only read at
	// startup.
	RestartRequired []string
}

// Empty reports whether nothing relevant changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.VoicesChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed. Compare
// configs with defaults applied, or a default made explicit shows up as a
// change.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Voices.Narrator != new.Voices.Narrator ||
		old.Voices.Default != new.Voices.Default ||
		!slices.Equal(old.Voices.Catalogue, new.Voices.Catalogue) {
		d.VoicesChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !sameTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if !sameEntry(old.Providers.LLM, new.Providers.LLM) {
		d.RestartRequired = append(d.RestartRequired, "providers.llm")
	}
	if !sameEntry(old.Providers.TTS, new.Providers.TTS) {
		d.RestartRequired = append(d.RestartRequired, "providers.tts")
	}
	if old.Generation != new.Generation {
		d.RestartRequired = append(d.RestartRequired, "generation")
	}
	if old.Playback != new.Playback {
		d.RestartRequired = append(d.RestartRequired, "playback")
	}

	return d
}

// sameEntry compares the scalar fields of two provider entries. Options are
// not compared.
func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL &&
		a.Model == b.Model && a.Timeout == b.Timeout
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
