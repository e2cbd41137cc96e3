package cache

import "strings"

// SpeechKey builds the key for a speech clip. Whitespace in text is collapsed
// so that reflowed copies of the same line share an entry.
func SpeechKey(voice, instruction, text string) string {
	return voice + "|" + instruction + "|" + Normalize(text)
}

// EffectKey builds the key for a sound effect keyword.
func EffectKey(keyword string) string {
	return strings.ToLower(Normalize(keyword))
}

// Normalize trims s and collapses internal whitespace runs to single spaces.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
