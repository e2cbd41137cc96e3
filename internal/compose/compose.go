// Package compose stitches sparse per-segment clips into contiguous track
// buffers sized to the mix duration.
package compose

import (
	"github.com/MrWong99/storymix/pkg/audio"
	"github.com/MrWong99/storymix/pkg/script"
)

// Dialogue builds the dialogue track.
//
// Character clips are written at their owners' offsets into a dry buffer that
// is then run through rev. Narrator clips are mixed additively into the
// reverberated buffer afterwards, so narration stays dry while reverb tails
// of earlier dialogue are kept. speech is indexed like tasks.
func Dialogue(tasks []script.SpeechTask, speech []*audio.Clip, tl script.Timeline, rev *Reverb) *audio.Clip {
	out := audio.NewClip(tl.Duration)

	for t, task := range tasks {
		if task.IsNarrator || t >= len(speech) {
			continue
		}
		out.WriteAt(speech[t], offset(tl, task.Owner()))
	}
	if rev != nil {
		out.Samples = rev.Process(out.Samples)
	}
	for t, task := range tasks {
		if !task.IsNarrator || t >= len(speech) {
			continue
		}
		out.MixAt(speech[t], offset(tl, task.Owner()))
	}
	return out
}

// Effects builds the sfx track by mixing each segment's effect clip at the
// segment's offset. sfx is indexed like the timeline's offsets; nil entries
// are skipped.
func Effects(sfx []*audio.Clip, tl script.Timeline) *audio.Clip {
	out := audio.NewClip(tl.Duration)
	for i, c := range sfx {
		if c == nil || i >= len(tl.Offsets) {
			continue
		}
		out.MixAt(c, offset(tl, i))
	}
	return out
}

func offset(tl script.Timeline, segment int) int {
	return audio.SamplesFor(tl.Offsets[segment], audio.SampleRate)
}
