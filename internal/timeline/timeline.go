// Package timeline places variable-length speech and effect clips on the
// shared mix timeline.
package timeline

import (
	"time"
	"unicode/utf8"

	"github.com/MrWong99/storymix/pkg/audio"
	"github.com/MrWong99/storymix/pkg/script"
)

const (
	// Gap is the pause inserted after every segment that has speech.
	Gap = 120 * time.Millisecond

	// Tail is appended to the mix so effect and reverb tails are not cut.
	Tail = time.Second
)

// Build computes each segment's start offset and the total mix duration.
//
// speech holds the synthesised clip of each task, indexed like tasks. sfx
// holds the effect clip of each segment, indexed like segments; entries may be
// nil. Only the first segment of a task owns its clip. Every member is given a
// share of the clip's duration proportional to its character count, and that
// share is written to the segment's SpeechDuration.
func Build(segments []script.Segment, tasks []script.SpeechTask, speech, sfx []*audio.Clip) script.Timeline {
	shares := make([]time.Duration, len(segments))
	owned := make([]*audio.Clip, len(segments))
	for t, task := range tasks {
		if t >= len(speech) || speech[t] == nil || len(task.Segments) == 0 {
			continue
		}
		clip := speech[t]
		owned[task.Owner()] = clip
		distribute(segments, task.Segments, clip.Duration(), shares)
	}

	tl := script.Timeline{Offsets: make([]time.Duration, len(segments))}
	var running, clipEnd time.Duration
	for i := range segments {
		tl.Offsets[i] = running
		segments[i].SpeechDuration = shares[i]
		if shares[i] > 0 {
			running += shares[i] + Gap
		}
		clipEnd = max(clipEnd, tl.Offsets[i]+owned[i].Duration())
		if i < len(sfx) {
			clipEnd = max(clipEnd, tl.Offsets[i]+sfx[i].Duration())
		}
	}
	tl.Duration = max(clipEnd, running) + Tail
	return tl
}

// distribute splits total across members by character count. The remainder
// left by integer division goes to the last member so the shares sum to total.
func distribute(segments []script.Segment, members []int, total time.Duration, out []time.Duration) {
	chars := 0
	for _, idx := range members {
		chars += utf8.RuneCountInString(segments[idx].Text)
	}
	if chars == 0 {
		out[members[0]] = total
		return
	}
	var assigned time.Duration
	for k, idx := range members {
		if k == len(members)-1 {
			out[idx] = total - assigned
			break
		}
		share := time.Duration(int64(total) * int64(utf8.RuneCountInString(segments[idx].Text)) / int64(chars))
		out[idx] = share
		assigned += share
	}
}
