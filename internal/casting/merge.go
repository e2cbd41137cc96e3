// Package casting turns analysed segments into speech requests: it assigns a
// persistent voice to every speaker, derives delivery instructions and merges
// runs of segments into as few synthesis tasks as possible.
package casting

import (
	"strings"

	"github.com/MrWong99/storymix/pkg/script"
)

// Merge groups consecutive segments into speech tasks. A segment joins the
// current task when its speaker and narrator flag match and neither it nor the
// task's last segment carries an effect keyword. Member texts are joined with
// a single space.
//
// Voice and Instruction are taken from each task's first segment, so callers
// should assign voices before merging.
func Merge(segments []script.Segment) []script.SpeechTask {
	var tasks []script.SpeechTask
	var texts []string
	cur := -1
	flush := func() {
		if cur >= 0 {
			tasks[cur].Text = strings.Join(texts, " ")
		}
	}
	for i, seg := range segments {
		if cur >= 0 && mergeable(segments[tasks[cur].Segments[len(tasks[cur].Segments)-1]], seg) {
			tasks[cur].Segments = append(tasks[cur].Segments, i)
			texts = append(texts, seg.Text)
			continue
		}
		flush()
		tasks = append(tasks, script.SpeechTask{
			Speaker:     seg.Speaker,
			IsNarrator:  seg.IsNarrator,
			Voice:       seg.Voice,
			Instruction: Instruction(seg),
			Segments:    []int{i},
		})
		texts = []string{seg.Text}
		cur = len(tasks) - 1
	}
	flush()
	return tasks
}

func mergeable(last, next script.Segment) bool {
	return last.Speaker == next.Speaker &&
		last.IsNarrator == next.IsNarrator &&
		!last.HasSFX() && !next.HasSFX()
}

// NarratorInstruction is the delivery instruction for every narration task.
const NarratorInstruction = "Read this as a calm, neutral audiobook narrator. Keep an even pace and do not act out emotions."

// Instruction returns the delivery instruction for seg.
func Instruction(seg script.Segment) string {
	if seg.IsNarrator {
		return NarratorInstruction
	}
	emotion := strings.TrimSpace(seg.Emotion)
	if emotion == "" {
		emotion = "natural"
	}
	return "You are " + seg.Speaker + ", a character in an audio drama. Speak this line in a " + emotion + " tone."
}
