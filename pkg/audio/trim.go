package audio

import "time"

const (
	// DefaultSilenceThreshold is 1% of full scale.
	DefaultSilenceThreshold = 0.01

	// DefaultMinTrimmed is the shortest audible span trimming will produce.
	DefaultMinTrimmed = 50 * time.Millisecond
)

// TrimSilence removes leading and trailing samples whose magnitude does not
// exceed threshold. The clip is returned unchanged when nothing rises above
// the threshold or when the audible span would be shorter than minKeep, so a
// short line is never cut down to nothing.
//
// Trimming is idempotent: the first and last samples of a trimmed clip are
// above the threshold, so a second pass finds the same bounds.
func TrimSilence(c *Clip, threshold float32, minKeep time.Duration) *Clip {
	if c == nil || len(c.Samples) == 0 {
		return c
	}
	start, end := -1, -1
	for i, s := range c.Samples {
		if abs32(s) > threshold {
			start = i
			break
		}
	}
	if start < 0 {
		return c
	}
	for i := len(c.Samples) - 1; i >= start; i-- {
		if abs32(c.Samples[i]) > threshold {
			end = i + 1
			break
		}
	}
	if DurationOf(end-start, c.SampleRate) < minKeep {
		return c
	}
	if start == 0 && end == len(c.Samples) {
		return c
	}
	out := &Clip{Samples: make([]float32, end-start), SampleRate: c.SampleRate}
	copy(out.Samples, c.Samples[start:end])
	return out
}

func abs32(s float32) float32 {
	if s < 0 {
		return -s
	}
	return s
}
