package audio

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV encodes c as a 16-bit mono PCM WAV file. The encoder patches the
// RIFF header sizes on close, so w must be seekable.
func WriteWAV(w io.WriteSeeker, c *Clip) error {
	if c == nil {
		return fmt.Errorf("audio: write wav: nil clip")
	}
	rate := c.SampleRate
	if rate <= 0 {
		rate = SampleRate
	}
	enc := wav.NewEncoder(w, rate, 16, 1, 1)
	data := make([]int, len(c.Samples))
	for i, s := range c.Samples {
		data[i] = int(FloatToInt16(s))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: close wav: %w", err)
	}
	return nil
}

// ReadWAV decodes a PCM WAV stream into a mono clip. Multi-channel input is
// averaged down to one channel.
func ReadWAV(r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("audio: read wav: not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: read wav: %w", err)
	}
	channels := max(buf.Format.NumChannels, 1)
	scale := float32(int(1) << (max(buf.SourceBitDepth, 16) - 1))
	out := &Clip{Samples: make([]float32, len(buf.Data)/channels), SampleRate: buf.Format.SampleRate}
	for i := range out.Samples {
		var sum float32
		for ch := range channels {
			sum += float32(buf.Data[i*channels+ch])
		}
		out.Samples[i] = sum / float32(channels) / scale
	}
	return out, nil
}
