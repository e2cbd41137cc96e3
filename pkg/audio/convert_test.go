package audio_test

import (
	"testing"

	"github.com/MrWong99/storymix/pkg/audio"
)

func TestStereoToMono(t *testing.T) {
	t.Parallel()
	stereo := audio.EncodePCM16([]int16{100, 200, -100, -200})
	got, err := audio.DecodePCM16(audio.StereoToMono(stereo))
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	want := []int16{150, -150}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono_Clamping(t *testing.T) {
	t.Parallel()
	got, _ := audio.DecodePCM16(audio.StereoToMono(audio.EncodePCM16([]int16{32767, 32767})))
	if len(got) != 1 || got[0] != 32767 {
		t.Errorf("got %v, want [32767]", got)
	}
}

func TestResampleMono16_SameRate(t *testing.T) {
	t.Parallel()
	pcm := audio.EncodePCM16([]int16{100, 200, 300})
	out := audio.ResampleMono16(pcm, 24000, 24000)
	if len(out) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(pcm))
	}
}

func TestResampleMono16_Upsample(t *testing.T) {
	t.Parallel()
	pcm := audio.EncodePCM16([]int16{0, 1000})
	got, _ := audio.DecodePCM16(audio.ResampleMono16(pcm, 12000, 24000))
	want := []int16{0, 500, 1000, 1000}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResampleMono16_Downsample(t *testing.T) {
	t.Parallel()
	pcm := audio.EncodePCM16(make([]int16, 22050))
	out := audio.ResampleMono16(pcm, 22050, 24000)
	if got := len(out) / 2; got != 24000 {
		t.Errorf("samples = %d, want 24000", got)
	}
}

func TestResampleMono16_ZeroRate(t *testing.T) {
	t.Parallel()
	pcm := audio.EncodePCM16([]int16{1, 2})
	if out := audio.ResampleMono16(pcm, 0, 24000); len(out) != len(pcm) {
		t.Errorf("zero source rate should return input unchanged")
	}
}

func TestResample_Clip(t *testing.T) {
	t.Parallel()
	c := &audio.Clip{Samples: make([]float32, 48000), SampleRate: 48000}
	out := audio.Resample(c, audio.SampleRate)
	if out.SampleRate != audio.SampleRate || out.Len() != 24000 {
		t.Errorf("got rate %d len %d, want 24000/24000", out.SampleRate, out.Len())
	}
	if audio.Resample(out, audio.SampleRate) != out {
		t.Error("same-rate resample should return the clip itself")
	}
}
