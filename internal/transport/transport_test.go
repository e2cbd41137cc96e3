package transport_test

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/storymix/internal/transport"
	"github.com/MrWong99/storymix/pkg/audio"
	"github.com/MrWong99/storymix/pkg/script"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTransport(t *testing.T, tracks *script.AudioTracks) (*transport.Transport, *fakeClock, *transport.NullOutput) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(0, 0)}
	out := &transport.NullOutput{}
	pc := transport.NewContext(out, transport.WithClock(clock.Now))
	tr := transport.New(pc)
	if tracks != nil {
		tr.Load(tracks)
	}
	t.Cleanup(func() {
		_ = tr.Close()
		_ = pc.Close()
	})
	return tr, clock, out
}

func silentTracks(d time.Duration) *script.AudioTracks {
	return &script.AudioTracks{
		Dialogue: audio.NewClip(d),
		Score:    audio.NewClip(d),
		Ambience: audio.NewClip(d),
		SFX:      audio.NewClip(d),
		Duration: d,
	}
}

func near(a, b time.Duration) bool {
	d := a - b
	return d < time.Millisecond && d > -time.Millisecond
}

func TestPlay_NoTracks(t *testing.T) {
	t.Parallel()
	tr, _, _ := newTransport(t, nil)
	if err := tr.Play(); !errors.Is(err, transport.ErrNoTracks) {
		t.Errorf("err = %v, want ErrNoTracks", err)
	}
}

func TestSpeedChange_NoDiscontinuity(t *testing.T) {
	t.Parallel()
	tr, clock, _ := newTransport(t, silentTracks(time.Minute))
	if err := tr.Play(); err != nil {
		t.Fatal(err)
	}
	clock.Advance(10 * time.Second)
	before := tr.Position()
	tr.SetSpeed(2)
	after := tr.Position()
	if !near(before, 10*time.Second) || !near(after, before) {
		t.Fatalf("position jumped from %v to %v on speed change", before, after)
	}

	clock.Advance(time.Second)
	if got := tr.Position(); !near(got, 12*time.Second) {
		t.Errorf("position after 1s at 2x = %v, want 12s", got)
	}
	p := tr.Progress()
	if math.Abs(p-20) > 0.01 {
		t.Errorf("progress = %v, want 20", p)
	}
}

func TestPauseResume(t *testing.T) {
	t.Parallel()
	tr, clock, out := newTransport(t, silentTracks(time.Minute))
	if err := tr.Play(); err != nil {
		t.Fatal(err)
	}
	clock.Advance(5 * time.Second)
	if err := tr.Pause(); err != nil {
		t.Fatal(err)
	}
	if tr.State() != transport.Stopped || out.Active() {
		t.Fatal("pause should stop the output")
	}
	clock.Advance(time.Hour)
	if got := tr.Position(); !near(got, 5*time.Second) {
		t.Errorf("paused position = %v, want 5s", got)
	}

	if err := tr.Play(); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Second)
	if got := tr.Position(); !near(got, 7*time.Second) {
		t.Errorf("resumed position = %v, want 7s", got)
	}
	if out.Starts() != 2 {
		t.Errorf("output starts = %d, want 2", out.Starts())
	}
}

func TestProgress_AutoStopAtEnd(t *testing.T) {
	t.Parallel()
	tr, clock, _ := newTransport(t, silentTracks(10*time.Second))
	if err := tr.Play(); err != nil {
		t.Fatal(err)
	}
	clock.Advance(11 * time.Second)
	// The background watcher may have stopped playback already.
	if p := tr.Progress(); p != 100 && p != 0 {
		t.Errorf("progress at end = %v, want 100 (or 0 once rewound)", p)
	}
	if tr.State() != transport.Stopped {
		t.Error("transport should stop at the end")
	}
	if tr.Position() != 0 {
		t.Errorf("resume offset = %v, want 0", tr.Position())
	}
}

func TestSeek(t *testing.T) {
	t.Parallel()
	tr, clock, _ := newTransport(t, silentTracks(10*time.Second))
	tr.Seek(time.Hour)
	if tr.Position() != 10*time.Second {
		t.Errorf("seek past end = %v, want 10s", tr.Position())
	}
	tr.Seek(-time.Second)
	if tr.Position() != 0 {
		t.Errorf("seek before start = %v, want 0", tr.Position())
	}

	if err := tr.Play(); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
	tr.Seek(4 * time.Second)
	clock.Advance(time.Second)
	if got := tr.Position(); !near(got, 5*time.Second) {
		t.Errorf("position = %v, want 5s", got)
	}
}

func TestSetSpeedAndVolume_Clamp(t *testing.T) {
	t.Parallel()
	tr, _, _ := newTransport(t, nil)
	tr.SetSpeed(100)
	if tr.Speed() != transport.MaxSpeed {
		t.Errorf("speed = %v, want %v", tr.Speed(), transport.MaxSpeed)
	}
	tr.SetSpeed(0)
	if tr.Speed() != transport.MinSpeed {
		t.Errorf("speed = %v, want %v", tr.Speed(), transport.MinSpeed)
	}
	if err := tr.SetVolume(script.TrackScore, -1); err != nil {
		t.Fatal(err)
	}
	if tr.Volume(script.TrackScore) != 0 {
		t.Errorf("volume = %v, want 0", tr.Volume(script.TrackScore))
	}
	if err := tr.SetVolume(script.Track(9), 1); err == nil {
		t.Error("expected error for unknown track")
	}
}

func samplesOf(p []byte) []int16 {
	out := make([]int16, len(p)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(p[i*2:]))
	}
	return out
}

func TestRead_StoppedIsSilence(t *testing.T) {
	t.Parallel()
	tr, _, _ := newTransport(t, silentTracks(time.Second))
	p := []byte{1, 2, 3, 4}
	n, err := tr.Read(p)
	if err != nil || n != 4 {
		t.Fatalf("Read = (%d, %v)", n, err)
	}
	for _, s := range samplesOf(p) {
		if s != 0 {
			t.Fatalf("samples = %v, want silence", samplesOf(p))
		}
	}
}

// quiet stays below the compressor threshold so the mix passes unchanged.
const quiet = 0.01

func TestRead_LoopsBedsButNotDialogue(t *testing.T) {
	t.Parallel()
	tracks := &script.AudioTracks{
		Dialogue: &audio.Clip{Samples: []float32{quiet, quiet}, SampleRate: audio.SampleRate},
		Score:    &audio.Clip{Samples: []float32{quiet, 0, 0}, SampleRate: audio.SampleRate},
		Ambience: &audio.Clip{SampleRate: audio.SampleRate},
		SFX:      &audio.Clip{SampleRate: audio.SampleRate},
		Duration: time.Second,
	}
	tr, _, _ := newTransport(t, tracks)
	if err := tr.Play(); err != nil {
		t.Fatal(err)
	}
	p := make([]byte, 2*7)
	if _, err := tr.Read(p); err != nil {
		t.Fatal(err)
	}
	one := audio.FloatToInt16(quiet)
	two := audio.FloatToInt16(2 * quiet)
	want := []int16{two, one, 0, one, 0, 0, one}
	got := samplesOf(p)
	for i := range want {
		if d := int(got[i]) - int(want[i]); d > 2 || d < -2 {
			t.Fatalf("frames = %v, want %v", got, want)
		}
	}
}

func TestRead_SpeedAndGain(t *testing.T) {
	t.Parallel()
	ramp := make([]float32, 16)
	for i := range ramp {
		ramp[i] = float32(i) * 0.001
	}
	tracks := silentTracks(time.Second)
	tracks.Dialogue = &audio.Clip{Samples: ramp, SampleRate: audio.SampleRate}
	tr, _, _ := newTransport(t, tracks)
	tr.SetSpeed(2)
	_ = tr.SetVolume(script.TrackDialogue, 0.5)
	if err := tr.Play(); err != nil {
		t.Fatal(err)
	}
	p := make([]byte, 2*4)
	_, _ = tr.Read(p)
	got := samplesOf(p)
	for i, s := range got {
		want := audio.FloatToInt16(0.5 * ramp[2*i])
		if d := int(s) - int(want); d > 2 || d < -2 {
			t.Errorf("frame %d = %d, want %d", i, s, want)
		}
	}
}

func TestRead_StereoDuplicatesMono(t *testing.T) {
	t.Parallel()
	tracks := silentTracks(time.Second)
	tracks.Dialogue = &audio.Clip{Samples: []float32{quiet}, SampleRate: audio.SampleRate}
	pc := transport.NewContext(&transport.NullOutput{}, transport.WithFormat(audio.SampleRate, 2))
	tr := transport.New(pc)
	tr.Load(tracks)
	if err := tr.Play(); err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	p := make([]byte, 4)
	_, _ = tr.Read(p)
	s := samplesOf(p)
	if s[0] != s[1] || s[0] == 0 {
		t.Errorf("stereo frame = %v, want equal non-zero channels", s)
	}
}

func TestRead_CompressorLimitsLoudBus(t *testing.T) {
	t.Parallel()
	n := audio.SampleRate / 2
	loud := make([]float32, n)
	for i := range loud {
		loud[i] = 1
	}
	tracks := &script.AudioTracks{
		Dialogue: &audio.Clip{Samples: loud, SampleRate: audio.SampleRate},
		Score:    &audio.Clip{Samples: loud, SampleRate: audio.SampleRate},
		Ambience: &audio.Clip{Samples: loud, SampleRate: audio.SampleRate},
		SFX:      &audio.Clip{Samples: loud, SampleRate: audio.SampleRate},
		Duration: 500 * time.Millisecond,
	}
	tr, _, _ := newTransport(t, tracks)
	if err := tr.Play(); err != nil {
		t.Fatal(err)
	}
	p := make([]byte, 2*n/2)
	_, _ = tr.Read(p)
	s := samplesOf(p)
	last := float64(s[len(s)-1]) / 32767
	// Four tracks at full scale sum to +12 dB; 12:1 above -24 dB settles at
	// -24 + 36/12 = -21 dB.
	want := math.Pow(10, -21.0/20)
	if math.Abs(last-want) > 0.01 {
		t.Errorf("settled level = %v, want ~%v", last, want)
	}
	// The first few milliseconds pass through before the attack engages.
	for _, v := range s[len(s)/2:] {
		if v == math.MaxInt16 {
			t.Fatal("bus still at the ceiling after the attack")
		}
	}
}

func TestContext_CloseIdempotent(t *testing.T) {
	t.Parallel()
	pc := transport.NewContext(&transport.NullOutput{})
	if err := pc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := pc.Close(); err != nil {
		t.Fatal(err)
	}
	tr := transport.New(pc)
	tr.Load(silentTracks(time.Second))
	if err := tr.Play(); !errors.Is(err, transport.ErrContextClosed) {
		t.Errorf("Play on closed context = %v, want ErrContextClosed", err)
	}
}
