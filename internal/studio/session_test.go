package studio_test

import (
	"context"
	"errors"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/storymix/internal/observe"
	"github.com/MrWong99/storymix/internal/scheduler"
	"github.com/MrWong99/storymix/internal/studio"
	"github.com/MrWong99/storymix/internal/synth"
	"github.com/MrWong99/storymix/internal/transport"
	"github.com/MrWong99/storymix/pkg/audio"
	analysismock "github.com/MrWong99/storymix/pkg/provider/analysis/mock"
	"github.com/MrWong99/storymix/pkg/provider/tts"
	ttsmock "github.com/MrWong99/storymix/pkg/provider/tts/mock"
	"github.com/MrWong99/storymix/pkg/script"
)

const storyText = `The door creaked open. "Who's there?" Mara whispered. "Show yourself." Nobody answered.`

func testScript() *script.Script {
	return &script.Script{
		Segments: []script.Segment{
			{Text: "The door creaked open.", Speaker: script.NarratorName, IsNarrator: true, SFX: "door creak"},
			{Text: "Who's there?", Speaker: "Mara", Gender: script.GenderFemale, Emotion: "whispering"},
			{Text: "Show yourself.", Speaker: "Mara", Gender: script.GenderFemale, Emotion: "whispering"},
			{Text: "Nobody answered.", Speaker: script.NarratorName, IsNarrator: true},
		},
		Scene: script.Scene{
			Location:      "old house",
			Mood:          script.MoodTense,
			Perspective:   script.ThirdPerson,
			AmbientSounds: []string{"wind", "clock"},
		},
	}
}

// tone returns d of PCM16 at a constant non-silent level.
func tone(d time.Duration) []byte {
	samples := make([]int16, audio.SamplesFor(d, audio.SampleRate))
	for i := range samples {
		samples[i] = 8000
		if i%2 == 1 {
			samples[i] = -8000
		}
	}
	return audio.EncodePCM16(samples)
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newSession(t *testing.T, speech tts.Provider, opts ...studio.Option) (*studio.Session, *analysismock.Analyzer) {
	t.Helper()
	an := &analysismock.Analyzer{Script: testScript()}
	base := []studio.Option{
		studio.WithSeed(7),
		studio.WithReverb(nil),
		studio.WithMetrics(testMetrics(t)),
	}
	s := studio.New(an, speech, scheduler.New(2, 1), append(base, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s, an
}

func TestAnalyze_EmptyInput(t *testing.T) {
	t.Parallel()
	s, an := newSession(t, &ttsmock.Provider{})

	for _, in := range []string{"", "   ", "\n\t"} {
		if _, err := s.Analyze(context.Background(), in); !errors.Is(err, studio.ErrEmptyInput) {
			t.Errorf("Analyze(%q) error = %v, want ErrEmptyInput", in, err)
		}
	}
	if n := an.CallCount(); n != 0 {
		t.Errorf("analyzer called %d times, want 0", n)
	}
}

func TestAnalyze_Failure(t *testing.T) {
	t.Parallel()
	s, an := newSession(t, &ttsmock.Provider{})
	cause := errors.New("service unavailable")
	an.Err = cause

	_, err := s.Analyze(context.Background(), storyText)
	if !errors.Is(err, studio.ErrAnalysis) {
		t.Errorf("error = %v, want ErrAnalysis", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("error = %v, want cause to be wrapped", err)
	}
	if s.Script() != nil {
		t.Error("failed analysis must not leave a partial script")
	}
}

func TestAnalyze_EmptyResult(t *testing.T) {
	t.Parallel()
	s, an := newSession(t, &ttsmock.Provider{})
	an.Script = &script.Script{}

	if _, err := s.Analyze(context.Background(), storyText); !errors.Is(err, studio.ErrAnalysis) {
		t.Errorf("error = %v, want ErrAnalysis", err)
	}
}

func TestAnalyze_CastsAndPlans(t *testing.T) {
	t.Parallel()
	s, an := newSession(t, &ttsmock.Provider{}, studio.WithVoices(nil, "fable", "alloy"))

	sc, err := s.Analyze(context.Background(), storyText)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if an.Calls[0].Text != storyText {
		t.Errorf("analyzer received %q", an.Calls[0].Text)
	}
	for i, seg := range sc.Segments {
		if seg.Voice == "" {
			t.Errorf("segment %d has no voice", i)
		}
	}
	if sc.Segments[0].Voice != "fable" {
		t.Errorf("narrator voice = %q, want fable", sc.Segments[0].Voice)
	}

	tasks := s.Tasks()
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}
	if got := tasks[1].Text; got != "Who's there? Show yourself." {
		t.Errorf("merged text = %q", got)
	}
	if tasks[1].Voice != s.Cast()["Mara"] {
		t.Errorf("task voice %q does not match cast %q", tasks[1].Voice, s.Cast()["Mara"])
	}
}

func TestGenerate_NoScript(t *testing.T) {
	t.Parallel()
	s, _ := newSession(t, &ttsmock.Provider{})
	if _, err := s.Generate(context.Background()); !errors.Is(err, studio.ErrNoScript) {
		t.Errorf("error = %v, want ErrNoScript", err)
	}
	if _, _, err := s.Prefetch(context.Background()); !errors.Is(err, studio.ErrNoScript) {
		t.Errorf("Prefetch error = %v, want ErrNoScript", err)
	}
}

func TestGenerate_ProducesFourTracks(t *testing.T) {
	t.Parallel()
	speech := &ttsmock.Provider{PCM: tone(500 * time.Millisecond)}
	s, _ := newSession(t, speech)
	ctx := context.Background()

	if _, err := s.Analyze(ctx, storyText); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	tracks, err := s.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if tracks.Duration <= time.Second {
		t.Errorf("duration = %v, want more than the tail", tracks.Duration)
	}
	for _, tr := range script.Tracks {
		want := audio.SamplesFor(tracks.Duration, audio.SampleRate)
		if tr == script.TrackAmbience {
			want = audio.SamplesFor(min(tracks.Duration, synth.MaxAmbienceLoop), audio.SampleRate)
		}
		c := tracks.Clip(tr)
		if c == nil {
			t.Fatalf("track %s is nil", tr)
		}
		if c.Len() != want {
			t.Errorf("track %s has %d samples, want %d", tr, c.Len(), want)
		}
	}
	if tracks.Dialogue.Peak() == 0 {
		t.Error("dialogue track is silent")
	}
	if tracks.SFX.Peak() == 0 {
		t.Error("sfx track is silent")
	}
	if s.Tracks() != tracks {
		t.Error("Tracks() does not return the generated mix")
	}

	calls := speech.Calls()
	if len(calls) != 3 {
		t.Fatalf("got %d synth calls, want 3", len(calls))
	}
	for _, c := range calls {
		if c.Req.Voice == "" || c.Req.Instruction == "" {
			t.Errorf("request missing voice or instruction: %+v", c.Req)
		}
	}

	sc := s.Script()
	var total time.Duration
	for _, seg := range sc.Segments {
		total += seg.SpeechDuration
	}
	if total != 3*500*time.Millisecond {
		t.Errorf("speech durations sum to %v, want 1.5s", total)
	}
}

func TestGenerate_ReusesCache(t *testing.T) {
	t.Parallel()
	speech := &ttsmock.Provider{PCM: tone(200 * time.Millisecond)}
	s, _ := newSession(t, speech)
	ctx := context.Background()

	if _, err := s.Analyze(ctx, storyText); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if _, err := s.Generate(ctx); err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	// Re-analysis of the same text reuses every clip.
	if _, err := s.Analyze(ctx, storyText); err != nil {
		t.Fatalf("second Analyze: %v", err)
	}
	if _, err := s.Generate(ctx); err != nil {
		t.Fatalf("second Generate: %v", err)
	}

	if n := len(speech.Calls()); n != 3 {
		t.Errorf("got %d synth calls, want 3", n)
	}
	sp, fx := s.CacheStats()
	if sp.Hits != 3 || sp.Misses != 3 {
		t.Errorf("speech stats = %+v, want 3 hits and 3 misses", sp)
	}
	if fx.Misses != 1 {
		t.Errorf("effect stats = %+v, want 1 miss", fx)
	}
}

func TestPrefetch_DeduplicatesWithGenerate(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	var calls atomic.Int32
	speech := &ttsmock.Provider{
		SynthesizeFunc: func(ctx context.Context, req tts.Request) ([]byte, error) {
			calls.Add(1)
			<-release
			return tone(100 * time.Millisecond), nil
		},
	}
	s, _ := newSession(t, speech)
	ctx := context.Background()
	if _, err := s.Analyze(ctx, storyText); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	nSpeech, nFX, err := s.Prefetch(ctx)
	if err != nil {
		t.Fatalf("Prefetch: %v", err)
	}
	if nSpeech != 3 || nFX != 1 {
		t.Errorf("Prefetch = (%d, %d), want (3, 1)", nSpeech, nFX)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Generate(ctx)
		done <- err
	}()
	close(release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Generate did not finish")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("got %d synth calls, want 3", n)
	}
}

func TestPrefetch_SurvivesRequestCancellation(t *testing.T) {
	t.Parallel()
	speech := &ttsmock.Provider{PCM: tone(100 * time.Millisecond)}
	s, _ := newSession(t, speech)
	if _, err := s.Analyze(context.Background(), storyText); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if _, _, err := s.Prefetch(ctx); err != nil {
		t.Fatalf("Prefetch: %v", err)
	}
	cancel()

	if _, err := s.Generate(context.Background()); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if n := len(speech.Calls()); n != 3 {
		t.Errorf("got %d synth calls, want 3", n)
	}
}

func TestGenerate_FailureAbortsAndRetries(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	failed := false
	cause := errors.New("voice model crashed")
	speech := &ttsmock.Provider{
		SynthesizeFunc: func(ctx context.Context, req tts.Request) ([]byte, error) {
			mu.Lock()
			defer mu.Unlock()
			if strings.HasPrefix(req.Text, "Who's there?") && !failed {
				failed = true
				return nil, cause
			}
			return tone(100 * time.Millisecond), nil
		},
	}
	s, _ := newSession(t, speech)
	ctx := context.Background()
	if _, err := s.Analyze(ctx, storyText); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	_, err := s.Generate(ctx)
	if !errors.Is(err, studio.ErrGeneration) || !errors.Is(err, cause) {
		t.Fatalf("error = %v, want ErrGeneration wrapping cause", err)
	}
	if s.Tracks() != nil {
		t.Error("failed generation must not publish tracks")
	}

	if _, err := s.Generate(ctx); err != nil {
		t.Fatalf("retry Generate: %v", err)
	}
	if n := len(speech.Calls()); n != 4 {
		t.Errorf("got %d synth calls, want 4 (3 + 1 retry)", n)
	}
}

func TestGenerate_TrimsSpeech(t *testing.T) {
	t.Parallel()
	silence := make([]byte, 2*audio.SamplesFor(300*time.Millisecond, audio.SampleRate))
	pcm := append(append(append([]byte(nil), silence...), tone(400*time.Millisecond)...), silence...)
	s, _ := newSession(t, &ttsmock.Provider{PCM: pcm})
	ctx := context.Background()
	if _, err := s.Analyze(ctx, storyText); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if _, err := s.Generate(ctx); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	sc := s.Script()
	if got := sc.Segments[0].SpeechDuration; got != 400*time.Millisecond {
		t.Errorf("narrator speech = %v, want 400ms after trimming", got)
	}
}

func TestSession_SameSeedSameMix(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var mixes [2]*script.AudioTracks
	var casts [2]map[string]string
	for i := range mixes {
		s, _ := newSession(t, &ttsmock.Provider{PCM: tone(200 * time.Millisecond)})
		if _, err := s.Analyze(ctx, storyText); err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		tr, err := s.Generate(ctx)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		mixes[i], casts[i] = tr, s.Cast()
	}
	if !maps.Equal(casts[0], casts[1]) {
		t.Errorf("casts differ: %v vs %v", casts[0], casts[1])
	}
	for _, tr := range script.Tracks {
		a, b := mixes[0].Clip(tr).Samples, mixes[1].Clip(tr).Samples
		if len(a) != len(b) {
			t.Fatalf("track %s lengths differ", tr)
		}
		for i := range a {
			if a[i] != b[i] {
				t.Errorf("track %s differs at sample %d", tr, i)
				break
			}
		}
	}
}

func TestSession_Close(t *testing.T) {
	t.Parallel()
	s, _ := newSession(t, &ttsmock.Provider{PCM: tone(100 * time.Millisecond)})
	ctx := context.Background()
	if _, err := s.Analyze(ctx, storyText); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := s.Generate(ctx); !errors.Is(err, studio.ErrClosed) {
		t.Errorf("Generate error = %v, want ErrClosed", err)
	}
	if _, err := s.Analyze(ctx, storyText); !errors.Is(err, studio.ErrClosed) {
		t.Errorf("Analyze error = %v, want ErrClosed", err)
	}
	if _, err := s.Transport(); !errors.Is(err, studio.ErrClosed) {
		t.Errorf("Transport error = %v, want ErrClosed", err)
	}
}

func TestPlayback_NotConfigured(t *testing.T) {
	t.Parallel()
	s, _ := newSession(t, &ttsmock.Provider{})
	if _, err := s.Transport(); !errors.Is(err, studio.ErrNoPlayback) {
		t.Errorf("error = %v, want ErrNoPlayback", err)
	}
}

func TestPlayback_LazyContext(t *testing.T) {
	t.Parallel()
	out := &transport.NullOutput{}
	opened := 0
	factory := func() (transport.Output, error) {
		opened++
		return out, nil
	}
	s, _ := newSession(t, &ttsmock.Provider{PCM: tone(200 * time.Millisecond)},
		studio.WithOutput(factory, 0, 2))
	ctx := context.Background()

	if err := s.Play(); !errors.Is(err, studio.ErrNoTracks) {
		t.Errorf("Play before generate = %v, want ErrNoTracks", err)
	}
	if opened != 0 {
		t.Errorf("device opened %d times before playback, want 0", opened)
	}

	if _, err := s.Analyze(ctx, storyText); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if _, err := s.Generate(ctx); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := s.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	tr, err := s.Transport()
	if err != nil {
		t.Fatalf("Transport: %v", err)
	}
	if tr.State() != transport.Playing {
		t.Errorf("state = %v, want playing", tr.State())
	}
	if !out.Active() {
		t.Error("output has no source while playing")
	}
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if opened != 1 {
		t.Errorf("device opened %d times, want 1", opened)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if out.Active() {
		t.Error("output still active after Close")
	}
}

func TestGenerate_SpeechAdmittedInTaskOrder(t *testing.T) {
	t.Parallel()
	sc := &script.Script{Scene: script.Scene{Mood: script.MoodNeutral, Perspective: script.ThirdPerson}}
	var story []string
	for i := range 8 {
		seg := script.Segment{Text: "Line " + string(rune('0'+i)) + ".", Speaker: "Mara", Gender: script.GenderFemale}
		if i%2 == 0 {
			seg.Speaker, seg.IsNarrator = script.NarratorName, true
		}
		sc.Segments = append(sc.Segments, seg)
		story = append(story, seg.Text)
	}

	var mu sync.Mutex
	var spoken []string
	speech := &ttsmock.Provider{
		SynthesizeFunc: func(ctx context.Context, req tts.Request) ([]byte, error) {
			mu.Lock()
			spoken = append(spoken, req.Text)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			return tone(50 * time.Millisecond), nil
		},
	}
	s := studio.New(&analysismock.Analyzer{Script: sc}, speech, scheduler.New(1, 1),
		studio.WithSeed(7), studio.WithReverb(nil), studio.WithMetrics(testMetrics(t)))
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	if _, err := s.Analyze(ctx, strings.Join(story, " ")); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if _, err := s.Generate(ctx); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(spoken) != 8 {
		t.Fatalf("spoke %d lines, want 8: %q", len(spoken), spoken)
	}
	for i, text := range spoken {
		if !strings.Contains(text, "Line "+string(rune('0'+i))) {
			t.Fatalf("synthesis order = %q, want Line 0 to Line 7", spoken)
		}
	}
}
