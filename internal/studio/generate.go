package studio

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/storymix/internal/cache"
	"github.com/MrWong99/storymix/internal/compose"
	"github.com/MrWong99/storymix/internal/observe"
	"github.com/MrWong99/storymix/internal/scheduler"
	"github.com/MrWong99/storymix/internal/synth"
	"github.com/MrWong99/storymix/internal/timeline"
	"github.com/MrWong99/storymix/pkg/audio"
	"github.com/MrWong99/storymix/pkg/provider/tts"
	"github.com/MrWong99/storymix/pkg/script"
)

// Prefetch starts speech and effect generation for the current script
// without waiting for it. Work already cached or in flight is not repeated.
// It returns the number of speech tasks and effect keywords submitted.
func (s *Session) Prefetch(ctx context.Context) (speech, effects int, err error) {
	sc, tasks, err := s.snapshot()
	if err != nil {
		return 0, 0, err
	}
	sh, eh := s.submit(sc, tasks)
	observe.Logger(ctx).Debug("studio: prefetch submitted",
		"session", s.id,
		"speech", len(sh),
		"effects", countEffects(eh),
	)
	return len(sh), countEffects(eh), nil
}

// Generate produces the four tracks of the current script. It waits for every
// speech and effect clip; the first failure aborts the mix and is returned
// wrapped in [ErrGeneration]. Generated clips stay cached, so a retry only
// repeats the work that failed.
func (s *Session) Generate(ctx context.Context) (tracks *script.AudioTracks, err error) {
	sc, tasks, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	ctx, span := observe.StartSpan(ctx, "studio.generate", observe.Session(s.id))
	defer func() {
		s.opts.metrics.RecordGeneration(ctx, err)
		observe.EndSpan(span, err)
	}()

	start := time.Now()
	sh, eh := s.submit(sc, tasks)

	speech := make([]*audio.Clip, len(sh))
	sfx := make([]*audio.Clip, len(eh))

	// Join barrier: the errgroup context cancels the remaining waits on the
	// first failure. Producers already admitted keep running and fill the
	// cache for the next attempt.
	g, gctx := errgroup.WithContext(ctx)
	for i, h := range sh {
		g.Go(func() error {
			c, err := h.Wait(gctx)
			if err != nil {
				return fmt.Errorf("speech for %q: %w", tasks[i].Speaker, err)
			}
			speech[i] = c
			return nil
		})
	}
	for i, h := range eh {
		if h == nil {
			continue
		}
		g.Go(func() error {
			c, err := h.Wait(gctx)
			if err != nil {
				return fmt.Errorf("effect %q: %w", sc.Segments[i].SFX, err)
			}
			sfx[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	mixStart := time.Now()
	tracks, tl := s.mix(sc, tasks, speech, sfx)
	s.opts.metrics.MixDuration.Record(ctx, time.Since(mixStart).Seconds())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	for i := range sc.Segments {
		if i < len(s.script.Segments) && s.script.Segments[i].Text == sc.Segments[i].Text {
			s.script.Segments[i].SpeechDuration = sc.Segments[i].SpeechDuration
		}
	}
	s.tracks = tracks
	s.timeline = tl
	tr := s.tr
	s.mu.Unlock()

	if tr != nil {
		tr.Load(tracks)
	}

	observe.Logger(ctx).Info("studio: mix generated",
		"session", s.id,
		"duration", tracks.Duration,
		"speech_clips", len(speech),
		"effects", countEffects(eh),
		"took", time.Since(start),
	)
	return tracks, nil
}

// mix places the clips on the timeline and renders the four tracks. The
// score and ambience beds are synthesised concurrently with compositing.
func (s *Session) mix(sc *script.Script, tasks []script.SpeechTask, speech, sfx []*audio.Clip) (*script.AudioTracks, script.Timeline) {
	tl := timeline.Build(sc.Segments, tasks, speech, sfx)
	out := &script.AudioTracks{Duration: tl.Duration}

	var wg sync.WaitGroup
	wg.Go(func() { out.Dialogue = compose.Dialogue(tasks, speech, tl, s.opts.reverb) })
	wg.Go(func() { out.SFX = compose.Effects(sfx, tl) })
	wg.Go(func() { out.Score = synth.Score(sc.Scene.Mood, tl.Duration, s.rng(streamScore)) })
	wg.Go(func() { out.Ambience = synth.Ambience(sc.Scene, tl.Duration, s.rng(streamAmbience)) })
	wg.Wait()
	return out, tl
}

// submit returns one speech handle per task and one effect handle per segment
// (nil for segments without an effect).
func (s *Session) submit(sc *script.Script, tasks []script.SpeechTask) ([]*cache.Handle[*audio.Clip], []*cache.Handle[*audio.Clip]) {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	sh := make([]*cache.Handle[*audio.Clip], len(tasks))
	for i, t := range tasks {
		sh[i] = s.submitSpeech(t)
	}
	eh := make([]*cache.Handle[*audio.Clip], len(sc.Segments))
	for i, seg := range sc.Segments {
		if seg.HasSFX() {
			eh[i] = s.submitEffect(seg.SFX)
		}
	}
	return sh, eh
}

func (s *Session) submitSpeech(t script.SpeechTask) *cache.Handle[*audio.Clip] {
	key := cache.SpeechKey(t.Voice, t.Instruction, t.Text)
	req := tts.Request{Text: t.Text, Voice: t.Voice, Instruction: t.Instruction}
	return s.speechCache.SubmitPrepared(key, func() cache.Producer[*audio.Clip] {
		return queued(s.ctx, s.opts.metrics, s.sched.Speech, func(ctx context.Context) (*audio.Clip, error) {
			return s.synthesize(ctx, req)
		})
	})
}

func (s *Session) submitEffect(keyword string) *cache.Handle[*audio.Clip] {
	key := cache.EffectKey(keyword)
	return s.effectCache.SubmitPrepared(key, func() cache.Producer[*audio.Clip] {
		return queued(s.ctx, s.opts.metrics, s.sched.Effects, func(ctx context.Context) (*audio.Clip, error) {
			start := time.Now()
			c := synth.SFX(keyword, s.effectRNG(key))
			s.opts.metrics.EffectDuration.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(observe.Attr("recipe", synth.ClassifySFX(keyword))))
			return c, nil
		})
	})
}

// synthesize requests one clip from the speech service and trims the silence
// the service pads around it.
func (s *Session) synthesize(ctx context.Context, req tts.Request) (*audio.Clip, error) {
	ctx, span := observe.StartSpan(ctx, "studio.synthesize",
		observe.Session(s.id), observe.Attr("voice", req.Voice))
	start := time.Now()
	pcm, err := s.speech.Synthesize(ctx, req)
	s.opts.metrics.RecordProviderRequest(ctx, s.opts.metrics.SpeechDuration, s.opts.speechName, "tts", time.Since(start), err)
	observe.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	clip, err := audio.ClipFromPCM16(pcm, audio.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("decode speech: %w", err)
	}
	return audio.TrimSilence(clip, audio.DefaultSilenceThreshold, audio.DefaultMinTrimmed), nil
}

// queued reserves fn's place on pool now and returns the producer that waits
// for it, tracking the queued gauge from reservation to admission.
func queued[V any](ctx context.Context, m *observe.Metrics, pool *scheduler.Pool, fn func(context.Context) (V, error)) cache.Producer[V] {
	attrs := metric.WithAttributes(observe.Attr("pool", pool.Name()))
	m.QueuedTasks.Add(ctx, 1, attrs)
	ticket := pool.Reserve()
	return func() (V, error) {
		admitted := false
		v, err := scheduler.RunTicket(ctx, ticket, func(ctx context.Context) (V, error) {
			admitted = true
			m.QueuedTasks.Add(ctx, -1, attrs)
			return fn(ctx)
		})
		if !admitted {
			m.QueuedTasks.Add(context.WithoutCancel(ctx), -1, attrs)
		}
		return v, err
	}
}

// effectRNG seeds an effect's random stream from the session seed and the
// effect key, so the same keyword renders identically within a session.
func (s *Session) effectRNG(key string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(key))
	return rand.New(rand.NewPCG(s.opts.seed, h.Sum64()))
}

// snapshot returns copies of the current script and tasks.
func (s *Session) snapshot() (*script.Script, []script.SpeechTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrClosed
	}
	if s.script == nil {
		return nil, nil, ErrNoScript
	}
	return cloneScript(s.script), s.tasks, nil
}

func countEffects(eh []*cache.Handle[*audio.Clip]) int {
	n := 0
	for _, h := range eh {
		if h != nil {
			n++
		}
	}
	return n
}
