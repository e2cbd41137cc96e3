package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/storymix/pkg/audio"
	"github.com/MrWong99/storymix/pkg/script"
)

const defaultRate = audio.SampleRate

// Speed and volume limits.
const (
	MinSpeed  = 0.25
	MaxSpeed  = 4.0
	MaxVolume = 2.0
)

// pollInterval is how often a playing transport checks for the end of the
// mix, roughly one display frame.
const pollInterval = 16 * time.Millisecond

// ErrNoTracks is returned by Play before any tracks are loaded.
var ErrNoTracks = errors.New("transport: no tracks loaded")

// State is the transport state.
type State int

const (
	Stopped State = iota
	Playing
)

// String returns the state's name.
func (s State) String() string {
	if s == Playing {
		return "playing"
	}
	return "stopped"
}

// Transport plays one [script.AudioTracks] through a [Context].
//
// All control methods are safe for concurrent use with each other and with
// the device pulling [Transport.Read]. Gain and speed are atomics read once
// per output block.
type Transport struct {
	pc *Context

	gains [len(script.Tracks)]atomic.Uint64
	speed atomic.Uint64

	mu         sync.Mutex
	tracks     *script.AudioTracks
	state      State
	offset     time.Duration
	anchorWall time.Time
	anchorPos  time.Duration
	stopWatch  chan struct{}

	// live and playing mirror tracks and state for Read, which must never
	// wait on mu: device players hold their own lock while pulling and
	// stopping a player from under mu would otherwise deadlock.
	live    atomic.Pointer[script.AudioTracks]
	playing atomic.Bool

	mixMu sync.Mutex
	pos   float64 // source position in samples
	comp  *compressor
	frame []float64
}

// New returns a stopped transport on pc with unit gains and speed.
func New(pc *Context) *Transport {
	t := &Transport{pc: pc, comp: newCompressor(pc.SampleRate())}
	for i := range t.gains {
		t.gains[i].Store(math.Float64bits(1))
	}
	t.speed.Store(math.Float64bits(1))
	return t
}

// Load replaces the tracks, stopping playback and rewinding to zero.
func (t *Transport) Load(tracks *script.AudioTracks) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.tracks = tracks
	t.live.Store(tracks)
	t.offset = 0
}

// State returns the current state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Duration returns the loaded mix duration.
func (t *Transport) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tracks == nil {
		return 0
	}
	return t.tracks.Duration
}

// Play starts all four tracks at the resume offset. Playing again is a no-op.
func (t *Transport) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tracks == nil {
		return ErrNoTracks
	}
	if t.state == Playing {
		return nil
	}
	t.anchorLocked(t.offset)
	if err := t.pc.start(t); err != nil {
		return fmt.Errorf("transport: play: %w", err)
	}
	t.state = Playing
	t.playing.Store(true)
	t.stopWatch = make(chan struct{})
	go t.watch(t.stopWatch)
	slog.Debug("transport: playing", "offset", t.offset, "speed", t.Speed())
	return nil
}

// Pause stores the elapsed position as the resume offset and releases the
// sources.
func (t *Transport) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Playing {
		return nil
	}
	t.offset = t.positionLocked()
	return t.stopLocked()
}

// Seek moves playback to d, clamped to the mix.
func (t *Transport) Seek(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d = max(d, 0)
	if t.tracks != nil {
		d = min(d, t.tracks.Duration)
	}
	t.offset = d
	if t.state == Playing {
		t.anchorLocked(d)
	}
}

// SetSpeed changes the playback rate. While playing, the clock is re-anchored
// at the current position so progress continues without a jump.
func (t *Transport) SetSpeed(speed float64) {
	speed = min(max(speed, MinSpeed), MaxSpeed)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Playing {
		t.anchorPos = t.positionLocked()
		t.anchorWall = t.pc.Now()
	}
	t.speed.Store(math.Float64bits(speed))
}

// Speed returns the playback rate.
func (t *Transport) Speed() float64 {
	return math.Float64frombits(t.speed.Load())
}

// SetVolume sets the gain of one track, clamped to [0, MaxVolume].
func (t *Transport) SetVolume(track script.Track, v float64) error {
	if int(track) < 0 || int(track) >= len(t.gains) {
		return fmt.Errorf("transport: unknown track %d", track)
	}
	t.gains[track].Store(math.Float64bits(min(max(v, 0), MaxVolume)))
	return nil
}

// Volume returns the gain of one track.
func (t *Transport) Volume(track script.Track) float64 {
	if int(track) < 0 || int(track) >= len(t.gains) {
		return 0
	}
	return math.Float64frombits(t.gains[track].Load())
}

// Position returns the current playback position.
func (t *Transport) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Playing {
		return t.offset
	}
	return t.positionLocked()
}

// Progress returns the position as a percentage of the mix in [0, 100].
// Reaching the end while playing stops playback and rewinds to zero.
func (t *Transport) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tracks == nil || t.tracks.Duration <= 0 {
		return 0
	}
	pos := t.offset
	if t.state == Playing {
		pos = t.positionLocked()
		if pos >= t.tracks.Duration {
			_ = t.stopLocked()
			t.offset = 0
			slog.Debug("transport: reached end")
			return 100
		}
	}
	return min(max(100*float64(pos)/float64(t.tracks.Duration), 0), 100)
}

// Close stops playback. The context is owned by the caller.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopLocked()
}

func (t *Transport) positionLocked() time.Duration {
	elapsed := t.pc.Now().Sub(t.anchorWall)
	return t.anchorPos + time.Duration(float64(elapsed)*t.Speed())
}

// anchorLocked pins the clock and the mixer to position pos.
func (t *Transport) anchorLocked(pos time.Duration) {
	t.anchorPos = pos
	t.anchorWall = t.pc.Now()
	t.mixMu.Lock()
	t.pos = pos.Seconds() * float64(audio.SampleRate)
	t.mixMu.Unlock()
}

func (t *Transport) stopLocked() error {
	if t.state != Playing {
		return nil
	}
	t.state = Stopped
	t.playing.Store(false)
	close(t.stopWatch)
	t.stopWatch = nil
	return t.pc.stop()
}

// watch polls Progress so the transport stops at the end of the mix even when
// no client is polling.
func (t *Transport) watch(done <-chan struct{}) {
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	for {
		select {
		case <-done:
			return
		case <-tick.C:
			t.Progress()
		}
	}
}
