// Package transport plays the four finished tracks of a mix in lockstep.
//
// A [Context] owns the output device and the clock. It is created on the
// first playback request of a session and closed when the session ends. A
// [Transport] mixes the tracks through a fixed per-block mixing function
// ([Transport.Read]) that the device pulls from.
package transport

import (
	"errors"
	"io"
	"sync"
	"time"
)

// Output is an audio sink that pulls interleaved little-endian PCM16 frames
// from a reader.
type Output interface {
	// Start begins pulling from src. It replaces any previous source.
	Start(src io.Reader) error

	// Stop stops pulling and releases the current source.
	Stop() error

	// Close releases the device.
	Close() error
}

// ErrContextClosed is returned by operations on a closed [Context].
var ErrContextClosed = errors.New("transport: context closed")

// Context is the playback context of one session: the output device, its
// format and the clock positions are measured against.
type Context struct {
	out      Output
	rate     int
	channels int
	now      func() time.Time

	mu     sync.Mutex
	closed bool
}

// ContextOption configures a [Context].
type ContextOption func(*Context)

// WithClock replaces time.Now as the playback clock.
func WithClock(now func() time.Time) ContextOption {
	return func(c *Context) { c.now = now }
}

// WithFormat sets the output sample rate and channel count. Defaults are the
// mix rate and mono.
func WithFormat(rate, channels int) ContextOption {
	return func(c *Context) {
		if rate > 0 {
			c.rate = rate
		}
		if channels == 1 || channels == 2 {
			c.channels = channels
		}
	}
}

// NewContext returns a context that writes to out.
func NewContext(out Output, opts ...ContextOption) *Context {
	c := &Context{out: out, rate: defaultRate, channels: 1, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Now returns the current clock reading.
func (c *Context) Now() time.Time { return c.now() }

// SampleRate returns the output sample rate.
func (c *Context) SampleRate() int { return c.rate }

// Channels returns the output channel count.
func (c *Context) Channels() int { return c.channels }

func (c *Context) start(src io.Reader) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextClosed
	}
	return c.out.Start(src)
}

func (c *Context) stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	return c.out.Stop()
}

// Close stops output and releases the device. It is safe to call more than
// once.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return errors.Join(c.out.Stop(), c.out.Close())
}

// NullOutput discards audio. It is used when no device is configured and in
// tests.
type NullOutput struct {
	mu      sync.Mutex
	src     io.Reader
	starts  int
	stopped bool
}

var _ Output = (*NullOutput)(nil)

// Start implements [Output].
func (n *NullOutput) Start(src io.Reader) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.src = src
	n.starts++
	n.stopped = false
	return nil
}

// Stop implements [Output].
func (n *NullOutput) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.src = nil
	n.stopped = true
	return nil
}

// Close implements [Output].
func (n *NullOutput) Close() error { return nil }

// Active reports whether a source is attached.
func (n *NullOutput) Active() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.src != nil
}

// Starts returns how many times Start was called.
func (n *NullOutput) Starts() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.starts
}
