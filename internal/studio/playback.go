package studio

import (
	"fmt"

	"github.com/MrWong99/storymix/internal/transport"
)

// Transport returns the session's playback transport, opening the output
// device on first use. The transport is loaded with the latest tracks and is
// reloaded whenever [Session.Generate] produces new ones.
func (s *Session) Transport() (*transport.Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.tr != nil {
		return s.tr, nil
	}
	if s.opts.newOutput == nil {
		return nil, ErrNoPlayback
	}

	out, err := s.opts.newOutput()
	if err != nil {
		return nil, fmt.Errorf("studio: open output: %w", err)
	}
	s.pc = transport.NewContext(out, transport.WithFormat(s.opts.outRate, s.opts.outChannels))
	s.tr = transport.New(s.pc)
	if s.tracks != nil {
		s.tr.Load(s.tracks)
	}
	s.log.Debug("studio: playback context created",
		"rate", s.pc.SampleRate(),
		"channels", s.pc.Channels(),
	)
	return s.tr, nil
}

// Play starts playback of the generated mix.
func (s *Session) Play() error {
	tr, err := s.loadedTransport()
	if err != nil {
		return err
	}
	return tr.Play()
}

// Pause pauses playback, keeping the position.
func (s *Session) Pause() error {
	s.mu.Lock()
	tr := s.tr
	s.mu.Unlock()
	if tr == nil {
		return nil
	}
	return tr.Pause()
}

// loadedTransport is [Session.Transport] that fails with [ErrNoTracks] before
// the first generation.
func (s *Session) loadedTransport() (*transport.Transport, error) {
	if s.Tracks() == nil {
		return nil, ErrNoTracks
	}
	return s.Transport()
}
