//go:build !nocgo

package transport

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows one context per process; every OtoOutput shares it.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

const otoReadyTimeout = 5 * time.Second

// OtoOutput plays audio on the system device through oto.
type OtoOutput struct {
	ctx *oto.Context

	mu        sync.Mutex
	player    *oto.Player
	suspended bool
}

var _ Output = (*OtoOutput)(nil)

// NewOtoOutput opens the system audio device. The format of the first call
// wins for the life of the process.
func NewOtoOutput(rate, channels int, buffer time.Duration) (*OtoOutput, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   rate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   buffer,
		})
		if err != nil {
			otoErr = fmt.Errorf("transport: open audio device: %w", err)
			return
		}
		select {
		case <-ready:
			otoCtx = ctx
		case <-time.After(otoReadyTimeout):
			otoErr = fmt.Errorf("transport: audio device not ready after %v", otoReadyTimeout)
		}
	})
	if otoErr != nil {
		return nil, otoErr
	}
	return &OtoOutput{ctx: otoCtx}, nil
}

// Start implements [Output].
func (o *OtoOutput) Start(src io.Reader) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.suspended {
		if err := o.ctx.Resume(); err != nil {
			return fmt.Errorf("transport: resume device: %w", err)
		}
		o.suspended = false
	}
	if o.player != nil {
		_ = o.player.Close()
	}
	o.player = o.ctx.NewPlayer(src)
	o.player.Play()
	return nil
}

// Stop implements [Output].
func (o *OtoOutput) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return nil
	}
	o.player.Pause()
	err := o.player.Close()
	o.player = nil
	return err
}

// Close implements [Output]. oto contexts cannot be destroyed, so the device
// is suspended instead.
func (o *OtoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.suspended {
		return nil
	}
	o.suspended = true
	return o.ctx.Suspend()
}
