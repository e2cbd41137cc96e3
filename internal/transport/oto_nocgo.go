//go:build nocgo

package transport

import (
	"errors"
	"time"
)

// NewOtoOutput is unavailable without cgo.
func NewOtoOutput(rate, channels int, buffer time.Duration) (Output, error) {
	return nil, errors.New("transport: audio device support was not compiled in (nocgo)")
}
