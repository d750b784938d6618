// Package tts bridges host text-to-speech output into a plain URL the
// device can fetch. The host's TTS engine plays into a dummy sink
// media_player; the watcher captures the media URL the sink receives
// and hands it to the single waiting action through a one-shot gate.
package tts

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCaptureTimeout is returned when no media URL arrives within the
// wait window. Usually means the TTS engine does not hand an HTTP URL
// to the media_player.
var ErrCaptureTimeout = errors.New("timed out waiting for TTS media URL capture")

// Gate is a single-producer, single-consumer one-shot rendezvous.
// Reset before each use; the first Publish after a Reset is delivered
// to the single waiter, later ones in the same cycle are dropped.
//
// Known limitation: concurrent TTS requests against the same device
// share one gate and will race; callers serialize per device.
type Gate struct {
	mu sync.Mutex
	ch chan string
}

// NewGate creates a gate ready for its first cycle.
func NewGate() *Gate {
	return &Gate{ch: make(chan string, 1)}
}

// Reset discards any stale value from a previous cycle. Call it
// immediately before starting the action that will produce a value.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ch = make(chan string, 1)
}

// Publish hands a URL to the waiter. If a value was already published
// this cycle the call is a no-op.
func (g *Gate) Publish(url string) {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()

	select {
	case ch <- url:
	default:
	}
}

// Wait blocks until a value is published, the timeout elapses, or ctx
// is cancelled.
func (g *Gate) Wait(ctx context.Context, timeout time.Duration) (string, error) {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case url := <-ch:
		return url, nil
	case <-timer.C:
		return "", ErrCaptureTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
