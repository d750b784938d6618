// Package coordinator polls the device on a fixed interval and caches
// the last successful snapshot. A failed poll keeps the previous
// snapshot in place and surfaces the error; dependents read whatever
// was last known good.
package coordinator

import (
	"context"
	"sync"
	"time"

	"lametricbridge/internal/device"

	"go.uber.org/zap"
)

// DefaultInterval between polls. The device is local and fast.
const DefaultInterval = 30 * time.Second

// Fetcher fetches the device status object.
type Fetcher interface {
	GetDevice(ctx context.Context) (map[string]any, error)
}

// Listener is invoked after each successful refresh with the new
// snapshot.
type Listener func(snap device.Snapshot)

// Coordinator runs the poll loop for one device.
type Coordinator struct {
	fetcher  Fetcher
	logger   *zap.Logger
	interval time.Duration

	mu       sync.RWMutex
	snapshot device.Snapshot
	lastErr  error

	listenersMu sync.Mutex
	listeners   []Listener

	refreshCh chan struct{}
	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a coordinator polling fetcher every interval. A zero
// interval selects DefaultInterval.
func New(fetcher Fetcher, interval time.Duration, logger *zap.Logger) *Coordinator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Coordinator{
		fetcher:   fetcher,
		logger:    logger.Named("coordinator"),
		interval:  interval,
		refreshCh: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// FirstRefresh performs the initial synchronous fetch. Setup must fail
// when this fails: dependent state cannot be exposed without a stable
// first snapshot.
func (c *Coordinator) FirstRefresh(ctx context.Context) error {
	return c.refresh(ctx)
}

// AddListener registers a listener for successful refreshes. Register
// before calling Start.
func (c *Coordinator) AddListener(l Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Start launches the poll loop.
func (c *Coordinator) Start() {
	c.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		go c.run(ctx)
	})
}

// Stop terminates the poll loop and waits for it to exit.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
			<-c.done
		}
	})
}

// RequestRefresh asks for an immediate poll. Non-blocking; requests
// arriving while one is already pending are coalesced. Callers use this
// after a state-mutating command so projections catch up promptly
// instead of waiting out the interval.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.refreshCh <- struct{}{}:
	default:
	}
}

// Snapshot returns the last successful snapshot, which may be stale
// after a failed poll.
func (c *Coordinator) Snapshot() device.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// LastError returns the error from the most recent poll, or nil when it
// succeeded.
func (c *Coordinator) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.refreshCh:
		}

		if err := c.refresh(ctx); err != nil {
			c.logger.Warn("Device poll failed, keeping previous snapshot", zap.Error(err))
		}
	}
}

func (c *Coordinator) refresh(ctx context.Context) error {
	data, err := c.fetcher.GetDevice(ctx)

	c.mu.Lock()
	c.lastErr = err
	if err == nil {
		c.snapshot = device.Snapshot(data)
	}
	c.mu.Unlock()

	if err != nil {
		return err
	}

	c.listenersMu.Lock()
	listeners := append([]Listener(nil), c.listeners...)
	c.listenersMu.Unlock()

	snap := c.Snapshot()
	for _, l := range listeners {
		l(snap)
	}
	return nil
}
