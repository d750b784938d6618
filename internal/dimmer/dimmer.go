// Package dimmer lowers the display at night and restores automatic
// brightness during the day, based on local sunrise/sunset times.
package dimmer

import (
	"context"
	"sync"
	"time"

	"github.com/nathan-osman/go-sunrise"
	"go.uber.org/zap"
)

// DisplaySetter applies a display patch on the device.
type DisplaySetter interface {
	SetDisplay(ctx context.Context, patch map[string]any) error
}

type phase int

const (
	phaseUnknown phase = iota
	phaseDay
	phaseNight
)

const tickInterval = time.Minute

// Dimmer drives one device's display schedule.
type Dimmer struct {
	setter          DisplaySetter
	requestRefresh  func()
	logger          *zap.Logger
	latitude        float64
	longitude       float64
	nightBrightness int

	mu      sync.Mutex
	applied phase

	// Cached sun times for sunDate, recomputed when the date changes.
	sunDate  time.Time
	sunrise  time.Time
	sunset   time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a dimmer. requestRefresh is called after each applied
// change so projections catch up.
func New(setter DisplaySetter, requestRefresh func(), latitude, longitude float64, nightBrightness int, logger *zap.Logger) *Dimmer {
	return &Dimmer{
		setter:          setter,
		requestRefresh:  requestRefresh,
		logger:          logger.Named("dimmer"),
		latitude:        latitude,
		longitude:       longitude,
		nightBrightness: nightBrightness,
		done:            make(chan struct{}),
	}
}

// Start launches the schedule loop.
func (d *Dimmer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	go func() {
		defer close(d.done)

		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()

		d.tick(ctx, time.Now())
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				d.tick(ctx, now)
			}
		}
	}()
}

// Stop terminates the loop.
func (d *Dimmer) Stop() {
	if d.cancel != nil {
		d.cancel()
		<-d.done
	}
}

// tick applies the phase for now when it differs from the last applied
// one.
func (d *Dimmer) tick(ctx context.Context, now time.Time) {
	want := d.phaseFor(now)

	d.mu.Lock()
	changed := want != d.applied
	d.mu.Unlock()

	if !changed {
		return
	}

	var patch map[string]any
	if want == phaseNight {
		patch = map[string]any{"brightness_mode": "manual", "brightness": d.nightBrightness}
	} else {
		patch = map[string]any{"brightness_mode": "auto"}
	}

	if err := d.setter.SetDisplay(ctx, patch); err != nil {
		d.logger.Warn("Failed to apply display schedule", zap.Error(err))
		return
	}

	d.mu.Lock()
	d.applied = want
	d.mu.Unlock()

	d.logger.Info("Applied display schedule",
		zap.Bool("night", want == phaseNight),
		zap.Any("patch", patch))

	if d.requestRefresh != nil {
		d.requestRefresh()
	}
}

// phaseFor computes the schedule phase for now, caching the day's sun
// times.
func (d *Dimmer) phaseFor(now time.Time) phase {
	utc := now.UTC()
	date := utc.Truncate(24 * time.Hour)

	d.mu.Lock()
	if !date.Equal(d.sunDate) {
		d.sunrise, d.sunset = sunrise.SunriseSunset(
			d.latitude, d.longitude,
			utc.Year(), utc.Month(), utc.Day(),
		)
		d.sunDate = date
	}
	rise, set := d.sunrise, d.sunset
	d.mu.Unlock()

	// Polar day/night: no sunrise or sunset today, leave the display in
	// automatic mode.
	if rise.IsZero() || set.IsZero() {
		return phaseDay
	}

	if utc.Before(rise) || !utc.Before(set) {
		return phaseNight
	}
	return phaseDay
}
