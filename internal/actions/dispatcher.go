// Package actions validates and translates externally invoked commands
// into device API calls, including the TTS capture rendezvous.
package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lametricbridge/internal/ha"
	"lametricbridge/internal/lametric"
	"lametricbridge/internal/registry"

	"go.uber.org/zap"
)

// ErrInvalidArgument marks user-input validation failures.
var ErrInvalidArgument = errors.New("invalid argument")

// ttsCaptureTimeout bounds the wait for the sink to receive a media URL.
const ttsCaptureTimeout = 12 * time.Second

// maxFrameText is the device's practical single-frame text length; TTS
// messages are truncated to it for display.
const maxFrameText = 60

// Setpoint-change animation frame durations in milliseconds. Frame 2 is
// blank to create a blink effect.
var setpointFrameDurations = [3]int{800, 250, 800}

const (
	defaultMP3Cycles      = 1
	defaultSetpointCycles = 2
	defaultPriority       = "info"
)

var validPriorities = map[string]bool{
	"info":     true,
	"warning":  true,
	"critical": true,
}

// PlayMP3URLRequest plays an MP3 URL with a one-frame notification.
type PlayMP3URLRequest struct {
	DeviceID string
	Text     string
	MP3URL   string
	Icon     string
	Cycles   int
	Priority string
}

// PlayTTSRequest speaks a message through the host's TTS engine and
// plays the result on the device.
type PlayTTSRequest struct {
	DeviceID    string
	TTSEntityID string
	Message     string
	Voice       string
	Icon        string
	Priority    string
}

// SetpointChangeRequest shows a transient blink animation for a
// thermostat setpoint change.
type SetpointChangeRequest struct {
	DeviceID      string
	TemperatureC  float64
	Direction     string
	ArrowUpIcon   string
	ArrowDownIcon string
	Cycles        int
	Priority      string
}

// Dispatcher routes actions to the right device instance.
type Dispatcher struct {
	registry *registry.Registry
	ha       ha.HAClient
	logger   *zap.Logger

	// captureTimeout is ttsCaptureTimeout in production; shortened in tests.
	captureTimeout time.Duration
}

// New creates a dispatcher over the instance registry.
func New(reg *registry.Registry, haClient ha.HAClient, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry:       reg,
		ha:             haClient,
		logger:         logger.Named("actions"),
		captureTimeout: ttsCaptureTimeout,
	}
}

func normalizePriority(priority string) (string, error) {
	if priority == "" {
		return defaultPriority, nil
	}
	if !validPriorities[priority] {
		return "", fmt.Errorf("priority %q: %w", priority, ErrInvalidArgument)
	}
	return priority, nil
}

func normalizeCycles(cycles, fallback int) (int, error) {
	if cycles == 0 {
		return fallback, nil
	}
	if cycles < 1 {
		return 0, fmt.Errorf("cycles must be >= 1: %w", ErrInvalidArgument)
	}
	return cycles, nil
}

func (d *Dispatcher) icon(inst *registry.Instance, icon string) string {
	if icon != "" {
		return icon
	}
	return inst.Config.DefaultIcon
}

// PlayMP3URL posts a notification that plays the given MP3 URL.
func (d *Dispatcher) PlayMP3URL(ctx context.Context, req PlayMP3URLRequest) error {
	inst, err := d.registry.Resolve(req.DeviceID)
	if err != nil {
		return err
	}
	if req.Text == "" {
		return fmt.Errorf("text is required: %w", ErrInvalidArgument)
	}
	if req.MP3URL == "" {
		return fmt.Errorf("mp3_url is required: %w", ErrInvalidArgument)
	}

	priority, err := normalizePriority(req.Priority)
	if err != nil {
		return err
	}
	cycles, err := normalizeCycles(req.Cycles, defaultMP3Cycles)
	if err != nil {
		return err
	}

	mp3URL, err := d.absolutizeURL(inst, req.MP3URL)
	if err != nil {
		return err
	}

	notification := lametric.Notification{
		Priority: priority,
		IconType: "info",
		Model: lametric.Model{
			Cycles: cycles,
			Frames: []lametric.Frame{{Icon: d.icon(inst, req.Icon), Text: req.Text}},
			Sound: &lametric.Sound{
				URL:      mp3URL,
				Type:     "mp3",
				Fallback: lametric.DefaultSoundFallback(),
			},
		},
	}

	if _, err := inst.Client.PostNotification(ctx, notification); err != nil {
		return fmt.Errorf("failed to post mp3 notification to %s: %w", inst.ID, err)
	}

	d.logger.Info("Posted mp3 notification",
		zap.String("device", inst.ID),
		zap.String("mp3_url", mp3URL))
	return nil
}

// PlayTTS generates speech through the host TTS engine, captures the
// resulting media URL via the sink rendezvous, and plays it on the
// device.
func (d *Dispatcher) PlayTTS(ctx context.Context, req PlayTTSRequest) error {
	inst, err := d.registry.Resolve(req.DeviceID)
	if err != nil {
		return err
	}
	if req.Message == "" {
		return fmt.Errorf("message is required: %w", ErrInvalidArgument)
	}

	priority, err := normalizePriority(req.Priority)
	if err != nil {
		return err
	}

	ttsEntityID := req.TTSEntityID
	if ttsEntityID == "" {
		ttsEntityID = inst.Config.DefaultTTSEntityID
	}

	// Reset before kicking off generation so a stale capture from a
	// previous cycle can never satisfy this wait.
	inst.Gate.Reset()

	data := map[string]interface{}{
		"cache":                  true,
		"message":                req.Message,
		"media_player_entity_id": inst.Config.TTSSinkEntityID,
	}
	if req.Voice != "" {
		data["options"] = map[string]interface{}{"voice": req.Voice}
	}

	if err := d.ha.CallServiceTarget("tts", "speak", data, ttsEntityID); err != nil {
		return fmt.Errorf("failed to invoke tts.speak on %s: %w", ttsEntityID, err)
	}

	mediaURL, err := inst.Gate.Wait(ctx, d.captureTimeout)
	if err != nil {
		return fmt.Errorf("no media URL arrived from TTS sink %s: %w", inst.Config.TTSSinkEntityID, err)
	}

	// Media-source identifiers are indirect references; the device can
	// only fetch plain HTTP(S) URLs.
	if strings.HasPrefix(mediaURL, "media-source://") {
		resolved, err := d.ha.ResolveMediaSource(mediaURL)
		if err != nil {
			return fmt.Errorf("failed to resolve TTS media source: %w", err)
		}
		mediaURL = resolved
	}

	mediaURL, err = d.absolutizeURL(inst, mediaURL)
	if err != nil {
		return err
	}

	notification := lametric.Notification{
		Priority: priority,
		IconType: "info",
		Model: lametric.Model{
			Cycles: 1,
			Frames: []lametric.Frame{{Icon: d.icon(inst, req.Icon), Text: truncate(req.Message, maxFrameText)}},
			Sound: &lametric.Sound{
				URL:      mediaURL,
				Type:     "mp3",
				Fallback: lametric.DefaultSoundFallback(),
			},
		},
	}

	if _, err := inst.Client.PostNotification(ctx, notification); err != nil {
		return fmt.Errorf("failed to post TTS notification to %s: %w", inst.ID, err)
	}

	d.logger.Info("Posted TTS notification",
		zap.String("device", inst.ID),
		zap.String("media_url", mediaURL))
	return nil
}

// ShowSetpointChange blinks the new setpoint value with an up or down
// arrow icon.
func (d *Dispatcher) ShowSetpointChange(ctx context.Context, req SetpointChangeRequest) error {
	inst, err := d.registry.Resolve(req.DeviceID)
	if err != nil {
		return err
	}

	var arrowIcon string
	switch req.Direction {
	case "up":
		arrowIcon = d.icon(inst, req.ArrowUpIcon)
	case "down":
		arrowIcon = d.icon(inst, req.ArrowDownIcon)
	default:
		return fmt.Errorf("direction must be \"up\" or \"down\": %w", ErrInvalidArgument)
	}

	priority, err := normalizePriority(req.Priority)
	if err != nil {
		return err
	}
	cycles, err := normalizeCycles(req.Cycles, defaultSetpointCycles)
	if err != nil {
		return err
	}

	tempText := fmt.Sprintf("%.1fC", req.TemperatureC)
	notification := lametric.Notification{
		Priority: priority,
		IconType: "info",
		Model: lametric.Model{
			Cycles: cycles,
			Frames: []lametric.Frame{
				{Icon: arrowIcon, Text: tempText, Duration: setpointFrameDurations[0]},
				{Icon: arrowIcon, Text: " ", Duration: setpointFrameDurations[1]},
				{Icon: arrowIcon, Text: tempText, Duration: setpointFrameDurations[2]},
			},
		},
	}

	if _, err := inst.Client.PostNotification(ctx, notification); err != nil {
		return fmt.Errorf("failed to post setpoint notification to %s: %w", inst.ID, err)
	}
	return nil
}

// DismissCurrent dismisses the notification currently on screen.
func (d *Dispatcher) DismissCurrent(ctx context.Context, deviceID string) error {
	inst, err := d.registry.Resolve(deviceID)
	if err != nil {
		return err
	}
	return inst.Client.DismissCurrent(ctx)
}

// DismissAll clears the device's notification queue.
func (d *Dispatcher) DismissAll(ctx context.Context, deviceID string) error {
	inst, err := d.registry.Resolve(deviceID)
	if err != nil {
		return err
	}
	return inst.Client.DismissAll(ctx)
}

// AppNext switches to the next app.
func (d *Dispatcher) AppNext(ctx context.Context, deviceID string) error {
	inst, err := d.registry.Resolve(deviceID)
	if err != nil {
		return err
	}
	return inst.Client.AppNext(ctx)
}

// AppPrev switches to the previous app.
func (d *Dispatcher) AppPrev(ctx context.Context, deviceID string) error {
	inst, err := d.registry.Resolve(deviceID)
	if err != nil {
		return err
	}
	return inst.Client.AppPrev(ctx)
}

// SetBrightness sets manual display brightness (2-100) and requests a
// refresh so projections catch up.
func (d *Dispatcher) SetBrightness(ctx context.Context, deviceID string, value int) error {
	inst, err := d.registry.Resolve(deviceID)
	if err != nil {
		return err
	}
	if value < 2 || value > 100 {
		return fmt.Errorf("brightness must be between 2 and 100: %w", ErrInvalidArgument)
	}
	if err := inst.Client.SetDisplay(ctx, map[string]any{"brightness": value}); err != nil {
		return err
	}
	inst.Coordinator.RequestRefresh()
	return nil
}

// SetBrightnessMode switches between "auto" and "manual".
func (d *Dispatcher) SetBrightnessMode(ctx context.Context, deviceID, mode string) error {
	inst, err := d.registry.Resolve(deviceID)
	if err != nil {
		return err
	}
	if mode != "auto" && mode != "manual" {
		return fmt.Errorf("brightness_mode must be \"auto\" or \"manual\": %w", ErrInvalidArgument)
	}
	if err := inst.Client.SetDisplay(ctx, map[string]any{"brightness_mode": mode}); err != nil {
		return err
	}
	inst.Coordinator.RequestRefresh()
	return nil
}

// SetVolume sets audio volume (0-100).
func (d *Dispatcher) SetVolume(ctx context.Context, deviceID string, value int) error {
	inst, err := d.registry.Resolve(deviceID)
	if err != nil {
		return err
	}
	if value < 0 || value > 100 {
		return fmt.Errorf("volume must be between 0 and 100: %w", ErrInvalidArgument)
	}
	if err := inst.Client.SetAudio(ctx, map[string]any{"volume": value}); err != nil {
		return err
	}
	inst.Coordinator.RequestRefresh()
	return nil
}

// SetBluetoothActive enables or disables bluetooth.
func (d *Dispatcher) SetBluetoothActive(ctx context.Context, deviceID string, active bool) error {
	inst, err := d.registry.Resolve(deviceID)
	if err != nil {
		return err
	}
	if err := inst.Client.SetBluetooth(ctx, map[string]any{"active": active}); err != nil {
		return err
	}
	inst.Coordinator.RequestRefresh()
	return nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
