// Package entities projects polled device state into Home Assistant
// input helpers. Entity kinds live in a static factory table; the
// projectors are read-only consumers of the snapshot and never talk to
// the device.
package entities

import (
	"fmt"
	"strings"

	"lametricbridge/internal/coordinator"
	"lametricbridge/internal/device"
	"lametricbridge/internal/ha"

	"go.uber.org/zap"
)

// Projector pushes one snapshot field into a host helper entity.
type Projector interface {
	// Kind is the entity kind from the factory table.
	Kind() string
	// Push writes the field to the host. Fields the firmware does not
	// report are skipped, not errors.
	Push(client ha.HAClient, snap device.Snapshot) error
}

// Factory builds a projector for one device.
type Factory func(deviceID string) Projector

// Kinds is the static table of supported entity kinds. Order of
// iteration is fixed separately in kindOrder.
var Kinds = map[string]Factory{
	"wifi_signal": func(deviceID string) Projector {
		return numberProjector{kind: "wifi_signal", deviceID: deviceID, read: device.Snapshot.WifiSignal}
	},
	"brightness": func(deviceID string) Projector {
		return numberProjector{kind: "brightness", deviceID: deviceID, read: device.Snapshot.Brightness}
	},
	"volume": func(deviceID string) Projector {
		return numberProjector{kind: "volume", deviceID: deviceID, read: device.Snapshot.Volume}
	},
	"brightness_mode": func(deviceID string) Projector {
		return textProjector{kind: "brightness_mode", deviceID: deviceID, read: device.Snapshot.BrightnessMode}
	},
	"bluetooth": func(deviceID string) Projector {
		return booleanProjector{kind: "bluetooth", deviceID: deviceID, read: device.Snapshot.BluetoothActive}
	},
}

var kindOrder = []string{"wifi_signal", "brightness", "volume", "brightness_mode", "bluetooth"}

// ForDevice instantiates every kind for one device.
func ForDevice(deviceID string) []Projector {
	out := make([]Projector, 0, len(kindOrder))
	for _, kind := range kindOrder {
		out = append(out, Kinds[kind](deviceID))
	}
	return out
}

// Attach registers a coordinator listener that pushes all projections
// after each successful refresh.
func Attach(coord *coordinator.Coordinator, client ha.HAClient, deviceID string, logger *zap.Logger) {
	projectors := ForDevice(deviceID)
	log := logger.Named("entities")

	coord.AddListener(func(snap device.Snapshot) {
		for _, p := range projectors {
			if err := p.Push(client, snap); err != nil {
				log.Warn("Failed to push entity state",
					zap.String("device", deviceID),
					zap.String("kind", p.Kind()),
					zap.Error(err))
			}
		}
	})
}

// HelperName builds the input helper object id for a device and kind,
// e.g. "lametric_kitchen_wifi_signal".
func HelperName(deviceID, kind string) string {
	return fmt.Sprintf("lametric_%s_%s", sanitize(deviceID), kind)
}

func sanitize(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

type numberProjector struct {
	kind     string
	deviceID string
	read     func(device.Snapshot) (int, bool)
}

func (p numberProjector) Kind() string { return p.kind }

func (p numberProjector) Push(client ha.HAClient, snap device.Snapshot) error {
	v, ok := p.read(snap)
	if !ok {
		return nil
	}
	return client.SetInputNumber(HelperName(p.deviceID, p.kind), float64(v))
}

type textProjector struct {
	kind     string
	deviceID string
	read     func(device.Snapshot) (string, bool)
}

func (p textProjector) Kind() string { return p.kind }

func (p textProjector) Push(client ha.HAClient, snap device.Snapshot) error {
	v, ok := p.read(snap)
	if !ok {
		return nil
	}
	return client.SetInputText(HelperName(p.deviceID, p.kind), v)
}

type booleanProjector struct {
	kind     string
	deviceID string
	read     func(device.Snapshot) (bool, bool)
}

func (p booleanProjector) Kind() string { return p.kind }

func (p booleanProjector) Push(client ha.HAClient, snap device.Snapshot) error {
	v, ok := p.read(snap)
	if !ok {
		return nil
	}
	return client.SetInputBoolean(HelperName(p.deviceID, p.kind), v)
}
