// Package registry tracks the configured device instances. Each
// instance carries its own client, coordinator and TTS gate; nothing is
// shared through process-wide state.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"lametricbridge/internal/config"
	"lametricbridge/internal/coordinator"
	"lametricbridge/internal/lametric"
	"lametricbridge/internal/tts"
)

// ErrUnknownDevice is returned when a device id does not match any
// configured instance.
var ErrUnknownDevice = errors.New("unknown device")

// ErrAmbiguousDevice is returned when no device id was given and more
// than one instance is configured.
var ErrAmbiguousDevice = errors.New("multiple devices configured; specify device_id")

// Instance bundles everything belonging to one configured device.
type Instance struct {
	ID          string
	Config      config.DeviceConfig
	Client      *lametric.Client
	Coordinator *coordinator.Coordinator
	Gate        *tts.Gate
}

// Registry is a read-mostly map of device id to instance.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*Instance
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{instances: make(map[string]*Instance)}
}

// Add registers an instance. Ids are unique; config validation enforces
// that before instances are built.
func (r *Registry) Add(inst *Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[inst.ID]; exists {
		return fmt.Errorf("device %q already registered", inst.ID)
	}
	r.instances[inst.ID] = inst
	return nil
}

// Resolve finds the instance for id. An empty id resolves to the sole
// configured instance; with several instances the caller must name one.
func (r *Registry) Resolve(id string) (*Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id == "" {
		switch len(r.instances) {
		case 0:
			return nil, fmt.Errorf("no devices configured: %w", ErrUnknownDevice)
		case 1:
			for _, inst := range r.instances {
				return inst, nil
			}
		}
		return nil, ErrAmbiguousDevice
	}

	inst, ok := r.instances[id]
	if !ok {
		return nil, fmt.Errorf("device %q: %w", id, ErrUnknownDevice)
	}
	return inst, nil
}

// All returns the registered instances ordered by id.
func (r *Registry) All() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
