// Package device projects the polled device-status object onto typed
// read accessors. No schema is enforced by the firmware, so every
// accessor checks key presence and type and reports ok=false instead of
// failing when a field is missing or renamed.
package device

// Snapshot is the last successfully polled device status. It is
// replaced wholesale on each poll and never mutated in place.
type Snapshot map[string]any

func (s Snapshot) section(name string) map[string]any {
	if s == nil {
		return nil
	}
	sec, _ := s[name].(map[string]any)
	return sec
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

func (s Snapshot) stringField(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s[key].(string)
	return v, ok
}

// WifiSignal returns wifi signal strength in percent. Firmware variants
// report it under "strength" or "signal_strength"; the first present
// wins.
func (s Snapshot) WifiSignal() (int, bool) {
	wifi := s.section("wifi")
	if wifi == nil {
		return 0, false
	}
	for _, key := range []string{"strength", "signal_strength"} {
		if v, ok := asInt(wifi[key]); ok {
			return v, true
		}
	}
	return 0, false
}

// Brightness returns display brightness in percent.
func (s Snapshot) Brightness() (int, bool) {
	disp := s.section("display")
	if disp == nil {
		return 0, false
	}
	return asInt(disp["brightness"])
}

// BrightnessMode returns "auto" or "manual".
func (s Snapshot) BrightnessMode() (string, bool) {
	disp := s.section("display")
	if disp == nil {
		return "", false
	}
	mode, ok := disp["brightness_mode"].(string)
	return mode, ok
}

// Volume returns audio volume in percent.
func (s Snapshot) Volume() (int, bool) {
	audio := s.section("audio")
	if audio == nil {
		return 0, false
	}
	return asInt(audio["volume"])
}

// BluetoothActive reports whether bluetooth is enabled.
func (s Snapshot) BluetoothActive() (bool, bool) {
	bt := s.section("bluetooth")
	if bt == nil {
		return false, false
	}
	active, ok := bt["active"].(bool)
	return active, ok
}

// SerialNumber returns the device serial number.
func (s Snapshot) SerialNumber() (string, bool) {
	return s.stringField("serial_number")
}

// Name returns the user-visible device name.
func (s Snapshot) Name() (string, bool) {
	return s.stringField("name")
}

// Model returns the device model identifier.
func (s Snapshot) Model() (string, bool) {
	return s.stringField("model")
}

// OSVersion returns the firmware version.
func (s Snapshot) OSVersion() (string, bool) {
	return s.stringField("os_version")
}
