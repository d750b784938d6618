// Package config loads the bridge configuration: Home Assistant
// connection settings from the environment (.env friendly) and the
// device list from a YAML file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Defaults applied to device entries that leave the field empty.
const (
	DefaultScanIntervalSeconds = 30
	DefaultIcon                = "i3092"
	DefaultTTSSinkEntityID     = "media_player.lametric_tts_sink"
	DefaultTTSEntityID         = "tts.google_ai_tts"
	DefaultAPIPort             = 8099
)

// Config is the root configuration.
type Config struct {
	HA      HAConfig       `yaml:"ha"`
	API     APIConfig      `yaml:"api"`
	Devices []DeviceConfig `yaml:"devices"`
}

// HAConfig holds the Home Assistant connection settings. URL and token
// may instead come from the HA_URL / HA_TOKEN environment variables,
// which take precedence.
type HAConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// APIConfig holds the action HTTP API settings.
type APIConfig struct {
	Port int `yaml:"port"`
}

// DimmerConfig enables the sun-schedule display dimmer for a device.
type DimmerConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Latitude        float64 `yaml:"latitude"`
	Longitude       float64 `yaml:"longitude"`
	NightBrightness int     `yaml:"night_brightness"`
}

// DeviceConfig describes one LaMetric device.
type DeviceConfig struct {
	ID        string `yaml:"id"`
	Host      string `yaml:"host"`
	APIKey    string `yaml:"api_key"`
	VerifySSL bool   `yaml:"verify_ssl"`

	// BaseURL is the URL prefix the device can use to reach the host for
	// relative media paths. Must be reachable from the device's network.
	BaseURL string `yaml:"base_url"`

	TTSSinkEntityID     string `yaml:"tts_sink_entity_id"`
	DefaultTTSEntityID  string `yaml:"default_tts_entity_id"`
	ScanIntervalSeconds int    `yaml:"scan_interval_seconds"`
	DefaultIcon         string `yaml:"default_icon"`

	Dimmer DimmerConfig `yaml:"dimmer"`
}

// Load reads and validates the configuration file at path, applying
// environment overrides and per-device defaults.
func Load(path string, logger *zap.Logger) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if v := os.Getenv("HA_URL"); v != "" {
		cfg.HA.URL = v
	}
	if v := os.Getenv("HA_TOKEN"); v != "" {
		cfg.HA.Token = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid API_PORT %q: %w", v, err)
		}
		cfg.API.Port = port
	}

	if cfg.API.Port == 0 {
		cfg.API.Port = DefaultAPIPort
	}

	if cfg.HA.URL == "" || cfg.HA.Token == "" {
		return nil, fmt.Errorf("ha.url and ha.token must be set (config file or HA_URL/HA_TOKEN)")
	}
	if len(cfg.Devices) == 0 {
		return nil, fmt.Errorf("at least one device must be configured")
	}

	seen := make(map[string]bool)
	for i := range cfg.Devices {
		dev := &cfg.Devices[i]
		if err := dev.applyDefaults(); err != nil {
			return nil, fmt.Errorf("device %d: %w", i, err)
		}
		if seen[dev.ID] {
			return nil, fmt.Errorf("duplicate device id %q", dev.ID)
		}
		seen[dev.ID] = true
	}

	logger.Info("Configuration loaded",
		zap.String("path", path),
		zap.Int("devices", len(cfg.Devices)))
	return &cfg, nil
}

func (d *DeviceConfig) applyDefaults() error {
	if d.Host == "" {
		return fmt.Errorf("host is required")
	}
	if d.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}

	d.Host = NormalizeHost(d.Host)
	if d.ID == "" {
		d.ID = d.Host
	}
	d.BaseURL = strings.TrimRight(strings.TrimSpace(d.BaseURL), "/")

	if d.TTSSinkEntityID == "" {
		d.TTSSinkEntityID = DefaultTTSSinkEntityID
	}
	if d.DefaultTTSEntityID == "" {
		d.DefaultTTSEntityID = DefaultTTSEntityID
	}
	if d.ScanIntervalSeconds <= 0 {
		d.ScanIntervalSeconds = DefaultScanIntervalSeconds
	}
	if d.DefaultIcon == "" {
		d.DefaultIcon = DefaultIcon
	}
	if d.Dimmer.Enabled && d.Dimmer.NightBrightness <= 0 {
		d.Dimmer.NightBrightness = 10
	}
	return nil
}

// NormalizeHost accepts a bare host, host:port, or a full URL
// (https://ip:4343/...) and reduces it to the host: discovery appends
// its own candidate ports.
func NormalizeHost(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}

	// Strip a single trailing :port.
	if strings.Count(raw, ":") == 1 {
		host, port, found := strings.Cut(raw, ":")
		if found {
			if _, err := strconv.Atoi(port); err == nil {
				return host
			}
		}
	}
	return raw
}
