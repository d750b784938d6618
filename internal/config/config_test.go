package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	t.Run("full config with defaults applied", func(t *testing.T) {
		path := writeConfig(t, `
ha:
  url: ws://ha.local:8123/api/websocket
  token: secret
devices:
  - host: 192.168.1.50
    api_key: devkey
    base_url: "https://ha.example.org/"
`)
		cfg, err := Load(path, logger)
		require.NoError(t, err)

		require.Len(t, cfg.Devices, 1)
		dev := cfg.Devices[0]
		assert.Equal(t, "192.168.1.50", dev.ID)
		assert.Equal(t, "https://ha.example.org", dev.BaseURL, "trailing slash stripped")
		assert.Equal(t, DefaultScanIntervalSeconds, dev.ScanIntervalSeconds)
		assert.Equal(t, DefaultIcon, dev.DefaultIcon)
		assert.Equal(t, DefaultTTSSinkEntityID, dev.TTSSinkEntityID)
		assert.Equal(t, DefaultTTSEntityID, dev.DefaultTTSEntityID)
		assert.Equal(t, DefaultAPIPort, cfg.API.Port)
		assert.False(t, dev.VerifySSL)
	})

	t.Run("env overrides", func(t *testing.T) {
		path := writeConfig(t, `
ha:
  url: ws://stale:8123/api/websocket
  token: stale
devices:
  - host: lametric.local
    api_key: devkey
`)
		t.Setenv("HA_URL", "ws://fresh:8123/api/websocket")
		t.Setenv("HA_TOKEN", "fresh-token")
		t.Setenv("API_PORT", "9100")

		cfg, err := Load(path, logger)
		require.NoError(t, err)
		assert.Equal(t, "ws://fresh:8123/api/websocket", cfg.HA.URL)
		assert.Equal(t, "fresh-token", cfg.HA.Token)
		assert.Equal(t, 9100, cfg.API.Port)
	})

	t.Run("missing credentials", func(t *testing.T) {
		path := writeConfig(t, `
devices:
  - host: lametric.local
    api_key: devkey
`)
		_, err := Load(path, logger)
		assert.Error(t, err)
	})

	t.Run("no devices", func(t *testing.T) {
		path := writeConfig(t, `
ha:
  url: ws://ha:8123/api/websocket
  token: secret
devices: []
`)
		_, err := Load(path, logger)
		assert.Error(t, err)
	})

	t.Run("duplicate device ids", func(t *testing.T) {
		path := writeConfig(t, `
ha:
  url: ws://ha:8123/api/websocket
  token: secret
devices:
  - id: kitchen
    host: 192.168.1.50
    api_key: a
  - id: kitchen
    host: 192.168.1.51
    api_key: b
`)
		_, err := Load(path, logger)
		assert.Error(t, err)
	})

	t.Run("device missing api key", func(t *testing.T) {
		path := writeConfig(t, `
ha:
  url: ws://ha:8123/api/websocket
  token: secret
devices:
  - host: 192.168.1.50
`)
		_, err := Load(path, logger)
		assert.Error(t, err)
	})
}

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare host", "lametric.local", "lametric.local"},
		{"bare ip", "192.168.1.50", "192.168.1.50"},
		{"host with port", "192.168.1.50:4343", "192.168.1.50"},
		{"full https url", "https://192.168.1.50:4343/api/v2", "192.168.1.50"},
		{"full http url", "http://lametric.local:8080", "lametric.local"},
		{"whitespace", "  lametric.local ", "lametric.local"},
		{"non-numeric port suffix kept", "weird:name", "weird:name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHost(tt.in))
		})
	}
}
