package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuessedURLKeepsAPIPrefix(t *testing.T) {
	assert.Equal(t, "https://192.168.1.50:4343/api/v2/device",
		guessedURL("https://192.168.1.50:4343", guessedPaths["device"]))
	assert.Equal(t, "http://192.168.1.50:8080/api/v2/device/display",
		guessedURL("http://192.168.1.50:8080", "/api/v2/device/display"))
	assert.Equal(t, "http://192.168.1.50/api/v2/device/audio",
		guessedURL("http://192.168.1.50/", "/api/v2/device/audio"))
}

func TestReadKeyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.txt")
	require.NoError(t, os.WriteFile(path, []byte(
		"# device credentials\nHOST=\"192.168.1.50\"\nAPI=\"abcdef123456\"\n"), 0o644))

	key, err := readKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abcdef123456", key)
}

func TestReadKeyFileMissingEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.txt")
	require.NoError(t, os.WriteFile(path, []byte("HOST=\"192.168.1.50\"\n"), 0o644))

	_, err := readKeyFile(path)
	assert.Error(t, err)
}
