// Command probe explores a LaMetric device's local API: it resolves the
// endpoint map, dumps every advertised resource to JSON files, and can
// send a test notification. Useful when bringing up a new device or
// firmware version.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lametricbridge/internal/config"
	"lametricbridge/internal/lametric"

	"go.uber.org/zap"
)

// Sub-resources worth trying even when the endpoint map does not
// advertise them.
var guessedPaths = map[string]string{
	"device":        "/api/v2/device",
	"display":       "/api/v2/device/display",
	"audio":         "/api/v2/device/audio",
	"bluetooth":     "/api/v2/device/bluetooth",
	"notifications": "/api/v2/device/notifications",
	"apps":          "/api/v2/device/apps",
}

func main() {
	host := flag.String("host", "", "device host (ip, host, host:port, or URL)")
	apiKey := flag.String("api-key", "", "device API key")
	keysFile := flag.String("keys-file", "", "file with API=\"...\" lines to read the key from")
	outDir := flag.String("out", "probe-out", "directory for the JSON dumps")
	verifyTLS := flag.Bool("verify-tls", false, "verify the device's TLS certificate (off by default; devices ship self-signed certs)")
	notify := flag.Bool("notify", false, "send a test notification after probing")
	timeout := flag.Duration("timeout", 60*time.Second, "overall probe timeout")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *host == "" {
		logger.Fatal("-host is required")
	}

	key := *apiKey
	if key == "" && *keysFile != "" {
		key, err = readKeyFile(*keysFile)
		if err != nil {
			logger.Fatal("Failed to read keys file", zap.Error(err))
		}
	}
	if key == "" {
		logger.Fatal("Provide -api-key or -keys-file")
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Fatal("Failed to create output directory", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := lametric.NewClient(config.NormalizeHost(*host), key, *verifyTLS, logger)

	endpoints, err := client.ResolveEndpoints(ctx)
	if err != nil {
		if lametric.IsAuthError(err) {
			logger.Fatal("Device rejected the API key", zap.Error(err))
		}
		logger.Fatal("Could not reach the device", zap.Error(err))
	}

	logger.Info("Resolved endpoint map",
		zap.String("base_url", endpoints.BaseURL),
		zap.Int("endpoints", len(endpoints.Endpoints)))

	if err := writeJSON(*outDir, "endpoints", endpoints); err != nil {
		logger.Fatal("Failed to write endpoint map", zap.Error(err))
	}

	// Advertised endpoints first, then guessed paths the map left out.
	dumped := map[string]bool{}
	for name, url := range endpoints.Endpoints {
		dump(ctx, client, logger, *outDir, name, url)
		dumped[url] = true
	}
	for name, path := range guessedPaths {
		url := guessedURL(endpoints.BaseURL, path)
		if dumped[url] {
			continue
		}
		dump(ctx, client, logger, *outDir, name, url)
	}

	if *notify {
		sendTestNotification(ctx, client, logger)
	}
}

// guessedURL joins a guessed path onto the discovered base, which is
// the candidate root without the /api/v2 suffix.
func guessedURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

// dump fetches one resource and writes it to <out>/<name>.json. Errors
// are logged and skipped so one missing resource does not stop the
// probe.
func dump(ctx context.Context, client *lametric.Client, logger *zap.Logger, outDir, name, url string) {
	payload, err := client.GetRaw(ctx, url)
	if err != nil {
		logger.Warn("Skipping resource",
			zap.String("name", name),
			zap.String("url", url),
			zap.Error(err))
		return
	}

	if err := writeJSON(outDir, name, payload); err != nil {
		logger.Warn("Failed to write resource",
			zap.String("name", name),
			zap.Error(err))
		return
	}
	logger.Info("Dumped resource",
		zap.String("name", name),
		zap.String("url", url))
}

func sendTestNotification(ctx context.Context, client *lametric.Client, logger *zap.Logger) {
	_, err := client.PostNotification(ctx, lametric.Notification{
		Priority: "info",
		Model: lametric.Model{
			Cycles: 1,
			Frames: []lametric.Frame{{
				Icon: config.DefaultIcon,
				Text: "probe ok",
			}},
		},
	})
	if err != nil {
		logger.Warn("Test notification failed", zap.Error(err))
		return
	}
	logger.Info("Test notification sent")
}

// readKeyFile extracts the API key from a shell-style file with an
// API="..." line.
func readKeyFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "API=") {
			continue
		}
		value := strings.TrimPrefix(line, "API=")
		return strings.Trim(value, `"'`), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no API= line in %s", path)
}

func writeJSON(outDir, name string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, name+".json"), append(data, '\n'), 0o644)
}
