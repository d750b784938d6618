// Package lametric implements a minimal client for the LaMetric TIME
// Device API v2. The device reports its own endpoint map from GET
// /api/v2; the map is discovered once per client by probing a fixed
// list of base-URL candidates and is then cached for the client's
// lifetime.
package lametric

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// basicAuthUser is the fixed username for Device API v2; the password is
// the device API key.
const basicAuthUser = "dev"

const requestTimeout = 10 * time.Second

// Default paths used when the discovered endpoint map lacks the
// corresponding logical name.
const (
	defaultDevicePath              = "/api/v2/device"
	defaultNotificationsPath       = "/api/v2/device/notifications"
	defaultCurrentNotificationPath = "/api/v2/device/notifications/current"
	defaultAppsNextPath            = "/api/v2/device/apps/next"
	defaultAppsPrevPath            = "/api/v2/device/apps/prev"
	defaultDisplayPath             = "/api/v2/device/display"
	defaultAudioPath               = "/api/v2/device/audio"
	defaultBluetoothPath           = "/api/v2/device/bluetooth"
)

// Client talks to a single LaMetric device. All methods are safe for
// concurrent use; the endpoint map is resolved at most once.
type Client struct {
	host       string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger

	// Discovery bases tried in order. Populated from host in NewClient;
	// overridable in tests.
	candidates []string

	mu        sync.Mutex
	endpoints *Endpoints
}

// NewClient creates a client for the device at host. When verifySSL is
// false (the usual case, the device presents a self-signed certificate)
// certificate validation is skipped on this client's transport only,
// never process-wide.
func NewClient(host, apiKey string, verifySSL bool, logger *zap.Logger) *Client {
	transport := &http.Transport{}
	if !verifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		host:   host,
		apiKey: apiKey,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   requestTimeout,
		},
		logger: logger.Named("lametric"),
		candidates: []string{
			fmt.Sprintf("https://%s:4343", host),
			fmt.Sprintf("http://%s:8080", host),
			fmt.Sprintf("https://%s", host),
			fmt.Sprintf("http://%s", host),
		},
	}
}

// Host returns the configured device host.
func (c *Client) Host() string {
	return c.host
}

// requestJSON performs an authenticated request and decodes a JSON body
// when one is returned. Some endpoints return an empty body on success,
// in which case the result is nil.
func (c *Client) requestJSON(ctx context.Context, method, url string, body any) (any, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.SetBasicAuth(basicAuthUser, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        url,
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "json") {
		return string(raw), nil
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return payload, nil
}

// ResolveEndpoints probes the candidate base URLs in order and accepts
// the first one whose discovery path returns a JSON object. The payload
// is accepted even without an "endpoints" key; some firmware omits it
// and every lookup has a hardcoded fallback path anyway.
func (c *Client) ResolveEndpoints(ctx context.Context) (*Endpoints, error) {
	var lastErr error

	for _, base := range c.candidates {
		url := base + "/api/v2"
		payload, err := c.requestJSON(ctx, http.MethodGet, url, nil)
		if err != nil {
			c.logger.Debug("Discovery candidate failed",
				zap.String("url", url),
				zap.Error(err))
			lastErr = err
			continue
		}

		obj, ok := payload.(map[string]any)
		if !ok {
			lastErr = &ShapeError{URL: url}
			continue
		}

		eps := &Endpoints{
			BaseURL:   base,
			Endpoints: make(map[string]string),
		}
		if v, ok := obj["api_version"].(string); ok {
			eps.APIVersion = v
		}
		if m, ok := obj["endpoints"].(map[string]any); ok {
			for name, raw := range m {
				if u, ok := raw.(string); ok {
					eps.Endpoints[name] = u
				}
			}
		}

		c.mu.Lock()
		c.endpoints = eps
		c.mu.Unlock()

		c.logger.Info("Discovered device endpoints",
			zap.String("base_url", base),
			zap.String("api_version", eps.APIVersion),
			zap.Int("endpoints", len(eps.Endpoints)))
		return eps, nil
	}

	return nil, &DiscoveryError{Host: c.host, LastErr: lastErr}
}

// EnsureEndpoints returns the cached endpoint map, performing discovery
// exactly once on first use.
func (c *Client) EnsureEndpoints(ctx context.Context) (*Endpoints, error) {
	c.mu.Lock()
	eps := c.endpoints
	c.mu.Unlock()

	if eps != nil {
		return eps, nil
	}
	return c.ResolveEndpoints(ctx)
}

// endpointURL resolves a logical endpoint name, falling back to
// base+defaultPath when the device did not report that name.
func (c *Client) endpointURL(ctx context.Context, name, defaultPath string) (string, error) {
	eps, err := c.EnsureEndpoints(ctx)
	if err != nil {
		return "", err
	}
	if url, ok := eps.Endpoints[name]; ok && url != "" {
		return url, nil
	}
	return eps.BaseURL + defaultPath, nil
}

// GetDevice fetches the full device status object. On this firmware a
// single call includes display, audio, wifi and bluetooth sections.
func (c *Client) GetDevice(ctx context.Context) (map[string]any, error) {
	url, err := c.endpointURL(ctx, "device_url", defaultDevicePath)
	if err != nil {
		return nil, err
	}
	payload, err := c.requestJSON(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, &ShapeError{URL: url}
	}
	return obj, nil
}

// PostNotification sends a notification. The response body, when the
// device returns one, carries the created notification id.
func (c *Client) PostNotification(ctx context.Context, n Notification) (map[string]any, error) {
	url, err := c.endpointURL(ctx, "notifications_url", defaultNotificationsPath)
	if err != nil {
		return nil, err
	}
	payload, err := c.requestJSON(ctx, http.MethodPost, url, n)
	if err != nil {
		return nil, err
	}
	if obj, ok := payload.(map[string]any); ok {
		return obj, nil
	}
	return nil, nil
}

// DismissCurrent dismisses the notification currently on screen.
func (c *Client) DismissCurrent(ctx context.Context) error {
	url, err := c.endpointURL(ctx, "current_notification_url", defaultCurrentNotificationPath)
	if err != nil {
		return err
	}
	_, err = c.requestJSON(ctx, http.MethodDelete, url, nil)
	return err
}

// DismissAll dismisses the whole notification queue.
func (c *Client) DismissAll(ctx context.Context) error {
	url, err := c.endpointURL(ctx, "notifications_url", defaultNotificationsPath)
	if err != nil {
		return err
	}
	_, err = c.requestJSON(ctx, http.MethodDelete, url, nil)
	return err
}

// AppNext switches the device to the next app.
func (c *Client) AppNext(ctx context.Context) error {
	url, err := c.endpointURL(ctx, "apps_switch_next_url", defaultAppsNextPath)
	if err != nil {
		return err
	}
	_, err = c.requestJSON(ctx, http.MethodPost, url, nil)
	return err
}

// AppPrev switches the device to the previous app.
func (c *Client) AppPrev(ctx context.Context) error {
	url, err := c.endpointURL(ctx, "apps_switch_prev_url", defaultAppsPrevPath)
	if err != nil {
		return err
	}
	_, err = c.requestJSON(ctx, http.MethodPost, url, nil)
	return err
}

// SetDisplay applies a partial display update, e.g.
// {"brightness": 40} or {"brightness_mode": "auto"}.
func (c *Client) SetDisplay(ctx context.Context, patch map[string]any) error {
	url, err := c.endpointURL(ctx, "display_url", defaultDisplayPath)
	if err != nil {
		return err
	}
	_, err = c.requestJSON(ctx, http.MethodPut, url, patch)
	return err
}

// SetAudio applies a partial audio update, e.g. {"volume": 50}.
func (c *Client) SetAudio(ctx context.Context, patch map[string]any) error {
	url, err := c.endpointURL(ctx, "audio_url", defaultAudioPath)
	if err != nil {
		return err
	}
	_, err = c.requestJSON(ctx, http.MethodPut, url, patch)
	return err
}

// SetBluetooth applies a partial bluetooth update, e.g. {"active": true}.
func (c *Client) SetBluetooth(ctx context.Context, patch map[string]any) error {
	url, err := c.endpointURL(ctx, "bluetooth_url", defaultBluetoothPath)
	if err != nil {
		return err
	}
	_, err = c.requestJSON(ctx, http.MethodPut, url, patch)
	return err
}

// GetRaw fetches an arbitrary URL with device auth and returns the
// decoded body. Used by the probe tool to dump sub-resources.
func (c *Client) GetRaw(ctx context.Context, url string) (any, error) {
	return c.requestJSON(ctx, http.MethodGet, url, nil)
}
