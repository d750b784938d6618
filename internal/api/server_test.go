package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"lametricbridge/internal/actions"
	"lametricbridge/internal/config"
	"lametricbridge/internal/coordinator"
	"lametricbridge/internal/registry"
	"lametricbridge/internal/tts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedCall struct {
	name string
	args []any
}

// fakeActions records dispatcher calls and returns a configurable error.
type fakeActions struct {
	calls []recordedCall
	err   error
}

func (f *fakeActions) record(name string, args ...any) error {
	f.calls = append(f.calls, recordedCall{name: name, args: args})
	return f.err
}

func (f *fakeActions) PlayMP3URL(_ context.Context, req actions.PlayMP3URLRequest) error {
	return f.record("play_mp3_url", req)
}

func (f *fakeActions) PlayTTS(_ context.Context, req actions.PlayTTSRequest) error {
	return f.record("play_tts", req)
}

func (f *fakeActions) ShowSetpointChange(_ context.Context, req actions.SetpointChangeRequest) error {
	return f.record("show_setpoint_change", req)
}

func (f *fakeActions) DismissCurrent(_ context.Context, deviceID string) error {
	return f.record("dismiss_current", deviceID)
}

func (f *fakeActions) DismissAll(_ context.Context, deviceID string) error {
	return f.record("dismiss_all", deviceID)
}

func (f *fakeActions) AppNext(_ context.Context, deviceID string) error {
	return f.record("app_next", deviceID)
}

func (f *fakeActions) AppPrev(_ context.Context, deviceID string) error {
	return f.record("app_prev", deviceID)
}

func (f *fakeActions) SetBrightness(_ context.Context, deviceID string, value int) error {
	return f.record("set_brightness", deviceID, value)
}

func (f *fakeActions) SetBrightnessMode(_ context.Context, deviceID, mode string) error {
	return f.record("set_brightness_mode", deviceID, mode)
}

func (f *fakeActions) SetVolume(_ context.Context, deviceID string, value int) error {
	return f.record("set_volume", deviceID, value)
}

func (f *fakeActions) SetBluetoothActive(_ context.Context, deviceID string, active bool) error {
	return f.record("set_bluetooth", deviceID, active)
}

type staticFetcher struct {
	snapshot map[string]any
	err      error
}

func (s *staticFetcher) GetDevice(context.Context) (map[string]any, error) {
	return s.snapshot, s.err
}

func newTestServer(t *testing.T) (*fakeActions, *registry.Registry, http.Handler) {
	t.Helper()
	fake := &fakeActions{}
	reg := registry.New()
	srv := NewServer(fake, reg, zap.NewNop(), 0)
	return fake, reg, srv.Handler()
}

func post(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestPlayMP3URLDispatched(t *testing.T) {
	fake, _, handler := newTestServer(t)

	rec := post(t, handler, "/api/actions/play_mp3_url", map[string]any{
		"device_id": "kitchen",
		"text":      "Doorbell",
		"mp3_url":   "/local/ding.mp3",
		"priority":  "warning",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fake.calls, 1)
	req, ok := fake.calls[0].args[0].(actions.PlayMP3URLRequest)
	require.True(t, ok)
	assert.Equal(t, "kitchen", req.DeviceID)
	assert.Equal(t, "/local/ding.mp3", req.MP3URL)
	assert.Equal(t, "warning", req.Priority)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.NotEmpty(t, resp["request_id"])
}

func TestPlayTTSDispatched(t *testing.T) {
	fake, _, handler := newTestServer(t)

	rec := post(t, handler, "/api/actions/play_tts", map[string]any{
		"device_id": "kitchen",
		"message":   "Dinner is ready",
		"voice":     "en-US-Wavenet-C",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fake.calls, 1)
	req := fake.calls[0].args[0].(actions.PlayTTSRequest)
	assert.Equal(t, "Dinner is ready", req.Message)
	assert.Equal(t, "en-US-Wavenet-C", req.Voice)
}

func TestActionRejectsGet(t *testing.T) {
	_, _, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/actions/play_tts", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestActionRejectsMalformedBody(t *testing.T) {
	fake, _, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/actions/play_tts",
		bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, fake.calls)
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid argument", fmt.Errorf("cycles: %w", actions.ErrInvalidArgument), http.StatusBadRequest},
		{"ambiguous device", registry.ErrAmbiguousDevice, http.StatusBadRequest},
		{"unknown device", fmt.Errorf("kitchen: %w", registry.ErrUnknownDevice), http.StatusNotFound},
		{"no base url", actions.ErrNoBaseURL, http.StatusConflict},
		{"capture timeout", tts.ErrCaptureTimeout, http.StatusGatewayTimeout},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake, _, handler := newTestServer(t)
			fake.err = tc.err

			rec := post(t, handler, "/api/actions/dismiss_all", map[string]any{
				"device_id": "kitchen",
			})

			assert.Equal(t, tc.status, rec.Code)
			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp["error"])
			assert.NotEmpty(t, resp["request_id"])
		})
	}
}

func TestDeviceActionsDispatched(t *testing.T) {
	cases := []struct {
		path string
		name string
	}{
		{"/api/actions/dismiss_current", "dismiss_current"},
		{"/api/actions/dismiss_all", "dismiss_all"},
		{"/api/device/app_next", "app_next"},
		{"/api/device/app_prev", "app_prev"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake, _, handler := newTestServer(t)

			rec := post(t, handler, tc.path, map[string]any{"device_id": "kitchen"})

			require.Equal(t, http.StatusOK, rec.Code)
			require.Len(t, fake.calls, 1)
			assert.Equal(t, tc.name, fake.calls[0].name)
			assert.Equal(t, "kitchen", fake.calls[0].args[0])
		})
	}
}

func TestDisplaySetsModeBeforeBrightness(t *testing.T) {
	fake, _, handler := newTestServer(t)

	rec := post(t, handler, "/api/device/display", map[string]any{
		"device_id":       "kitchen",
		"brightness":      40,
		"brightness_mode": "manual",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fake.calls, 2)
	assert.Equal(t, "set_brightness_mode", fake.calls[0].name)
	assert.Equal(t, "manual", fake.calls[0].args[1])
	assert.Equal(t, "set_brightness", fake.calls[1].name)
	assert.Equal(t, 40, fake.calls[1].args[1])
}

func TestDisplayRequiresField(t *testing.T) {
	fake, _, handler := newTestServer(t)

	rec := post(t, handler, "/api/device/display", map[string]any{"device_id": "kitchen"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, fake.calls)
}

func TestAudioAndBluetooth(t *testing.T) {
	fake, _, handler := newTestServer(t)

	rec := post(t, handler, "/api/device/audio", map[string]any{
		"device_id": "kitchen", "volume": 55,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post(t, handler, "/api/device/bluetooth", map[string]any{
		"device_id": "kitchen", "active": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, fake.calls, 2)
	assert.Equal(t, "set_volume", fake.calls[0].name)
	assert.Equal(t, 55, fake.calls[0].args[1])
	assert.Equal(t, "set_bluetooth", fake.calls[1].name)
	assert.Equal(t, false, fake.calls[1].args[1])
}

func TestGetStateListsDevices(t *testing.T) {
	_, reg, handler := newTestServer(t)

	fetcher := &staticFetcher{snapshot: map[string]any{
		"id":   "abc123",
		"name": "Kitchen LaMetric",
	}}
	coord := coordinator.New(fetcher, 0, zap.NewNop())
	require.NoError(t, coord.FirstRefresh(context.Background()))
	require.NoError(t, reg.Add(&registry.Instance{
		ID:          "kitchen",
		Config:      config.DeviceConfig{ID: "kitchen", Host: "192.168.1.50"},
		Coordinator: coord,
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp StateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Devices, 1)
	assert.Equal(t, "kitchen", resp.Devices[0].ID)
	assert.Equal(t, "192.168.1.50", resp.Devices[0].Host)
	assert.Equal(t, "Kitchen LaMetric", resp.Devices[0].Snapshot["name"])
	assert.Empty(t, resp.Devices[0].LastErr)
}

func TestHealth(t *testing.T) {
	_, _, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
