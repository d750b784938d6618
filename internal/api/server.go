package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"lametricbridge/internal/actions"
	"lametricbridge/internal/registry"
	"lametricbridge/internal/tts"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Actions is the dispatcher surface the HTTP layer needs.
type Actions interface {
	PlayMP3URL(ctx context.Context, req actions.PlayMP3URLRequest) error
	PlayTTS(ctx context.Context, req actions.PlayTTSRequest) error
	ShowSetpointChange(ctx context.Context, req actions.SetpointChangeRequest) error
	DismissCurrent(ctx context.Context, deviceID string) error
	DismissAll(ctx context.Context, deviceID string) error
	AppNext(ctx context.Context, deviceID string) error
	AppPrev(ctx context.Context, deviceID string) error
	SetBrightness(ctx context.Context, deviceID string, value int) error
	SetBrightnessMode(ctx context.Context, deviceID, mode string) error
	SetVolume(ctx context.Context, deviceID string, value int) error
	SetBluetoothActive(ctx context.Context, deviceID string, active bool) error
}

// Server provides the HTTP endpoints the automation host calls into.
type Server struct {
	actions  Actions
	registry *registry.Registry
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates the API server.
func NewServer(dispatcher Actions, reg *registry.Registry, logger *zap.Logger, port int) *Server {
	s := &Server{
		actions:  dispatcher,
		registry: reg,
		logger:   logger.Named("api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleSitemap)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/state", s.handleGetState)

	mux.HandleFunc("/api/actions/play_mp3_url", s.action(s.handlePlayMP3URL))
	mux.HandleFunc("/api/actions/play_tts", s.action(s.handlePlayTTS))
	mux.HandleFunc("/api/actions/show_setpoint_change", s.action(s.handleSetpointChange))
	mux.HandleFunc("/api/actions/dismiss_current", s.action(s.deviceAction(s.actions.DismissCurrent)))
	mux.HandleFunc("/api/actions/dismiss_all", s.action(s.deviceAction(s.actions.DismissAll)))

	mux.HandleFunc("/api/device/app_next", s.action(s.deviceAction(s.actions.AppNext)))
	mux.HandleFunc("/api/device/app_prev", s.action(s.deviceAction(s.actions.AppPrev)))
	mux.HandleFunc("/api/device/display", s.action(s.handleDisplay))
	mux.HandleFunc("/api/device/audio", s.action(s.handleAudio))
	mux.HandleFunc("/api/device/bluetooth", s.action(s.handleBluetooth))

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

type actionHandler func(w http.ResponseWriter, r *http.Request, requestID string) error

// action wraps a handler with method filtering, a request ID, and
// error-to-status mapping.
func (s *Server) action(h actionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		requestID := uuid.NewString()
		start := time.Now()

		err := h(w, r, requestID)
		if err != nil {
			s.writeError(w, r, requestID, err)
			return
		}

		s.logger.Debug("Action served",
			zap.String("request_id", requestID),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":     "ok",
			"request_id": requestID,
		})
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, requestID string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, actions.ErrInvalidArgument),
		errors.Is(err, registry.ErrAmbiguousDevice):
		status = http.StatusBadRequest
	case errors.Is(err, registry.ErrUnknownDevice):
		status = http.StatusNotFound
	case errors.Is(err, actions.ErrNoBaseURL):
		status = http.StatusConflict
	case errors.Is(err, tts.ErrCaptureTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	s.logger.Warn("Action failed",
		zap.String("request_id", requestID),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":      err.Error(),
		"request_id": requestID,
	})
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", actions.ErrInvalidArgument)
	}
	return nil
}

type playMP3URLBody struct {
	DeviceID string `json:"device_id"`
	Text     string `json:"text"`
	MP3URL   string `json:"mp3_url"`
	Icon     string `json:"icon"`
	Cycles   int    `json:"cycles"`
	Priority string `json:"priority"`
}

func (s *Server) handlePlayMP3URL(w http.ResponseWriter, r *http.Request, requestID string) error {
	var body playMP3URLBody
	if err := decodeBody(r, &body); err != nil {
		return err
	}

	return s.actions.PlayMP3URL(r.Context(), actions.PlayMP3URLRequest{
		DeviceID: body.DeviceID,
		Text:     body.Text,
		MP3URL:   body.MP3URL,
		Icon:     body.Icon,
		Cycles:   body.Cycles,
		Priority: body.Priority,
	})
}

type playTTSBody struct {
	DeviceID    string `json:"device_id"`
	TTSEntityID string `json:"tts_entity_id"`
	Message     string `json:"message"`
	Voice       string `json:"voice"`
	Icon        string `json:"icon"`
	Priority    string `json:"priority"`
}

func (s *Server) handlePlayTTS(w http.ResponseWriter, r *http.Request, requestID string) error {
	var body playTTSBody
	if err := decodeBody(r, &body); err != nil {
		return err
	}

	return s.actions.PlayTTS(r.Context(), actions.PlayTTSRequest{
		DeviceID:    body.DeviceID,
		TTSEntityID: body.TTSEntityID,
		Message:     body.Message,
		Voice:       body.Voice,
		Icon:        body.Icon,
		Priority:    body.Priority,
	})
}

type setpointChangeBody struct {
	DeviceID      string  `json:"device_id"`
	TemperatureC  float64 `json:"temperature_c"`
	Direction     string  `json:"direction"`
	ArrowUpIcon   string  `json:"arrow_up_icon"`
	ArrowDownIcon string  `json:"arrow_down_icon"`
	Cycles        int     `json:"cycles"`
	Priority      string  `json:"priority"`
}

func (s *Server) handleSetpointChange(w http.ResponseWriter, r *http.Request, requestID string) error {
	var body setpointChangeBody
	if err := decodeBody(r, &body); err != nil {
		return err
	}

	return s.actions.ShowSetpointChange(r.Context(), actions.SetpointChangeRequest{
		DeviceID:      body.DeviceID,
		TemperatureC:  body.TemperatureC,
		Direction:     body.Direction,
		ArrowUpIcon:   body.ArrowUpIcon,
		ArrowDownIcon: body.ArrowDownIcon,
		Cycles:        body.Cycles,
		Priority:      body.Priority,
	})
}

type deviceBody struct {
	DeviceID string `json:"device_id"`
}

// deviceAction adapts a device-scoped dispatcher call into a handler.
func (s *Server) deviceAction(call func(ctx context.Context, deviceID string) error) actionHandler {
	return func(w http.ResponseWriter, r *http.Request, requestID string) error {
		var body deviceBody
		if err := decodeBody(r, &body); err != nil {
			return err
		}
		return call(r.Context(), body.DeviceID)
	}
}

type displayBody struct {
	DeviceID   string `json:"device_id"`
	Brightness *int   `json:"brightness"`
	Mode       string `json:"brightness_mode"`
}

func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request, requestID string) error {
	var body displayBody
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	if body.Brightness == nil && body.Mode == "" {
		return fmt.Errorf("display request needs brightness or brightness_mode: %w", actions.ErrInvalidArgument)
	}

	if body.Mode != "" {
		if err := s.actions.SetBrightnessMode(r.Context(), body.DeviceID, body.Mode); err != nil {
			return err
		}
	}
	if body.Brightness != nil {
		if err := s.actions.SetBrightness(r.Context(), body.DeviceID, *body.Brightness); err != nil {
			return err
		}
	}
	return nil
}

type audioBody struct {
	DeviceID string `json:"device_id"`
	Volume   *int   `json:"volume"`
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request, requestID string) error {
	var body audioBody
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	if body.Volume == nil {
		return fmt.Errorf("audio request needs volume: %w", actions.ErrInvalidArgument)
	}
	return s.actions.SetVolume(r.Context(), body.DeviceID, *body.Volume)
}

type bluetoothBody struct {
	DeviceID string `json:"device_id"`
	Active   *bool  `json:"active"`
}

func (s *Server) handleBluetooth(w http.ResponseWriter, r *http.Request, requestID string) error {
	var body bluetoothBody
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	if body.Active == nil {
		return fmt.Errorf("bluetooth request needs active: %w", actions.ErrInvalidArgument)
	}
	return s.actions.SetBluetoothActive(r.Context(), body.DeviceID, *body.Active)
}

// DeviceState is one device's entry in the state response.
type DeviceState struct {
	ID       string         `json:"id"`
	Host     string         `json:"host"`
	Snapshot map[string]any `json:"snapshot"`
	LastErr  string         `json:"last_error,omitempty"`
}

// StateResponse lists the latest snapshot for every registered device.
type StateResponse struct {
	Devices []DeviceState `json:"devices"`
}

// handleGetState returns the latest snapshot per device.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := StateResponse{Devices: []DeviceState{}}
	for _, inst := range s.registry.All() {
		entry := DeviceState{
			ID:       inst.ID,
			Host:     inst.Config.Host,
			Snapshot: inst.Coordinator.Snapshot(),
		}
		if err := inst.Coordinator.LastError(); err != nil {
			entry.LastErr = err.Error()
		}
		response.Devices = append(response.Devices, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.logger.Debug("State request served",
		zap.String("remote_addr", r.RemoteAddr))
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// Endpoint describes one route for the sitemap.
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

// handleSitemap lists the available routes for anything that lands on
// the root path.
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	endpoints := []Endpoint{
		{"/", "GET", "This sitemap"},
		{"/health", "GET", "Health check"},
		{"/api/state", "GET", "Latest snapshot per device"},
		{"/api/actions/play_mp3_url", "POST", "Show a notification that plays an MP3 URL"},
		{"/api/actions/play_tts", "POST", "Speak a message through the host TTS engine on the device"},
		{"/api/actions/show_setpoint_change", "POST", "Show a thermostat setpoint blink animation"},
		{"/api/actions/dismiss_current", "POST", "Dismiss the currently shown notification"},
		{"/api/actions/dismiss_all", "POST", "Dismiss all queued notifications"},
		{"/api/device/app_next", "POST", "Switch the device to the next app"},
		{"/api/device/app_prev", "POST", "Switch the device to the previous app"},
		{"/api/device/display", "POST", "Set display brightness and mode"},
		{"/api/device/audio", "POST", "Set speaker volume"},
		{"/api/device/bluetooth", "POST", "Enable or disable bluetooth"},
	}

	// 404 keeps misrouted automation calls visibly failing while still
	// pointing a human at the real routes.
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintf(w, "LaMetric bridge API\n\nAvailable endpoints:\n\n")
	for _, ep := range endpoints {
		fmt.Fprintf(w, "  %-6s %-36s %s\n", ep.Method, ep.Path, ep.Description)
	}

	s.logger.Debug("Sitemap request served",
		zap.String("remote_addr", r.RemoteAddr))
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
