package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lametricbridge/internal/actions"
	"lametricbridge/internal/api"
	"lametricbridge/internal/config"
	"lametricbridge/internal/coordinator"
	"lametricbridge/internal/dimmer"
	"lametricbridge/internal/entities"
	"lametricbridge/internal/ha"
	"lametricbridge/internal/lametric"
	"lametricbridge/internal/registry"
	"lametricbridge/internal/tts"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const startupTimeout = 30 * time.Second

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath, logger)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Starting LaMetric bridge",
		zap.String("ha_url", cfg.HA.URL),
		zap.Int("devices", len(cfg.Devices)))

	// Connect to Home Assistant
	haClient := ha.NewClient(cfg.HA.URL, cfg.HA.Token, logger)
	if err := haClient.Connect(); err != nil {
		logger.Fatal("Failed to connect to Home Assistant", zap.Error(err))
	}
	defer haClient.Disconnect()

	logger.Info("Connected to Home Assistant")

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	reg := registry.New()
	var cleanup []func()

	for _, devCfg := range cfg.Devices {
		inst, stop, err := setupDevice(ctx, devCfg, haClient, logger)
		if err != nil {
			logger.Fatal("Failed to set up device",
				zap.String("device", devCfg.ID),
				zap.Error(err))
		}
		if err := reg.Add(inst); err != nil {
			logger.Fatal("Failed to register device",
				zap.String("device", devCfg.ID),
				zap.Error(err))
		}
		cleanup = append(cleanup, stop)
	}

	dispatcher := actions.New(reg, haClient, logger)
	server := api.NewServer(dispatcher, reg, logger, cfg.API.Port)
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start API server", zap.Error(err))
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Bridge running. Press Ctrl+C to exit.")
	<-sigChan

	logger.Info("Shutting down gracefully...")
	if err := server.Stop(); err != nil {
		logger.Error("Failed to stop API server", zap.Error(err))
	}
	for _, stop := range cleanup {
		stop()
	}
}

// setupDevice builds one device instance: endpoint discovery, first
// snapshot, projections, TTS capture, and the optional display schedule.
// Discovery and the first snapshot are fail-fast so misconfigured
// credentials surface at startup.
func setupDevice(ctx context.Context, devCfg config.DeviceConfig, haClient ha.HAClient, logger *zap.Logger) (*registry.Instance, func(), error) {
	devLogger := logger.With(zap.String("device", devCfg.ID))

	client := lametric.NewClient(devCfg.Host, devCfg.APIKey, devCfg.VerifySSL, devLogger)

	if _, err := client.ResolveEndpoints(ctx); err != nil {
		if lametric.IsAuthError(err) {
			return nil, nil, fmt.Errorf("invalid credentials for %s: %w", devCfg.Host, err)
		}
		return nil, nil, fmt.Errorf("cannot reach device at %s: %w", devCfg.Host, err)
	}
	devLogger.Info("Resolved device endpoints", zap.String("host", devCfg.Host))

	interval := time.Duration(devCfg.ScanIntervalSeconds) * time.Second
	coord := coordinator.New(client, interval, devLogger)
	if err := coord.FirstRefresh(ctx); err != nil {
		return nil, nil, fmt.Errorf("first refresh failed for %s: %w", devCfg.Host, err)
	}

	inst := &registry.Instance{
		ID:          devCfg.ID,
		Config:      devCfg,
		Client:      client,
		Coordinator: coord,
		Gate:        tts.NewGate(),
	}

	entities.Attach(coord, haClient, devCfg.ID, devLogger)

	watcher := tts.NewSinkWatcher(haClient, inst.Gate, devCfg.TTSSinkEntityID, devLogger)
	if err := watcher.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to watch TTS sink %s: %w", devCfg.TTSSinkEntityID, err)
	}

	var dim *dimmer.Dimmer
	if devCfg.Dimmer.Enabled {
		dim = dimmer.New(client, coord.RequestRefresh,
			devCfg.Dimmer.Latitude, devCfg.Dimmer.Longitude,
			devCfg.Dimmer.NightBrightness, devLogger)
		dim.Start()
		devLogger.Info("Display schedule enabled",
			zap.Float64("latitude", devCfg.Dimmer.Latitude),
			zap.Float64("longitude", devCfg.Dimmer.Longitude))
	}

	coord.Start()

	stop := func() {
		if dim != nil {
			dim.Stop()
		}
		watcher.Stop()
		coord.Stop()
	}
	return inst, stop, nil
}
