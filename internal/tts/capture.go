package tts

import (
	"fmt"

	"lametricbridge/internal/ha"

	"go.uber.org/zap"
)

// SinkWatcher watches the dummy sink media_player entity and publishes
// every media URL it receives to the gate.
type SinkWatcher struct {
	client       ha.HAClient
	gate         *Gate
	sinkEntityID string
	logger       *zap.Logger
	subscription ha.Subscription
}

// NewSinkWatcher creates a watcher for sinkEntityID publishing into gate.
func NewSinkWatcher(client ha.HAClient, gate *Gate, sinkEntityID string, logger *zap.Logger) *SinkWatcher {
	return &SinkWatcher{
		client:       client,
		gate:         gate,
		sinkEntityID: sinkEntityID,
		logger:       logger.Named("tts_sink"),
	}
}

// Start subscribes to the sink entity's state changes. A sink entity
// the host does not know is reported but not fatal; it may appear
// later, and everything else keeps working without TTS.
func (w *SinkWatcher) Start() error {
	if _, err := w.client.GetState(w.sinkEntityID); err != nil {
		w.logger.Warn("TTS sink entity not found on host; play_tts will time out until it exists",
			zap.String("entity_id", w.sinkEntityID),
			zap.Error(err))
	}

	sub, err := w.client.SubscribeStateChanges(w.sinkEntityID, w.handleStateChange)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", w.sinkEntityID, err)
	}
	w.subscription = sub

	w.logger.Info("Watching TTS sink", zap.String("entity_id", w.sinkEntityID))
	return nil
}

// Stop removes the subscription.
func (w *SinkWatcher) Stop() {
	if w.subscription != nil {
		w.subscription.Unsubscribe()
		w.subscription = nil
	}
}

func (w *SinkWatcher) handleStateChange(entityID string, oldState, newState *ha.State) {
	if newState == nil {
		return
	}

	mediaID, ok := newState.Attributes["media_content_id"].(string)
	if !ok || mediaID == "" {
		return
	}

	// Every media id the sink receives is published, including one it
	// already played: the TTS engine caches generated speech, so a
	// repeated message arrives with the identical id. Gate.Reset before
	// each cycle keeps ids from earlier cycles out.
	w.logger.Debug("Captured TTS media URL", zap.String("media_content_id", mediaID))
	w.gate.Publish(mediaID)
}
