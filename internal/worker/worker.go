package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"dining-service/internal/broker"
	"dining-service/internal/models"
	"dining-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ActivityStore persists consumed activity events
type ActivityStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	AppendActivity(ctx context.Context, entry *models.ActivityEntry) error
}

// ActivityWorker consumes the activity topic into the activity log
type ActivityWorker struct {
	consumer *broker.Consumer
	store    ActivityStore
}

// NewActivityWorker creates a new activity worker
func NewActivityWorker(consumer *broker.Consumer, store ActivityStore) *ActivityWorker {
	return &ActivityWorker{
		consumer: consumer,
		store:    store,
	}
}

// Start starts the worker
func (w *ActivityWorker) Start(ctx context.Context) error {
	util.GetLogger().Info("Starting activity worker")
	return w.consumer.StartConsuming(ctx, w.HandleMessage)
}

// Stop stops the worker
func (w *ActivityWorker) Stop() error {
	util.GetLogger().Info("Stopping activity worker")
	return w.consumer.Close()
}

// HandleMessage appends one event to the activity log. Redelivered events
// are skipped.
func (w *ActivityWorker) HandleMessage(ctx context.Context, msg kafka.Message) error {
	logger := util.GetLogger()

	var env models.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		// Poison message, commit it so the partition keeps moving
		logger.Error("Failed to unmarshal activity event", zap.Error(err), zap.Int64("offset", msg.Offset))
		return nil
	}
	if env.EventID == "" {
		logger.Warn("Activity event without id", zap.Int64("offset", msg.Offset))
		return nil
	}

	processed, err := w.store.IsEventProcessed(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event %s: %w", env.EventID, err)
	}
	if processed {
		logger.Debug("Event already processed", zap.String("event_id", env.EventID))
		return nil
	}

	payload := env.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	entry := &models.ActivityEntry{
		EventID:    env.EventID,
		EventType:  string(env.Type),
		StoreID:    env.StoreID,
		CheckID:    env.CheckID,
		Sequence:   int64(env.Sequence),
		Payload:    payload,
		OccurredAt: env.OccurredAt,
	}
	if err := w.store.AppendActivity(ctx, entry); err != nil {
		return fmt.Errorf("failed to append activity %s: %w", env.EventID, err)
	}

	logger.Debug("Recorded activity",
		zap.String("event_id", env.EventID),
		zap.String("type", string(env.Type)),
		zap.String("check_id", env.CheckID),
		zap.Uint64("sequence", env.Sequence))
	return nil
}
