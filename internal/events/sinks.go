package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mmynk/splitledger/internal/models"
)

// NotificationWriter persists notifications. storage.Store satisfies it.
type NotificationWriter interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// NotificationSink stores member-targeted events as notifications.
// Group-targeted events are skipped; members get their own copy.
type NotificationSink struct {
	store  NotificationWriter
	format func(int64) string
}

// NewNotificationSink returns a sink that renders amounts with format.
func NewNotificationSink(store NotificationWriter, format func(int64) string) *NotificationSink {
	return &NotificationSink{store: store, format: format}
}

func (s *NotificationSink) Name() string { return "notifications" }

func (s *NotificationSink) Deliver(ctx context.Context, env Envelope) error {
	if env.Target.Kind != TargetMember {
		return nil
	}
	data, err := json.Marshal(env.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	title, message := env.Payload.Describe(s.format)
	return s.store.CreateNotification(ctx, &models.Notification{
		MemberID:  env.Target.ID,
		Kind:      string(env.Type),
		Title:     title,
		Message:   message,
		Data:      data,
		CreatedAt: env.Time,
	})
}

// LogSink writes every event to the logger at debug level.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Name() string { return "log" }

func (s LogSink) Deliver(ctx context.Context, env Envelope) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, "Event",
		"type", env.Type,
		"target", env.Target.String(),
		"payload", env.Payload,
	)
	return nil
}
