package service

import (
	"context"

	"go.uber.org/zap"
)

// Notification is a best-effort message to a user after a workflow
// decision. Delivery failure never affects the decision outcome.
type Notification struct {
	RecipientID string
	Subject     string
	Body        string
}

// NotificationDispatcher delivers notifications. Implementations may
// send email, push, or nothing at all.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, notification Notification) error
}

// LogDispatcher writes notifications to the log instead of delivering
// them. Used as the default and in development.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher constructs a log-only dispatcher.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDispatcher{logger: logger}
}

// Dispatch implements NotificationDispatcher.
func (d *LogDispatcher) Dispatch(_ context.Context, notification Notification) error {
	d.logger.Info("notification",
		zap.String("recipient", notification.RecipientID),
		zap.String("subject", notification.Subject),
	)
	return nil
}

// NopDispatcher drops notifications. Used when dispatch is disabled.
type NopDispatcher struct{}

// Dispatch implements NotificationDispatcher.
func (NopDispatcher) Dispatch(context.Context, Notification) error { return nil }
