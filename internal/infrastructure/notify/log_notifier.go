// Package notify contains notification delivery transports. The core
// only depends on the port; swapping the log transport for email or chat
// is a wiring change in main.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/finstack/docflow/internal/application/port"
)

// LogNotifier writes notifications to the structured log. It stands in
// for a real delivery transport in development and tests.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the notification
func (n *LogNotifier) Notify(ctx context.Context, recipient string, subject string, body string) error {
	n.logger.Info("Notification",
		zap.String("recipient", recipient),
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}

// Verify interface compliance
var _ port.Notifier = (*LogNotifier)(nil)
