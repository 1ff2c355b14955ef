package logging

import (
	"context"

	"go.uber.org/zap"
)

// SyncEvent summarizes one customer synchronization for the audit trail.
type SyncEvent struct {
	Operation  string
	CustomerID string
	Outcome    string
	Tags       []string
	Writes     int
	Failures   int
	Skipped    []string
}

// LogSyncEvent logs a structured audit entry describing what a sync changed
// on the remote platform.
func LogSyncEvent(ctx context.Context, ev SyncEvent) {
	LoggerFromContext(ctx).Info("Audit event",
		zap.String("audit.action", ev.Operation),
		zap.String("audit.resource_type", "customer"),
		zap.String("audit.resource_id", ev.CustomerID),
		zap.String("audit.result", ev.Outcome),
		zap.Strings("audit.tags", ev.Tags),
		zap.Int("audit.writes", ev.Writes),
		zap.Int("audit.failures", ev.Failures),
		zap.Strings("audit.skipped", ev.Skipped),
	)
}
