package core

import "log/slog"

// Event types emitted by guards and the task transitioner.
const (
	EventTransitionValidated = "task.transition_validated"
	EventTransitionRejected  = "task.transition_rejected"
	EventTransitioned        = "task.transitioned"
	EventGuardDenied         = "guard.denied"
	EventGuardRedirect       = "guard.redirect"
)

// EventLogger receives the audit events emitted by guards and the task
// transitioner. It is the subset of observability.EventLog core needs.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// recordEvent writes to events when it is set. A failed write never
// changes a decision; it is reported on the default slog logger at debug
// level.
func recordEvent(events EventLogger, eventType string, data map[string]any) {
	if events == nil {
		return
	}
	if err := events.LogEvent(eventType, data); err != nil {
		slog.Debug("event log write failed", "event", eventType, "error", err)
	}
}
