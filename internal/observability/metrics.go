package observability

import (
	"fmt"
	"time"

	"github.com/tacklebox-studio/tacklebox/internal/core"
)

// Metrics summarizes access decisions recorded in the event log.
type Metrics struct {
	EventCount           int            `json:"event_count"`
	TransitionsValidated int            `json:"transitions_validated"`
	TransitionsRejected  int            `json:"transitions_rejected"`
	RejectedByReason     map[string]int `json:"rejected_by_reason"`
	Transitioned         int            `json:"transitioned"`
	TransitionsByStatus  map[string]int `json:"transitions_by_status"`
	GuardDenied          int            `json:"guard_denied"`
	GuardRedirects       int            `json:"guard_redirects"`
	DeniedByResource     map[string]int `json:"denied_by_resource"`
	DeniedByRole         map[string]int `json:"denied_by_role"`
	OldestEvent          *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent          *time.Time     `json:"newest_event,omitempty"`
}

// RejectionRate is the share of validated-or-rejected transitions that
// were rejected, or 0 when none were checked.
func (m *Metrics) RejectionRate() float64 {
	total := m.TransitionsValidated + m.TransitionsRejected
	if total == 0 {
		return 0
	}
	return float64(m.TransitionsRejected) / float64(total)
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a MetricsCalculator reading from eventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate aggregates every event at or after since.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		EventCount:          len(events),
		RejectedByReason:    make(map[string]int),
		TransitionsByStatus: make(map[string]int),
		DeniedByResource:    make(map[string]int),
		DeniedByRole:        make(map[string]int),
	}

	for _, event := range events {
		t := event.Time
		if m.OldestEvent == nil || t.Before(*m.OldestEvent) {
			m.OldestEvent = &t
		}
		if m.NewestEvent == nil || t.After(*m.NewestEvent) {
			m.NewestEvent = &t
		}

		switch event.Type {
		case core.EventTransitionValidated:
			m.TransitionsValidated++
		case core.EventTransitionRejected:
			m.TransitionsRejected++
			if reason := dataString(event, "reason"); reason != "" {
				m.RejectedByReason[reason]++
			}
		case core.EventTransitioned:
			m.Transitioned++
			if status := dataString(event, "new_status"); status != "" {
				m.TransitionsByStatus[status]++
			}
		case core.EventGuardDenied:
			m.GuardDenied++
			if resource := dataString(event, "resource"); resource != "" {
				m.DeniedByResource[resource]++
			}
			if role := dataString(event, "role"); role != "" {
				m.DeniedByRole[role]++
			}
		case core.EventGuardRedirect:
			m.GuardRedirects++
		}
	}

	return m, nil
}
