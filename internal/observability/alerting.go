package observability

import (
	"fmt"
	"sort"
	"time"

	"github.com/tacklebox-studio/tacklebox/internal/core"
	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert conditions.
const (
	ConditionRepeatedDenied = "repeated_access_denied"
	ConditionRejectedMoves  = "repeated_transition_rejected"
	ConditionReviewTooLong  = "review_too_long"
)

// Alert is a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts fire. Counting conditions use the
// trailing WindowHours.
type AlertThresholds struct {
	DeniedThreshold int `yaml:"denied_threshold" json:"denied_threshold"`
	WindowHours     int `yaml:"window_hours" json:"window_hours"`
	ReviewHours     int `yaml:"review_hours" json:"review_hours"`
}

// DefaultAlertThresholds returns the thresholds used without configuration.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		DeniedThreshold: 5,
		WindowHours:     24,
		ReviewHours:     72,
	}
}

// AlertEngine evaluates alert conditions against the event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

type alertEngine struct {
	eventLog   EventLog
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates an AlertEngine over eventLog.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		eventLog:   eventLog,
		thresholds: thresholds,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate checks every condition and returns the triggered alerts ordered
// by severity, then ID.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := ae.now()
	var alerts []Alert

	denied, err := ae.checkRepeatedDenials(now)
	if err != nil {
		return nil, fmt.Errorf("checking repeated denials: %w", err)
	}
	alerts = append(alerts, denied...)

	rejected, err := ae.checkRejectedTransitions(now)
	if err != nil {
		return nil, fmt.Errorf("checking rejected transitions: %w", err)
	}
	alerts = append(alerts, rejected...)

	reviews, err := ae.checkLongReviews(now)
	if err != nil {
		return nil, fmt.Errorf("checking long reviews: %w", err)
	}
	alerts = append(alerts, reviews...)

	sort.Slice(alerts, func(i, j int) bool {
		ri, rj := severityRank(alerts[i].Severity), severityRank(alerts[j].Severity)
		if ri != rj {
			return ri < rj
		}
		return alerts[i].ID < alerts[j].ID
	})
	return alerts, nil
}

func severityRank(s AlertSeverity) int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}

func (ae *alertEngine) window(now time.Time) *time.Time {
	since := now.Add(-time.Duration(ae.thresholds.WindowHours) * time.Hour)
	return &since
}

// checkRepeatedDenials fires for every user denied by guards at least
// DeniedThreshold times inside the window.
func (ae *alertEngine) checkRepeatedDenials(now time.Time) ([]Alert, error) {
	events, err := ae.eventLog.Read(EventFilter{Type: core.EventGuardDenied, Since: ae.window(now)})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, event := range events {
		if userID := dataString(event, "user_id"); userID != "" {
			counts[userID]++
		}
	}

	var alerts []Alert
	for userID, n := range counts {
		if n >= ae.thresholds.DeniedThreshold {
			alerts = append(alerts, Alert{
				ID:          fmt.Sprintf("denied-%s", userID),
				Condition:   ConditionRepeatedDenied,
				Severity:    SeverityHigh,
				Message:     fmt.Sprintf("user %s was denied access %d times in the last %d hours", userID, n, ae.thresholds.WindowHours),
				TriggeredAt: now,
			})
		}
	}
	return alerts, nil
}

// checkRejectedTransitions fires for every task whose transitions were
// rejected at least DeniedThreshold times inside the window.
func (ae *alertEngine) checkRejectedTransitions(now time.Time) ([]Alert, error) {
	events, err := ae.eventLog.Read(EventFilter{Type: core.EventTransitionRejected, Since: ae.window(now)})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, event := range events {
		if taskID := dataString(event, "task_id"); taskID != "" {
			counts[taskID]++
		}
	}

	var alerts []Alert
	for taskID, n := range counts {
		if n >= ae.thresholds.DeniedThreshold {
			alerts = append(alerts, Alert{
				ID:          fmt.Sprintf("rejected-%s", taskID),
				Condition:   ConditionRejectedMoves,
				Severity:    SeverityMedium,
				Message:     fmt.Sprintf("task %s had %d rejected transitions in the last %d hours", taskID, n, ae.thresholds.WindowHours),
				TriggeredAt: now,
			})
		}
	}
	return alerts, nil
}

// checkLongReviews fires for tasks whose latest transition moved them to
// review more than ReviewHours ago.
func (ae *alertEngine) checkLongReviews(now time.Time) ([]Alert, error) {
	events, err := ae.eventLog.Read(EventFilter{Type: core.EventTransitioned})
	if err != nil {
		return nil, err
	}

	type taskState struct {
		status    string
		changedAt time.Time
	}
	tasks := make(map[string]taskState)
	for _, event := range events {
		taskID := dataString(event, "task_id")
		status := dataString(event, "new_status")
		if taskID == "" || status == "" {
			continue
		}
		tasks[taskID] = taskState{status: status, changedAt: event.Time}
	}

	threshold := time.Duration(ae.thresholds.ReviewHours) * time.Hour
	var alerts []Alert
	for taskID, state := range tasks {
		if state.status == string(models.StatusReview) && now.Sub(state.changedAt) > threshold {
			alerts = append(alerts, Alert{
				ID:          fmt.Sprintf("review-%s", taskID),
				Condition:   ConditionReviewTooLong,
				Severity:    SeverityLow,
				Message:     fmt.Sprintf("task %s has been in review for more than %d hours", taskID, ae.thresholds.ReviewHours),
				TriggeredAt: now,
			})
		}
	}
	return alerts, nil
}
