package models

import "time"

// TaskStatus represents the current lifecycle state of a task.
type TaskStatus string

const (
	StatusSubmitted  TaskStatus = "submitted"
	StatusAssigned   TaskStatus = "assigned"
	StatusInProgress TaskStatus = "in_progress"
	StatusReview     TaskStatus = "review"
	StatusRevision   TaskStatus = "revision"
	StatusApproved   TaskStatus = "approved"
	StatusClosed     TaskStatus = "closed"
	StatusCancelled  TaskStatus = "cancelled"
)

// AllStatuses lists every task status in lifecycle order.
var AllStatuses = []TaskStatus{
	StatusSubmitted,
	StatusAssigned,
	StatusInProgress,
	StatusReview,
	StatusRevision,
	StatusApproved,
	StatusClosed,
	StatusCancelled,
}

var statusLabels = map[TaskStatus]string{
	StatusSubmitted:  "Submitted",
	StatusAssigned:   "Assigned",
	StatusInProgress: "In Progress",
	StatusReview:     "In Review",
	StatusRevision:   "Revision Requested",
	StatusApproved:   "Approved",
	StatusClosed:     "Closed",
	StatusCancelled:  "Cancelled",
}

// IsValid reports whether s is one of the known task statuses.
func (s TaskStatus) IsValid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the human-readable name of the status, or the raw value
// when the status is unknown.
func (s TaskStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// IsTerminal reports whether no work can follow this status.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

// Priority represents the urgency level of a task. It is advisory and has
// no influence on the workflow.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// AllPriorities lists every priority from least to most urgent.
var AllPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

var priorityLabels = map[Priority]string{
	PriorityLow:    "Low",
	PriorityMedium: "Medium",
	PriorityHigh:   "High",
	PriorityUrgent: "Urgent",
}

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	_, ok := priorityLabels[p]
	return ok
}

// Label returns the human-readable name of the priority.
func (p Priority) Label() string {
	if l, ok := priorityLabels[p]; ok {
		return l
	}
	return string(p)
}

// Task represents a unit of billable creative work moving through the
// workflow. ClientID owns the task; ContractorID is empty until assignment.
type Task struct {
	ID           string     `yaml:"id" json:"id"`
	Title        string     `yaml:"title" json:"title"`
	Status       TaskStatus `yaml:"status" json:"status"`
	Priority     Priority   `yaml:"priority" json:"priority"`
	ClientID     string     `yaml:"client_id" json:"client_id"`
	ContractorID string     `yaml:"contractor_id,omitempty" json:"contractor_id,omitempty"`
	CreatedBy    string     `yaml:"created_by" json:"created_by"`
	ProjectID    string     `yaml:"project_id,omitempty" json:"project_id,omitempty"`
	Category     string     `yaml:"category" json:"category"`
	Created      time.Time  `yaml:"created" json:"created"`
	Updated      time.Time  `yaml:"updated" json:"updated"`
}

// StatusUpdate is a compare-and-set status change: it applies only while
// the task is still in From. A non-empty ContractorID is recorded in the
// same write.
type StatusUpdate struct {
	From         TaskStatus
	To           TaskStatus
	ContractorID string
}
