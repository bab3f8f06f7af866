package core

import (
	"errors"
	"fmt"

	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

// ErrorKind classifies why a transition was rejected.
type ErrorKind string

const (
	// KindInvalidTransition means the edge does not exist in the status
	// graph, regardless of who asks.
	KindInvalidTransition ErrorKind = "InvalidTransition"
	// KindUnauthorized means the edge exists but the actor's role or level
	// does not satisfy it.
	KindUnauthorized ErrorKind = "Unauthorized"
)

// Sentinel errors matched with errors.Is against a *TransitionError.
var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnauthorized      = errors.New("unauthorized")
)

// TransitionError describes a rejected transition.
type TransitionError struct {
	From models.TaskStatus
	To   models.TaskStatus
	Kind ErrorKind
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", e.Kind, e.From, e.To)
}

// Unwrap maps the kind onto its sentinel error.
func (e *TransitionError) Unwrap() error {
	if e.Kind == KindUnauthorized {
		return ErrUnauthorized
	}
	return ErrInvalidTransition
}

// TransitionResult is the outcome of a pre-flight transition check. Reason
// is empty when Allowed is true.
type TransitionResult struct {
	Allowed bool
	Reason  ErrorKind
	From    models.TaskStatus
	To      models.TaskStatus
}

// Err returns nil for an allowed transition and a *TransitionError otherwise.
func (r TransitionResult) Err() error {
	if r.Allowed {
		return nil
	}
	return &TransitionError{From: r.From, To: r.To, Kind: r.Reason}
}

// StateMachine validates task status transitions before they are sent to
// the remote task API. It never mutates a task; the remote API remains the
// authoritative enforcer.
type StateMachine struct {
	tables *Tables
	roles  *RoleResolver
	levels *LevelResolver
}

// NewStateMachine creates a StateMachine over the given tables.
func NewStateMachine(tables *Tables) *StateMachine {
	return &StateMachine{
		tables: tables,
		roles:  NewRoleResolver(tables),
		levels: NewLevelResolver(tables),
	}
}

// ValidateTransition checks that requested is reachable from current in one
// step and that role may execute that edge. Unknown statuses and no-op
// requests are InvalidTransition.
func (sm *StateMachine) ValidateTransition(current, requested models.TaskStatus, role models.Role) TransitionResult {
	result := TransitionResult{From: current, To: requested}
	if !sm.tables.HasEdge(Edge{From: current, To: requested}) {
		result.Reason = KindInvalidTransition
		return result
	}
	if !sm.roles.CanTransitionTask(role, current, requested) {
		result.Reason = KindUnauthorized
		return result
	}
	result.Allowed = true
	return result
}

// ValidateUserTransition runs ValidateTransition for the user's role and
// then, for users in the level model, checks the capability attached to the
// edge. Clients are governed by the role table alone. A nil user is
// Unauthorized only for moves that are otherwise valid edges.
func (sm *StateMachine) ValidateUserTransition(current, requested models.TaskStatus, user models.User) TransitionResult {
	if user == nil {
		result := TransitionResult{From: current, To: requested, Reason: KindUnauthorized}
		if !sm.tables.HasEdge(Edge{From: current, To: requested}) {
			result.Reason = KindInvalidTransition
		}
		return result
	}
	result := sm.ValidateTransition(current, requested, user.Role())
	if !result.Allowed {
		return result
	}
	if user.Role() == models.RoleClient {
		return result
	}
	if capKey, ok := sm.tables.EdgeCapability(Edge{From: current, To: requested}); ok {
		if !sm.levels.HasCapability(sm.levels.EffectiveLevel(user), capKey) {
			result.Allowed = false
			result.Reason = KindUnauthorized
		}
	}
	return result
}

// AvailableTransitions returns the statuses role may move a task to from
// current, in table order.
func (sm *StateMachine) AvailableTransitions(current models.TaskStatus, role models.Role) []models.TaskStatus {
	var out []models.TaskStatus
	for _, to := range sm.tables.Transitions(current) {
		if sm.roles.CanTransitionTask(role, current, to) {
			out = append(out, to)
		}
	}
	return out
}
