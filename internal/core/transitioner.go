package core

import (
	"context"
	"fmt"

	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

// TaskAPI is the remote task service that owns task state and enforces the
// same workflow server-side. Implementations: the HTTP client of the real
// API (external) and storage.TaskFile for offline rehearsal.
//
// UpdateTaskStatus must apply the update atomically and fail without
// writing when the task is no longer in update.From.
type TaskAPI interface {
	GetTask(ctx context.Context, taskID string) (*models.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID string, update models.StatusUpdate) (*models.Task, error)
}

// TaskTransitioner runs the pre-flight check for a status change and, when
// it passes, issues the change to the task API.
type TaskTransitioner interface {
	Preflight(ctx context.Context, user models.User, taskID string, to models.TaskStatus) (TransitionResult, error)
	Transition(ctx context.Context, user models.User, taskID string, to models.TaskStatus) (*models.Task, error)
	// Assign moves the task to assigned and records contractorID in the
	// same update.
	Assign(ctx context.Context, user models.User, taskID, contractorID string) (*models.Task, error)
}

type taskTransitioner struct {
	machine *StateMachine
	api     TaskAPI
	events  EventLogger
}

// NewTaskTransitioner creates a TaskTransitioner. events may be nil.
func NewTaskTransitioner(machine *StateMachine, api TaskAPI, events EventLogger) TaskTransitioner {
	return &taskTransitioner{machine: machine, api: api, events: events}
}

// Preflight loads the task and validates the move without changing it.
// The error is non-nil only when the task cannot be loaded.
func (t *taskTransitioner) Preflight(ctx context.Context, user models.User, taskID string, to models.TaskStatus) (TransitionResult, error) {
	task, err := t.api.GetTask(ctx, taskID)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("preflight for task %s: %w", taskID, err)
	}
	result := t.machine.ValidateUserTransition(task.Status, to, user)
	t.logResult(taskID, user, result)
	return result, nil
}

// Transition validates the move and forwards it to the task API. A
// rejected move returns a *TransitionError and never reaches the API. The
// update is conditioned on the status the check ran against, so a task
// changed in between is left as the other writer saved it.
func (t *taskTransitioner) Transition(ctx context.Context, user models.User, taskID string, to models.TaskStatus) (*models.Task, error) {
	return t.apply(ctx, user, taskID, models.StatusUpdate{To: to})
}

func (t *taskTransitioner) Assign(ctx context.Context, user models.User, taskID, contractorID string) (*models.Task, error) {
	if contractorID == "" {
		return nil, fmt.Errorf("assigning task %s: contractor ID must not be empty", taskID)
	}
	return t.apply(ctx, user, taskID, models.StatusUpdate{To: models.StatusAssigned, ContractorID: contractorID})
}

func (t *taskTransitioner) apply(ctx context.Context, user models.User, taskID string, update models.StatusUpdate) (*models.Task, error) {
	result, err := t.Preflight(ctx, user, taskID, update.To)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("transitioning task %s: %w", taskID, err)
	}

	update.From = result.From
	task, err := t.api.UpdateTaskStatus(ctx, taskID, update)
	if err != nil {
		return nil, fmt.Errorf("transitioning task %s: %w", taskID, err)
	}
	data := map[string]any{
		"task_id":    taskID,
		"old_status": string(result.From),
		"new_status": string(update.To),
		"user_id":    userID(user),
	}
	if update.ContractorID != "" {
		data["contractor_id"] = update.ContractorID
	}
	t.log(EventTransitioned, data)
	return task, nil
}

func (t *taskTransitioner) logResult(taskID string, user models.User, result TransitionResult) {
	data := map[string]any{
		"task_id":    taskID,
		"old_status": string(result.From),
		"new_status": string(result.To),
		"user_id":    userID(user),
	}
	if user != nil {
		data["role"] = string(user.Role())
	}
	if result.Allowed {
		t.log(EventTransitionValidated, data)
		return
	}
	data["reason"] = string(result.Reason)
	t.log(EventTransitionRejected, data)
}

func (t *taskTransitioner) log(eventType string, data map[string]any) {
	recordEvent(t.events, eventType, data)
}

func userID(u models.User) string {
	if u == nil {
		return ""
	}
	return u.UserID()
}
