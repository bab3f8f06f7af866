package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

var (
	errNoTask      = errors.New("task not found")
	errStaleStatus = errors.New("task status changed")
)

// fakeTaskAPI is an in-memory TaskAPI that counts updates.
type fakeTaskAPI struct {
	tasks   map[string]*models.Task
	updates int
}

func newFakeTaskAPI(tasks ...models.Task) *fakeTaskAPI {
	api := &fakeTaskAPI{tasks: make(map[string]*models.Task)}
	for i := range tasks {
		task := tasks[i]
		api.tasks[task.ID] = &task
	}
	return api
}

func (f *fakeTaskAPI) GetTask(_ context.Context, taskID string) (*models.Task, error) {
	task, ok := f.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", taskID, errNoTask)
	}
	copied := *task
	return &copied, nil
}

func (f *fakeTaskAPI) UpdateTaskStatus(_ context.Context, taskID string, update models.StatusUpdate) (*models.Task, error) {
	task, ok := f.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", taskID, errNoTask)
	}
	if task.Status != update.From {
		return nil, fmt.Errorf("%s: %w", taskID, errStaleStatus)
	}
	f.updates++
	task.Status = update.To
	if update.ContractorID != "" {
		task.ContractorID = update.ContractorID
	}
	copied := *task
	return &copied, nil
}

// racingTaskAPI lets another writer move the task right after it is read.
type racingTaskAPI struct {
	*fakeTaskAPI
	moveTo models.TaskStatus
}

func (r *racingTaskAPI) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	task, err := r.fakeTaskAPI.GetTask(ctx, taskID)
	if err == nil {
		r.tasks[taskID].Status = r.moveTo
	}
	return task, err
}

// failingLogger rejects every event.
type failingLogger struct{}

func (failingLogger) LogEvent(string, map[string]any) error {
	return errors.New("disk full")
}

// captureDefaultLog routes the default slog logger into a buffer at debug
// level for the rest of the test.
func captureDefaultLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func newTestTransitioner(api TaskAPI, events EventLogger) TaskTransitioner {
	return NewTaskTransitioner(NewStateMachine(DefaultTables()), api, events)
}

func TestTransition_AllowedMoveReachesAPI(t *testing.T) {
	api := newFakeTaskAPI(models.Task{ID: "t1", Status: models.StatusSubmitted})
	events := &recordingLogger{}
	tr := newTestTransitioner(api, events)

	task, err := tr.Transition(context.Background(), models.Admin{ID: "a1"}, "t1", models.StatusAssigned)
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if task.Status != models.StatusAssigned {
		t.Errorf("status = %s, want assigned", task.Status)
	}
	if api.updates != 1 {
		t.Errorf("updates = %d, want 1", api.updates)
	}

	got := events.types()
	if len(got) != 2 || got[0] != "task.transition_validated" || got[1] != "task.transitioned" {
		t.Errorf("events = %v", got)
	}
	moved := events.events[1].Data
	if moved["old_status"] != "submitted" || moved["new_status"] != "assigned" || moved["user_id"] != "a1" {
		t.Errorf("transitioned event data = %v", moved)
	}
}

func TestTransition_RejectedMoveNeverReachesAPI(t *testing.T) {
	api := newFakeTaskAPI(models.Task{ID: "t1", Status: models.StatusSubmitted})
	events := &recordingLogger{}
	tr := newTestTransitioner(api, events)

	_, err := tr.Transition(context.Background(), models.Client{ID: "c1"}, "t1", models.StatusAssigned)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if api.updates != 0 {
		t.Errorf("updates = %d, want 0", api.updates)
	}

	_, err = tr.Transition(context.Background(), models.Admin{ID: "a1"}, "t1", models.StatusClosed)
	var te *TransitionError
	if !errors.As(err, &te) || te.Kind != KindInvalidTransition {
		t.Fatalf("err = %v, want InvalidTransition", err)
	}

	got := events.types()
	if len(got) != 2 || got[0] != "task.transition_rejected" || got[1] != "task.transition_rejected" {
		t.Errorf("events = %v", got)
	}
	if events.events[0].Data["reason"] != "Unauthorized" {
		t.Errorf("reason = %v", events.events[0].Data["reason"])
	}
}

func TestTransition_UnknownTask(t *testing.T) {
	tr := newTestTransitioner(newFakeTaskAPI(), nil)
	_, err := tr.Transition(context.Background(), models.Admin{ID: "a1"}, "missing", models.StatusAssigned)
	if !errors.Is(err, errNoTask) {
		t.Fatalf("err = %v, want wrapped errNoTask", err)
	}
}

func TestPreflight_DoesNotMutate(t *testing.T) {
	api := newFakeTaskAPI(models.Task{ID: "t1", Status: models.StatusReview})
	tr := newTestTransitioner(api, nil)

	result, err := tr.Preflight(context.Background(), models.Client{ID: "c1"}, "t1", models.StatusRevision)
	if err != nil {
		t.Fatalf("Preflight failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("client revision request rejected: %q", result.Reason)
	}
	if api.updates != 0 {
		t.Errorf("Preflight issued %d updates", api.updates)
	}
	if api.tasks["t1"].Status != models.StatusReview {
		t.Errorf("status changed to %s", api.tasks["t1"].Status)
	}
}

func TestTransition_FullLifecycleWithRevision(t *testing.T) {
	api := newFakeTaskAPI(models.Task{ID: "t1", Status: models.StatusSubmitted})
	tr := newTestTransitioner(api, nil)
	ctx := context.Background()

	admin := models.Admin{ID: "a1"}
	client := models.Client{ID: "c1"}
	camper := models.Contractor{ID: "k1", Level: 2}

	steps := []struct {
		user models.User
		to   models.TaskStatus
	}{
		{admin, models.StatusAssigned},
		{camper, models.StatusInProgress},
		{camper, models.StatusReview},
		{client, models.StatusRevision},
		{camper, models.StatusInProgress},
		{camper, models.StatusReview},
		{client, models.StatusApproved},
		{client, models.StatusClosed},
	}
	for _, step := range steps {
		if _, err := tr.Transition(ctx, step.user, "t1", step.to); err != nil {
			t.Fatalf("%s -> %s by %s: %v", api.tasks["t1"].Status, step.to, step.user.Role(), err)
		}
	}
	if !api.tasks["t1"].Status.IsTerminal() {
		t.Errorf("final status %s is not terminal", api.tasks["t1"].Status)
	}
}

func TestTransition_StatusChangedAfterCheckIsNotOverwritten(t *testing.T) {
	api := &racingTaskAPI{
		fakeTaskAPI: newFakeTaskAPI(models.Task{ID: "t1", Status: models.StatusReview}),
		moveTo:      models.StatusRevision,
	}
	events := &recordingLogger{}
	tr := newTestTransitioner(api, events)

	_, err := tr.Transition(context.Background(), models.Client{ID: "c1"}, "t1", models.StatusApproved)
	if !errors.Is(err, errStaleStatus) {
		t.Fatalf("err = %v, want wrapped errStaleStatus", err)
	}
	if got := api.tasks["t1"].Status; got != models.StatusRevision {
		t.Errorf("status = %s, want revision left by the other writer", got)
	}
	if api.updates != 0 {
		t.Errorf("updates = %d, want 0", api.updates)
	}
	for _, typ := range events.types() {
		if typ == EventTransitioned {
			t.Errorf("task.transitioned logged for an update that was not applied")
		}
	}
}

func TestAssign_SetsStatusAndContractorTogether(t *testing.T) {
	api := newFakeTaskAPI(models.Task{ID: "t1", Status: models.StatusSubmitted})
	events := &recordingLogger{}
	tr := newTestTransitioner(api, events)
	ctx := context.Background()

	if _, err := tr.Assign(ctx, models.Admin{ID: "a1"}, "t1", ""); err == nil {
		t.Error("expected error for empty contractor")
	}
	if _, err := tr.Assign(ctx, models.Client{ID: "c1"}, "t1", "k1"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("client assign: err = %v, want ErrUnauthorized", err)
	}
	if api.tasks["t1"].ContractorID != "" {
		t.Errorf("rejected assign recorded contractor %q", api.tasks["t1"].ContractorID)
	}

	task, err := tr.Assign(ctx, models.Admin{ID: "a1"}, "t1", "k1")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if task.Status != models.StatusAssigned || task.ContractorID != "k1" {
		t.Errorf("task = %+v", task)
	}
	if api.updates != 1 {
		t.Errorf("updates = %d, want 1", api.updates)
	}
	last := events.events[len(events.events)-1]
	if last.Type != EventTransitioned || last.Data["contractor_id"] != "k1" {
		t.Errorf("last event = %+v", last)
	}
}

func TestTransition_EventLogFailureIsReportedNotFatal(t *testing.T) {
	buf := captureDefaultLog(t)
	api := newFakeTaskAPI(models.Task{ID: "t1", Status: models.StatusSubmitted})
	tr := newTestTransitioner(api, failingLogger{})

	task, err := tr.Transition(context.Background(), models.Admin{ID: "a1"}, "t1", models.StatusAssigned)
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if task.Status != models.StatusAssigned {
		t.Errorf("status = %s", task.Status)
	}
	out := buf.String()
	if !strings.Contains(out, "level=DEBUG") || !strings.Contains(out, "event log write failed") {
		t.Errorf("log output = %q", out)
	}
	if !strings.Contains(out, "event=task.transitioned") || !strings.Contains(out, "disk full") {
		t.Errorf("log output = %q", out)
	}
}
