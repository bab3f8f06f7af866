package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

func newTestTaskFile(t *testing.T) *TaskFile {
	t.Helper()
	f := NewTaskFile(filepath.Join(t.TempDir(), "sandbox", "tasks.yaml"))
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return f
}

func TestCreateTask(t *testing.T) {
	f := newTestTaskFile(t)
	ctx := context.Background()

	task, err := f.CreateTask(ctx, NewTask{Title: "  Logo refresh ", ClientID: "c1", Category: "branding"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.ID == "" {
		t.Fatal("expected generated ID")
	}
	if task.Status != models.StatusSubmitted {
		t.Errorf("status = %s, want submitted", task.Status)
	}
	if task.Priority != models.PriorityMedium {
		t.Errorf("priority = %s, want medium default", task.Priority)
	}
	if task.Title != "Logo refresh" {
		t.Errorf("title = %q", task.Title)
	}
	if task.CreatedBy != "c1" {
		t.Errorf("created_by = %q, want client", task.CreatedBy)
	}

	got, err := f.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Title != task.Title || got.Category != "branding" {
		t.Errorf("persisted task = %+v", got)
	}
}

func TestCreateTask_Validation(t *testing.T) {
	f := newTestTaskFile(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   NewTask
	}{
		{"empty title", NewTask{Title: " ", ClientID: "c1"}},
		{"missing client", NewTask{Title: "x"}},
		{"bad priority", NewTask{Title: "x", ClientID: "c1", Priority: "P0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.CreateTask(ctx, tt.in); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
	if _, err := os.Stat(f.Path()); !os.IsNotExist(err) {
		t.Error("rejected creates wrote the file")
	}
}

func TestGetTask_NotFound(t *testing.T) {
	f := newTestTaskFile(t)
	_, err := f.GetTask(context.Background(), "missing")
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestUpdateTaskStatus(t *testing.T) {
	f := newTestTaskFile(t)
	ctx := context.Background()
	task, _ := f.CreateTask(ctx, NewTask{Title: "Banner", ClientID: "c1"})

	updated, err := f.UpdateTaskStatus(ctx, task.ID, models.StatusUpdate{From: models.StatusSubmitted, To: models.StatusAssigned})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != models.StatusAssigned {
		t.Errorf("status = %s", updated.Status)
	}
	if !updated.Updated.After(task.Updated) {
		t.Errorf("Updated not advanced: %v -> %v", task.Updated, updated.Updated)
	}

	reopened := NewTaskFile(f.Path())
	got, err := reopened.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask from a second handle failed: %v", err)
	}
	if got.Status != models.StatusAssigned {
		t.Errorf("second handle sees status %s", got.Status)
	}

	if _, err := f.UpdateTaskStatus(ctx, task.ID, models.StatusUpdate{To: "archived"}); err == nil {
		t.Error("expected error for unknown status")
	}
	if _, err := f.UpdateTaskStatus(ctx, "missing", models.StatusUpdate{To: models.StatusClosed}); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestUpdateTaskStatus_RejectsStaleFrom(t *testing.T) {
	f := newTestTaskFile(t)
	ctx := context.Background()
	task, _ := f.CreateTask(ctx, NewTask{Title: "Banner", ClientID: "c1"})

	_, err := f.UpdateTaskStatus(ctx, task.ID, models.StatusUpdate{From: models.StatusReview, To: models.StatusApproved})
	if !errors.Is(err, ErrStatusChanged) {
		t.Fatalf("err = %v, want ErrStatusChanged", err)
	}
	got, err := f.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != models.StatusSubmitted || !got.Updated.Equal(task.Updated) {
		t.Errorf("stale update was written: %+v", got)
	}
}

func TestUpdateTaskStatus_RecordsContractor(t *testing.T) {
	f := newTestTaskFile(t)
	ctx := context.Background()
	task, _ := f.CreateTask(ctx, NewTask{Title: "Banner", ClientID: "c1"})

	got, err := f.UpdateTaskStatus(ctx, task.ID, models.StatusUpdate{
		From:         models.StatusSubmitted,
		To:           models.StatusAssigned,
		ContractorID: "k1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != models.StatusAssigned || got.ContractorID != "k1" {
		t.Errorf("task = %+v", got)
	}

	_, err = f.UpdateTaskStatus(ctx, task.ID, models.StatusUpdate{
		From:         models.StatusSubmitted,
		To:           models.StatusAssigned,
		ContractorID: "k2",
	})
	if !errors.Is(err, ErrStatusChanged) {
		t.Fatalf("second assign: err = %v, want ErrStatusChanged", err)
	}
	stored, _ := f.GetTask(ctx, task.ID)
	if stored.ContractorID != "k1" {
		t.Errorf("contractor = %q, want k1", stored.ContractorID)
	}
}

func TestListTasks_FilterAndOrder(t *testing.T) {
	f := newTestTaskFile(t)
	ctx := context.Background()

	a, _ := f.CreateTask(ctx, NewTask{Title: "A", ClientID: "c1", Priority: models.PriorityHigh})
	b, _ := f.CreateTask(ctx, NewTask{Title: "B", ClientID: "c2"})
	c, _ := f.CreateTask(ctx, NewTask{Title: "C", ClientID: "c1", ContractorID: "k1"})
	if _, err := f.UpdateTaskStatus(ctx, b.ID, models.StatusUpdate{To: models.StatusCancelled}); err != nil {
		t.Fatalf("UpdateTaskStatus failed: %v", err)
	}

	all, err := f.ListTasks(ctx, TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != a.ID || all[1].ID != b.ID || all[2].ID != c.ID {
		t.Fatalf("ListTasks order = %v", all)
	}

	tests := []struct {
		name   string
		filter TaskFilter
		want   []string
	}{
		{"by client", TaskFilter{ClientID: "c1"}, []string{a.ID, c.ID}},
		{"by status", TaskFilter{Status: []models.TaskStatus{models.StatusCancelled}}, []string{b.ID}},
		{"by priority", TaskFilter{Priority: []models.Priority{models.PriorityHigh}}, []string{a.ID}},
		{"by contractor", TaskFilter{ContractorID: "k1"}, []string{c.ID}},
		{"combined", TaskFilter{ClientID: "c1", Status: []models.TaskStatus{models.StatusCancelled}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.ListTasks(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListTasks failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d tasks, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("task %d = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestLoad_RejectsUnknownStatus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.yaml")
	content := "version: \"1.0\"\ntasks:\n  t1:\n    title: x\n    status: done\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewTaskFile(path).GetTask(context.Background(), "t1")
	if err == nil {
		t.Fatal("expected error for unknown status, got nil")
	}
}

func TestCanceledContext(t *testing.T) {
	f := newTestTaskFile(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.ListTasks(ctx, TaskFilter{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCreateTask_SeparateHandlesDoNotLoseWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	a, b := NewTaskFile(path), NewTaskFile(path)
	ctx := context.Background()

	const perHandle = 10
	var wg sync.WaitGroup
	errs := make(chan error, 2*perHandle)
	for _, f := range []*TaskFile{a, b} {
		wg.Add(1)
		go func(f *TaskFile) {
			defer wg.Done()
			for range perHandle {
				if _, err := f.CreateTask(ctx, NewTask{Title: "Banner", ClientID: "c1"}); err != nil {
					errs <- err
				}
			}
		}(f)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("CreateTask failed: %v", err)
	}

	tasks, err := a.ListTasks(ctx, TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 2*perHandle {
		t.Errorf("got %d tasks, want %d", len(tasks), 2*perHandle)
	}
}
