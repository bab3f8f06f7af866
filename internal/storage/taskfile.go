// Package storage holds the file-backed sandbox task store used to rehearse
// workflows offline.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

var (
	// ErrTaskNotFound is returned when a task ID is not in the store.
	ErrTaskNotFound = errors.New("task not found")
	// ErrStatusChanged is returned when a conditional update finds the
	// task in a different status than the caller validated against.
	ErrStatusChanged = errors.New("task status changed")
)

// TaskFileVersion is written into new sandbox files.
const TaskFileVersion = "1.0"

// NewTask holds the fields supplied when a task is created. Status is
// always submitted on creation.
type NewTask struct {
	Title        string
	Priority     models.Priority
	ClientID     string
	ContractorID string
	CreatedBy    string
	ProjectID    string
	Category     string
}

// TaskFilter selects tasks. All set fields must match.
type TaskFilter struct {
	Status       []models.TaskStatus
	Priority     []models.Priority
	ClientID     string
	ContractorID string
}

// taskDocument is the top-level structure of the sandbox YAML file.
type taskDocument struct {
	Version string                  `yaml:"version"`
	Tasks   map[string]*models.Task `yaml:"tasks"`
}

// TaskFile is a YAML-backed task store. It implements core.TaskAPI so the
// transitioner can run against it instead of the remote service. Every
// call reads the file and every mutation writes it back, so separate
// processes see each other's changes.
type TaskFile struct {
	path string
	now  func() time.Time

	mu sync.Mutex
}

// NewTaskFile creates a TaskFile at path. The file is created on first
// write.
func NewTaskFile(path string) *TaskFile {
	return &TaskFile{path: path, now: func() time.Time { return time.Now().UTC() }}
}

// Path returns the backing file path.
func (f *TaskFile) Path() string { return f.path }

// CreateTask adds a new task in the submitted status.
func (f *TaskFile) CreateTask(ctx context.Context, in NewTask) (*models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("creating task: title must not be empty")
	}
	if in.ClientID == "" {
		return nil, fmt.Errorf("creating task: client ID must not be empty")
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if !in.Priority.IsValid() {
		return nil, fmt.Errorf("creating task: unknown priority %q", in.Priority)
	}
	if in.CreatedBy == "" {
		in.CreatedBy = in.ClientID
	}

	var task *models.Task
	err := f.update(func(doc *taskDocument) error {
		now := f.now()
		task = &models.Task{
			ID:           uuid.NewString(),
			Title:        strings.TrimSpace(in.Title),
			Status:       models.StatusSubmitted,
			Priority:     in.Priority,
			ClientID:     in.ClientID,
			ContractorID: in.ContractorID,
			CreatedBy:    in.CreatedBy,
			ProjectID:    in.ProjectID,
			Category:     in.Category,
			Created:      now,
			Updated:      now,
		}
		doc.Tasks[task.ID] = task
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	copied := *task
	return &copied, nil
}

// GetTask returns the task with the given ID, or ErrTaskNotFound.
func (f *TaskFile) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return nil, fmt.Errorf("getting task %s: %w", taskID, err)
	}
	task, ok := doc.Tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("getting task %s: %w", taskID, ErrTaskNotFound)
	}
	copied := *task
	return &copied, nil
}

// UpdateTaskStatus applies update under the file lock. When update.From is
// set and the stored status differs, nothing is written and the error
// wraps ErrStatusChanged. It performs no workflow checks; callers go
// through core.TaskTransitioner.
func (f *TaskFile) UpdateTaskStatus(ctx context.Context, taskID string, update models.StatusUpdate) (*models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !update.To.IsValid() {
		return nil, fmt.Errorf("updating task %s: unknown status %q", taskID, update.To)
	}
	var task *models.Task
	err := f.update(func(doc *taskDocument) error {
		var ok bool
		task, ok = doc.Tasks[taskID]
		if !ok {
			return ErrTaskNotFound
		}
		if update.From != "" && task.Status != update.From {
			return fmt.Errorf("%w: expected %s, found %s", ErrStatusChanged, update.From, task.Status)
		}
		task.Status = update.To
		if update.ContractorID != "" {
			task.ContractorID = update.ContractorID
		}
		task.Updated = f.now()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("updating task %s: %w", taskID, err)
	}
	copied := *task
	return &copied, nil
}

// ListTasks returns the tasks matching filter, oldest first.
func (f *TaskFile) ListTasks(ctx context.Context, filter TaskFilter) ([]models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	var out []models.Task
	for _, task := range doc.Tasks {
		if matchesFilter(*task, filter) {
			out = append(out, *task)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.Before(out[j].Created)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func matchesFilter(task models.Task, filter TaskFilter) bool {
	if len(filter.Status) > 0 && !slices.Contains(filter.Status, task.Status) {
		return false
	}
	if len(filter.Priority) > 0 && !slices.Contains(filter.Priority, task.Priority) {
		return false
	}
	if filter.ClientID != "" && task.ClientID != filter.ClientID {
		return false
	}
	if filter.ContractorID != "" && task.ContractorID != filter.ContractorID {
		return false
	}
	return true
}

func (f *TaskFile) load() (*taskDocument, error) {
	doc := &taskDocument{Version: TaskFileVersion, Tasks: make(map[string]*models.Task)}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.path, err)
	}
	if doc.Tasks == nil {
		doc.Tasks = make(map[string]*models.Task)
	}
	for id, task := range doc.Tasks {
		if task == nil {
			return nil, fmt.Errorf("parsing %s: task %s is empty", f.path, id)
		}
		if !task.Status.IsValid() {
			return nil, fmt.Errorf("parsing %s: task %s has unknown status %q", f.path, id, task.Status)
		}
		task.ID = id
	}
	return doc, nil
}

// update loads the document, applies fn and saves it, holding the mutex
// and an flock on the companion .lock file throughout.
func (f *TaskFile) update(fn func(doc *taskDocument) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	unlock, err := lockFile(f.path + ".lock")
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return f.save(doc)
}

// save writes to a temp file and renames it over the original so readers
// never see a partial file.
func (f *TaskFile) save(doc *taskDocument) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replacing file: %w", err)
	}
	return nil
}
