package cli

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/tacklebox-studio/tacklebox/internal/core"
	"github.com/tacklebox-studio/tacklebox/internal/storage"
)

// captureStdout runs fn and returns everything it printed to os.Stdout.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("creating pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan []byte)
	go func() {
		out, _ := io.ReadAll(r)
		done <- out
	}()

	fn()

	w.Close()
	os.Stdout = origStdout
	return string(<-done)
}

// recordingEvents collects logged events for assertions.
type recordingEvents struct {
	types []string
	data  []map[string]any
}

func (r *recordingEvents) LogEvent(eventType string, data map[string]any) error {
	r.types = append(r.types, eventType)
	r.data = append(r.data, data)
	return nil
}

// useDefaultCore points the package-level access core at the default
// tables for the duration of the test.
func useDefaultCore(t *testing.T) *recordingEvents {
	t.Helper()
	origTables, origMachine, origRoles, origLevels, origEvents := Tables, Machine, Roles, Levels, Events
	t.Cleanup(func() {
		Tables, Machine, Roles, Levels, Events = origTables, origMachine, origRoles, origLevels, origEvents
	})

	events := &recordingEvents{}
	Tables = core.DefaultTables()
	Machine = core.NewStateMachine(Tables)
	Roles = core.NewRoleResolver(Tables)
	Levels = core.NewLevelResolver(Tables)
	Events = events
	return events
}

// useSandbox points the task store and transitioner at a fresh sandbox
// file in a temp directory.
func useSandbox(t *testing.T) *storage.TaskFile {
	t.Helper()
	events := useDefaultCore(t)

	origStore, origTransitioner := TaskStore, Transitioner
	t.Cleanup(func() {
		TaskStore, Transitioner = origStore, origTransitioner
	})

	TaskStore = storage.NewTaskFile(filepath.Join(t.TempDir(), "tasks.yaml"))
	Transitioner = core.NewTaskTransitioner(Machine, TaskStore, events)
	return TaskStore
}
