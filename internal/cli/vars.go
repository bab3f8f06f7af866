package cli

import (
	"log/slog"

	"github.com/tacklebox-studio/tacklebox/internal/core"
	"github.com/tacklebox-studio/tacklebox/internal/observability"
	"github.com/tacklebox-studio/tacklebox/internal/storage"
	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

// BasePath is the directory holding .tacklebox.yaml and the data files.
var BasePath string

// Configuration and access core, set during app initialization in app.go.
var (
	Config  *models.GlobalConfig
	Tables  *core.Tables
	Machine *core.StateMachine
	Roles   *core.RoleResolver
	Levels  *core.LevelResolver
	Events  core.EventLogger
)

// Sandbox task store and the transitioner that guards it.
var (
	TaskStore    *storage.TaskFile
	Transitioner core.TaskTransitioner
)

// Observability service instances.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
	Logger      *slog.Logger
)
