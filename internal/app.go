// Package internal provides the App struct that wires the TackleBox access
// core, storage and observability together and initializes the CLI layer.
package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tacklebox-studio/tacklebox/internal/cli"
	"github.com/tacklebox-studio/tacklebox/internal/core"
	"github.com/tacklebox-studio/tacklebox/internal/observability"
	"github.com/tacklebox-studio/tacklebox/internal/storage"
	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

// HomeEnv names the environment variable that overrides the base path.
const HomeEnv = "TBX_HOME"

// App holds all service dependencies of tbx.
type App struct {
	BasePath string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.GlobalConfig

	// Access core
	Tables  *core.Tables
	Machine *core.StateMachine
	Roles   *core.RoleResolver
	Levels  *core.LevelResolver

	// Sandbox
	TaskStore    *storage.TaskFile
	Transitioner core.TaskTransitioner

	// Observability
	EventLog    observability.EventLog
	Events      core.EventLogger
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
	Logger      *slog.Logger
}

// NewApp loads configuration from basePath and wires every component.
// Invalid configuration or an invalid policy file is fatal.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadGlobalConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	var level slog.Level
	_ = level.UnmarshalText([]byte(cfg.LogLevel))
	app.Logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(app.Logger)

	// --- Access core ---
	app.Tables, err = app.ConfigMgr.LoadTables(cfg)
	if err != nil {
		return nil, fmt.Errorf("loading policy: %w", err)
	}
	app.Machine = core.NewStateMachine(app.Tables)
	app.Roles = core.NewRoleResolver(app.Tables)
	app.Levels = core.NewLevelResolver(app.Tables)

	// --- Observability ---
	app.EventLog, err = observability.NewJSONLEventLog(core.ResolvePath(basePath, cfg.EventLog))
	if err != nil {
		// Non-fatal: checks still run, they just are not recorded.
		app.Logger.Warn("event log disabled", "path", cfg.EventLog, "error", err)
		app.EventLog = nil
	}
	if app.EventLog != nil {
		app.Events = &eventLogAdapter{log: app.EventLog}
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, observability.AlertThresholds{
			DeniedThreshold: cfg.Alerts.DeniedThreshold,
			WindowHours:     cfg.Alerts.WindowHours,
			ReviewHours:     cfg.Alerts.ReviewHours,
		})
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}
	if cfg.Alerts.SlackWebhook != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.Alerts.SlackWebhook)
	}

	// --- Sandbox ---
	app.TaskStore = storage.NewTaskFile(core.ResolvePath(basePath, cfg.SandboxFile))
	app.Transitioner = core.NewTaskTransitioner(app.Machine, app.TaskStore, app.Events)

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Config = app.Config
	cli.Tables = app.Tables
	cli.Machine = app.Machine
	cli.Roles = app.Roles
	cli.Levels = app.Levels
	cli.Events = app.Events

	cli.TaskStore = app.TaskStore
	cli.Transitioner = app.Transitioner

	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier
	cli.Logger = app.Logger

	return app, nil
}

// Close releases resources held by the App, such as the event log file handle.
// It is safe to call Close on an App whose EventLog is nil.
func (a *App) Close() error {
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

// ResolveBasePath determines the directory holding .tacklebox.yaml. It
// checks TBX_HOME, then walks up from the working directory looking for the
// config file, then falls back to the working directory.
func ResolveBasePath() string {
	if home := os.Getenv(HomeEnv); home != "" {
		return home
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	for dir := cwd; ; {
		if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return cwd
}

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	return a.log.Write(observability.NewEvent(eventType, data))
}
