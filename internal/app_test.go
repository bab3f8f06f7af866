package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tacklebox-studio/tacklebox/internal/cli"
	"github.com/tacklebox-studio/tacklebox/internal/core"
	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

func TestResolveBasePath_HomeSet(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(HomeEnv, tmpDir)

	got := ResolveBasePath()
	if got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q", got, tmpDir)
	}
}

func TestResolveBasePath_FindsConfigFile(t *testing.T) {
	tmpDir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	subDir := filepath.Join(tmpDir, "sub", "nested")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, core.ConfigFileName), []byte("log_level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Chdir(subDir)
	t.Setenv(HomeEnv, "")

	got := ResolveBasePath()
	if got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q (should find %s in parent)", got, tmpDir, core.ConfigFileName)
	}
}

func TestResolveBasePath_FallbackToCwd(t *testing.T) {
	tmpDir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Chdir(tmpDir)
	t.Setenv(HomeEnv, "")

	got := ResolveBasePath()
	if got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q (should fall back to cwd)", got, tmpDir)
	}
}

func TestNewApp_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	app, err := NewApp(tmpDir)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	if app.Tables == nil || app.Machine == nil || app.Roles == nil || app.Levels == nil {
		t.Fatal("access core not wired")
	}
	if len(app.Tables.Edges()) != len(core.DefaultPolicy().Transitions) {
		t.Errorf("expected default tables, got %d edges", len(app.Tables.Edges()))
	}
	if app.EventLog == nil || app.AlertEngine == nil || app.MetricsCalc == nil {
		t.Error("observability not wired")
	}
	if app.TaskStore == nil || app.TaskStore.Path() != filepath.Join(tmpDir, "tasks.yaml") {
		t.Errorf("task store path = %v", app.TaskStore)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, ".tbx_events.jsonl")); err != nil {
		t.Errorf("event log not created: %v", err)
	}

	if cli.Tables != app.Tables || cli.Machine != app.Machine || cli.TaskStore != app.TaskStore {
		t.Error("CLI package variables not wired")
	}
	if cli.Config != app.Config || cli.Logger != app.Logger {
		t.Error("CLI config and logger not wired")
	}
	if app.Notifier != nil {
		t.Error("notifier should stay nil without alerts.slack_webhook")
	}
}

func TestNewApp_LoadsPolicyFile(t *testing.T) {
	tmpDir := t.TempDir()

	// Let contractors claim submitted tasks themselves.
	policy := core.DefaultPolicy()
	for i, rule := range policy.Transitions {
		if rule.From == models.StatusSubmitted && rule.To == models.StatusAssigned {
			policy.Transitions[i].Roles = []models.Role{models.RoleContractor, models.RoleAdmin}
		}
	}
	data, err := core.MarshalPolicy(policy)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "policy.yaml"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, core.ConfigFileName), []byte("policy_file: policy.yaml\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	app, err := NewApp(tmpDir)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	if got := app.Machine.ValidateTransition(models.StatusSubmitted, models.StatusAssigned, models.RoleContractor); !got.Allowed {
		t.Errorf("contractor claim should be allowed under the loaded policy, got %s", got.Reason)
	}
	if got := core.DefaultTables(); len(got.TransitionRoles(core.Edge{From: models.StatusSubmitted, To: models.StatusAssigned})) != 1 {
		t.Error("loading a policy file must not change the default tables")
	}
}

func TestNewApp_InvalidConfigIsFatal(t *testing.T) {
	tests := []struct {
		name   string
		config string
		files  map[string]string
		errMsg string
	}{
		{
			name:   "bad login path",
			config: "server:\n  login_path: login\n",
			errMsg: "config validation failed",
		},
		{
			name:   "missing policy file",
			config: "policy_file: nowhere.yaml\n",
			errMsg: "loading policy",
		},
		{
			name:   "invalid policy",
			config: "policy_file: broken.yaml\n",
			files: map[string]string{"broken.yaml": `version: "1.0"
transitions:
  - {from: closed, to: submitted, roles: [admin]}
`},
			errMsg: "policy validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			if err := os.WriteFile(filepath.Join(tmpDir, core.ConfigFileName), []byte(tt.config), 0o644); err != nil {
				t.Fatal(err)
			}
			for name, content := range tt.files {
				if err := os.WriteFile(filepath.Join(tmpDir, name), []byte(content), 0o644); err != nil {
					t.Fatal(err)
				}
			}

			_, err := NewApp(tmpDir)
			if err == nil {
				t.Fatal("expected NewApp to fail")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error %q should contain %q", err, tt.errMsg)
			}
		})
	}
}

func TestNewApp_EventsReachMetrics(t *testing.T) {
	tmpDir := t.TempDir()
	app, err := NewApp(tmpDir)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	result := app.Machine.ValidateUserTransition(models.StatusSubmitted, models.StatusAssigned, models.Client{ID: "c1"})
	if result.Allowed {
		t.Fatal("client should not be able to assign")
	}
	if err := app.Events.LogEvent(core.EventTransitionRejected, map[string]any{
		"user_id": "c1",
		"reason":  string(result.Reason),
	}); err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	metrics, err := app.MetricsCalc.Calculate(time.Time{})
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if metrics.TransitionsRejected != 1 {
		t.Errorf("TransitionsRejected = %d, want 1", metrics.TransitionsRejected)
	}
	if metrics.RejectedByReason[string(core.KindUnauthorized)] != 1 {
		t.Errorf("RejectedByReason = %v", metrics.RejectedByReason)
	}
}

func TestNewApp_SlackWebhookEnablesNotifier(t *testing.T) {
	tmpDir := t.TempDir()
	config := "alerts:\n  slack_webhook: https://hooks.slack.com/services/T0/B0/x\n"
	if err := os.WriteFile(filepath.Join(tmpDir, core.ConfigFileName), []byte(config), 0o644); err != nil {
		t.Fatal(err)
	}

	app, err := NewApp(tmpDir)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	if app.Notifier == nil || cli.Notifier != app.Notifier {
		t.Error("notifier should be built and wired when a webhook is configured")
	}
}

func TestApp_CloseNilEventLog(t *testing.T) {
	app := &App{}
	if err := app.Close(); err != nil {
		t.Errorf("Close() with nil EventLog = %v", err)
	}
}
