package cli

import (
	"strings"
	"testing"

	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

func runCheckTransition(t *testing.T, role string, level int, from, to string) (string, error) {
	t.Helper()
	origRole, origLevel := checkRole, checkLevel
	defer func() { checkRole, checkLevel = origRole, origLevel }()
	checkRole, checkLevel = role, level

	var err error
	out := captureStdout(t, func() {
		err = checkTransitionCmd.RunE(checkTransitionCmd, []string{from, to})
	})
	return out, err
}

func TestCheckTransitionCmd_NilMachine(t *testing.T) {
	orig := Machine
	defer func() { Machine = orig }()
	Machine = nil

	err := checkTransitionCmd.RunE(checkTransitionCmd, []string{"submitted", "assigned"})
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}

func TestCheckTransitionCmd(t *testing.T) {
	useDefaultCore(t)

	tests := []struct {
		name     string
		role     string
		level    int
		from, to string
		want     string
	}{
		{"admin assigns", "admin", 0, "submitted", "assigned", "allowed: submitted -> assigned as admin"},
		{"contractor starts work", "contractor", 1, "assigned", "in_progress", "allowed"},
		{"contractor cannot assign", "contractor", 5, "submitted", "assigned", "rejected: Unauthorized"},
		{"client approves", "client", 0, "review", "approved", "allowed"},
		{"client cannot skip review", "client", 0, "in_progress", "approved", "rejected: InvalidTransition"},
		{"camper alias", "camper", 2, "revision", "in_progress", "allowed"},
		{"terminal status", "admin", 7, "closed", "submitted", "rejected: InvalidTransition"},
		{"unknown status", "admin", 7, "draft", "submitted", "rejected: InvalidTransition"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCheckTransition(t, tt.role, tt.level, tt.from, tt.to)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output should contain %q, got:\n%s", tt.want, out)
			}
		})
	}
}

func TestCheckTransitionCmd_RejectionListsAvailableMoves(t *testing.T) {
	useDefaultCore(t)

	out, err := runCheckTransition(t, "client", 0, "review", "closed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "client may move review tasks to: approved revision") {
		t.Errorf("expected available moves, got:\n%s", out)
	}
}

func TestCheckTransitionCmd_InvalidUser(t *testing.T) {
	useDefaultCore(t)

	if _, err := runCheckTransition(t, "superuser", 0, "submitted", "assigned"); err == nil {
		t.Error("expected error for unknown role")
	}
	if _, err := runCheckTransition(t, "contractor", -1, "assigned", "in_progress"); err == nil {
		t.Error("expected error for negative level")
	}
}

func TestCheckPermissionCmd(t *testing.T) {
	useDefaultCore(t)

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"admin", "manage_users"}, "allowed: admin holds manage_users"},
		{[]string{"client", "manage_users"}, "denied: client does not hold manage_users"},
		{[]string{"contractor", "claim_task"}, "allowed"},
		{[]string{"admin", "claim_task"}, "denied"},
		{[]string{"client", "no_such_permission"}, "denied"},
		{[]string{"ghost", "view_own_tasks"}, "denied: unknown role"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, "/"), func(t *testing.T) {
			var err error
			out := captureStdout(t, func() {
				err = checkPermissionCmd.RunE(checkPermissionCmd, tt.args)
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output should contain %q, got:\n%s", tt.want, out)
			}
		})
	}
}

func TestCheckCapabilityCmd(t *testing.T) {
	useDefaultCore(t)

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"3", "CLAIM_PRIORITY_TASKS"}, "allowed: level 3 unlocks CLAIM_PRIORITY_TASKS (requires 3)"},
		{[]string{"2", "CLAIM_PRIORITY_TASKS"}, "denied: CLAIM_PRIORITY_TASKS requires level 3, have 2"},
		{[]string{"7", "MANAGE_USERS"}, "allowed"},
		{[]string{"7", "FLY"}, "denied: unknown capability FLY"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, "/"), func(t *testing.T) {
			var err error
			out := captureStdout(t, func() {
				err = checkCapabilityCmd.RunE(checkCapabilityCmd, tt.args)
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output should contain %q, got:\n%s", tt.want, out)
			}
		})
	}

	if err := checkCapabilityCmd.RunE(checkCapabilityCmd, []string{"three", "VIEW_TASKS"}); err == nil {
		t.Error("expected error for non-numeric level")
	}
}

func TestUserFromFlags(t *testing.T) {
	u, err := userFromFlags("u1", "admin", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	admin, ok := u.(models.Admin)
	if !ok {
		t.Fatalf("expected models.Admin, got %T", u)
	}
	if admin.ID != "u1" || admin.Level != 2 {
		t.Errorf("unexpected admin %+v", admin)
	}

	u, err = userFromFlags("u2", "client", 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := u.(models.Client); !ok {
		t.Errorf("expected models.Client, got %T", u)
	}
}
