// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the TackleBox access rules as tools, so assistants can ask what a user
// may do before they try it.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tacklebox-studio/tacklebox/internal/core"
	"github.com/tacklebox-studio/tacklebox/internal/observability"
	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

// Server exposes the access core as MCP tools.
type Server struct {
	server      *gomcp.Server
	tables      *core.Tables
	machine     *core.StateMachine
	roles       *core.RoleResolver
	levels      *core.LevelResolver
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
}

// NewServer creates an MCP server over tables. metricsCalc and alertEngine
// may be nil when no event log is configured.
func NewServer(tables *core.Tables, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		tables:      tables,
		machine:     core.NewStateMachine(tables),
		roles:       core.NewRoleResolver(tables),
		levels:      core.NewLevelResolver(tables),
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "tbx", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type validateTransitionInput struct {
	From  string `json:"from" jsonschema:"required,the task's current status (e.g. submitted, in_progress)"`
	To    string `json:"to" jsonschema:"required,the requested status"`
	Role  string `json:"role" jsonschema:"required,the actor's role (client, contractor, admin)"`
	Level int    `json:"level,omitempty" jsonschema:"the actor's stored level; ignored for clients"`
}

type validateTransitionOutput struct {
	Allowed   bool     `json:"allowed"`
	Reason    string   `json:"reason,omitempty"`
	From      string   `json:"from"`
	To        string   `json:"to"`
	Available []string `json:"available"`
}

type hasPermissionInput struct {
	Role       string `json:"role" jsonschema:"required,the role to check"`
	Permission string `json:"permission" jsonschema:"required,the permission key (e.g. submit_task)"`
}

type allowedOutput struct {
	Allowed bool `json:"allowed"`
}

type listPermissionsInput struct {
	Role string `json:"role" jsonschema:"required,the role whose permissions to list"`
}

type listPermissionsOutput struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	Count       int      `json:"count"`
}

type levelInput struct {
	Role  string `json:"role" jsonschema:"required,the user's role"`
	Level int    `json:"level,omitempty" jsonschema:"the user's stored level; 0 when unset"`
}

type effectiveLevelOutput struct {
	EffectiveLevel  int      `json:"effective_level"`
	Title           string   `json:"title,omitempty"`
	AdminTier       bool     `json:"admin_tier"`
	Capabilities    []string `json:"capabilities"`
	NextUnlockLevel int      `json:"next_unlock_level,omitempty"`
}

type hasCapabilityInput struct {
	Level      int    `json:"level" jsonschema:"required,the effective level to check"`
	Capability string `json:"capability" jsonschema:"required,the capability key (e.g. CLAIM_URGENT_TASKS)"`
}

type hasCapabilityOutput struct {
	Allowed       bool `json:"allowed"`
	RequiredLevel int  `json:"required_level,omitempty"`
}

type evaluateGuardInput struct {
	Loading       bool     `json:"loading,omitempty" jsonschema:"true while the session is still resolving"`
	Authenticated bool     `json:"authenticated,omitempty" jsonschema:"true when a user is signed in"`
	Role          string   `json:"role,omitempty" jsonschema:"the signed-in user's role"`
	Level         int      `json:"level,omitempty" jsonschema:"the signed-in user's stored level"`
	RequireRoles  []string `json:"require_roles,omitempty" jsonschema:"roles allowed by the guard"`
	MinLevel      int      `json:"min_level,omitempty" jsonschema:"minimum effective level required by the guard"`
	Match         string   `json:"match,omitempty" jsonschema:"how roles and level combine: all (default) or any"`
}

type evaluateGuardOutput struct {
	Decision string `json:"decision"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	EventCount           int            `json:"event_count"`
	TransitionsValidated int            `json:"transitions_validated"`
	TransitionsRejected  int            `json:"transitions_rejected"`
	RejectedByReason     map[string]int `json:"rejected_by_reason"`
	Transitioned         int            `json:"transitioned"`
	GuardDenied          int            `json:"guard_denied"`
	GuardRedirects       int            `json:"guard_redirects"`
	DeniedByResource     map[string]int `json:"denied_by_resource"`
	OldestEvent          string         `json:"oldest_event,omitempty"`
	NewestEvent          string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "validate_transition",
		Description: "Check whether a user with the given role and level may move a task from one status to another. Returns the rejection reason (InvalidTransition or Unauthorized) and the statuses the role may reach instead.",
	}, s.handleValidateTransition)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "has_permission",
		Description: "Check whether a role holds a permission in the role-set model. Unknown roles or permissions are never granted.",
	}, s.handleHasPermission)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_permissions",
		Description: "List every permission held by a role.",
	}, s.handleListPermissions)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "effective_level",
		Description: "Resolve a user's effective level, tier title and unlocked capabilities. Clients are always 0 and admins at least the top tier.",
	}, s.handleEffectiveLevel)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "has_capability",
		Description: "Check whether an effective level unlocks a capability in the level model.",
	}, s.handleHasCapability)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "evaluate_guard",
		Description: "Decide what a protected view renders for a session: loading, redirect (not signed in), denied or allow.",
	}, s.handleEvaluateGuard)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get aggregated access metrics from the event log: validated and rejected transitions, guard denials and redirects.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (repeated access denials, repeated rejected transitions, long reviews).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleValidateTransition(_ context.Context, _ *gomcp.CallToolRequest, input validateTransitionInput) (*gomcp.CallToolResult, validateTransitionOutput, error) {
	if input.From == "" || input.To == "" {
		return errorResult("from and to are required"), validateTransitionOutput{}, nil
	}
	from, to := models.TaskStatus(input.From), models.TaskStatus(input.To)

	// An unknown role yields a nil user, which every check rejects.
	user, _ := userFor(input.Role, input.Level)
	result := s.machine.ValidateUserTransition(from, to, user)

	out := validateTransitionOutput{
		Allowed:   result.Allowed,
		Reason:    string(result.Reason),
		From:      input.From,
		To:        input.To,
		Available: []string{},
	}
	if user != nil {
		for _, st := range s.machine.AvailableTransitions(from, user.Role()) {
			out.Available = append(out.Available, string(st))
		}
	}
	return nil, out, nil
}

func (s *Server) handleHasPermission(_ context.Context, _ *gomcp.CallToolRequest, input hasPermissionInput) (*gomcp.CallToolResult, allowedOutput, error) {
	if input.Permission == "" {
		return errorResult("permission is required"), allowedOutput{}, nil
	}
	role, err := models.ParseRole(input.Role)
	if err != nil {
		return nil, allowedOutput{Allowed: false}, nil
	}
	return nil, allowedOutput{Allowed: s.roles.HasPermission(role, input.Permission)}, nil
}

func (s *Server) handleListPermissions(_ context.Context, _ *gomcp.CallToolRequest, input listPermissionsInput) (*gomcp.CallToolResult, listPermissionsOutput, error) {
	role, err := models.ParseRole(input.Role)
	if err != nil {
		return errorResult(err.Error()), listPermissionsOutput{}, nil
	}
	perms := s.roles.Permissions(role)
	if perms == nil {
		perms = []string{}
	}
	return nil, listPermissionsOutput{Role: string(role), Permissions: perms, Count: len(perms)}, nil
}

func (s *Server) handleEffectiveLevel(_ context.Context, _ *gomcp.CallToolRequest, input levelInput) (*gomcp.CallToolResult, effectiveLevelOutput, error) {
	user, err := userFor(input.Role, input.Level)
	if err != nil {
		return errorResult(err.Error()), effectiveLevelOutput{}, nil
	}

	level := s.levels.EffectiveLevel(user)
	out := effectiveLevelOutput{
		EffectiveLevel: level,
		AdminTier:      s.levels.IsAdminTier(user),
		Capabilities:   []string{},
	}
	if user.Role() != models.RoleClient {
		out.Title = s.levels.Title(user)
		if caps := s.levels.Capabilities(level); caps != nil {
			out.Capabilities = caps
		}
		if next, _, ok := s.levels.NextUnlock(level); ok {
			out.NextUnlockLevel = next
		}
	}
	return nil, out, nil
}

func (s *Server) handleHasCapability(_ context.Context, _ *gomcp.CallToolRequest, input hasCapabilityInput) (*gomcp.CallToolResult, hasCapabilityOutput, error) {
	if input.Capability == "" {
		return errorResult("capability is required"), hasCapabilityOutput{}, nil
	}
	required, _ := s.tables.CapabilityLevel(input.Capability)
	return nil, hasCapabilityOutput{
		Allowed:       s.levels.HasCapability(input.Level, input.Capability),
		RequiredLevel: required,
	}, nil
}

func (s *Server) handleEvaluateGuard(_ context.Context, _ *gomcp.CallToolRequest, input evaluateGuardInput) (*gomcp.CallToolResult, evaluateGuardOutput, error) {
	req := core.Requirement{
		Name:     "mcp",
		MinLevel: input.MinLevel,
		Match:    core.Match(input.Match),
	}
	for _, r := range input.RequireRoles {
		req.Roles = append(req.Roles, models.Role(r))
	}
	guard, err := core.NewGuard(req, s.levels, nil)
	if err != nil {
		return errorResult(err.Error()), evaluateGuardOutput{}, nil
	}

	var session models.Session
	switch {
	case input.Loading:
		session = models.LoadingSession()
	case input.Authenticated:
		user, err := userFor(input.Role, input.Level)
		if err != nil {
			session = models.AnonymousSession()
		} else {
			session = models.AuthenticatedSession(user)
		}
	default:
		session = models.AnonymousSession()
	}

	return nil, evaluateGuardOutput{Decision: string(guard.Evaluate(session))}, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (no event log configured)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}
	sinceTime, err := ParseSince(sinceStr, time.Now().UTC())
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		EventCount:           metrics.EventCount,
		TransitionsValidated: metrics.TransitionsValidated,
		TransitionsRejected:  metrics.TransitionsRejected,
		RejectedByReason:     metrics.RejectedByReason,
		Transitioned:         metrics.Transitioned,
		GuardDenied:          metrics.GuardDenied,
		GuardRedirects:       metrics.GuardRedirects,
		DeniedByResource:     metrics.DeniedByResource,
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}
	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (no event log configured)"), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

// --- Helpers ---

func userFor(role string, level int) (models.User, error) {
	r, err := models.ParseRole(role)
	if err != nil {
		return nil, err
	}
	return models.NewUser("mcp", r, level)
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		RejectedByReason: make(map[string]int),
		DeniedByResource: make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// ParseSince parses a window such as "7d" or "24h" into the instant that
// far before now.
func ParseSince(s string, now time.Time) (time.Time, error) {
	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	var num int
	if _, err := fmt.Sscanf(s[:len(s)-1], "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if num < 0 {
		return time.Time{}, fmt.Errorf("invalid duration %q: must not be negative", s)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
