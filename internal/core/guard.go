package core

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

// Match selects how a Requirement combines a role allow-list with a
// minimum level when both are declared.
type Match string

const (
	// MatchAll requires every declared requirement to hold.
	MatchAll Match = "all"
	// MatchAny requires at least one declared requirement to hold.
	MatchAny Match = "any"
)

// Requirement declares what a protected view or action needs. With no
// roles and no minimum level only authentication is required.
type Requirement struct {
	// Name identifies the protected resource in event logs.
	Name     string
	Roles    []models.Role
	MinLevel int
	Match    Match
}

// Validate reports malformed requirement descriptors. These are caller
// defects, not authorization outcomes.
func (r Requirement) Validate() error {
	var errs []string
	for _, role := range r.Roles {
		if !role.IsValid() {
			errs = append(errs, fmt.Sprintf("unknown role %q", role))
		}
	}
	if r.MinLevel < 0 {
		errs = append(errs, fmt.Sprintf("min level %d must not be negative", r.MinLevel))
	}
	switch r.Match {
	case "", MatchAll, MatchAny:
	default:
		errs = append(errs, fmt.Sprintf("unknown match mode %q, must be all or any", r.Match))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid requirement %q:\n  - %s", r.Name, strings.Join(errs, "\n  - "))
	}
	return nil
}

// Decision is the outcome of a guard evaluation.
type Decision string

const (
	// DecisionLoading means the session is still resolving; render a
	// neutral placeholder and decide nothing yet.
	DecisionLoading Decision = "loading"
	// DecisionRedirect means the user is not signed in and must be sent to
	// the login entry point.
	DecisionRedirect Decision = "redirect"
	// DecisionDenied means the user is signed in but not authorized.
	DecisionDenied Decision = "denied"
	// DecisionAllow means the protected content may be rendered.
	DecisionAllow Decision = "allow"
)

// Guard is the enforcement point for a protected view or action. It holds
// no session state: every Evaluate call decides from the session passed in.
type Guard struct {
	req    Requirement
	levels *LevelResolver
	events EventLogger
}

// NewGuard creates a Guard for the requirement. events may be nil.
func NewGuard(req Requirement, levels *LevelResolver, events EventLogger) (*Guard, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Match == "" {
		req.Match = MatchAll
	}
	req.Roles = append([]models.Role(nil), req.Roles...)
	return &Guard{req: req, levels: levels, events: events}, nil
}

// Requirement returns the guard's requirement.
func (g *Guard) Requirement() Requirement {
	r := g.req
	r.Roles = append([]models.Role(nil), g.req.Roles...)
	return r
}

// Evaluate decides what to render for the session. Loading is checked
// before authentication, and authentication before authorization.
func (g *Guard) Evaluate(session models.Session) Decision {
	if session.IsLoading {
		return DecisionLoading
	}
	if !session.IsAuthenticated || session.User == nil {
		g.log(EventGuardRedirect, session.User)
		return DecisionRedirect
	}
	if !g.authorized(session.User) {
		g.log(EventGuardDenied, session.User)
		return DecisionDenied
	}
	return DecisionAllow
}

// Protect runs action only when the session is allowed. The action's error
// is returned unchanged.
func (g *Guard) Protect(session models.Session, action func() error) (Decision, error) {
	d := g.Evaluate(session)
	if d != DecisionAllow {
		return d, nil
	}
	return d, action()
}

// Watch re-evaluates the guard for every session update received and
// emits the decisions in order. The returned channel is closed when ctx is
// done or updates is closed.
func (g *Guard) Watch(ctx context.Context, updates <-chan models.Session) <-chan Decision {
	out := make(chan Decision)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-updates:
				if !ok {
					return
				}
				select {
				case out <- g.Evaluate(s):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (g *Guard) authorized(user models.User) bool {
	roleDeclared := len(g.req.Roles) > 0
	levelDeclared := g.req.MinLevel > 0

	roleOK := slices.Contains(g.req.Roles, user.Role())
	levelOK := g.levels.EffectiveLevel(user) >= g.req.MinLevel

	switch {
	case roleDeclared && levelDeclared && g.req.Match == MatchAny:
		return roleOK || levelOK
	case roleDeclared && levelDeclared:
		return roleOK && levelOK
	case roleDeclared:
		return roleOK
	case levelDeclared:
		return levelOK
	default:
		return true
	}
}

func (g *Guard) log(eventType string, user models.User) {
	if g.events == nil {
		return
	}
	data := map[string]any{"resource": g.req.Name}
	if user != nil {
		data["user_id"] = user.UserID()
		data["role"] = string(user.Role())
	}
	recordEvent(g.events, eventType, data)
}
