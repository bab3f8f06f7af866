package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

// ValidatePolicy checks a policy against the workflow invariants and
// returns one error listing every problem found.
func ValidatePolicy(policy models.PolicyFile) error {
	var errs []string
	errs = append(errs, validateTransitionRules(policy)...)
	errs = append(errs, validatePermissions(policy.Permissions)...)
	errs = append(errs, validateCapabilities(policy.Capabilities)...)
	for level := range policy.LevelTitles {
		if level < 1 {
			errs = append(errs, fmt.Sprintf("level_titles: level %d is invalid, must be at least 1", level))
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("policy validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateTransitionRules(policy models.PolicyFile) []string {
	var errs []string
	adjacency := make(map[models.TaskStatus][]models.TaskStatus)
	seen := make(map[Edge]bool)

	for _, rule := range policy.Transitions {
		e := Edge{From: rule.From, To: rule.To}
		switch {
		case !rule.From.IsValid():
			errs = append(errs, fmt.Sprintf("transition %s: unknown from status %q", e, rule.From))
			continue
		case !rule.To.IsValid():
			errs = append(errs, fmt.Sprintf("transition %s: unknown to status %q", e, rule.To))
			continue
		case rule.From == rule.To:
			errs = append(errs, fmt.Sprintf("transition %s: self-loops are not allowed", e))
			continue
		case seen[e]:
			errs = append(errs, fmt.Sprintf("transition %s: declared more than once", e))
			continue
		}
		seen[e] = true
		adjacency[rule.From] = append(adjacency[rule.From], rule.To)

		if rule.From.IsTerminal() {
			errs = append(errs, fmt.Sprintf("transition %s: terminal status %s must have no outgoing transitions", e, rule.From))
		}
		if len(rule.Roles) == 0 {
			errs = append(errs, fmt.Sprintf("transition %s: role list must not be empty", e))
		}
		for _, r := range rule.Roles {
			if !r.IsValid() {
				errs = append(errs, fmt.Sprintf("transition %s: unknown role %q", e, r))
			}
		}
		if rule.Capability != "" {
			if _, ok := policy.Capabilities[rule.Capability]; !ok {
				errs = append(errs, fmt.Sprintf("transition %s: unknown capability %q", e, rule.Capability))
			}
		}
	}

	for _, s := range models.AllStatuses {
		if s.IsTerminal() {
			continue
		}
		if len(adjacency[s]) == 0 {
			errs = append(errs, fmt.Sprintf("status %s: non-terminal status has no outgoing transitions", s))
		}
	}

	if targets := adjacency[models.StatusRevision]; len(targets) > 0 &&
		(len(targets) != 1 || targets[0] != models.StatusInProgress) {
		errs = append(errs, fmt.Sprintf("status %s: must have exactly one transition, to %s", models.StatusRevision, models.StatusInProgress))
	}

	for _, s := range unreachableTerminals(adjacency) {
		errs = append(errs, fmt.Sprintf("status %s: cannot reach a terminal status", s))
	}

	return errs
}

// unreachableTerminals returns the non-terminal statuses from which no
// terminal status can be reached.
func unreachableTerminals(adjacency map[models.TaskStatus][]models.TaskStatus) []models.TaskStatus {
	// Walk the reversed graph from the terminals.
	reverse := make(map[models.TaskStatus][]models.TaskStatus)
	for from, targets := range adjacency {
		for _, to := range targets {
			reverse[to] = append(reverse[to], from)
		}
	}

	reaches := make(map[models.TaskStatus]bool)
	var queue []models.TaskStatus
	for _, s := range models.AllStatuses {
		if s.IsTerminal() {
			reaches[s] = true
			queue = append(queue, s)
		}
	}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for _, prev := range reverse[s] {
			if !reaches[prev] {
				reaches[prev] = true
				queue = append(queue, prev)
			}
		}
	}

	var stuck []models.TaskStatus
	for _, s := range models.AllStatuses {
		if !reaches[s] && len(adjacency[s]) > 0 {
			stuck = append(stuck, s)
		}
	}
	return stuck
}

func validatePermissions(perms map[string][]models.Role) []string {
	var errs []string
	for key, roles := range perms {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, "permissions: key must not be empty")
			continue
		}
		if len(roles) == 0 {
			errs = append(errs, fmt.Sprintf("permission %s: role list must not be empty", key))
		}
		for _, r := range roles {
			if !r.IsValid() {
				errs = append(errs, fmt.Sprintf("permission %s: unknown role %q", key, r))
			}
		}
	}
	return errs
}

func validateCapabilities(caps map[string]int) []string {
	var errs []string
	for key, level := range caps {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, "capabilities: key must not be empty")
			continue
		}
		if level < 1 {
			errs = append(errs, fmt.Sprintf("capability %s: minimum level %d is invalid, must be at least 1", key, level))
		}
	}
	return errs
}
