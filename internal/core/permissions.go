package core

import (
	"slices"

	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

// Checker is a boolean authorization predicate over a user. Both the
// role-set model and the level model expose their checks as Checkers so
// callers can combine them without the models being merged.
type Checker interface {
	Check(user models.User) bool
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(user models.User) bool

// Check calls f(user).
func (f CheckerFunc) Check(user models.User) bool { return f(user) }

// AllOf passes only when every checker passes. With no checkers it fails.
func AllOf(checkers ...Checker) Checker {
	return CheckerFunc(func(u models.User) bool {
		if len(checkers) == 0 {
			return false
		}
		for _, c := range checkers {
			if !c.Check(u) {
				return false
			}
		}
		return true
	})
}

// AnyOf passes when at least one checker passes.
func AnyOf(checkers ...Checker) Checker {
	return CheckerFunc(func(u models.User) bool {
		for _, c := range checkers {
			if c.Check(u) {
				return true
			}
		}
		return false
	})
}

// RoleResolver answers questions of the role-set (legacy) permission model.
// Missing table data always means "not permitted".
type RoleResolver struct {
	tables *Tables
}

// NewRoleResolver creates a RoleResolver over the given tables.
func NewRoleResolver(tables *Tables) *RoleResolver {
	return &RoleResolver{tables: tables}
}

// HasPermission reports whether role is in the permission's allowed set.
func (r *RoleResolver) HasPermission(role models.Role, key string) bool {
	return slices.Contains(r.tables.PermissionRoles(key), role)
}

// Permissions returns every permission key granted to role, sorted.
func (r *RoleResolver) Permissions(role models.Role) []string {
	var keys []string
	for _, k := range r.tables.PermissionKeys() {
		if r.HasPermission(role, k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// CanTransitionTask reports whether role may move a task along the edge
// from -> to. An edge missing from the table is never permitted.
func (r *RoleResolver) CanTransitionTask(role models.Role, from, to models.TaskStatus) bool {
	return slices.Contains(r.tables.TransitionRoles(Edge{From: from, To: to}), role)
}

// Permission returns a Checker for the permission key.
func (r *RoleResolver) Permission(key string) Checker {
	return CheckerFunc(func(u models.User) bool {
		return u != nil && r.HasPermission(u.Role(), key)
	})
}

// InRoles returns a Checker that passes for users whose role is listed.
func InRoles(roles ...models.Role) Checker {
	return CheckerFunc(func(u models.User) bool {
		return u != nil && slices.Contains(roles, u.Role())
	})
}
