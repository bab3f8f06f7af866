package core

import (
	"slices"
	"testing"

	"github.com/tacklebox-studio/tacklebox/pkg/models"
	"pgregory.net/rapid"
)

func capabilityGenerator(tables *Tables) *rapid.Generator[string] {
	return rapid.SampledFrom(tables.CapabilityKeys())
}

func statusGenerator() *rapid.Generator[models.TaskStatus] {
	return rapid.SampledFrom(models.AllStatuses)
}

func roleGenerator() *rapid.Generator[models.Role] {
	return rapid.SampledFrom(models.AllRoles)
}

// Feature: access-core, Property 1: Level Monotonicity
// For any capability c and levels L1 < L2, if L1 holds c then L2 holds c.
func TestProperty_LevelMonotonicity(t *testing.T) {
	tables := DefaultTables()
	lr := NewLevelResolver(tables)

	rapid.Check(t, func(rt *rapid.T) {
		c := capabilityGenerator(tables).Draw(rt, "capability")
		l1 := rapid.IntRange(-5, 50).Draw(rt, "l1")
		l2 := rapid.IntRange(l1+1, 60).Draw(rt, "l2")

		if lr.HasCapability(l1, c) && !lr.HasCapability(l2, c) {
			rt.Fatalf("HasCapability(%d, %s) is true but HasCapability(%d, %s) is false", l1, c, l2, c)
		}
	})
}

// Feature: access-core, Property 2: Admin Floor
// For any stored level k, an admin's effective level is at least 7.
func TestProperty_AdminFloor(t *testing.T) {
	lr := NewLevelResolver(DefaultTables())

	rapid.Check(t, func(rt *rapid.T) {
		k := rapid.Int().Draw(rt, "level")
		if got := lr.EffectiveLevel(models.Admin{ID: "a", Level: k}); got < AdminTierLevel {
			rt.Fatalf("EffectiveLevel(admin, %d) = %d, want >= %d", k, got, AdminTierLevel)
		}
	})
}

// Feature: access-core, Property 3: Client Zero
// A client's effective level is 0 whatever level the record carries.
func TestProperty_ClientZero(t *testing.T) {
	lr := NewLevelResolver(DefaultTables())

	rapid.Check(t, func(rt *rapid.T) {
		k := rapid.Int().Draw(rt, "level")
		u, err := models.UserRecord{ID: "c", Role: "client", Level: &k}.ToUser()
		if err != nil {
			rt.Fatalf("ToUser failed: %v", err)
		}
		if got := lr.EffectiveLevel(u); got != 0 {
			rt.Fatalf("EffectiveLevel(client, %d) = %d, want 0", k, got)
		}
	})
}

// Feature: access-core, Property 4: Contractor Floor
// A contractor's effective level is never below 1 and equals the stored
// level when that is positive.
func TestProperty_ContractorFloor(t *testing.T) {
	lr := NewLevelResolver(DefaultTables())

	rapid.Check(t, func(rt *rapid.T) {
		k := rapid.IntRange(-100, 100).Draw(rt, "level")
		got := lr.EffectiveLevel(models.Contractor{ID: "k", Level: k})
		if got < 1 {
			rt.Fatalf("EffectiveLevel(contractor, %d) = %d, want >= 1", k, got)
		}
		if k >= 1 && got != k {
			rt.Fatalf("EffectiveLevel(contractor, %d) = %d, want %d", k, got, k)
		}
	})
}

// Feature: access-core, Property 5: Fail-Closed Lookups
// Keys absent from the tables are never granted to any role or level.
// No table key starts with x_.
func TestProperty_FailClosed(t *testing.T) {
	tables := DefaultTables()
	rr := NewRoleResolver(tables)
	lr := NewLevelResolver(tables)

	rapid.Check(t, func(rt *rapid.T) {
		key := "x_" + rapid.StringMatching(`[a-z_]{1,20}`).Draw(rt, "key")
		role := roleGenerator().Draw(rt, "role")
		level := rapid.Int().Draw(rt, "level")

		if rr.HasPermission(role, key) {
			rt.Fatalf("HasPermission(%s, %q) = true for unknown key", role, key)
		}
		if lr.HasCapability(level, key) {
			rt.Fatalf("HasCapability(%d, %q) = true for unknown key", level, key)
		}
	})
}

// Feature: access-core, Property 6: Validation Agrees With The Graph
// Any (from, to, role) accepted by ValidateTransition is an edge of the
// graph whose role list contains role; anything else is rejected with the
// matching kind.
func TestProperty_ValidateTransitionAgreesWithTables(t *testing.T) {
	tables := DefaultTables()
	sm := NewStateMachine(tables)

	rapid.Check(t, func(rt *rapid.T) {
		from := statusGenerator().Draw(rt, "from")
		to := statusGenerator().Draw(rt, "to")
		role := roleGenerator().Draw(rt, "role")

		got := sm.ValidateTransition(from, to, role)
		e := Edge{From: from, To: to}
		switch {
		case !slices.Contains(tables.Transitions(from), to):
			if got.Allowed || got.Reason != KindInvalidTransition {
				rt.Fatalf("%s by %s: got {%v %q}, want InvalidTransition", e, role, got.Allowed, got.Reason)
			}
		case !slices.Contains(tables.TransitionRoles(e), role):
			if got.Allowed || got.Reason != KindUnauthorized {
				rt.Fatalf("%s by %s: got {%v %q}, want Unauthorized", e, role, got.Allowed, got.Reason)
			}
		default:
			if !got.Allowed || got.Reason != "" {
				rt.Fatalf("%s by %s: got {%v %q}, want allowed", e, role, got.Allowed, got.Reason)
			}
		}
	})
}
