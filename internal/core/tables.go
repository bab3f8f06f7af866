package core

import (
	"fmt"
	"sort"

	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

// AdminTierLevel is the effective level that marks the top capability tier.
// Admins are always resolved to at least this level.
const AdminTierLevel = 7

// Edge identifies a transition in the status graph.
type Edge struct {
	From models.TaskStatus
	To   models.TaskStatus
}

// String renders the edge as "from->to".
func (e Edge) String() string {
	return string(e.From) + "->" + string(e.To)
}

// Tables is the immutable set of workflow and permission tables. It is
// built once with NewTables or DefaultTables and shared by pointer between
// the resolvers; none of its methods mutate it and every slice returned is
// a copy, so a *Tables is safe for concurrent use.
type Tables struct {
	edges        []Edge
	transitions  map[models.TaskStatus][]models.TaskStatus
	edgeRoles    map[Edge][]models.Role
	edgeCaps     map[Edge]string
	permissions  map[string][]models.Role
	capabilities map[string]int
	levelTitles  map[int]string
}

// NewTables validates the policy and builds the lookup tables from it.
func NewTables(policy models.PolicyFile) (*Tables, error) {
	if err := ValidatePolicy(policy); err != nil {
		return nil, err
	}

	t := &Tables{
		transitions:  make(map[models.TaskStatus][]models.TaskStatus, len(models.AllStatuses)),
		edgeRoles:    make(map[Edge][]models.Role, len(policy.Transitions)),
		edgeCaps:     make(map[Edge]string),
		permissions:  make(map[string][]models.Role, len(policy.Permissions)),
		capabilities: make(map[string]int, len(policy.Capabilities)),
		levelTitles:  make(map[int]string, len(policy.LevelTitles)),
	}

	for _, s := range models.AllStatuses {
		t.transitions[s] = []models.TaskStatus{}
	}
	for _, rule := range policy.Transitions {
		e := Edge{From: rule.From, To: rule.To}
		t.edges = append(t.edges, e)
		t.transitions[rule.From] = append(t.transitions[rule.From], rule.To)
		t.edgeRoles[e] = append([]models.Role(nil), rule.Roles...)
		if rule.Capability != "" {
			t.edgeCaps[e] = rule.Capability
		}
	}
	for key, roles := range policy.Permissions {
		t.permissions[key] = append([]models.Role(nil), roles...)
	}
	for key, level := range policy.Capabilities {
		t.capabilities[key] = level
	}
	for level, title := range policy.LevelTitles {
		t.levelTitles[level] = title
	}

	return t, nil
}

// DefaultTables returns the tables built from DefaultPolicy. It panics if
// the built-in policy is invalid, which is a programming error.
func DefaultTables() *Tables {
	t, err := NewTables(DefaultPolicy())
	if err != nil {
		panic(fmt.Sprintf("built-in policy is invalid: %v", err))
	}
	return t
}

// Transitions returns the statuses reachable in one step from the given
// status. Terminal statuses return an empty slice; unknown statuses nil.
func (t *Tables) Transitions(from models.TaskStatus) []models.TaskStatus {
	targets, ok := t.transitions[from]
	if !ok {
		return nil
	}
	return append([]models.TaskStatus{}, targets...)
}

// HasEdge reports whether the edge exists in the status graph.
func (t *Tables) HasEdge(e Edge) bool {
	_, ok := t.edgeRoles[e]
	return ok
}

// TransitionRoles returns the roles allowed to execute the edge, or nil
// when the edge does not exist.
func (t *Tables) TransitionRoles(e Edge) []models.Role {
	roles, ok := t.edgeRoles[e]
	if !ok {
		return nil
	}
	return append([]models.Role(nil), roles...)
}

// EdgeCapability returns the capability levelled actors need for the edge.
func (t *Tables) EdgeCapability(e Edge) (string, bool) {
	c, ok := t.edgeCaps[e]
	return c, ok
}

// Edges returns every edge in declaration order.
func (t *Tables) Edges() []Edge {
	return append([]Edge(nil), t.edges...)
}

// PermissionRoles returns the roles granted the permission, or nil for an
// unknown key.
func (t *Tables) PermissionRoles(key string) []models.Role {
	roles, ok := t.permissions[key]
	if !ok {
		return nil
	}
	return append([]models.Role(nil), roles...)
}

// PermissionKeys returns every permission key, sorted.
func (t *Tables) PermissionKeys() []string {
	keys := make([]string, 0, len(t.permissions))
	for k := range t.permissions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CapabilityLevel returns the minimum level for a capability.
func (t *Tables) CapabilityLevel(key string) (int, bool) {
	l, ok := t.capabilities[key]
	return l, ok
}

// CapabilityKeys returns every capability key ordered by required level,
// then name.
func (t *Tables) CapabilityKeys() []string {
	keys := make([]string, 0, len(t.capabilities))
	for k := range t.capabilities {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		li, lj := t.capabilities[keys[i]], t.capabilities[keys[j]]
		if li != lj {
			return li < lj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// LevelTitle returns the tier name for a level. Levels above the highest
// titled level keep that title; levels below 1 have no title.
func (t *Tables) LevelTitle(level int) string {
	if level < 1 {
		return ""
	}
	best, bestLevel := "", 0
	for l, title := range t.levelTitles {
		if l <= level && l > bestLevel {
			best, bestLevel = title, l
		}
	}
	return best
}

// Policy converts the tables back into their serialized form.
func (t *Tables) Policy() models.PolicyFile {
	pf := models.PolicyFile{
		Version:      PolicyVersion,
		Permissions:  make(map[string][]models.Role, len(t.permissions)),
		Capabilities: make(map[string]int, len(t.capabilities)),
		LevelTitles:  make(map[int]string, len(t.levelTitles)),
	}
	for _, e := range t.edges {
		pf.Transitions = append(pf.Transitions, models.TransitionRule{
			From:       e.From,
			To:         e.To,
			Roles:      t.TransitionRoles(e),
			Capability: t.edgeCaps[e],
		})
	}
	for k, v := range t.permissions {
		pf.Permissions[k] = append([]models.Role(nil), v...)
	}
	for k, v := range t.capabilities {
		pf.Capabilities[k] = v
	}
	for k, v := range t.levelTitles {
		pf.LevelTitles[k] = v
	}
	return pf
}
