package core

import (
	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

// LevelResolver answers questions of the level (progressive unlock) model.
// It never consults the role-set permission table.
type LevelResolver struct {
	tables *Tables
}

// NewLevelResolver creates a LevelResolver over the given tables.
func NewLevelResolver(tables *Tables) *LevelResolver {
	return &LevelResolver{tables: tables}
}

// EffectiveLevel resolves the level used for every capability check:
// clients are 0, contractors their stored level (at least 1) and admins
// their stored level floored at AdminTierLevel. A nil user is 0.
func (lr *LevelResolver) EffectiveLevel(user models.User) int {
	switch u := user.(type) {
	case models.Contractor:
		return max(u.Level, 1)
	case models.Admin:
		return max(u.Level, 1, AdminTierLevel)
	default:
		return 0
	}
}

// HasCapability reports whether level meets the capability's minimum.
// Unknown capabilities are never granted.
func (lr *LevelResolver) HasCapability(level int, key string) bool {
	required, ok := lr.tables.CapabilityLevel(key)
	if !ok {
		return false
	}
	return level >= required
}

// IsAdminTier reports whether the user resolves to the top tier,
// independent of the literal role.
func (lr *LevelResolver) IsAdminTier(user models.User) bool {
	return lr.EffectiveLevel(user) >= AdminTierLevel
}

// Capabilities returns every capability unlocked at level, ordered by
// required level.
func (lr *LevelResolver) Capabilities(level int) []string {
	var keys []string
	for _, k := range lr.tables.CapabilityKeys() {
		if lr.HasCapability(level, k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// NextUnlock returns the lowest level above the given one that unlocks at
// least one capability, together with those capabilities. ok is false when
// nothing is left to unlock.
func (lr *LevelResolver) NextUnlock(level int) (next int, keys []string, ok bool) {
	for _, k := range lr.tables.CapabilityKeys() {
		required, _ := lr.tables.CapabilityLevel(k)
		if required <= level {
			continue
		}
		if next == 0 {
			next = required
		}
		if required != next {
			break
		}
		keys = append(keys, k)
	}
	return next, keys, next != 0
}

// Title returns the tier name for the user's effective level.
func (lr *LevelResolver) Title(user models.User) string {
	return lr.tables.LevelTitle(lr.EffectiveLevel(user))
}

// Capability returns a Checker that passes when the user's effective level
// unlocks the capability.
func (lr *LevelResolver) Capability(key string) Checker {
	return CheckerFunc(func(u models.User) bool {
		return lr.HasCapability(lr.EffectiveLevel(u), key)
	})
}

// AtLeast returns a Checker that passes when the user's effective level is
// at least minLevel.
func (lr *LevelResolver) AtLeast(minLevel int) Checker {
	return CheckerFunc(func(u models.User) bool {
		return u != nil && lr.EffectiveLevel(u) >= minLevel
	})
}
