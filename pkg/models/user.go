package models

import (
	"fmt"
	"strings"
)

// Role identifies which permission set and authorization model applies to
// a user. It is fixed at creation.
type Role string

const (
	RoleClient     Role = "client"
	RoleContractor Role = "contractor"
	RoleAdmin      Role = "admin"
)

// AllRoles lists every role.
var AllRoles = []Role{RoleClient, RoleContractor, RoleAdmin}

var roleLabels = map[Role]string{
	RoleClient:     "Client",
	RoleContractor: "Camper",
	RoleAdmin:      "Admin",
}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	_, ok := roleLabels[r]
	return ok
}

// Label returns the product name of the role.
func (r Role) Label() string {
	if l, ok := roleLabels[r]; ok {
		return l
	}
	return string(r)
}

// ParseRole converts a role string to a Role. Matching is case-insensitive
// and "camper" is accepted as the product term for contractor.
func ParseRole(s string) (Role, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if normalized == "camper" {
		return RoleContractor, nil
	}
	r := Role(normalized)
	if !r.IsValid() {
		return "", fmt.Errorf("unknown role %q: must be one of client, contractor, admin", s)
	}
	return r, nil
}

// User is a closed set of user variants: Client, Contractor and Admin.
// Only Contractor and Admin carry a stored level.
type User interface {
	UserID() string
	Role() Role
	isUser()
}

// Client submits tasks. The level model does not apply to clients.
type Client struct {
	ID string
}

// Contractor completes tasks. Level drives progressive capabilities;
// zero means the level was never set.
type Contractor struct {
	ID    string
	Level int
}

// Admin manages the platform. Level is stored for backward compatibility
// but admins always resolve to at least the top tier.
type Admin struct {
	ID    string
	Level int
}

func (c Client) UserID() string { return c.ID }
func (c Client) Role() Role     { return RoleClient }
func (Client) isUser()          {}

func (c Contractor) UserID() string { return c.ID }
func (c Contractor) Role() Role     { return RoleContractor }
func (Contractor) isUser()          {}

func (a Admin) UserID() string { return a.ID }
func (a Admin) Role() Role     { return RoleAdmin }
func (Admin) isUser()          {}

// UserRecord is the untyped user shape delivered by the identity provider.
type UserRecord struct {
	ID    string `json:"id" yaml:"id"`
	Role  string `json:"role" yaml:"role"`
	Level *int   `json:"level,omitempty" yaml:"level,omitempty"`
}

// ToUser converts the record into its typed variant. Unknown roles are
// rejected; a level on a client record is ignored.
func (r UserRecord) ToUser() (User, error) {
	role, err := ParseRole(r.Role)
	if err != nil {
		return nil, fmt.Errorf("converting user %q: %w", r.ID, err)
	}
	level := 0
	if r.Level != nil {
		level = *r.Level
	}
	switch role {
	case RoleContractor:
		return Contractor{ID: r.ID, Level: level}, nil
	case RoleAdmin:
		return Admin{ID: r.ID, Level: level}, nil
	default:
		return Client{ID: r.ID}, nil
	}
}

// RecordFromUser converts a typed user back into its wire shape.
func RecordFromUser(u User) UserRecord {
	rec := UserRecord{ID: u.UserID(), Role: string(u.Role())}
	if level, ok := StoredLevel(u); ok {
		rec.Level = &level
	}
	return rec
}

// NewUser builds the variant for role with the given stored level.
func NewUser(id string, role Role, level int) (User, error) {
	return UserRecord{ID: id, Role: string(role), Level: &level}.ToUser()
}

// StoredLevel returns the stored level for variants that carry one. The
// boolean is false for clients and for unset (zero) levels.
func StoredLevel(u User) (int, bool) {
	switch v := u.(type) {
	case Contractor:
		return v.Level, v.Level != 0
	case Admin:
		return v.Level, v.Level != 0
	default:
		return 0, false
	}
}
