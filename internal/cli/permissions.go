package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tacklebox-studio/tacklebox/internal/core"
	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

var (
	permissionsJSON bool

	levelRole  string
	levelValue int
	levelJSON  bool
)

var permissionsCmd = &cobra.Command{
	Use:   "permissions <role>",
	Short: "List the permissions held by a role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Roles == nil {
			return fmt.Errorf("role resolver not initialized")
		}

		role, err := models.ParseRole(args[0])
		if err != nil {
			return err
		}
		perms := Roles.Permissions(role)

		if permissionsJSON {
			data, err := json.MarshalIndent(map[string]any{"role": role, "permissions": perms}, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting permissions as JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("%s (%s): %d permission(s)\n", role.Label(), role, len(perms))
		for _, p := range perms {
			fmt.Printf("  %s\n", p)
		}
		return nil
	},
}

// levelReport is the resolved view of one user in the level model.
type levelReport struct {
	Role            models.Role `json:"role"`
	StoredLevel     int         `json:"stored_level"`
	EffectiveLevel  int         `json:"effective_level"`
	Title           string      `json:"title,omitempty"`
	AdminTier       bool        `json:"admin_tier"`
	Capabilities    []string    `json:"capabilities"`
	NextUnlockLevel int         `json:"next_unlock_level,omitempty"`
	NextUnlock      []string    `json:"next_unlock,omitempty"`
}

func buildLevelReport(levels *core.LevelResolver, user models.User) levelReport {
	stored, _ := models.StoredLevel(user)
	effective := levels.EffectiveLevel(user)
	r := levelReport{
		Role:           user.Role(),
		StoredLevel:    stored,
		EffectiveLevel: effective,
		AdminTier:      levels.IsAdminTier(user),
		Capabilities:   []string{},
	}
	if user.Role() == models.RoleClient {
		return r
	}
	r.Title = levels.Title(user)
	if caps := levels.Capabilities(effective); caps != nil {
		r.Capabilities = caps
	}
	if next, keys, ok := levels.NextUnlock(effective); ok {
		r.NextUnlockLevel = next
		r.NextUnlock = keys
	}
	return r
}

var levelCmd = &cobra.Command{
	Use:   "level",
	Short: "Resolve a user's effective level and capabilities",
	Long: `Resolve the effective level of a user with --role and --level, and list the
capabilities it unlocks and what the next level adds.

Clients are always level 0. Contractors are at least level 1. Admins are
always at least the top tier regardless of their stored level.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Levels == nil {
			return fmt.Errorf("level resolver not initialized")
		}

		user, err := userFromFlags("cli", levelRole, levelValue)
		if err != nil {
			return err
		}
		r := buildLevelReport(Levels, user)

		if levelJSON {
			data, err := json.MarshalIndent(r, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting level as JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("  %-18s %s\n", "Role:", r.Role.Label())
		fmt.Printf("  %-18s %d\n", "Effective level:", r.EffectiveLevel)
		if r.Title != "" {
			fmt.Printf("  %-18s %s\n", "Title:", r.Title)
		}
		fmt.Printf("  %-18s %t\n", "Admin tier:", r.AdminTier)
		if len(r.Capabilities) > 0 {
			fmt.Printf("  %-18s %s\n", "Capabilities:", strings.Join(r.Capabilities, ", "))
		}
		if r.NextUnlockLevel > 0 {
			fmt.Printf("  %-18s level %d: %s\n", "Next unlock:", r.NextUnlockLevel, strings.Join(r.NextUnlock, ", "))
		}
		return nil
	},
}

func init() {
	permissionsCmd.Flags().BoolVar(&permissionsJSON, "json", false, "Output permissions as JSON")
	rootCmd.AddCommand(permissionsCmd)

	levelCmd.Flags().StringVar(&levelRole, "role", "", "Role of the user (client, contractor, admin)")
	levelCmd.Flags().IntVar(&levelValue, "level", 0, "Stored level of the user")
	levelCmd.Flags().BoolVar(&levelJSON, "json", false, "Output as JSON")
	_ = levelCmd.MarkFlagRequired("role")
	rootCmd.AddCommand(levelCmd)
}
