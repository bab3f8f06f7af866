package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tacklebox-studio/tacklebox/internal/core"
	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

var (
	guardRole          string
	guardLevel         int
	guardID            string
	guardLoading       bool
	guardAnonymous     bool
	guardRequireRoles  []string
	guardMinLevel      int
	guardMatch         string
	guardResourceLabel string
)

var guardCmd = &cobra.Command{
	Use:   "guard",
	Short: "Evaluate a route guard for a session",
	Long: `Evaluate what a protected view renders for a session.

The session is described with --role/--level for a signed-in user,
--anonymous for a signed-out visitor or --loading while the session is
still resolving. The guard is described with --require-role (repeatable),
--min-level and --match (all or any).

The decision is one of loading, redirect, denied or allow. Denials and
redirects are recorded in the event log.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Levels == nil {
			return fmt.Errorf("level resolver not initialized")
		}

		req := core.Requirement{
			Name:     guardResourceLabel,
			MinLevel: guardMinLevel,
			Match:    core.Match(guardMatch),
		}
		for _, r := range guardRequireRoles {
			role, err := models.ParseRole(r)
			if err != nil {
				return fmt.Errorf("--require-role: %w", err)
			}
			req.Roles = append(req.Roles, role)
		}

		guard, err := core.NewGuard(req, Levels, Events)
		if err != nil {
			return err
		}

		session, err := guardSession()
		if err != nil {
			return err
		}

		fmt.Println(guard.Evaluate(session))
		return nil
	},
}

func guardSession() (models.Session, error) {
	switch {
	case guardLoading:
		return models.LoadingSession(), nil
	case guardAnonymous || guardRole == "":
		return models.AnonymousSession(), nil
	}
	user, err := userFromFlags(guardID, guardRole, guardLevel)
	if err != nil {
		return models.Session{}, err
	}
	return models.AuthenticatedSession(user), nil
}

func init() {
	guardCmd.Flags().StringVar(&guardRole, "role", "", "Role of the signed-in user")
	guardCmd.Flags().IntVar(&guardLevel, "level", 0, "Stored level of the signed-in user")
	guardCmd.Flags().StringVar(&guardID, "user", "cli", "ID of the signed-in user, recorded in the event log")
	guardCmd.Flags().BoolVar(&guardLoading, "loading", false, "The session is still resolving")
	guardCmd.Flags().BoolVar(&guardAnonymous, "anonymous", false, "No user is signed in")
	guardCmd.Flags().StringSliceVar(&guardRequireRoles, "require-role", nil, "Role allowed by the guard (repeatable)")
	guardCmd.Flags().IntVar(&guardMinLevel, "min-level", 0, "Minimum effective level required by the guard")
	guardCmd.Flags().StringVar(&guardMatch, "match", string(core.MatchAll), "How roles and level combine: all or any")
	guardCmd.Flags().StringVar(&guardResourceLabel, "resource", "cli", "Name of the protected resource, recorded in the event log")
	guardCmd.MarkFlagsMutuallyExclusive("loading", "anonymous")
	rootCmd.AddCommand(guardCmd)
}
