package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

var (
	checkRole  string
	checkLevel int
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run pre-flight access checks",
	Long: `Answer a single access question against the loaded policy.

Checks never change anything. Unknown roles, statuses, permissions and
capabilities are always answered with the most restrictive outcome.`,
}

var checkTransitionCmd = &cobra.Command{
	Use:   "transition <from> <to>",
	Short: "Check whether a role may move a task between two statuses",
	Long: `Check whether a task in status <from> may be moved to <to> by a user
with --role (and, for contractors and admins, --level).

The result is "allowed" or the rejection reason: InvalidTransition when the
edge does not exist, Unauthorized when the role or level may not take it.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Machine == nil {
			return fmt.Errorf("state machine not initialized")
		}

		from, to := models.TaskStatus(args[0]), models.TaskStatus(args[1])
		user, err := userFromFlags("cli", checkRole, checkLevel)
		if err != nil {
			return err
		}

		result := Machine.ValidateUserTransition(from, to, user)
		if result.Allowed {
			fmt.Printf("allowed: %s -> %s as %s\n", from, to, user.Role())
			return nil
		}
		fmt.Printf("rejected: %s (%s -> %s as %s)\n", result.Reason, from, to, user.Role())

		if next := Machine.AvailableTransitions(from, user.Role()); len(next) > 0 {
			fmt.Printf("  %s may move %s tasks to:", user.Role(), from)
			for _, s := range next {
				fmt.Printf(" %s", s)
			}
			fmt.Println()
		}
		return nil
	},
}

var checkPermissionCmd = &cobra.Command{
	Use:   "permission <role> <permission>",
	Short: "Check whether a role holds a permission",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Roles == nil {
			return fmt.Errorf("role resolver not initialized")
		}

		role, err := models.ParseRole(args[0])
		if err != nil {
			fmt.Printf("denied: %s\n", err)
			return nil
		}
		if Roles.HasPermission(role, args[1]) {
			fmt.Printf("allowed: %s holds %s\n", role, args[1])
		} else {
			fmt.Printf("denied: %s does not hold %s\n", role, args[1])
		}
		return nil
	},
}

var checkCapabilityCmd = &cobra.Command{
	Use:   "capability <level> <capability>",
	Short: "Check whether an effective level unlocks a capability",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Levels == nil || Tables == nil {
			return fmt.Errorf("level resolver not initialized")
		}

		level, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid level %q: %w", args[0], err)
		}

		key := args[1]
		required, known := Tables.CapabilityLevel(key)
		switch {
		case !known:
			fmt.Printf("denied: unknown capability %s\n", key)
		case Levels.HasCapability(level, key):
			fmt.Printf("allowed: level %d unlocks %s (requires %d)\n", level, key, required)
		default:
			fmt.Printf("denied: %s requires level %d, have %d\n", key, required, level)
		}
		return nil
	},
}

// userFromFlags builds the acting user from --role and --level flags.
func userFromFlags(id, role string, level int) (models.User, error) {
	r, err := models.ParseRole(role)
	if err != nil {
		return nil, err
	}
	if level < 0 {
		return nil, fmt.Errorf("level must not be negative, got %d", level)
	}
	return models.NewUser(id, r, level)
}

func init() {
	checkTransitionCmd.Flags().StringVar(&checkRole, "role", "", "Role of the acting user (client, contractor, admin)")
	checkTransitionCmd.Flags().IntVar(&checkLevel, "level", 0, "Stored level of the acting user (contractor and admin only)")
	_ = checkTransitionCmd.MarkFlagRequired("role")

	checkCmd.AddCommand(checkTransitionCmd)
	checkCmd.AddCommand(checkPermissionCmd)
	checkCmd.AddCommand(checkCapabilityCmd)
	rootCmd.AddCommand(checkCmd)
}
