package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tacklebox-studio/tacklebox/internal/core"
)

var policyGraphDot bool

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and validate workflow policies",
	Long: `Inspect the workflow and permission tables currently in effect, or
validate a policy file before pointing policy_file at it.`,
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the policy in effect as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Tables == nil {
			return fmt.Errorf("policy tables not initialized")
		}
		data, err := core.MarshalPolicy(Tables.Policy())
		if err != nil {
			return fmt.Errorf("encoding policy: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a policy file",
	Long: `Validate a policy file: every status must exist, no status may move to
itself, terminal statuses must have no exits, every edge must name known
roles and capabilities, and every terminal status must be reachable.

Without an argument the built-in default policy is validated.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			if err := core.ValidatePolicy(core.DefaultPolicy()); err != nil {
				return err
			}
			fmt.Println("default policy is valid")
			return nil
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading policy file: %w", err)
		}
		policy, err := core.ParsePolicy(data)
		if err != nil {
			return fmt.Errorf("parsing policy file %s: %w", args[0], err)
		}
		if err := core.ValidatePolicy(policy); err != nil {
			return err
		}
		fmt.Printf("%s is valid: %d transitions, %d permissions, %d capabilities\n",
			args[0], len(policy.Transitions), len(policy.Permissions), len(policy.Capabilities))
		return nil
	},
}

var policyGraphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the status graph",
	Long: `Print every edge of the status graph with the roles allowed to take it
and, where set, the capability levelled actors also need. Use --dot for
Graphviz output.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Tables == nil {
			return fmt.Errorf("policy tables not initialized")
		}
		if policyGraphDot {
			fmt.Print(renderDot(Tables))
			return nil
		}
		for _, e := range Tables.Edges() {
			fmt.Printf("  %-12s -> %-12s [%s]", e.From, e.To, joinRoles(Tables, e))
			if capKey, ok := Tables.EdgeCapability(e); ok {
				fmt.Printf(" requires %s", capKey)
			}
			fmt.Println()
		}
		return nil
	},
}

func joinRoles(t *core.Tables, e core.Edge) string {
	roles := t.TransitionRoles(e)
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ",")
}

func renderDot(t *core.Tables) string {
	var b strings.Builder
	b.WriteString("digraph workflow {\n  rankdir=LR;\n")
	for _, e := range t.Edges() {
		fmt.Fprintf(&b, "  %q -> %q [label=%q];\n", e.From, e.To, joinRoles(t, e))
	}
	b.WriteString("}\n")
	return b.String()
}

func init() {
	policyGraphCmd.Flags().BoolVar(&policyGraphDot, "dot", false, "Output Graphviz DOT")

	policyCmd.AddCommand(policyShowCmd)
	policyCmd.AddCommand(policyValidateCmd)
	policyCmd.AddCommand(policyGraphCmd)
	rootCmd.AddCommand(policyCmd)
}
