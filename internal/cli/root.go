package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = &cobra.Command{
	Use:   "tbx",
	Short: "TackleBox access core - task workflow and permission checks",
	Long: `tbx inspects and exercises the TackleBox access core: the task status
workflow, the role permission table and the level capability model.

It answers pre-flight questions (may this user move this task, hold this
permission, see this page), validates and renders workflow policies, drives a
local sandbox of tasks through the state machine, and serves the same checks
over HTTP and MCP.`,
	SilenceUsage: true,
}

var completionsOnce sync.Once

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tbx %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// commandContext returns the command's context, or a background context
// when the command is run outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// Execute runs the root command.
func Execute() error {
	completionsOnce.Do(registerCompletions)
	return rootCmd.Execute()
}
