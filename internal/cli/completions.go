package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tacklebox-studio/tacklebox/internal/storage"
	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

// completeTaskIDs returns a completion function that lists sandbox task
// IDs, optionally filtered to exclude certain statuses.
func completeTaskIDs(excludeStatuses ...models.TaskStatus) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if TaskStore == nil || len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		tasks, err := TaskStore.ListTasks(context.Background(), storage.TaskFilter{})
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		exclude := make(map[models.TaskStatus]bool)
		for _, s := range excludeStatuses {
			exclude[s] = true
		}

		var ids []string
		for _, task := range tasks {
			if exclude[task.Status] {
				continue
			}
			if toComplete == "" || strings.HasPrefix(task.ID, toComplete) {
				ids = append(ids, task.ID+"\t"+string(task.Status)+": "+task.Title)
			}
		}
		return ids, cobra.ShellCompDirectiveNoFileComp
	}
}

func completeStatuses(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	out := make([]string, 0, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		out = append(out, string(s)+"\t"+s.Label())
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

func completeRoles(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	out := make([]string, 0, len(models.AllRoles))
	for _, r := range models.AllRoles {
		out = append(out, string(r)+"\t"+r.Label())
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

func completePriorities(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	out := make([]string, 0, len(models.AllPriorities))
	for _, p := range models.AllPriorities {
		out = append(out, string(p)+"\t"+p.Label())
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

func completePermissionKeys(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	if Tables == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return Tables.PermissionKeys(), cobra.ShellCompDirectiveNoFileComp
}

func completeCapabilityKeys(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	if Tables == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return Tables.CapabilityKeys(), cobra.ShellCompDirectiveNoFileComp
}

// positional completes each positional argument with its own function.
func positional(fns ...cobra.CompletionFunc) cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) >= len(fns) {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return fns[len(args)](cmd, nil, toComplete)
	}
}

// registerCompletions attaches completion functions once every command
// has registered its flags.
func registerCompletions() {
	for _, cmd := range []*cobra.Command{checkTransitionCmd, taskShowCmd, taskMoveCmd, taskAssignCmd, levelCmd, tokenIssueCmd, guardCmd} {
		_ = cmd.RegisterFlagCompletionFunc("role", completeRoles)
	}
	_ = guardCmd.RegisterFlagCompletionFunc("require-role", completeRoles)
	_ = taskCreateCmd.RegisterFlagCompletionFunc("priority", completePriorities)
	_ = taskListCmd.RegisterFlagCompletionFunc("status", completeStatuses)

	checkTransitionCmd.ValidArgsFunction = positional(completeStatuses, completeStatuses)
	checkPermissionCmd.ValidArgsFunction = positional(completeRoles, completePermissionKeys)
	checkCapabilityCmd.ValidArgsFunction = positional(cobra.NoFileCompletions, completeCapabilityKeys)
	permissionsCmd.ValidArgsFunction = positional(completeRoles)
	taskShowCmd.ValidArgsFunction = completeTaskIDs()
	taskAssignCmd.ValidArgsFunction = completeTaskIDs(models.StatusClosed, models.StatusCancelled)
	taskMoveCmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return completeTaskIDs(models.StatusClosed, models.StatusCancelled)(cmd, args, toComplete)
		}
		if len(args) == 1 {
			return completeStatuses(cmd, args, toComplete)
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
}
