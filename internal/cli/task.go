package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tacklebox-studio/tacklebox/internal/storage"
	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Drive sandbox tasks through the workflow",
	Long: `Create, list and move tasks in the local sandbox file (sandbox_file in
.tacklebox.yaml).

Status changes go through the same pre-flight checks as the real task API:
a move that the acting role or level may not make is rejected and the
sandbox is left unchanged.`,
}

var (
	taskCreateTitle    string
	taskCreateClient   string
	taskCreatePriority string
	taskCreateCategory string
	taskCreateProject  string

	taskListStatus     []string
	taskListContractor string
	taskListClient     string
	taskListJSON       bool

	taskActorID    string
	taskActorRole  string
	taskActorLevel int

	taskAssignContractor string
)

var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Submit a new sandbox task",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskStore == nil {
			return fmt.Errorf("task store not initialized")
		}

		task, err := TaskStore.CreateTask(commandContext(cmd), storage.NewTask{
			Title:     taskCreateTitle,
			Priority:  models.Priority(taskCreatePriority),
			ClientID:  taskCreateClient,
			Category:  taskCreateCategory,
			ProjectID: taskCreateProject,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Created task %s\n", task.ID)
		printTask(task)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sandbox tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskStore == nil {
			return fmt.Errorf("task store not initialized")
		}

		filter := storage.TaskFilter{
			ContractorID: taskListContractor,
			ClientID:     taskListClient,
		}
		for _, s := range taskListStatus {
			status := models.TaskStatus(s)
			if !status.IsValid() {
				return fmt.Errorf("unknown status %q", s)
			}
			filter.Status = append(filter.Status, status)
		}

		tasks, err := TaskStore.ListTasks(commandContext(cmd), filter)
		if err != nil {
			return err
		}

		if taskListJSON {
			if tasks == nil {
				tasks = []models.Task{}
			}
			data, err := json.MarshalIndent(tasks, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting tasks as JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks found.")
			return nil
		}
		fmt.Printf("%-36s  %-12s  %-8s  %s\n", "ID", "STATUS", "PRIORITY", "TITLE")
		for _, t := range tasks {
			fmt.Printf("%-36s  %-12s  %-8s  %s\n", t.ID, t.Status, t.Priority, t.Title)
		}
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a sandbox task and the moves open to a role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if TaskStore == nil {
			return fmt.Errorf("task store not initialized")
		}

		task, err := TaskStore.GetTask(commandContext(cmd), args[0])
		if err != nil {
			return err
		}
		printTask(task)

		if Machine != nil && taskActorRole != "" {
			role, err := models.ParseRole(taskActorRole)
			if err != nil {
				return err
			}
			next := Machine.AvailableTransitions(task.Status, role)
			fmt.Printf("  %-10s", "Next:")
			if len(next) == 0 {
				fmt.Print(" none")
			}
			for _, s := range next {
				fmt.Printf(" %s", s)
			}
			fmt.Println()
		}
		return nil
	},
}

var taskMoveCmd = &cobra.Command{
	Use:   "move <task-id> <status>",
	Short: "Move a sandbox task to a new status",
	Long: `Move a sandbox task to a new status as the user given by --as, --role
and --level. The move is validated first; a rejected move prints the reason
and leaves the task unchanged.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Transitioner == nil {
			return fmt.Errorf("task transitioner not initialized")
		}

		user, err := userFromFlags(taskActorID, taskActorRole, taskActorLevel)
		if err != nil {
			return err
		}

		task, err := Transitioner.Transition(commandContext(cmd), user, args[0], models.TaskStatus(args[1]))
		if err != nil {
			return err
		}
		fmt.Printf("Task %s is now %s\n", task.ID, task.Status)
		return nil
	},
}

var taskAssignCmd = &cobra.Command{
	Use:   "assign <task-id>",
	Short: "Assign a submitted sandbox task to a contractor",
	Long: `Move a submitted task to assigned as the acting user and record the
contractor given by --contractor. Under the default policy only admins
may assign.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Transitioner == nil {
			return fmt.Errorf("task store not initialized")
		}

		user, err := userFromFlags(taskActorID, taskActorRole, taskActorLevel)
		if err != nil {
			return err
		}

		if taskAssignContractor == "" {
			return fmt.Errorf("--contractor is required")
		}

		task, err := Transitioner.Assign(commandContext(cmd), user, args[0], taskAssignContractor)
		if err != nil {
			return err
		}
		fmt.Printf("Task %s assigned to %s\n", task.ID, task.ContractorID)
		return nil
	},
}

func printTask(task *models.Task) {
	fmt.Printf("  %-10s %s\n", "Title:", task.Title)
	fmt.Printf("  %-10s %s (%s)\n", "Status:", task.Status.Label(), task.Status)
	fmt.Printf("  %-10s %s\n", "Priority:", task.Priority.Label())
	fmt.Printf("  %-10s %s\n", "Client:", task.ClientID)
	if task.ContractorID != "" {
		fmt.Printf("  %-10s %s\n", "Assignee:", task.ContractorID)
	}
	if task.Category != "" {
		fmt.Printf("  %-10s %s\n", "Category:", task.Category)
	}
	if task.ProjectID != "" {
		fmt.Printf("  %-10s %s\n", "Project:", task.ProjectID)
	}
}

func addActorFlags(cmd *cobra.Command, required bool) {
	cmd.Flags().StringVar(&taskActorID, "as", "cli", "ID of the acting user")
	cmd.Flags().StringVar(&taskActorRole, "role", "", "Role of the acting user (client, contractor, admin)")
	cmd.Flags().IntVar(&taskActorLevel, "level", 0, "Stored level of the acting user")
	if required {
		_ = cmd.MarkFlagRequired("role")
	}
}

func init() {
	taskCreateCmd.Flags().StringVar(&taskCreateTitle, "title", "", "Task title")
	taskCreateCmd.Flags().StringVar(&taskCreateClient, "client", "", "ID of the client who owns the task")
	taskCreateCmd.Flags().StringVar(&taskCreatePriority, "priority", string(models.PriorityMedium), "Priority (low, medium, high, urgent)")
	taskCreateCmd.Flags().StringVar(&taskCreateCategory, "category", "", "Work category")
	taskCreateCmd.Flags().StringVar(&taskCreateProject, "project", "", "Project ID")
	_ = taskCreateCmd.MarkFlagRequired("title")
	_ = taskCreateCmd.MarkFlagRequired("client")

	taskListCmd.Flags().StringSliceVar(&taskListStatus, "status", nil, "Only tasks in these statuses")
	taskListCmd.Flags().StringVar(&taskListContractor, "contractor", "", "Only tasks assigned to this contractor")
	taskListCmd.Flags().StringVar(&taskListClient, "client", "", "Only tasks owned by this client")
	taskListCmd.Flags().BoolVar(&taskListJSON, "json", false, "Output tasks as JSON")

	addActorFlags(taskShowCmd, false)
	addActorFlags(taskMoveCmd, true)
	addActorFlags(taskAssignCmd, true)
	taskAssignCmd.Flags().StringVar(&taskAssignContractor, "contractor", "", "ID of the contractor to assign")

	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskMoveCmd)
	taskCmd.AddCommand(taskAssignCmd)
	rootCmd.AddCommand(taskCmd)
}
