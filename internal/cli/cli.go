package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	internal_http "github.com/Amine-Ecssr/event-management-system-sub004/internal/http"
	"github.com/Amine-Ecssr/event-management-system-sub004/internal/log"
	internal_storage "github.com/Amine-Ecssr/event-management-system-sub004/internal/storage"
	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/models"
	"github.com/Amine-Ecssr/event-management-system-sub004/pkg/service"
)

const dateLayout = "2006-01-02"

// SetupCLI registers the admin subcommands on the root command. Every command
// connects through the --db persistent flag.
func SetupCLI(rootCmd *cobra.Command) {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Run: func(cmd *cobra.Command, args []string) {
			port, _ := cmd.Flags().GetString("port")
			store := initStore(dbFlag(cmd))
			defer store.Close()

			dispatcher := service.NewDispatcher(service.NoopNotifier{}, log.GetLogger())
			dispatcher.Start(0)
			defer dispatcher.Stop()

			if err := internal_http.StartServer(port, store, dispatcher); err != nil {
				log.GetLogger().Errorf("Server failed: %v", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().String("port", "8080", "Port to listen on")

	templateCmd := &cobra.Command{Use: "template", Short: "Manage task templates"}
	templateCmd.AddCommand(templateCreateCmd(), templateListCmd())

	prereqCmd := &cobra.Command{Use: "prereq", Short: "Manage template prerequisites"}
	prereqCmd.AddCommand(prereqAddCmd(), prereqRemoveCmd())

	workflowCmd := &cobra.Command{Use: "workflow", Short: "Manage event workflows"}
	workflowCmd.AddCommand(workflowCreateCmd(), workflowGetCmd(), workflowDeleteCmd())

	taskCmd := &cobra.Command{Use: "task", Short: "Drive task status transitions"}
	taskCmd.AddCommand(taskTransitionCmd("start", models.InProgressTaskStatus),
		taskTransitionCmd("complete", models.CompletedTaskStatus),
		taskTransitionCmd("cancel", models.CancelledTaskStatus))

	rootCmd.AddCommand(serveCmd, templateCmd, prereqCmd, workflowCmd, taskCmd)
}

func templateCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [title]",
		Short: "Create a task template",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			departmentID, _ := cmd.Flags().GetInt64("department")
			defaultSelected, _ := cmd.Flags().GetBool("default")
			basis, _ := cmd.Flags().GetString("due-basis")
			offset, _ := cmd.Flags().GetInt("due-offset-days")

			store := initStore(dbFlag(cmd))
			defer store.Close()
			svc := service.NewTemplateService(store, log.GetLogger())

			created, err := svc.CreateTemplate(models.TaskTemplate{
				DepartmentID:    departmentID,
				Title:           args[0],
				DefaultSelected: defaultSelected,
				DueBasis:        models.DueBasis(basis),
				DueOffsetDays:   offset,
			})
			if err != nil {
				fail("create template", err)
			}
			fmt.Fprintf(os.Stdout, "Created template '%s' with ID %d\n", created.Title, created.ID)
		},
	}
	cmd.Flags().Int64("department", 0, "Owning department ID")
	cmd.Flags().Bool("default", false, "Pre-select this template during event creation")
	cmd.Flags().String("due-basis", string(models.EventStartBasis), "Due-date anchor: event_start or event_end")
	cmd.Flags().Int("due-offset-days", 0, "Signed day offset from the anchor")
	return cmd
}

func templateListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all task templates",
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(dbFlag(cmd))
			defer store.Close()
			svc := service.NewTemplateService(store, log.GetLogger())

			templates, err := svc.ListTemplates()
			if err != nil {
				fail("list templates", err)
			}
			if len(templates) == 0 {
				fmt.Fprintf(os.Stdout, "No templates found.\n")
				return
			}
			for _, t := range templates {
				marker := ""
				if t.DefaultSelected {
					marker = " [default]"
				}
				fmt.Fprintf(os.Stdout, "- ID: %d, Title: %s, Department: %d, Due: %s%+d days%s\n",
					t.ID, t.Title, t.DepartmentID, t.DueBasis, t.DueOffsetDays, marker)
			}
		},
	}
}

func prereqAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add [template-id] [prerequisite-id]",
		Short: "Add a prerequisite edge between two templates",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			templateID := parseID(args[0], "template-id")
			prerequisiteID := parseID(args[1], "prerequisite-id")

			store := initStore(dbFlag(cmd))
			defer store.Close()
			svc := service.NewTemplateService(store, log.GetLogger())

			if err := svc.AddPrerequisite(templateID, prerequisiteID); err != nil {
				fail("add prerequisite", err)
			}
			fmt.Fprintf(os.Stdout, "Template %d now requires template %d\n", templateID, prerequisiteID)
		},
	}
}

func prereqRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [template-id] [prerequisite-id]",
		Short: "Remove a prerequisite edge",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			templateID := parseID(args[0], "template-id")
			prerequisiteID := parseID(args[1], "prerequisite-id")

			store := initStore(dbFlag(cmd))
			defer store.Close()
			svc := service.NewTemplateService(store, log.GetLogger())

			if err := svc.RemovePrerequisite(templateID, prerequisiteID); err != nil {
				fail("remove prerequisite", err)
			}
			fmt.Fprintf(os.Stdout, "Template %d no longer requires template %d\n", templateID, prerequisiteID)
		},
	}
}

func workflowCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [event-id]",
		Short: "Instantiate a workflow for an event from selected templates",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			eventID := parseID(args[0], "event-id")
			startStr, _ := cmd.Flags().GetString("start")
			endStr, _ := cmd.Flags().GetString("end")
			templatesStr, _ := cmd.Flags().GetString("templates")
			includeDefaults, _ := cmd.Flags().GetBool("include-defaults")

			eventStart, err := time.Parse(dateLayout, startStr)
			if err != nil {
				fail("parse --start", err)
			}
			eventEnd, err := time.Parse(dateLayout, endStr)
			if err != nil {
				fail("parse --end", err)
			}

			var selected []int64
			if templatesStr != "" {
				for _, part := range strings.Split(templatesStr, ",") {
					selected = append(selected, parseID(strings.TrimSpace(part), "template id"))
				}
			}

			store := initStore(dbFlag(cmd))
			defer store.Close()
			logger := log.GetLogger()

			if includeDefaults {
				defaults, err := service.NewTemplateService(store, logger).DefaultSelection()
				if err != nil {
					fail("load default selection", err)
				}
				selected = append(selected, defaults...)
			}

			wf, err := service.NewWorkflowService(store, logger).InstantiateWorkflow(eventID, eventStart, eventEnd, selected)
			if err != nil {
				fail("create workflow", err)
			}
			fmt.Fprintf(os.Stdout, "Created workflow %d for event %d with %d tasks\n", wf.ID, eventID, len(wf.Tasks))
		},
	}
	cmd.Flags().String("start", "", "Event start date (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "Event end date (YYYY-MM-DD)")
	cmd.Flags().String("templates", "", "Comma-separated template IDs to select")
	cmd.Flags().Bool("include-defaults", false, "Also select every default-selected template")
	return cmd
}

func workflowGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [event-id]",
		Short: "Show an event's workflow with task statuses",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			eventID := parseID(args[0], "event-id")

			store := initStore(dbFlag(cmd))
			defer store.Close()
			svc := service.NewWorkflowService(store, log.GetLogger())

			wf, err := svc.GetWorkflow(eventID)
			if err != nil {
				fail("get workflow", err)
			}
			fmt.Fprintf(os.Stdout, "Workflow %d for event %d (created %s):\n", wf.ID, wf.EventID, wf.CreatedAt.Format(time.RFC3339))
			for _, task := range wf.Tasks {
				fmt.Fprintf(os.Stdout, "- Task %d: %s [%s] due %s (department %d)\n",
					task.ID, task.Title, task.Status, task.DueDate.Format(dateLayout), task.DepartmentID)
			}
			for _, dep := range wf.Dependencies {
				fmt.Fprintf(os.Stdout, "  task %d requires task %d\n", dep.TaskID, dep.PrerequisiteTaskID)
			}
		},
	}
}

func workflowDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [event-id]",
		Short: "Delete an event's workflow and all its tasks",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			eventID := parseID(args[0], "event-id")

			store := initStore(dbFlag(cmd))
			defer store.Close()
			svc := service.NewWorkflowService(store, log.GetLogger())

			if err := svc.DeleteWorkflow(eventID); err != nil {
				fail("delete workflow", err)
			}
			fmt.Fprintf(os.Stdout, "Deleted workflow for event %d\n", eventID)
		},
	}
}

func taskTransitionCmd(verb string, to models.TaskStatus) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " [task-id]",
		Short: fmt.Sprintf("Transition a task to %s", to),
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			taskID := parseID(args[0], "task-id")

			store := initStore(dbFlag(cmd))
			defer store.Close()
			svc := service.NewTaskService(store, log.GetLogger(), service.NoopNotifier{})

			if err := svc.TransitionTask(taskID, to); err != nil {
				fail(verb+" task", err)
			}
			fmt.Fprintf(os.Stdout, "Task %d is now %s\n", taskID, to)
		},
	}
}

func dbFlag(cmd *cobra.Command) string {
	dbConnStr, err := cmd.Flags().GetString("db")
	if err != nil {
		log.GetLogger().Errorf("Error retrieving db flag: %v", err)
		os.Exit(1)
	}
	return dbConnStr
}

func parseID(raw, name string) int64 {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid %s %q\n", name, raw)
		os.Exit(1)
	}
	return id
}

func fail(action string, err error) {
	log.GetLogger().Errorf("Failed to %s: %v", action, err)
	fmt.Fprintf(os.Stderr, "Error: failed to %s: %v\n", action, err)
	os.Exit(1)
}

func initStore(dbConnStr string) *internal_storage.PostgresStore {
	store, err := internal_storage.InitStore(dbConnStr)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	return store
}
