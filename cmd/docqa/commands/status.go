package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewStatusCmd constructs the `docqa status` command, which reports
// ingestion progress for a document or a task.
func NewStatusCmd() *cobra.Command {
	var server string
	var taskID string

	cmd := &cobra.Command{
		Use:   "status [document]",
		Short: "Show the ingestion status of a document or task",
		Long: `Show the latest recorded ingestion state of a document, or with --task
the state of every document in an upload batch.

Examples:
  docqa status report.pdf
  docqa status --task 3f1c2a9e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (taskID == "") == (len(args) == 0) {
				return fmt.Errorf("status: give either a document name or --task")
			}
			c, err := newClient(server)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}

			if taskID != "" {
				task, err := c.Task(cmd.Context(), taskID)
				if err != nil {
					return fmt.Errorf("status: %w", err)
				}
				state := "running"
				if task.Done {
					state = "done"
				}
				fmt.Fprintf(os.Stdout, "task %s: %s\n", task.TaskID, state)
				for _, d := range task.Documents {
					printStatus(d)
				}
				return nil
			}

			st, err := c.DocumentStatus(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			printStatus(*st)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "docqa server URL (default: DOCQA_SERVER or http://127.0.0.1:8080)")
	cmd.Flags().StringVarP(&taskID, "task", "t", "", "Show every document in this ingestion task")

	return cmd
}
