package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewDeleteCmd constructs the `docqa delete` command.
func NewDeleteCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "delete <document>...",
		Short: "Remove documents from the server",
		Long: `Remove one or more documents from the server's registry. Deleted
documents are no longer searched. An ingestion of the same name that is still
running when the delete lands is discarded.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(server)
			if err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			for _, id := range args {
				msg, err := c.Delete(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				fmt.Fprintln(os.Stdout, msg)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "docqa server URL (default: DOCQA_SERVER or http://127.0.0.1:8080)")

	return cmd
}
