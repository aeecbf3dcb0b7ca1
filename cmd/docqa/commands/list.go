package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewListCmd constructs the `docqa list` command.
func NewListCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the documents that are ready to be searched",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(server)
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			docs, err := c.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			if len(docs) == 0 {
				fmt.Fprintln(os.Stdout, "no documents")
				return nil
			}
			for _, d := range docs {
				fmt.Fprintln(os.Stdout, d)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "docqa server URL (default: DOCQA_SERVER or http://127.0.0.1:8080)")

	return cmd
}
