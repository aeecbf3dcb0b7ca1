package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/store"
)

// NewIngestCmd constructs the `docqa ingest` command, which uploads local
// files and remote documents to a running server.
func NewIngestCmd() *cobra.Command {
	var server string
	var urls []string
	var wait bool
	var waitTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Upload documents to a running docqa server",
		Long: `Upload PDF or text documents to a running docqa server.

Files are read from disk; --url fetches a document over HTTP first. The
server accepts the batch immediately and ingests it in the background. Use
--wait to block until every document is ready or has failed.

A document uploaded under a name that already exists replaces the old one.

Examples:
  docqa ingest report.pdf notes.txt
  docqa ingest --wait handbook.pdf
  docqa ingest --url https://example.com/whitepaper.pdf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if len(args) == 0 && len(urls) == 0 {
				return fmt.Errorf("ingest: at least one file or --url is required")
			}

			uploads, err := readUploads(args)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			if len(urls) > 0 {
				maxSize := int64(getEnvInt("DOCQA_MAX_FILE_SIZE_MB", 0)) << 20
				if maxSize <= 0 {
					maxSize = ingestion.DefaultMaxFileSize
				}
				fetcher := ingestion.NewFetcher(ingestion.DefaultHTTPTimeout, ingestion.DefaultUserAgent, maxSize)
				for _, u := range urls {
					up, err := fetcher.Fetch(ctx, u)
					if err != nil {
						return fmt.Errorf("ingest: %w", err)
					}
					log.Info("fetched document", slog.String("url", u), slog.String("document", up.Name), slog.Int("bytes", len(up.Data)))
					uploads = append(uploads, up)
				}
			}

			c, err := newClient(server)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			acc, err := c.Upload(ctx, uploads)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			fmt.Fprintf(os.Stdout, "%s\ntask: %s\n", acc.Message, acc.TaskID)

			if !wait {
				return nil
			}

			waitCtx, cancel := context.WithTimeout(ctx, waitTimeout)
			defer cancel()
			task, err := c.WaitTask(waitCtx, acc.TaskID)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			failed := 0
			for _, d := range task.Documents {
				printStatus(d)
				if d.State != store.StateReady {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("ingest: %d of %d documents did not become ready", failed, len(task.Documents))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "docqa server URL (default: DOCQA_SERVER or http://127.0.0.1:8080)")
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "Document URL to fetch and upload (repeatable)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait until every document is ready or has failed")
	cmd.Flags().DurationVar(&waitTimeout, "wait-timeout", 10*time.Minute, "Maximum time to wait with --wait")

	return cmd
}

// printStatus writes one document status line to stdout.
func printStatus(d store.DocumentStatus) {
	line := fmt.Sprintf("%-40s %-11s", d.DocumentID, d.State)
	if d.Chunks > 0 {
		line += fmt.Sprintf(" chunks=%d", d.Chunks)
	}
	if d.Error != "" {
		line += " error=" + d.Error
	}
	fmt.Fprintln(os.Stdout, line)
	if a := d.Attempt; a != nil {
		attempt := fmt.Sprintf("  newer upload: %s", a.State)
		if a.Error != "" {
			attempt += " error=" + a.Error
		}
		fmt.Fprintln(os.Stdout, attempt)
	}
}
