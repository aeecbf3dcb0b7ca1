package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/agent"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// NewAskCmd constructs the `docqa ask` command, which answers a question
// from uploaded documents.
func NewAskCmd() *cobra.Command {
	var server string
	var documents []string
	var files []string
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about your documents",
		Long: `Ask a natural-language question. The answer uses only the content of the
searched documents.

By default the question is sent to a running docqa server and searches every
ready document, or only those named with --doc. With --file the documents
are ingested in-process and the question is answered without a server.

Examples:
  docqa ask "what is the refund policy?"
  docqa ask --doc handbook.pdf "how many vacation days do I get?"
  docqa ask --file report.pdf "summarise the key findings"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			question := strings.Join(args, " ")

			if len(files) == 0 {
				c, err := newClient(server)
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
				ans, err := c.Ask(ctx, question, documents)
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
				printAnswer(ans.Answer, ans.Sources, showSources)
				return nil
			}

			uploads, err := readUploads(files)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			k, err := buildKernel(ctx, log, kernelOptions{statusDB: memoryDB})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer k.close()

			task, err := k.pipeline.Submit(ctx, uploads)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			results, err := task.Wait(ctx)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			for _, r := range results {
				if r.State != store.StateReady {
					log.Warn("document not ingested", slog.String("document", r.DocumentID), slog.Any("error", r.Err))
				}
			}

			docAgent, err := agent.New(&agent.Config{ChatModel: chatModel, Retriever: k.retriever})
			if err != nil {
				return fmt.Errorf("ask: failed to initialise agent: %w", err)
			}
			ans, err := docAgent.Ask(ctx, rag.Query{Question: question, Documents: documents})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			printAnswer(ans.Text, ans.Sources, showSources)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "docqa server URL (default: DOCQA_SERVER or http://127.0.0.1:8080)")
	cmd.Flags().StringArrayVarP(&documents, "doc", "d", nil, "Restrict the search to this document (repeatable)")
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Ingest this file locally and answer without a server (repeatable)")
	cmd.Flags().BoolVar(&showSources, "sources", false, "Print the documents that contributed to the answer")

	return cmd
}

// printAnswer writes the answer, and optionally its sources, to stdout.
func printAnswer(answer string, sources []string, showSources bool) {
	fmt.Fprintln(os.Stdout, answer)
	if showSources && len(sources) > 0 {
		fmt.Fprintf(os.Stdout, "\nsources: %s\n", strings.Join(sources, ", "))
	}
}
