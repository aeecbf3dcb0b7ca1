// Command docqa is the entry point for the document question-answering
// service. It runs the HTTP server and provides CLI commands that upload
// documents to it and ask questions against them.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/docqa-go/cmd/docqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
