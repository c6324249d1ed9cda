// Package cli implements the stitchkb command-line interface.
//
// This package provides commands for stitching artifact call-graph documents
// into the metadata store, either one-shot from a file or continuously from
// the message broker. The CLI is built using cobra and supports verbose
// logging via the charmbracelet/log library.
//
// # Commands
//
// The main commands are:
//   - stitch: Persist one call-graph document and print its compact graph
//   - worker: Consume documents from the broker until interrupted
//   - completion: Generate shell completion scripts
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. Loggers are
// passed through context.Context to allow structured progress tracking.
package cli

import (
	"context"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/stitchkb/stitchkb/pkg/buildinfo"
)

// Execute runs the stitchkb CLI and returns an error if any command fails.
// This is the main entry point for the CLI application.
//
// Logging:
//   - Default: info level (logs to stderr)
//   - With --verbose (-v): debug level
//
// The logger is attached to the context and accessible to all commands via
// loggerFromContext.
func Execute() error {
	var verbose bool

	root := &cobra.Command{
		Use:          "stitchkb",
		Short:        "stitchkb stitches call graphs into the shared knowledge base",
		Long:         `stitchkb ingests per-artifact call-graph documents, persists them into the shared metadata store under canonical identifiers, and emits compact graphs keyed by store-assigned global IDs.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newStitchCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newCompletionCmd())

	return root.ExecuteContext(context.Background())
}
