// Package cmd provides the CLI commands for LegalWise.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
	"github.com/Aman-CERP/legalwise/internal/logging"
	"github.com/Aman-CERP/legalwise/pkg/version"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	// dir is the project directory holding .legalwise.yaml and .legalwise/.
	dir   string
	debug bool

	loggingCleanup func()
}

// NewRootCmd creates the root command for the legalwise CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "legalwise",
		Short: "Hybrid retrieval for legal document question answering",
		Long: `LegalWise retrieves the passages of ingested legal documents that best
answer a question.

Small corpora are returned whole, questions that name pages are answered from
those pages, and everything else goes through dense + BM25 search, reciprocal
rank fusion, and cross-encoder re-ranking.

Serve it to an assistant over MCP with 'legalwise serve'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("legalwise version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.dir, "dir", ".", "Project directory")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to ~/.legalwise/logs/")

	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return opts.startLogging()
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		opts.stopLogging()
		return nil
	}

	cmd.AddCommand(newIngestCmd(opts))
	cmd.AddCommand(newRetrieveCmd(opts))
	cmd.AddCommand(newDocumentsCmd(opts))
	cmd.AddCommand(newClearCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newInitCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging sends logs to the rotating file only. Stdout belongs to
// command output, and to JSON-RPC when serving over stdio.
func (o *rootOptions) startLogging() error {
	level := "info"
	if o.debug {
		level = "debug"
	}
	cleanup, err := logging.SetupDefault(logging.StdioConfig(level))
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	o.loggingCleanup = cleanup
	if o.debug {
		slog.Info("debug_logging_enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}
	return nil
}

func (o *rootOptions) stopLogging() {
	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprint(os.Stderr, lwerrors.FormatForCLI(err))
	}
	return err
}
