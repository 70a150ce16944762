package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/legalwise/internal/ingest"
	"github.com/Aman-CERP/legalwise/internal/output"
)

type ingestOptions struct {
	document string
	appendTo bool
	wait     bool
	format   string
}

func newIngestCmd(root *rootOptions) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <pages.json>",
		Short: "Chunk and store the extracted pages of a document",
		Long: `Ingest reads extracted page text (JSON, or YAML by extension), splits it
into overlapping chunks, embeds them, and stores them.

By default the store is replaced by this document. With --append only
chunks previously ingested under the same document name are replaced.

Examples:
  legalwise ingest lease.json
  legalwise ingest nda.yaml --document "NDA 2024" --append`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, root, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.document, "document", "d", "", "Document name (default: from the file)")
	cmd.Flags().BoolVarP(&opts.appendTo, "append", "a", false, "Keep other documents in the store")
	cmd.Flags().BoolVar(&opts.wait, "wait", false, "Wait for a concurrent ingestion instead of failing")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, root *rootOptions, path string, opts ingestOptions) error {
	if err := validateFormat(opts.format); err != nil {
		return err
	}

	pf, err := ingest.LoadPages(path)
	if err != nil {
		return err
	}
	document := pf.Document
	if opts.document != "" {
		document = opts.document
	}

	a, err := openApp(ctx, root)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ingester, err := a.ingester()
	if err != nil {
		return err
	}

	slog.Info("ingest_started", slog.String("document", document), slog.String("path", path))
	res, err := ingester.Ingest(ctx, document, pf.Pages, ingest.Options{Append: opts.appendTo, Wait: opts.wait})
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.format == formatJSON {
		return out.JSON(res)
	}

	out.Successf("Ingested %s", res.Document)
	out.KeyValue("Pages", fmt.Sprintf("%d (%d empty)", res.Pages, res.EmptyPages))
	out.KeyValue("Chunks", res.Chunks)
	if res.Removed > 0 {
		out.KeyValue("Replaced", res.Removed)
	}
	out.KeyValue("Store total", res.Total)
	out.KeyValue("Duration", res.Duration.Round(time.Millisecond))
	return nil
}
