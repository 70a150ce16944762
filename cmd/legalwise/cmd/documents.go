package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/legalwise/internal/mcp"
	"github.com/Aman-CERP/legalwise/internal/output"
)

func newDocumentsCmd(root *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List ingested documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDocuments(cmd.Context(), cmd, root, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runDocuments(ctx context.Context, cmd *cobra.Command, root *rootOptions, format string) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	a, err := openApp(ctx, root)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	docs, err := mcp.ListDocuments(ctx, a.store)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if format == formatJSON {
		return out.JSON(docs)
	}

	if len(docs.Documents) == 0 {
		out.Warning("No documents ingested. Run 'legalwise ingest <pages.json>' first")
		return nil
	}
	out.Headingf("%d documents, %d chunks", len(docs.Documents), docs.TotalChunks)
	for _, d := range docs.Documents {
		out.KeyValue(d.Name, fmt.Sprintf("%d chunks, %d pages", d.Chunks, d.Pages))
	}
	return nil
}
