package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/legalwise/internal/mcp"
	"github.com/Aman-CERP/legalwise/internal/output"
	"github.com/Aman-CERP/legalwise/internal/rag"
)

type retrieveOptions struct {
	format      string
	withContext bool
}

func newRetrieveCmd(root *rootOptions) *cobra.Command {
	var opts retrieveOptions

	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Retrieve the passages that answer a question",
		Long: `Retrieve runs one question through the retrieval pipeline and prints the
passages an answering model would be given.

Examples:
  legalwise retrieve "What are the termination conditions?"
  legalwise retrieve "summarize page 7" --context
  legalwise retrieve "arbitration clause" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetrieve(cmd.Context(), cmd, root, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVarP(&opts.withContext, "context", "c", false, "Print the numbered context block")

	return cmd
}

func runRetrieve(ctx context.Context, cmd *cobra.Command, root *rootOptions, query string, opts retrieveOptions) error {
	if err := validateFormat(opts.format); err != nil {
		return err
	}

	a, err := openApp(ctx, root)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	engine, err := a.engine(ctx, nil)
	if err != nil {
		return err
	}

	ret, err := engine.Retrieve(ctx, query)
	if err != nil {
		return err
	}
	slog.Info("retrieve_complete",
		slog.String("mode", string(ret.Mode)),
		slog.Int("results", len(ret.Results)))

	result := mcp.ToRetrieveOutput(ret, a.cfg.Retrieval.FallbackThreshold)
	if opts.withContext {
		result.Context = rag.BuildContext(ret.Results)
	}

	out := output.New(cmd.OutOrStdout())
	if opts.format == formatJSON {
		return out.JSON(result)
	}
	printRetrieval(out, result)
	return nil
}

func printRetrieval(out *output.Writer, result mcp.RetrieveOutput) {
	mode := result.Mode
	if len(result.Pages) > 0 {
		mode = fmt.Sprintf("%s (pages %s)", mode, joinInts(result.Pages))
	}
	out.Headingf("%d results", len(result.Results))
	out.KeyValue("Mode", mode)
	out.KeyValue("Duration", fmt.Sprintf("%dms", result.DurationMs))
	out.Newline()

	if len(result.Results) == 0 {
		out.Warning("No passages found")
		return
	}

	for _, r := range result.Results {
		out.Statusf(fmt.Sprintf("%2d.", r.Rank), "[%.4f] %s, page %d, chunk %d", r.Score, r.Document, r.Page, r.ChunkIndex)
		out.Dim(preview(r.Text, 160))
	}

	if result.NeedsFallback {
		out.Newline()
		out.Warningf("Best score %.4f is below the confidence threshold", result.MaxScore)
	}

	if result.Context != "" {
		out.Newline()
		out.Heading("Context")
		out.Block(result.Context)
	}
}

func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ", ")
}
