package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/legalwise/internal/output"
)

func newClearCmd(root *rootOptions) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every stored chunk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClear(cmd.Context(), cmd, root, wait)
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for a concurrent ingestion instead of failing")

	return cmd
}

func runClear(ctx context.Context, cmd *cobra.Command, root *rootOptions, wait bool) error {
	a, err := openApp(ctx, root)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ingester, err := a.ingester()
	if err != nil {
		return err
	}
	removed, err := ingester.Clear(ctx, wait)
	if err != nil {
		return err
	}

	output.New(cmd.OutOrStdout()).Successf("Removed %d chunks", removed)
	return nil
}
