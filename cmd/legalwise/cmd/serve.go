package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/legalwise/internal/api"
	"github.com/Aman-CERP/legalwise/internal/mcp"
	"github.com/Aman-CERP/legalwise/internal/telemetry"
)

type serveOptions struct {
	http bool
	addr string
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve retrieval over MCP (stdio) or HTTP",
		Long: `Serve exposes retrieval to assistants.

Over stdio (default) it speaks MCP on stdin/stdout and nothing else is
written there. With --http it serves the REST API, Prometheus metrics, and
MCP's streamable HTTP transport at /mcp.

The sqlite backend is loaded into memory at startup. Documents ingested or
cleared by another legalwise process are not seen until the server is
restarted. The qdrant backend is read live.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.http, "http", false, "Serve HTTP instead of stdio")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (default from config)")

	return cmd
}

func runServe(ctx context.Context, root *rootOptions, opts serveOptions) error {
	a, err := openApp(ctx, root)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	metrics := telemetry.NewMetrics()
	engine, err := a.engine(ctx, metrics)
	if err != nil {
		return err
	}
	if size, err := a.store.Size(ctx); err == nil {
		metrics.SetStoreSize(size)
	}

	threshold := a.cfg.Retrieval.FallbackThreshold
	srv, err := mcp.NewServer(engine, a.store,
		mcp.WithMetrics(metrics),
		mcp.WithFallbackThreshold(threshold))
	if err != nil {
		return err
	}

	transport := a.cfg.Server.Transport
	if opts.http {
		transport = "http"
	}

	switch transport {
	case "stdio":
		slog.Info("serve_stdio")
		return srv.Run(ctx)

	case "http":
		addr := a.cfg.Server.HTTPAddr
		if opts.addr != "" {
			addr = opts.addr
		}
		handler, err := api.NewRouter(&api.Deps{
			Retriever:         engine,
			Store:             a.store,
			Encoder:           a.encoder,
			Metrics:           metrics,
			MCP:               srv.HTTPHandler(),
			FallbackThreshold: threshold,
		})
		if err != nil {
			return err
		}
		return api.Serve(ctx, addr, handler)

	default:
		return fmt.Errorf("unknown transport %q", transport)
	}
}
