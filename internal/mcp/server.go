package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/legalwise/internal/rag"
	"github.com/Aman-CERP/legalwise/internal/search"
	"github.com/Aman-CERP/legalwise/internal/store"
	"github.com/Aman-CERP/legalwise/internal/telemetry"
	"github.com/Aman-CERP/legalwise/pkg/version"
)

// ServerName is the MCP implementation name.
const ServerName = "legalwise"

// QueryMetricsURI is the URI of the query telemetry resource.
const QueryMetricsURI = "legalwise://query_metrics"

// Retriever runs one retrieval. *search.Engine satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (*search.Retrieval, error)
}

// Server is the MCP server for legalwise. It exposes retrieval to AI
// clients as tools.
type Server struct {
	mcp               *mcp.Server
	retriever         Retriever
	store             store.ChunkStore
	metrics           *telemetry.Metrics
	fallbackThreshold float64
	logger            *slog.Logger
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithMetrics registers the query_metrics resource backed by m.
func WithMetrics(m *telemetry.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithFallbackThreshold sets the confidence floor reported as needs_fallback.
func WithFallbackThreshold(threshold float64) ServerOption {
	return func(s *Server) {
		s.fallbackThreshold = threshold
	}
}

// NewServer creates a new MCP server.
func NewServer(retriever Retriever, st store.ChunkStore, opts ...ServerOption) (*Server, error) {
	if retriever == nil {
		return nil, ErrMissingRetriever
	}
	if st == nil {
		return nil, ErrMissingStore
	}

	s := &Server{
		retriever:         retriever,
		store:             st,
		fallbackThreshold: rag.DefaultFallbackThreshold,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	if s.metrics != nil {
		s.registerQueryMetricsResource()
	}
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// HTTPHandler serves the MCP streamable HTTP transport.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.mcp
	}, nil)
}

// Run serves MCP over stdio until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "retrieve",
		Description: "Retrieve the passages of the uploaded legal documents that answer a question. " +
			"Questions naming pages (\"page 7\", \"pages 3 to 5\") return those pages verbatim. " +
			"Small documents are returned in full. Otherwise semantic and keyword search are fused and re-ranked.",
	}, s.handleRetrieve)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_documents",
		Description: "List the uploaded documents with their chunk and page counts.",
	}, s.handleListDocuments)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 2))
}

// handleRetrieve is the MCP SDK handler for the retrieve tool.
func (s *Server) handleRetrieve(ctx context.Context, _ *mcp.CallToolRequest, input RetrieveInput) (
	*mcp.CallToolResult,
	RetrieveOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, RetrieveOutput{}, NewInvalidParamsError("query parameter is required")
	}

	requestID := generateRequestID()
	ret, err := s.retriever.Retrieve(ctx, input.Query)
	if err != nil {
		s.logger.Warn("mcp_retrieve_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, RetrieveOutput{}, MapError(err)
	}

	output := ToRetrieveOutput(ret, s.fallbackThreshold)
	if input.IncludeContext {
		output.Context = rag.BuildContext(ret.Results)
	}

	s.logger.Debug("mcp_retrieve_complete",
		slog.String("request_id", requestID),
		slog.String("mode", output.Mode),
		slog.Int("results", len(output.Results)))
	return nil, output, nil
}

// handleListDocuments is the MCP SDK handler for the list_documents tool.
func (s *Server) handleListDocuments(ctx context.Context, _ *mcp.CallToolRequest, _ ListDocumentsInput) (
	*mcp.CallToolResult,
	ListDocumentsOutput,
	error,
) {
	docs, err := ListDocuments(ctx, s.store)
	if err != nil {
		return nil, ListDocumentsOutput{}, MapError(err)
	}
	return nil, docs, nil
}

// ListDocuments summarizes the documents in st.
func ListDocuments(ctx context.Context, st store.ChunkStore) (ListDocumentsOutput, error) {
	names, err := st.Documents(ctx)
	if err != nil {
		return ListDocumentsOutput{}, err
	}

	out := ListDocumentsOutput{Documents: make([]DocumentOutput, 0, len(names))}
	for _, name := range names {
		chunks, err := st.ChunksByDocument(ctx, name)
		if err != nil {
			return ListDocumentsOutput{}, err
		}
		pages := make(map[int]struct{})
		for _, c := range chunks {
			pages[c.Metadata.Page] = struct{}{}
		}
		out.Documents = append(out.Documents, DocumentOutput{Name: name, Chunks: len(chunks), Pages: len(pages)})
		out.TotalChunks += len(chunks)
	}
	return out, nil
}

// ToRetrieveOutput converts a retrieval to the tool output format.
func ToRetrieveOutput(ret *search.Retrieval, fallbackThreshold float64) RetrieveOutput {
	out := RetrieveOutput{
		Mode:          string(ret.Mode),
		Pages:         ret.Pages,
		Results:       make([]ResultOutput, 0, len(ret.Results)),
		Citations:     rag.Citations(ret.Results),
		MaxScore:      ret.MaxScore(),
		NeedsFallback: rag.NeedsFallback(ret.Results, fallbackThreshold),
		DurationMs:    ret.Duration.Milliseconds(),
	}
	for i, r := range ret.Results {
		out.Results = append(out.Results, ResultOutput{
			Rank:        i + 1,
			Kind:        r.Kind.String(),
			Document:    r.Chunk.Metadata.Document,
			Page:        r.Chunk.Metadata.Page,
			ChunkIndex:  r.Chunk.Metadata.ChunkIndex,
			Score:       r.Score,
			Text:        r.Chunk.Text,
			InBothLists: r.Fusion != nil && r.Fusion.InBothLists,
		})
	}
	return out
}

// registerQueryMetricsResource registers the query_metrics resource.
func (s *Server) registerQueryMetricsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_metrics",
			URI:         QueryMetricsURI,
			Description: "Retrieval telemetry: mode mix, latency, frequent terms, zero-result questions",
			MIMEType:    "application/json",
		},
		s.handleQueryMetrics,
	)
}

func (s *Server) handleQueryMetrics(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(ToQueryMetricsOutput(s.metrics.Snapshot()), "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      QueryMetricsURI,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}, nil
}

// ToQueryMetricsOutput converts a telemetry snapshot to the resource format.
func ToQueryMetricsOutput(snap telemetry.QueryLogSnapshot) QueryMetricsOutput {
	out := QueryMetricsOutput{
		TotalQueries:        snap.Total,
		Failures:            snap.Failures,
		ModeCounts:          make(map[string]int64, len(snap.ModeCounts)),
		LatencyDistribution: make(map[string]int64, len(snap.LatencyDistribution)),
		TopTerms:            make([]TermCount, 0, len(snap.TopTerms)),
		ZeroResultQueries:   snap.ZeroResultQueries,
		Since:               snap.Since.Format(time.RFC3339),
	}
	for mode, n := range snap.ModeCounts {
		out.ModeCounts[mode] = n
	}
	for bucket, n := range snap.LatencyDistribution {
		out.LatencyDistribution[string(bucket)] = n
	}
	for _, tc := range snap.TopTerms {
		out.TopTerms = append(out.TopTerms, TermCount{Term: tc.Term, Count: tc.Count})
	}
	if out.ZeroResultQueries == nil {
		out.ZeroResultQueries = []string{}
	}
	return out
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

