package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/docrag/internal/index"
	"github.com/Aman-CERP/docrag/internal/query"
	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/pkg/version"
)

const (
	// maxLimit caps the passages one search call returns.
	maxLimit = 50

	toolSearch = "search"
	toolAsk    = "ask"
	toolStatus = "index_status"
)

// Planner answers questions. *query.Planner implements it.
type Planner interface {
	Retrieve(ctx context.Context, question string, k int, minScore float64) ([]store.ScoredRecord, error)
	Answer(ctx context.Context, question string) (*query.Answer, error)
}

// Counter reports how many passages are stored. Every store.VectorStore
// implements it.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Status is the static part of index_status, taken from configuration.
type Status struct {
	Store             string
	EmbeddingProvider string
	EmbeddingModel    string
	Dimensions        int
	CompletionModel   string
	K                 int
	MinScore          float64
}

// Dependencies are the collaborators a Server needs. Store may be nil.
type Dependencies struct {
	Planner Planner
	Store   Counter
	Status  Status
	Logger  *slog.Logger
}

// Server is the docrag MCP server.
type Server struct {
	mcp     *mcp.Server
	planner Planner
	store   Counter
	status  Status
	logger  *slog.Logger
}

// NewServer creates a server and registers its tools.
func NewServer(name string, deps Dependencies) (*Server, error) {
	if deps.Planner == nil {
		return nil, stderrors.New("planner is required")
	}
	if name == "" {
		name = "docrag"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		planner: deps.Planner,
		store:   deps.Store,
		status:  deps.Status,
		logger:  logger,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    name,
			Version: version.Version,
		}, nil),
	}
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolSearch,
		Description: "Find passages in the ingested documents that are semantically closest to a question. Returns ranked passages with their source document and similarity score, without generating an answer.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolAsk,
		Description: "Answer a question using only the ingested documents. Retrieves the most relevant passages and asks the configured language model to answer from them. Returns grounded=false with a refusal when nothing relevant was found.",
	}, s.handleAsk)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolStatus,
		Description: "Report whether documents have been ingested and which embedding and completion models are in use.",
	}, s.handleIndexStatus)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 3))
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}
	minScore := 0.0
	if input.MinScore != nil {
		if *input.MinScore < 0 || *input.MinScore > 1 {
			return nil, SearchOutput{}, NewInvalidParamsError("min_score must be between 0 and 1")
		}
		minScore = *input.MinScore
		if minScore == 0 {
			// An explicit zero keeps everything; the planner reads 0 as "use the default".
			minScore = -1
		}
	}

	requestID := generateRequestID()
	start := time.Now()
	hits, err := s.planner.Retrieve(ctx, input.Query, clampLimit(input.Limit, 0, maxLimit), minScore)
	if err != nil {
		s.logger.Warn("mcp_search_failed", slog.String("request_id", requestID), slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	out := SearchOutput{Results: passages(hits), Count: len(hits)}
	s.logger.Info("mcp_search",
		slog.String("request_id", requestID),
		slog.Int("results", out.Count),
		slog.Duration("duration", time.Since(start)))

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatSearchResults(input.Query, out.Results)}},
	}, out, nil
}

func (s *Server) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (
	*mcp.CallToolResult,
	AskOutput,
	error,
) {
	if strings.TrimSpace(input.Question) == "" {
		return nil, AskOutput{}, NewInvalidParamsError("question parameter is required")
	}

	requestID := generateRequestID()
	start := time.Now()
	ans, err := s.planner.Answer(ctx, input.Question)
	if err != nil {
		s.logger.Warn("mcp_ask_failed", slog.String("request_id", requestID), slog.String("error", err.Error()))
		return nil, AskOutput{}, MapError(err)
	}

	out := AskOutput{
		Answer:      ans.Text,
		Grounded:    ans.Grounded,
		Sources:     passages(ans.Sources),
		TotalTokens: ans.Usage.TotalTokens,
	}
	s.logger.Info("mcp_ask",
		slog.String("request_id", requestID),
		slog.Bool("grounded", out.Grounded),
		slog.Int("sources", len(out.Sources)),
		slog.Duration("duration", time.Since(start)))

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatAnswer(out)}},
	}, out, nil
}

func (s *Server) handleIndexStatus(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	out := IndexStatusOutput{
		Store: s.status.Store,
		Embeddings: EmbeddingInfo{
			Provider:   s.status.EmbeddingProvider,
			Model:      s.status.EmbeddingModel,
			Dimensions: s.status.Dimensions,
		},
		Completion: s.status.CompletionModel,
		RetrievalK: s.status.K,
		MinScore:   s.status.MinScore,
	}
	if s.store != nil {
		n, err := s.store.Count(ctx)
		if err != nil {
			out.ServerError = err.Error()
		} else {
			out.Records = n
			out.Ready = n > 0
		}
	}
	return nil, out, nil
}

// Serve runs the server on transport until ctx is cancelled. addr is used
// by the http transport only.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("mcp_server_starting",
		slog.String("transport", transport),
		slog.String("addr", addr))

	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !stderrors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	case "http":
		return s.serveHTTP(ctx, addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, http)", transport)
	}
}

func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	err := httpServer.ListenAndServe()
	if stderrors.Is(err, http.ErrServerClosed) {
		s.logger.Info("mcp_server_stopped")
		return nil
	}
	return err
}

func passages(hits []store.ScoredRecord) []PassageOutput {
	out := make([]PassageOutput, 0, len(hits))
	for _, h := range hits {
		src, ord := index.Citation(h.Record)
		out = append(out, PassageOutput{Source: src, Ordinal: ord, Score: h.Score, Text: h.Text})
	}
	return out
}

// clampLimit returns 0 (the planner default) for non-positive limits.
func clampLimit(limit, def, max int) int {
	switch {
	case limit <= 0:
		return def
	case limit > max:
		return max
	default:
		return limit
	}
}

// generateRequestID creates a short id for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
