// Package mcpserver exposes the paper-to-slides pipeline as MCP tools over
// stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"paperslides/internal/arxiv"
	"paperslides/internal/catalog"
	"paperslides/internal/logging"
	"paperslides/internal/manifest"
	"paperslides/internal/pipeline"
)

// Name and Version identify the server to MCP clients.
const (
	Name    = "paperslides"
	Version = "1.0.0"
)

// Searcher queries arXiv.
type Searcher interface {
	Search(ctx context.Context, q arxiv.Query) ([]arxiv.Paper, error)
}

// Processor runs one PDF through extraction and slide generation.
type Processor interface {
	Resolve(name string) string
	ProcessOne(ctx context.Context, pdfPath string) (*pipeline.Result, error)
}

// DeckGenerator turns a processed JSON file into a deck.
type DeckGenerator interface {
	GenerateFromFile(ctx context.Context, processedPath string) (string, error)
}

// Catalog lists what the pipeline has recorded.
type Catalog interface {
	Papers(ctx context.Context) ([]catalog.PaperRecord, error)
	Decks(ctx context.Context, source string) ([]catalog.DeckRecord, error)
	Runs(ctx context.Context, limit int) ([]catalog.RunRecord, error)
	Stats(ctx context.Context) (catalog.Stats, error)
}

// Deps wires the tools to the pipeline. Nil fields disable the matching
// tools.
type Deps struct {
	Searcher     Searcher
	Processor    Processor
	Generator    DeckGenerator
	Catalog      Catalog
	ProcessedDir string
	// Manifest is the requirements file checked by check_manifest; empty
	// checks the embedded default.
	Manifest string
}

// Server holds the MCP server and its dependencies.
type Server struct {
	deps Deps
	mcp  *server.MCPServer
}

// New builds a server with every tool whose dependency is present.
func New(deps Deps) *Server {
	s := &Server{
		deps: deps,
		mcp: server.NewMCPServer(Name, Version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
			server.WithLogging(),
		),
	}

	if deps.Searcher != nil {
		s.mcp.AddTool(mcp.NewTool("search_arxiv",
			mcp.WithDescription("Search arXiv and return matching papers as JSON."),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("query", mcp.Required(), mcp.Description("arXiv search query, e.g. ti:\"RAG\"")),
			mcp.WithNumber("max_results", mcp.DefaultNumber(10), mcp.Min(1), mcp.Max(100)),
		), s.handleSearch)
	}
	if deps.Processor != nil {
		s.mcp.AddTool(mcp.NewTool("process_paper",
			mcp.WithDescription("Extract a PDF from the raw directory and generate its slide deck."),
			mcp.WithString("pdf", mcp.Required(), mcp.Description("PDF file name in the raw directory, or a path")),
		), s.handleProcess)
	}
	if deps.Generator != nil {
		s.mcp.AddTool(mcp.NewTool("generate_slides",
			mcp.WithDescription("Generate a slide deck from a processed paper JSON file."),
			mcp.WithString("processed", mcp.Required(), mcp.Description("processed JSON file name or path")),
		), s.handleGenerate)
	}
	if deps.Catalog != nil {
		s.mcp.AddTool(mcp.NewTool("list_catalog",
			mcp.WithDescription("List catalogued papers, decks, runs or row counts."),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("kind", mcp.DefaultString("stats"), mcp.Enum("papers", "decks", "runs", "stats")),
			mcp.WithString("source", mcp.Description("restrict decks to this source PDF")),
			mcp.WithNumber("limit", mcp.DefaultNumber(20)),
		), s.handleCatalog)
	}
	s.mcp.AddTool(mcp.NewTool("check_manifest",
		mcp.WithDescription("Validate the Python requirements manifest used for finetuning."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("path", mcp.Description("requirements file; defaults to the configured manifest")),
	), s.handleManifest)

	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio serves until stdin closes.
func (s *Server) ServeStdio() error {
	logging.Get(logging.CategoryMCP).Info("Serving MCP over stdio")
	return server.ServeStdio(s.mcp)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	max := req.GetInt("max_results", 10)
	logging.Get(logging.CategoryMCP).Info("search_arxiv %q (max %d)", query, max)

	papers, err := s.deps.Searcher.Search(ctx, arxiv.Query{SearchQuery: query, MaxResults: max})
	if err != nil {
		return mcp.NewToolResultErrorFromErr("search failed", err), nil
	}
	type hit struct {
		ID        string   `json:"id"`
		Title     string   `json:"title"`
		Authors   []string `json:"authors"`
		Published string   `json:"published"`
		PDFURL    string   `json:"pdf_url"`
	}
	hits := make([]hit, 0, len(papers))
	for _, p := range papers {
		hits = append(hits, hit{
			ID:        p.ShortID,
			Title:     p.Title,
			Authors:   p.Authors,
			Published: p.Published.Format("2006-01-02"),
			PDFURL:    p.PDFURL,
		})
	}
	return jsonResult(hits)
}

func (s *Server) handleProcess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("pdf")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	logging.Get(logging.CategoryMCP).Info("process_paper %s", name)

	res, err := s.deps.Processor.ProcessOne(ctx, s.deps.Processor.Resolve(name))
	if err != nil {
		return mcp.NewToolResultErrorFromErr("processing failed", err), nil
	}
	return jsonResult(res)
}

func (s *Server) handleGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("processed")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path := name
	if s.deps.ProcessedDir != "" && !filepath.IsAbs(name) && !strings.ContainsRune(name, filepath.Separator) {
		path = filepath.Join(s.deps.ProcessedDir, name)
	}
	logging.Get(logging.CategoryMCP).Info("generate_slides %s", path)

	deck, err := s.deps.Generator.GenerateFromFile(ctx, path)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("slide generation failed", err), nil
	}
	return mcp.NewToolResultText(deck), nil
}

func (s *Server) handleCatalog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind := req.GetString("kind", "stats")
	var (
		v   any
		err error
	)
	switch kind {
	case "papers":
		v, err = s.deps.Catalog.Papers(ctx)
	case "decks":
		v, err = s.deps.Catalog.Decks(ctx, req.GetString("source", ""))
	case "runs":
		v, err = s.deps.Catalog.Runs(ctx, req.GetInt("limit", 20))
	case "stats":
		v, err = s.deps.Catalog.Stats(ctx)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown kind %q", kind)), nil
	}
	if err != nil {
		return mcp.NewToolResultErrorFromErr("catalog query failed", err), nil
	}
	return jsonResult(v)
}

func (s *Server) handleManifest(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", s.deps.Manifest)

	m := manifest.Default()
	if path != "" {
		var err error
		if m, err = manifest.ParseFile(path); err != nil {
			return mcp.NewToolResultErrorFromErr("cannot read manifest", err), nil
		}
	}
	issues := m.Validate(manifest.DefaultValidateOptions())
	if len(issues) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("ok: %d requirements", len(m.Requirements()))), nil
	}
	lines := make([]string, 0, len(issues))
	for _, is := range issues {
		lines = append(lines, is.String())
	}
	return mcp.NewToolResultError(strings.Join(lines, "\n")), nil
}
