package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperslides/internal/arxiv"
	"paperslides/internal/catalog"
	"paperslides/internal/pipeline"
)

type fakeSearcher struct {
	got    arxiv.Query
	papers []arxiv.Paper
	err    error
}

func (f *fakeSearcher) Search(_ context.Context, q arxiv.Query) ([]arxiv.Paper, error) {
	f.got = q
	return f.papers, f.err
}

type fakeProcessor struct{ got string }

func (f *fakeProcessor) Resolve(name string) string { return filepath.Join("/raw", name) }

func (f *fakeProcessor) ProcessOne(_ context.Context, path string) (*pipeline.Result, error) {
	f.got = path
	if filepath.Base(path) == "missing.pdf" {
		return nil, &pipeline.MissingPDFError{Path: path, Available: []string{"a.pdf"}}
	}
	return &pipeline.Result{PDF: path, Processed: "/processed/a.json", Deck: "/slides/a_slides.md", Slides: 10}, nil
}

type fakeGenerator struct{ got string }

func (f *fakeGenerator) GenerateFromFile(_ context.Context, path string) (string, error) {
	f.got = path
	return "/slides/a_slides.md", nil
}

type fakeCatalog struct{}

func (fakeCatalog) Papers(context.Context) ([]catalog.PaperRecord, error) {
	return []catalog.PaperRecord{{ShortID: "2104.05740v1", Title: "DPR"}}, nil
}

func (fakeCatalog) Decks(_ context.Context, source string) ([]catalog.DeckRecord, error) {
	return []catalog.DeckRecord{{ID: "d1", SourceFile: source}}, nil
}

func (fakeCatalog) Runs(context.Context, int) ([]catalog.RunRecord, error) {
	return nil, errors.New("database is locked")
}

func (fakeCatalog) Stats(context.Context) (catalog.Stats, error) {
	return catalog.Stats{Papers: 3, Decks: 2}, nil
}

func call(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestSearchArxiv(t *testing.T) {
	fs := &fakeSearcher{papers: []arxiv.Paper{{
		ShortID:   "2005.11401v4",
		Title:     "Retrieval-Augmented Generation for Knowledge-Intensive NLP Tasks",
		Authors:   []string{"Patrick Lewis"},
		Published: time.Date(2020, 5, 22, 0, 0, 0, 0, time.UTC),
		PDFURL:    "http://arxiv.org/pdf/2005.11401v4",
	}}}
	s := New(Deps{Searcher: fs})

	res, err := s.handleSearch(context.Background(), call(map[string]any{"query": `ti:"RAG"`, "max_results": 5.0}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, arxiv.Query{SearchQuery: `ti:"RAG"`, MaxResults: 5}, fs.got)

	var hits []map[string]any
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "2005.11401v4", hits[0]["id"])
	assert.Equal(t, "2020-05-22", hits[0]["published"])

	res, err = s.handleSearch(context.Background(), call(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	fs.err = errors.New("arxiv unavailable")
	res, err = s.handleSearch(context.Background(), call(map[string]any{"query": "x"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "search failed: arxiv unavailable", text(t, res))
}

func TestProcessPaper(t *testing.T) {
	fp := &fakeProcessor{}
	s := New(Deps{Processor: fp})

	res, err := s.handleProcess(context.Background(), call(map[string]any{"pdf": "a.pdf"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, filepath.Join("/raw", "a.pdf"), fp.got)
	assert.Contains(t, text(t, res), `"Slides": 10`)

	res, err = s.handleProcess(context.Background(), call(map[string]any{"pdf": "missing.pdf"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "available: a.pdf")
}

func TestGenerateSlidesResolvesProcessedDir(t *testing.T) {
	fg := &fakeGenerator{}
	s := New(Deps{Generator: fg, ProcessedDir: "/data/processed"})

	res, err := s.handleGenerate(context.Background(), call(map[string]any{"processed": "a.json"}))
	require.NoError(t, err)
	assert.Equal(t, "/slides/a_slides.md", text(t, res))
	assert.Equal(t, filepath.Join("/data/processed", "a.json"), fg.got)

	_, err = s.handleGenerate(context.Background(), call(map[string]any{"processed": "/elsewhere/b.json"}))
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere/b.json", fg.got)
}

func TestListCatalog(t *testing.T) {
	s := New(Deps{Catalog: fakeCatalog{}})
	ctx := context.Background()

	res, err := s.handleCatalog(ctx, call(nil))
	require.NoError(t, err)
	var st catalog.Stats
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &st))
	if diff := cmp.Diff(catalog.Stats{Papers: 3, Decks: 2}, st); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	res, err = s.handleCatalog(ctx, call(map[string]any{"kind": "decks", "source": "a.pdf"}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), `"source_file": "a.pdf"`)

	res, err = s.handleCatalog(ctx, call(map[string]any{"kind": "runs"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleCatalog(ctx, call(map[string]any{"kind": "everything"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestCheckManifest(t *testing.T) {
	s := New(Deps{})

	res, err := s.handleManifest(context.Background(), call(nil))
	require.NoError(t, err)
	assert.False(t, res.IsError, text(t, res))
	assert.Contains(t, text(t, res), "ok: ")

	bad := filepath.Join(t.TempDir(), "requirements.txt")
	require.NoError(t, os.WriteFile(bad, []byte("torch>=2.0\ntorch==2.1\n"), 0644))
	res, err = s.handleManifest(context.Background(), call(map[string]any{"path": bad}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "already declared on line 1")
	assert.Contains(t, text(t, res), "fsspec")

	res, err = s.handleManifest(context.Background(), call(map[string]any{"path": filepath.Join(t.TempDir(), "nope.txt")}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
