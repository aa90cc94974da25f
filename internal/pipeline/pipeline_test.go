package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"paperslides/internal/paper"
	"paperslides/internal/pdftext"
	"paperslides/internal/slides"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const paperText = `Dense Passage Retrieval for Open-Domain QA

Abstract: Open-domain question answering relies on efficient passage retrieval.

1. Introduction
Open-domain question answering (QA) is a task that answers factoid questions using a large collection of documents.
`

type fakeExtractor struct{ broken map[string]bool }

func (f fakeExtractor) Extract(_ context.Context, path string) (*pdftext.Document, error) {
	if f.broken[filepath.Base(path)] {
		return nil, pdftext.ErrNoText
	}
	return &pdftext.Document{Path: path, Pages: []string{paperText}, Text: paperText}, nil
}

type fakeClient struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *fakeClient) Complete(context.Context, string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return "## Slide 1: DPR\n\n* retrieval\n\n## Slide 2: Q&A\n", nil
}

func (c *fakeClient) CompleteWithSystem(ctx context.Context, _, p string) (string, error) {
	return c.Complete(ctx, p)
}

func (c *fakeClient) Model() string { return "fake" }

type fakeCatalog struct {
	mu        sync.Mutex
	processed []string
	status    string
}

func (f *fakeCatalog) RecordProcessed(_ context.Context, pp *paper.ProcessedPaper, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, pp.SourceFile)
	return nil
}

func (f *fakeCatalog) StartRun(context.Context, string, string) (string, error) { return "run", nil }

func (f *fakeCatalog) FinishRun(_ context.Context, _, status, _ string) error {
	f.status = status
	return nil
}

type env struct {
	raw, processed, slides string
	client                 *fakeClient
	catalog                *fakeCatalog
	pipeline               *Pipeline
}

func newEnv(t *testing.T, broken ...string) *env {
	t.Helper()
	root := t.TempDir()
	e := &env{
		raw:       filepath.Join(root, "raw"),
		processed: filepath.Join(root, "processed"),
		slides:    filepath.Join(root, "slides"),
		client:    &fakeClient{},
		catalog:   &fakeCatalog{},
	}
	require.NoError(t, os.MkdirAll(e.raw, 0755))

	bad := map[string]bool{}
	for _, b := range broken {
		bad[b] = true
	}
	proc := paper.NewProcessor(fakeExtractor{broken: bad}, paper.DefaultOptions())
	gen := slides.NewGenerator(e.client, e.slides, nil)
	e.pipeline = New(e.raw, e.processed, proc, gen, e.catalog, 2)
	return e
}

func (e *env) addPDF(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(e.raw, name)
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4"), 0644))
	return p
}

func TestProcessOne(t *testing.T) {
	e := newEnv(t)
	path := e.addPDF(t, "2104.05740v1.pdf")

	res, err := e.pipeline.ProcessOne(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.processed, "2104.05740v1.json"), res.Processed)
	assert.FileExists(t, filepath.Join(e.processed, "2104.05740v1.txt"))
	assert.True(t, strings.HasPrefix(filepath.Base(res.Deck), "2104.05740v1_slides_"))
	assert.Equal(t, 2, res.Slides)
	assert.Equal(t, []string{"2104.05740v1.pdf"}, e.catalog.processed)
}

func TestProcessOneMissing(t *testing.T) {
	e := newEnv(t)
	e.addPDF(t, "a.pdf")
	e.addPDF(t, "b.pdf")

	_, err := e.pipeline.ProcessOne(context.Background(), e.pipeline.Resolve("nope.pdf"))
	var missing *MissingPDFError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, missing.Available)
	assert.Contains(t, err.Error(), "available: a.pdf, b.pdf")
	assert.Zero(t, e.client.calls)
}

func TestProcessOneStopsOnFailures(t *testing.T) {
	e := newEnv(t, "broken.pdf")
	_, err := e.pipeline.ProcessOne(context.Background(), e.addPDF(t, "broken.pdf"))
	require.ErrorIs(t, err, pdftext.ErrNoText)
	assert.Zero(t, e.client.calls, "no generation after extraction failure")

	e.client.err = errors.New("quota")
	_, err = e.pipeline.ProcessOne(context.Background(), e.addPDF(t, "ok.pdf"))
	require.Error(t, err)
	assert.NoDirExists(t, e.slides)
}

func TestProcessAll(t *testing.T) {
	e := newEnv(t, "bad.pdf")
	for _, n := range []string{"a.pdf", "bad.pdf", "c.pdf", "d.pdf"} {
		e.addPDF(t, n)
	}

	results, err := e.pipeline.ProcessAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.pdf")
	assert.ErrorIs(t, err, pdftext.ErrNoText)
	require.Len(t, results, 3)
	assert.Equal(t, filepath.Join(e.raw, "a.pdf"), results[0].PDF)
	assert.Equal(t, 3, e.client.calls)
	assert.Equal(t, "failed", e.catalog.status)
}

func TestProcessAllEmpty(t *testing.T) {
	e := newEnv(t)
	_, err := e.pipeline.ProcessAll(context.Background())
	assert.ErrorIs(t, err, ErrNoPDFs)
}

func TestResolve(t *testing.T) {
	p := New("/data/raw", "/data/processed", nil, nil, nil, 0)
	assert.Equal(t, filepath.Join("/data/raw", "x.pdf"), p.Resolve("x.pdf"))
	assert.Equal(t, "/tmp/x.pdf", p.Resolve("/tmp/x.pdf"))
	assert.Equal(t, 1, p.workers)
}
