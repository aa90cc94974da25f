// Package pipeline runs the paper-to-slides flow: PDF extraction,
// structured output, then deck generation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"paperslides/internal/logging"
	"paperslides/internal/paper"
	"paperslides/internal/slides"
)

// ErrNoPDFs is returned by ProcessAll when the raw directory is empty.
var ErrNoPDFs = paper.ErrNoPDFs

// MissingPDFError reports a PDF that does not exist, with the PDFs that do.
type MissingPDFError struct {
	Path      string
	Available []string // file names in the raw directory
}

func (e *MissingPDFError) Error() string {
	msg := fmt.Sprintf("pdf not found: %s", e.Path)
	if len(e.Available) > 0 {
		msg += " (available: " + strings.Join(e.Available, ", ") + ")"
	}
	return msg
}

// Catalog is the subset of the catalog the pipeline writes to.
type Catalog interface {
	RecordProcessed(ctx context.Context, pp *paper.ProcessedPaper, jsonPath string) error
	StartRun(ctx context.Context, kind, detail string) (string, error)
	FinishRun(ctx context.Context, id, status, detail string) error
}

// Result is the outcome of one paper.
type Result struct {
	PDF       string
	Processed string
	Deck      string
	Slides    int
}

// Pipeline wires extraction and generation together.
type Pipeline struct {
	RawDir       string
	ProcessedDir string

	processor *paper.Processor
	generator *slides.Generator
	catalog   Catalog
	workers   int
}

// New creates a pipeline. catalog may be nil.
func New(rawDir, processedDir string, processor *paper.Processor, generator *slides.Generator, catalog Catalog, workers int) *Pipeline {
	if workers <= 0 {
		workers = 1
	}
	return &Pipeline{
		RawDir:       rawDir,
		ProcessedDir: processedDir,
		processor:    processor,
		generator:    generator,
		catalog:      catalog,
		workers:      workers,
	}
}

// Resolve maps a bare file name to the raw directory.
func (p *Pipeline) Resolve(name string) string {
	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	return filepath.Join(p.RawDir, name)
}

// ProcessOne extracts pdfPath, saves the processed paper and generates a
// deck from the saved JSON.
func (p *Pipeline) ProcessOne(ctx context.Context, pdfPath string) (*Result, error) {
	if _, err := os.Stat(pdfPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, p.missing(pdfPath)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", pdfPath, err)
	}
	log := logging.Get(logging.CategoryBoot)
	log.Info("[1/2] Processing %s", filepath.Base(pdfPath))

	pp, err := p.processor.Process(ctx, pdfPath)
	if err != nil {
		return nil, err
	}
	jsonPath, err := paper.Save(pp, p.ProcessedDir)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(jsonPath); err != nil {
		return nil, fmt.Errorf("processed output %s missing: %w", filepath.Base(jsonPath), err)
	}
	if p.catalog != nil {
		if err := p.catalog.RecordProcessed(ctx, pp, jsonPath); err != nil {
			log.Warn("Failed to record %s: %v", pp.SourceFile, err)
		}
	}

	log.Info("[2/2] Generating slides for %s", pp.SourceFile)
	loaded, err := paper.Load(jsonPath)
	if err != nil {
		return nil, err
	}
	deck, err := p.generator.Generate(ctx, loaded)
	if err != nil {
		return nil, err
	}
	return &Result{PDF: pdfPath, Processed: jsonPath, Deck: deck.Path, Slides: len(deck.Slides)}, nil
}

func (p *Pipeline) missing(path string) *MissingPDFError {
	e := &MissingPDFError{Path: path}
	pdfs, _ := paper.ListPDFs(p.RawDir)
	for _, f := range pdfs {
		e.Available = append(e.Available, filepath.Base(f))
	}
	return e
}

// ProcessAll runs ProcessOne for every PDF of the raw directory with
// bounded concurrency. Individual failures do not stop the others; they are
// returned joined, alongside the successful results.
func (p *Pipeline) ProcessAll(ctx context.Context) ([]*Result, error) {
	pdfs, err := paper.ListPDFs(p.RawDir)
	if err != nil {
		return nil, err
	}
	if len(pdfs) == 0 {
		return nil, fmt.Errorf("%s: %w", p.RawDir, ErrNoPDFs)
	}

	runID := p.startRun(ctx, fmt.Sprintf("%d pdfs", len(pdfs)))
	logging.Boot("Processing %d PDFs from %s with %d workers", len(pdfs), p.RawDir, p.workers)

	results := make([]*Result, len(pdfs))
	errs := make([]error, len(pdfs))
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, path := range pdfs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			res, err := p.ProcessOne(ctx, path)
			if err != nil {
				logging.Get(logging.CategoryBoot).Error("Failed %s: %v", filepath.Base(path), err)
				errs[i] = fmt.Errorf("%s: %w", filepath.Base(path), err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	var done []*Result
	for _, r := range results {
		if r != nil {
			done = append(done, r)
		}
	}

	joined := errors.Join(errs...)
	p.finishRun(ctx, runID, len(done), len(pdfs), joined)
	logging.Boot("Finished %d/%d PDFs", len(done), len(pdfs))
	return done, joined
}

func (p *Pipeline) startRun(ctx context.Context, detail string) string {
	if p.catalog == nil {
		return ""
	}
	id, err := p.catalog.StartRun(ctx, "pipeline", detail)
	if err != nil {
		logging.Get(logging.CategoryBoot).Warn("Failed to record run: %v", err)
	}
	return id
}

func (p *Pipeline) finishRun(ctx context.Context, id string, ok, total int, runErr error) {
	if p.catalog == nil || id == "" {
		return
	}
	status := "succeeded"
	if runErr != nil {
		status = "failed"
	}
	detail := fmt.Sprintf("%d/%d pdfs", ok, total)
	if err := p.catalog.FinishRun(context.WithoutCancel(ctx), id, status, detail); err != nil {
		logging.Get(logging.CategoryBoot).Warn("Failed to finish run: %v", err)
	}
}
