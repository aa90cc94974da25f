package paper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"paperslides/internal/logging"
	"paperslides/internal/pdftext"
)

// SummaryFile is written by ProcessAll next to the processed papers.
const SummaryFile = "processing_summary.json"

// Statistics describes the size of a processed paper.
type Statistics struct {
	TotalTextLength int `json:"total_text_length"`
	SectionCount    int `json:"section_count"`
	ParagraphCount  int `json:"paragraph_count"`
}

// ProcessedPaper is the persisted structure of one paper.
type ProcessedPaper struct {
	SourceFile    string     `json:"source_file"`
	ProcessedTime time.Time  `json:"processed_time"`
	Metadata      Metadata   `json:"metadata"`
	Sections      []Section  `json:"sections"`
	Paragraphs    []string   `json:"paragraphs"`
	Statistics    Statistics `json:"statistics"`
}

// Stem is the source file name without extension ("2104.05740v1").
func (p *ProcessedPaper) Stem() string {
	return Stem(p.SourceFile)
}

// Stem strips directory and extension from a file name.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Options tunes structuring.
type Options struct {
	MinParagraphLength int
	Sections           SectionOptions
	Workers            int
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		MinParagraphLength: DefaultMinParagraphLength,
		Sections:           DefaultSectionOptions(),
		Workers:            2,
	}
}

// Processor extracts and structures PDFs.
type Processor struct {
	extractor pdftext.Extractor
	opts      Options
	now       func() time.Time
}

// NewProcessor creates a processor; a nil extractor uses pdftext.New().
func NewProcessor(extractor pdftext.Extractor, opts Options) *Processor {
	if extractor == nil {
		extractor = pdftext.New()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Processor{extractor: extractor, opts: opts, now: time.Now}
}

// Process extracts and structures one PDF.
func (p *Processor) Process(ctx context.Context, pdfPath string) (*ProcessedPaper, error) {
	timer := logging.StartTimer(logging.CategoryExtract, "process "+filepath.Base(pdfPath))
	defer timer.Stop()

	doc, err := p.extractor.Extract(ctx, pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", filepath.Base(pdfPath), err)
	}
	pp := p.Structure(filepath.Base(pdfPath), doc.Text)
	logging.Extract("Processed %s: %d sections, %d paragraphs, %d chars",
		pp.SourceFile, pp.Statistics.SectionCount, pp.Statistics.ParagraphCount, pp.Statistics.TotalTextLength)
	return pp, nil
}

// Structure builds a ProcessedPaper from raw extracted text.
func (p *Processor) Structure(sourceFile, raw string) *ProcessedPaper {
	cleaned := CleanText(raw)
	sections := SplitSectionsWith(cleaned, p.opts.Sections)
	paragraphs := SplitParagraphs(cleaned, p.opts.MinParagraphLength)
	if sections == nil {
		sections = []Section{}
	}
	if paragraphs == nil {
		paragraphs = []string{}
	}
	return &ProcessedPaper{
		SourceFile:    sourceFile,
		ProcessedTime: p.now(),
		Metadata:      ExtractMetadata(cleaned),
		Sections:      sections,
		Paragraphs:    paragraphs,
		Statistics: Statistics{
			TotalTextLength: utf8.RuneCountInString(cleaned),
			SectionCount:    len(sections),
			ParagraphCount:  len(paragraphs),
		},
	}
}

// Save writes <stem>.json and a readable <stem>.txt into dir and returns
// the JSON path.
func Save(pp *ProcessedPaper, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	stem := pp.Stem()
	jsonPath := filepath.Join(dir, stem+".json")
	if err := writeJSON(jsonPath, pp); err != nil {
		return "", err
	}
	txtPath := filepath.Join(dir, stem+".txt")
	if err := os.WriteFile(txtPath, []byte(Report(pp)), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", txtPath, err)
	}
	return jsonPath, nil
}

// Load reads a processed paper JSON file.
func Load(path string) (*ProcessedPaper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read processed paper: %w", err)
	}
	var pp ProcessedPaper
	if err := json.Unmarshal(data, &pp); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if pp.SourceFile == "" {
		pp.SourceFile = Stem(path) + ".pdf"
	}
	return &pp, nil
}

// Report renders the human-readable text dump.
func Report(pp *ProcessedPaper) string {
	var b strings.Builder
	rule := strings.Repeat("-", 20)

	fmt.Fprintf(&b, "Processed paper: %s\n", pp.SourceFile)
	fmt.Fprintf(&b, "Processed at: %s\n", pp.ProcessedTime.Format("2006-01-02 15:04:05"))
	b.WriteString(strings.Repeat("=", 50) + "\n\n")

	b.WriteString("Metadata\n" + rule + "\n")
	for _, kv := range [][2]string{
		{"title", pp.Metadata.Title},
		{"abstract", pp.Metadata.Abstract},
		{"keywords", pp.Metadata.Keywords},
	} {
		if kv[1] != "" {
			fmt.Fprintf(&b, "%s: %s\n", kv[0], kv[1])
		}
	}
	b.WriteString("\n")

	b.WriteString("Sections\n" + rule + "\n")
	for i, s := range pp.Sections {
		fmt.Fprintf(&b, "[Section %d] %s\n%s\n\n", i+1, s.Title, s.Content)
	}

	b.WriteString("Paragraphs\n" + rule + "\n")
	for i, para := range pp.Paragraphs {
		fmt.Fprintf(&b, "[Paragraph %d]\n%s\n\n", i+1, para)
	}
	return b.String()
}

// FileStat is one entry of the processing summary.
type FileStat struct {
	Filename   string `json:"filename"`
	Sections   int    `json:"sections"`
	Paragraphs int    `json:"paragraphs"`
	TextLength int    `json:"text_length"`
}

// Summary is written to SummaryFile by ProcessAll.
type Summary struct {
	TotalFiles      int        `json:"total_files"`
	SuccessfulFiles int        `json:"successful_files"`
	ProcessingTime  time.Time  `json:"processing_time"`
	FileStatistics  []FileStat `json:"file_statistics"`
	// Outputs maps source file names to saved JSON paths.
	Outputs map[string]string `json:"-"`
	// Failures maps source file names to their errors.
	Failures map[string]error `json:"-"`
}

// ErrNoPDFs is returned when a directory holds no PDF files.
var ErrNoPDFs = errors.New("no pdf files found")

// ListPDFs returns the sorted *.pdf files of dir.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// ProcessAll processes every PDF of rawDir into outDir. Failures are
// logged and counted; the summary is written even when some files fail.
func (p *Processor) ProcessAll(ctx context.Context, rawDir, outDir string) (*Summary, error) {
	pdfs, err := ListPDFs(rawDir)
	if err != nil {
		return nil, err
	}
	if len(pdfs) == 0 {
		return nil, fmt.Errorf("%s: %w", rawDir, ErrNoPDFs)
	}
	logging.Extract("Processing %d PDF files from %s", len(pdfs), rawDir)

	results := make([]*ProcessedPaper, len(pdfs))
	summary := &Summary{
		TotalFiles: len(pdfs),
		Outputs:    make(map[string]string),
		Failures:   make(map[string]error),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, path := range pdfs {
		g.Go(func() error {
			pp, err := p.Process(gctx, path)
			if err == nil {
				var out string
				if out, err = Save(pp, outDir); err == nil {
					mu.Lock()
					summary.Outputs[pp.SourceFile] = out
					mu.Unlock()
					results[i] = pp
					return nil
				}
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Get(logging.CategoryExtract).Error("Failed to process %s: %v", filepath.Base(path), err)
			mu.Lock()
			summary.Failures[filepath.Base(path)] = err
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary.FileStatistics = []FileStat{}
	for _, pp := range results {
		if pp == nil {
			continue
		}
		summary.SuccessfulFiles++
		summary.FileStatistics = append(summary.FileStatistics, FileStat{
			Filename:   pp.SourceFile,
			Sections:   pp.Statistics.SectionCount,
			Paragraphs: pp.Statistics.ParagraphCount,
			TextLength: pp.Statistics.TotalTextLength,
		})
	}
	summary.ProcessingTime = p.now()

	if err := writeJSON(filepath.Join(outDir, SummaryFile), summary); err != nil {
		return summary, err
	}
	logging.Extract("Processed %d/%d files", summary.SuccessfulFiles, summary.TotalFiles)
	return summary, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
