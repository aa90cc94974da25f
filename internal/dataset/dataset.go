// Package dataset pairs processed papers with their (human-edited) slide
// decks and writes the instruction-tuning JSONL used for finetuning.
package dataset

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"paperslides/internal/logging"
	"paperslides/internal/paper"
	"paperslides/internal/prompt"
	"paperslides/internal/slides"
)

// DefaultFile is the dataset file name inside the training directory.
const DefaultFile = "training_data.jsonl"

var (
	// ErrNoProcessedPapers means the processed directory holds no paper JSON.
	ErrNoProcessedPapers = errors.New("no processed papers found")
	// ErrNoExamples means no paper could be paired with a deck.
	ErrNoExamples = errors.New("no training examples generated")
)

// Example is one JSONL record.
type Example struct {
	Text string `json:"text"`
}

// Pair records which deck was used for a paper.
type Pair struct {
	Processed string `json:"processed"`
	Deck      string `json:"deck"`
}

// Report summarises a build.
type Report struct {
	Output   string   `json:"output"`
	Examples int      `json:"examples"`
	Pairs    []Pair   `json:"pairs"`
	Unpaired []string `json:"unpaired,omitempty"`
	Failed   []string `json:"failed,omitempty"`
}

// Builder builds the dataset from ProcessedDir and SlidesDir.
type Builder struct {
	ProcessedDir string
	SlidesDir    string
	Output       string
}

// NewBuilder creates a builder writing to output.
func NewBuilder(processedDir, slidesDir, output string) *Builder {
	return &Builder{ProcessedDir: processedDir, SlidesDir: slidesDir, Output: output}
}

// processedFiles lists paper JSON files, skipping the processing summary.
func processedFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	var files []string
	for _, m := range matches {
		if filepath.Base(m) != paper.SummaryFile {
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Build writes one example per paired paper. Papers without a deck are
// reported and skipped.
func (b *Builder) Build(ctx context.Context) (*Report, error) {
	timer := logging.StartTimer(logging.CategoryDataset, "build dataset")
	defer timer.Stop()

	files, err := processedFiles(b.ProcessedDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed papers: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoProcessedPapers, b.ProcessedDir)
	}

	report := &Report{Output: b.Output}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		base := strings.TrimSuffix(filepath.Base(f), ".json")
		deck, err := slides.LatestDeck(b.SlidesDir, base)
		if err != nil {
			return nil, err
		}
		if deck == "" {
			logging.Get(logging.CategoryDataset).Warn("No deck found for %s", filepath.Base(f))
			report.Unpaired = append(report.Unpaired, filepath.Base(f))
			continue
		}

		pp, err := paper.Load(f)
		if err != nil {
			logging.Get(logging.CategoryDataset).Error("Skipping %s: %v", filepath.Base(f), err)
			report.Failed = append(report.Failed, filepath.Base(f))
			continue
		}
		completion, err := os.ReadFile(deck)
		if err != nil {
			logging.Get(logging.CategoryDataset).Error("Skipping %s: %v", filepath.Base(deck), err)
			report.Failed = append(report.Failed, filepath.Base(f))
			continue
		}

		ex := Example{Text: prompt.FormatTrainingExample(prompt.BuildSlidesPrompt(pp), string(completion))}
		if err := enc.Encode(ex); err != nil {
			return nil, fmt.Errorf("failed to encode example: %w", err)
		}
		report.Examples++
		report.Pairs = append(report.Pairs, Pair{Processed: filepath.Base(f), Deck: filepath.Base(deck)})
		logging.Dataset("Paired %s with %s", filepath.Base(f), filepath.Base(deck))
	}

	if report.Examples == 0 {
		return report, ErrNoExamples
	}
	if err := os.MkdirAll(filepath.Dir(b.Output), 0755); err != nil {
		return nil, fmt.Errorf("failed to create training directory: %w", err)
	}
	if err := os.WriteFile(b.Output, buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("failed to write dataset: %w", err)
	}
	logging.Dataset("Wrote %d examples to %s", report.Examples, b.Output)
	return report, nil
}

// Validate checks that every line of the JSONL file at path is an object
// with a non-empty "text" field and returns the number of examples.
func Validate(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	var errs []error
	n, line := 0, 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var ex Example
		if err := json.Unmarshal(raw, &ex); err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if strings.TrimSpace(ex.Text) == "" {
			errs = append(errs, fmt.Errorf("line %d: empty text", line))
			continue
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("failed to read dataset: %w", err)
	}
	if len(errs) > 0 {
		return n, errors.Join(errs...)
	}
	if n == 0 {
		return 0, ErrNoExamples
	}
	return n, nil
}
