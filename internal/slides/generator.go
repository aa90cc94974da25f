package slides

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"paperslides/internal/llm"
	"paperslides/internal/logging"
	"paperslides/internal/paper"
	"paperslides/internal/prompt"
)

// ErrEmptyDeck is returned when the model answer contains nothing to save.
var ErrEmptyDeck = errors.New("generated deck is empty")

// Recorder stores generated decks, typically in the catalog.
type Recorder interface {
	RecordDeck(ctx context.Context, source, path, model string) (string, error)
}

// Generator produces decks with an LLM and saves them under Dir.
type Generator struct {
	client   llm.Client
	dir      string
	recorder Recorder
	now      func() time.Time
}

// NewGenerator creates a generator writing to dir. recorder may be nil.
func NewGenerator(client llm.Client, dir string, recorder Recorder) *Generator {
	return &Generator{client: client, dir: dir, recorder: recorder, now: time.Now}
}

// Generate prompts the model with pp and saves the answer as a new deck.
// Model failures are returned; nothing is written in that case.
func (g *Generator) Generate(ctx context.Context, pp *paper.ProcessedPaper) (*Deck, error) {
	timer := logging.StartTimer(logging.CategorySlides, "generate "+pp.SourceFile)
	defer timer.Stop()

	text := prompt.BuildSlidesPrompt(pp)
	logging.Get(logging.CategorySlides).Debug("Prompt for %s: %d chars", pp.SourceFile, len(text))

	out, err := g.client.Complete(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate slides for %s: %w", pp.SourceFile, err)
	}
	if out == "" {
		return nil, ErrEmptyDeck
	}

	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create slides directory: %w", err)
	}
	stem := pp.Stem()
	if stem == "" {
		stem = "unknown_paper"
	}
	path := filepath.Join(g.dir, DeckName(stem, g.now()))
	if err := os.WriteFile(path, []byte(out), 0644); err != nil {
		return nil, fmt.Errorf("failed to save deck: %w", err)
	}

	deck := ParseDeck(out)
	deck.Path = path
	deck.Source = pp.SourceFile
	deck.Model = g.client.Model()
	logging.Slides("Saved %d slides for %s to %s", len(deck.Slides), pp.SourceFile, path)
	for _, p := range deck.Check() {
		logging.Get(logging.CategorySlides).Warn("%s: %s", filepath.Base(path), p)
	}

	if g.recorder != nil {
		if _, err := g.recorder.RecordDeck(ctx, pp.SourceFile, path, deck.Model); err != nil {
			logging.Get(logging.CategorySlides).Warn("Failed to record deck %s: %v", path, err)
		}
	}
	return deck, nil
}

// GenerateFromFile loads a processed paper JSON and generates its deck,
// returning the deck path.
func (g *Generator) GenerateFromFile(ctx context.Context, processedPath string) (string, error) {
	pp, err := paper.Load(processedPath)
	if err != nil {
		return "", err
	}
	deck, err := g.Generate(ctx, pp)
	if err != nil {
		return "", err
	}
	return deck.Path, nil
}
