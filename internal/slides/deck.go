// Package slides turns processed papers into Markdown slide decks and
// inspects the decks it (or a human editor) produced.
package slides

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"paperslides/internal/prompt"
)

// Slide is one "## Slide N: Title" block.
type Slide struct {
	Number int
	Title  string
	Body   string
}

// Deck is a parsed Markdown deck.
type Deck struct {
	Path     string
	Source   string // source PDF file name, when known
	Model    string
	Markdown string
	Slides   []Slide
}

var slideHeading = regexp.MustCompile(`(?i)^#{1,3}\s*slide\s+(\d+)\s*[:.\-]?\s*(.*)$`)

// ParseDeck splits markdown at slide headings. Text before the first
// heading is ignored.
func ParseDeck(markdown string) *Deck {
	d := &Deck{Markdown: markdown}
	var cur *Slide
	var body []string
	flush := func() {
		if cur == nil {
			return
		}
		cur.Body = strings.TrimSpace(strings.Join(body, "\n"))
		d.Slides = append(d.Slides, *cur)
	}

	for _, line := range strings.Split(strings.ReplaceAll(markdown, "\r\n", "\n"), "\n") {
		m := slideHeading.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			if cur != nil {
				body = append(body, line)
			}
			continue
		}
		flush()
		n, _ := strconv.Atoi(m[1])
		cur = &Slide{Number: n, Title: strings.Trim(strings.TrimSpace(m[2]), "[]")}
		body = body[:0]
	}
	flush()
	return d
}

var closingRe = regexp.MustCompile(`(?i)q\s*&\s*a|questions|thank`)

// Check reports structural problems with the deck. An empty result means
// the deck follows the requested layout.
func (d *Deck) Check() []string {
	var problems []string
	n := len(d.Slides)
	if n == 0 {
		return []string{"no slides found"}
	}
	if n < prompt.MinSlides || n > prompt.MaxSlides {
		problems = append(problems, fmt.Sprintf("deck has %d slides, expected %d-%d", n, prompt.MinSlides, prompt.MaxSlides))
	}
	if first := d.Slides[0]; first.Number != 1 || first.Title == "" {
		problems = append(problems, "deck does not open with a titled slide 1")
	}
	if last := d.Slides[n-1]; !closingRe.MatchString(last.Title) && !closingRe.MatchString(last.Body) {
		problems = append(problems, fmt.Sprintf("last slide %q is not a Q&A slide", last.Title))
	}
	for i, s := range d.Slides {
		if s.Number != i+1 {
			problems = append(problems, fmt.Sprintf("slide %d is numbered %d", i+1, s.Number))
			break
		}
	}
	return problems
}

// DeckName is the file name for a deck of the paper with the given stem.
func DeckName(stem string, at time.Time) string {
	return fmt.Sprintf("%s_slides_%s.md", stem, at.Format("20060102_150405"))
}

// Decks lists the Markdown files in dir named after base, newest first.
// Hand-edited copies ("<base>_edited.md") match too. A missing dir has no
// decks.
func Decks(dir, base string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read slides directory: %w", err)
	}
	type found struct {
		path string
		mod  time.Time
	}
	var decks []found
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".md") || !namedAfter(name, base) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		decks = append(decks, found{filepath.Join(dir, name), info.ModTime()})
	}
	// newest first; equal times fall back to the later timestamped name
	sort.Slice(decks, func(i, j int) bool {
		if !decks[i].mod.Equal(decks[j].mod) {
			return decks[i].mod.After(decks[j].mod)
		}
		return decks[i].path > decks[j].path
	})
	paths := make([]string, len(decks))
	for i, d := range decks {
		paths[i] = d.path
	}
	return paths, nil
}

// namedAfter reports whether name is base followed by a separator, so
// "2104.05740v1" does not claim decks of "2104.05740v12".
func namedAfter(name, base string) bool {
	if !strings.HasPrefix(name, base) || len(name) == len(base) {
		return false
	}
	switch name[len(base)] {
	case '_', '.', '-':
		return true
	}
	return false
}

// LatestDeck returns the most recently modified deck for base, or "" when
// there is none.
func LatestDeck(dir, base string) (string, error) {
	decks, err := Decks(dir, base)
	if err != nil || len(decks) == 0 {
		return "", err
	}
	return decks[0], nil
}

// LoadDeck reads and parses a deck file.
func LoadDeck(path string) (*Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deck: %w", err)
	}
	d := ParseDeck(string(data))
	d.Path = path
	return d, nil
}

// Render formats markdown for the terminal. A width of zero or less uses 80
// columns.
func Render(markdown string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return out, nil
}
