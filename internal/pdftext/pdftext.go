// Package pdftext extracts plain text from PDF files, one line per text row.
package pdftext

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"paperslides/internal/logging"
)

// ErrNoText is returned when a PDF has pages but no extractable text
// (scanned images, for example).
var ErrNoText = errors.New("no extractable text in pdf")

// Document is the text of a PDF.
type Document struct {
	Path  string
	Pages []string
	// Text joins Pages with a newline.
	Text string
}

// Extractor turns a PDF into text.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Document, error)
}

// PDFExtractor is the ledongthuc/pdf backed Extractor.
type PDFExtractor struct {
	// ProgressEvery logs progress every N pages; 0 disables it.
	ProgressEvery int
}

// New returns an extractor that logs every 10 pages.
func New() *PDFExtractor {
	return &PDFExtractor{ProgressEvery: 10}
}

// Extract reads path with the default extractor.
func Extract(path string) (*Document, error) {
	return New().Extract(context.Background(), path)
}

// Extract implements Extractor.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (doc *Document, err error) {
	// The parser panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("failed to parse %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	logging.ExtractDebug("Reading %s (%d pages)", path, total)

	doc = &Document{Path: path, Pages: make([]string, 0, total)}
	hasText := false
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			doc.Pages = append(doc.Pages, "")
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			logging.Get(logging.CategoryExtract).Warn("Page %d of %s unreadable: %v", i, path, err)
			doc.Pages = append(doc.Pages, "")
			continue
		}
		text := layout(convertRows(rows))
		if strings.TrimSpace(text) != "" {
			hasText = true
		}
		doc.Pages = append(doc.Pages, text)

		if e.ProgressEvery > 0 && i%e.ProgressEvery == 0 {
			logging.Extract("Processed %d/%d pages of %s", i, total, path)
		}
	}
	if !hasText {
		return nil, fmt.Errorf("%s: %w", path, ErrNoText)
	}

	doc.Text = strings.Join(doc.Pages, "\n")
	return doc, nil
}

type fragment struct {
	x float64
	s string
}

type row struct {
	y     float64
	frags []fragment
}

func convertRows(rows pdf.Rows) []row {
	out := make([]row, 0, len(rows))
	for _, r := range rows {
		rr := row{y: float64(r.Position)}
		for _, t := range r.Content {
			if t.S == "" {
				continue
			}
			rr.frags = append(rr.frags, fragment{x: t.X, s: t.S})
		}
		if len(rr.frags) > 0 {
			out = append(out, rr)
		}
	}
	return out
}

// paragraphGapFactor marks a vertical gap this many times the median line
// spacing as a paragraph break.
const paragraphGapFactor = 1.6

// layout renders rows top to bottom, one line each, inserting a blank line
// where the vertical gap is unusually large.
func layout(rows []row) string {
	if len(rows) == 0 {
		return ""
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].y > rows[j].y })

	gaps := make([]float64, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		gaps = append(gaps, rows[i-1].y-rows[i].y)
	}
	median := medianOf(gaps)

	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteString("\n")
			if median > 0 && gaps[i-1] > paragraphGapFactor*median {
				b.WriteString("\n")
			}
		}
		b.WriteString(joinFragments(r.frags))
	}
	return b.String()
}

// joinFragments concatenates the pieces of a row. Pieces drawn at the same
// x (kerned TJ arrays) are glued; distinct positions are separated by a
// space unless one side already carries whitespace.
func joinFragments(frags []fragment) string {
	var b strings.Builder
	for i, f := range frags {
		if i > 0 && f.x != frags[i-1].x && !endsWithSpace(b.String()) && !startsWithSpace(f.s) {
			b.WriteString(" ")
		}
		b.WriteString(f.s)
	}
	return b.String()
}

func endsWithSpace(s string) bool {
	if s == "" {
		return true
	}
	r := []rune(s)
	return unicode.IsSpace(r[len(r)-1])
}

func startsWithSpace(s string) bool {
	for _, r := range s {
		return unicode.IsSpace(r)
	}
	return false
}

func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
