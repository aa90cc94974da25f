package paper

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMinParagraphLength drops captions, headings and stray fragments.
const DefaultMinParagraphLength = 50

var (
	numericBlockRe = regexp.MustCompile(`^[\d\s\-.()]+$`)
)

// SplitParagraphs splits cleaned text on blank lines and keeps blocks of at
// least minLength characters that are not page numbers, "Page N" labels or
// purely numeric/punctuation runs.
func SplitParagraphs(text string, minLength int) []string {
	var out []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if utf8.RuneCountInString(para) < minLength {
			continue
		}
		if pageNumberLineRe.MatchString(para) || pageLabelLineRe.MatchString(para) {
			continue
		}
		if numericBlockRe.MatchString(para) {
			continue
		}
		out = append(out, para)
	}
	return out
}
