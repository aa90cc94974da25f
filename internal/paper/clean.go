// Package paper turns extracted PDF text into a structured paper: cleaned
// text, metadata, sections and paragraphs.
package paper

import (
	"regexp"
	"strings"
)

var (
	pageNumberLineRe = regexp.MustCompile(`^\d+$`)
	pageLabelLineRe  = regexp.MustCompile(`^Page \d+`)
	horizontalRunRe  = regexp.MustCompile(`[ \t]+`)
)

// CleanText removes page furniture and layout noise:
//   - lines holding only a page number, and "Page N..." lines
//   - hyphenated line breaks between lower-case letters ("retrie-\nval")
//   - runs of spaces and tabs, and leading/trailing space on each line
//   - runs of blank lines, which become one blank line (paragraph break)
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(horizontalRunRe.ReplaceAllString(line, " "))
		if pageNumberLineRe.MatchString(line) || pageLabelLineRe.MatchString(line) {
			continue
		}
		if n := len(lines); n > 0 && line != "" && hyphenatedTail(lines[n-1]) && isLowerASCII(line[0]) {
			lines[n-1] = lines[n-1][:len(lines[n-1])-1] + line
			continue
		}
		lines = append(lines, line)
	}

	var out []string
	blank := false
	for _, line := range lines {
		if line == "" {
			blank = len(out) > 0
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func hyphenatedTail(line string) bool {
	n := len(line)
	return n >= 2 && line[n-1] == '-' && isLowerASCII(line[n-2])
}

func isLowerASCII(b byte) bool {
	return b >= 'a' && b <= 'z'
}
