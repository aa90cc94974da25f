package paper

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Metadata is what can be guessed from the first page.
type Metadata struct {
	Title    string `json:"title,omitempty"`
	Abstract string `json:"abstract,omitempty"`
	Keywords string `json:"keywords,omitempty"`
}

const titleSearchLines = 20

var (
	titleRejectRe = regexp.MustCompile(`^\d+\.|abstract|introduction|arxiv`)

	abstractLeadRe = regexp.MustCompile(`(?i)abstract\s*[:\-]?\s*`)
	abstractEndRe  = regexp.MustCompile(`(?i)\n\s*\n|\nintroduction|\n1\.|\nkeywords`)

	keywordsLeadRe = regexp.MustCompile(`(?i)keywords?\s*[:\-]?\s*`)
	keywordsEndRe  = regexp.MustCompile(`(?i)\n\s*\n|\nintroduction|\n1\.`)
)

// ExtractMetadata guesses title, abstract and keywords from cleaned text.
//
// The title is the first of the first 20 lines longer than 20 and shorter
// than 200 characters that is not a numbered heading and does not mention
// abstract, introduction or arxiv. Abstract and keywords run from their
// label to the first blank line, "Introduction" line or "1." line; the
// abstract also stops at a "Keywords" line. A label with no terminator
// after it yields nothing.
func ExtractMetadata(text string) Metadata {
	var md Metadata

	lines := strings.Split(text, "\n")
	if len(lines) > titleSearchLines {
		lines = lines[:titleSearchLines]
	}
	for _, line := range lines {
		n := utf8.RuneCountInString(line)
		if n <= 20 || n >= 200 {
			continue
		}
		if titleRejectRe.MatchString(strings.ToLower(line)) {
			continue
		}
		md.Title = line
		break
	}

	md.Abstract = labelledBlock(text, abstractLeadRe, abstractEndRe)
	md.Keywords = labelledBlock(text, keywordsLeadRe, keywordsEndRe)
	return md
}

// labelledBlock returns the text between the first lead match and the
// first terminator after it.
func labelledBlock(text string, lead, end *regexp.Regexp) string {
	loc := lead.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	rest := text[loc[1]:]
	stop := end.FindStringIndex(rest)
	if stop == nil {
		return ""
	}
	return strings.TrimSpace(rest[:stop[0]])
}
