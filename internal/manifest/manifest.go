// Package manifest reads, validates and rewrites Python requirements
// manifests (the requirements.txt describing the finetuning environment).
//
// Parsing is lossless: every byte of the source, including comments, blank
// lines, CRLF endings and a missing final newline, is retained so that
// Parse(x).Bytes() reproduces x exactly. Lines that do not match the
// requirement grammar are kept as Invalid lines and reported by Validate
// rather than rejected by Parse.
package manifest

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Kind classifies a manifest line.
type Kind int

const (
	BlankLine Kind = iota
	CommentLine
	RequirementLine
	InvalidLine
)

func (k Kind) String() string {
	switch k {
	case BlankLine:
		return "blank"
	case CommentLine:
		return "comment"
	case RequirementLine:
		return "requirement"
	case InvalidLine:
		return "invalid"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Supported comparison operators.
var Operators = []string{"==", ">=", "<=", "~=", "!="}

// Line is a single manifest line.
type Line struct {
	Number int    // 1-based
	Kind   Kind   //
	Raw    string // exact text, without the '\n' terminator

	// Requirement fields.
	Name    string
	Op      string
	Version string
	Comment string // inline comment text after '#', trimmed
	Group   string // header comment of the enclosing group
}

// Requirement is a parsed requirement.
type Requirement struct {
	Name    string
	Op      string
	Version string
	Group   string
	Line    int
}

// String renders the requirement in canonical form.
func (r Requirement) String() string {
	return r.Name + r.Op + r.Version
}

// Pinned reports whether the requirement is an exact pin.
func (r Requirement) Pinned() bool {
	return r.Op == "=="
}

// Manifest is the lossless representation of a requirements file.
type Manifest struct {
	Lines        []Line
	FinalNewline bool
}

var (
	requirementRe = regexp.MustCompile(`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(?:(==|>=|<=|~=|!=)\s*([A-Za-z0-9][A-Za-z0-9.*+!_-]*))?$`)
	inlineCommentRe = regexp.MustCompile(`\s+#`)
	normalizeRe     = regexp.MustCompile(`[-_.]+`)
)

// NormalizeName applies PEP 503 name normalization.
func NormalizeName(name string) string {
	return strings.ToLower(normalizeRe.ReplaceAllString(name, "-"))
}

// Parse reads a manifest. It only fails on read errors.
func Parse(r io.Reader) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return parseBytes(data), nil
}

// ParseString parses manifest text.
func ParseString(s string) *Manifest {
	return parseBytes([]byte(s))
}

// ParseFile parses the manifest at path.
func ParseFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return parseBytes(data), nil
}

func parseBytes(data []byte) *Manifest {
	m := &Manifest{}
	if len(data) == 0 {
		return m
	}
	text := string(data)
	if strings.HasSuffix(text, "\n") {
		m.FinalNewline = true
		text = strings.TrimSuffix(text, "\n")
	}

	group := ""
	prevBlank := true
	for i, raw := range strings.Split(text, "\n") {
		line := parseLine(i+1, raw)
		switch line.Kind {
		case CommentLine:
			if prevBlank {
				group = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(stripCR(raw)), "#"))
			}
		case RequirementLine, InvalidLine:
			line.Group = group
		}
		prevBlank = line.Kind == BlankLine
		m.Lines = append(m.Lines, line)
	}
	return m
}

func stripCR(s string) string {
	return strings.TrimSuffix(s, "\r")
}

func parseLine(number int, raw string) Line {
	line := Line{Number: number, Raw: raw}
	body := strings.TrimSpace(stripCR(raw))

	switch {
	case body == "":
		line.Kind = BlankLine
		return line
	case strings.HasPrefix(body, "#"):
		line.Kind = CommentLine
		return line
	}

	if loc := inlineCommentRe.FindStringIndex(body); loc != nil {
		line.Comment = strings.TrimSpace(body[loc[1]:])
		body = strings.TrimSpace(body[:loc[0]])
	}

	match := requirementRe.FindStringSubmatch(body)
	if match == nil {
		line.Kind = InvalidLine
		return line
	}
	line.Kind = RequirementLine
	line.Name = match[1]
	line.Op = match[2]
	line.Version = match[3]
	return line
}

// Bytes re-serializes the manifest exactly as parsed.
func (m *Manifest) Bytes() []byte {
	var buf bytes.Buffer
	for i, l := range m.Lines {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(l.Raw)
	}
	if m.FinalNewline {
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// String implements fmt.Stringer.
func (m *Manifest) String() string {
	return string(m.Bytes())
}

// WriteTo writes the serialized manifest to w.
func (m *Manifest) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(m.Bytes())
	return int64(n), err
}

// WriteFile writes the serialized manifest to path.
func (m *Manifest) WriteFile(path string) error {
	if err := os.WriteFile(path, m.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", path, err)
	}
	return nil
}

// Requirements returns every valid requirement in file order.
func (m *Manifest) Requirements() []Requirement {
	var reqs []Requirement
	for _, l := range m.Lines {
		if l.Kind != RequirementLine {
			continue
		}
		reqs = append(reqs, Requirement{Name: l.Name, Op: l.Op, Version: l.Version, Group: l.Group, Line: l.Number})
	}
	return reqs
}

// Lookup finds a requirement by (normalized) name.
func (m *Manifest) Lookup(name string) (Requirement, bool) {
	want := NormalizeName(name)
	for _, r := range m.Requirements() {
		if NormalizeName(r.Name) == want {
			return r, true
		}
	}
	return Requirement{}, false
}

// Group is a header comment and the requirements under it.
type Group struct {
	Name         string
	Requirements []Requirement
}

// Groups returns requirements grouped by header comment, in file order.
func (m *Manifest) Groups() []Group {
	var groups []Group
	index := make(map[string]int)
	for _, r := range m.Requirements() {
		i, ok := index[r.Group]
		if !ok {
			i = len(groups)
			index[r.Group] = i
			groups = append(groups, Group{Name: r.Group})
		}
		groups[i].Requirements = append(groups[i].Requirements, r)
	}
	return groups
}

//go:embed requirements.txt
var defaultManifest []byte

// Default returns the bundled requirements manifest of the finetuning
// environment.
func Default() *Manifest {
	return parseBytes(defaultManifest)
}
