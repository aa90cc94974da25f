package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Format returns a canonical copy: trimmed lines, no spaces around
// operators, single blank lines between groups, LF endings and a final
// newline. Order and comments are preserved.
func (m *Manifest) Format() *Manifest {
	var b strings.Builder
	pendingBlank := false
	wrote := false
	for _, l := range m.Lines {
		body := strings.TrimSpace(stripCR(l.Raw))
		if l.Kind == BlankLine {
			pendingBlank = wrote
			continue
		}
		if pendingBlank {
			b.WriteString("\n")
			pendingBlank = false
		}
		switch l.Kind {
		case RequirementLine:
			b.WriteString(l.Name + l.Op + l.Version)
			if l.Comment != "" {
				b.WriteString("  # " + l.Comment)
			}
		default:
			b.WriteString(body)
		}
		b.WriteString("\n")
		wrote = true
	}
	return ParseString(b.String())
}

type pyProject struct {
	Project pyProjectMeta `toml:"project"`
	Tool    pyProjectTool `toml:"tool"`
}

type pyProjectMeta struct {
	Name           string   `toml:"name"`
	Version        string   `toml:"version"`
	RequiresPython string   `toml:"requires-python,omitempty"`
	Dependencies   []string `toml:"dependencies"`
}

type pyProjectTool struct {
	Paperslides struct {
		Groups map[string][]string `toml:"groups"`
	} `toml:"paperslides"`
}

// PyProject renders the manifest as a pyproject.toml document. Group
// membership is kept under [tool.paperslides.groups].
func (m *Manifest) PyProject(name, version string) ([]byte, error) {
	doc := pyProject{
		Project: pyProjectMeta{
			Name:           name,
			Version:        version,
			RequiresPython: ">=3.10",
		},
	}
	doc.Tool.Paperslides.Groups = make(map[string][]string)

	for _, r := range m.Requirements() {
		doc.Project.Dependencies = append(doc.Project.Dependencies, r.String())
		key := groupKey(r.Group)
		doc.Tool.Paperslides.Groups[key] = append(doc.Tool.Paperslides.Groups[key], NormalizeName(r.Name))
	}
	for _, names := range doc.Tool.Paperslides.Groups {
		sort.Strings(names)
	}

	data, err := toml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pyproject: %w", err)
	}
	return data, nil
}

func groupKey(group string) string {
	if group == "" {
		return "ungrouped"
	}
	return strings.Join(strings.Fields(strings.ToLower(group)), "-")
}
