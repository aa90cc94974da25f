package manifest

import (
	"fmt"
	"strings"
)

// IssueKind classifies a validation finding.
type IssueKind string

const (
	IssueSyntax         IssueKind = "syntax"
	IssueDuplicate      IssueKind = "duplicate"
	IssueMissingPin     IssueKind = "missing-pin"
	IssueMissingPackage IssueKind = "missing-package"
)

// Issue is a single validation finding. Line is 0 for file-level issues.
type Issue struct {
	Line    int
	Kind    IssueKind
	Message string
}

func (i Issue) String() string {
	if i.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", i.Line, i.Kind, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.Kind, i.Message)
}

// Issues is a list of findings; it implements error.
type Issues []Issue

func (is Issues) Error() string {
	parts := make([]string, len(is))
	for i, issue := range is {
		parts[i] = issue.String()
	}
	return strings.Join(parts, "; ")
}

// Err returns nil when there are no issues.
func (is Issues) Err() error {
	if len(is) == 0 {
		return nil
	}
	return is
}

// ValidateOptions configures Validate.
type ValidateOptions struct {
	// RequiredPins must be present with exactly this operator and version.
	RequiredPins []Requirement
	// RequiredPackages must be present, any constraint.
	RequiredPackages []string
}

// ConflictPin is the fsspec pin that keeps datasets and huggingface-hub
// installable together.
var ConflictPin = Requirement{Name: "fsspec", Op: "==", Version: "2024.9.0"}

// DefaultValidateOptions guards the documented conflict-resolution pin.
func DefaultValidateOptions() ValidateOptions {
	return ValidateOptions{RequiredPins: []Requirement{ConflictPin}}
}

// Validate checks grammar, duplicate declarations and required entries.
func (m *Manifest) Validate(opts ValidateOptions) Issues {
	var issues Issues

	seen := make(map[string]int)
	for _, l := range m.Lines {
		switch l.Kind {
		case InvalidLine:
			issues = append(issues, Issue{
				Line:    l.Number,
				Kind:    IssueSyntax,
				Message: fmt.Sprintf("%q does not match name[(%s)version]", strings.TrimSpace(stripCR(l.Raw)), strings.Join(Operators, "|")),
			})
		case RequirementLine:
			key := NormalizeName(l.Name)
			if first, dup := seen[key]; dup {
				issues = append(issues, Issue{
					Line:    l.Number,
					Kind:    IssueDuplicate,
					Message: fmt.Sprintf("%s already declared on line %d", l.Name, first),
				})
				continue
			}
			seen[key] = l.Number
		}
	}

	for _, pin := range opts.RequiredPins {
		got, ok := m.Lookup(pin.Name)
		switch {
		case !ok:
			issues = append(issues, Issue{
				Kind:    IssueMissingPin,
				Message: fmt.Sprintf("%s is required", pin),
			})
		case got.Op != pin.Op || got.Version != pin.Version:
			issues = append(issues, Issue{
				Line:    got.Line,
				Kind:    IssueMissingPin,
				Message: fmt.Sprintf("expected %s, found %s", pin, got),
			})
		}
	}

	for _, name := range opts.RequiredPackages {
		if _, ok := m.Lookup(name); !ok {
			issues = append(issues, Issue{
				Kind:    IssueMissingPackage,
				Message: fmt.Sprintf("%s is not declared", name),
			})
		}
	}

	return issues
}
