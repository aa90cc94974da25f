package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C"))
	labelStyle = lipgloss.NewStyle().Width(22).Foreground(lipgloss.Color("#8BE9FD"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#7D56F4")).Padding(0, 1)
)

func heading(w io.Writer, s string) {
	fmt.Fprintln(w, titleStyle.Render(s))
}

func success(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, okStyle.Render("✓ ")+fmt.Sprintf(format, args...))
}

func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, warnStyle.Render("! ")+fmt.Sprintf(format, args...))
}

func failure(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, errStyle.Render("✗ ")+fmt.Sprintf(format, args...))
}

// field prints an aligned "label value" row.
func field(w io.Writer, label string, value any) {
	fmt.Fprintln(w, labelStyle.Render(label)+fmt.Sprint(value))
}

// box frames rows in a rounded border.
func box(w io.Writer, rows ...string) {
	fmt.Fprintln(w, boxStyle.Render(strings.Join(rows, "\n")))
}
