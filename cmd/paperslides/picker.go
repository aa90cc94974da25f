package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// strategyPicker is a checklist of search strategies.
type strategyPicker struct {
	items     []string
	selected  map[int]bool
	cursor    int
	done      bool
	cancelled bool
}

func newStrategyPicker(items []string) strategyPicker {
	sel := make(map[int]bool, len(items))
	for i := range items {
		sel[i] = true
	}
	return strategyPicker{items: items, selected: sel}
}

func (m strategyPicker) Init() tea.Cmd { return nil }

func (m strategyPicker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "q", "esc":
		m.cancelled = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case " ", "x":
		m.selected[m.cursor] = !m.selected[m.cursor]
	case "a":
		all := len(m.chosen()) != len(m.items)
		for i := range m.items {
			m.selected[i] = all
		}
	case "enter":
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m strategyPicker) View() string {
	if m.done || m.cancelled {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Select arXiv search strategies") + "\n\n")
	for i, item := range m.items {
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}
		check := "[ ]"
		if m.selected[i] {
			check = okStyle.Render("[x]")
		}
		fmt.Fprintf(&b, "%s%s %s\n", cursor, check, item)
	}
	b.WriteString("\n" + mutedStyle.Render("space toggle • a all/none • enter fetch • q cancel") + "\n")
	return b.String()
}

// chosen returns the selected strategies in list order.
func (m strategyPicker) chosen() []string {
	var out []string
	for i, item := range m.items {
		if m.selected[i] {
			out = append(out, item)
		}
	}
	return out
}

// pickStrategies runs the picker; ok is false when the user cancelled.
func pickStrategies(items []string) (chosen []string, ok bool, err error) {
	final, err := tea.NewProgram(newStrategyPicker(items)).Run()
	if err != nil {
		return nil, false, fmt.Errorf("strategy picker failed: %w", err)
	}
	m := final.(strategyPicker)
	if m.cancelled {
		return nil, false, nil
	}
	return m.chosen(), true, nil
}
