package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/fusegraph/pkg/ir"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// patternListModel is the bubbletea model for browsing the operator
// pattern registry.
type patternListModel struct {
	names  []string
	reg    *ir.Registry
	cursor int
	height int
	offset int
}

func newPatternListModel(names []string, reg *ir.Registry) patternListModel {
	return patternListModel{names: names, reg: reg, height: 15}
}

func (m patternListModel) Init() tea.Cmd {
	return nil
}

func (m patternListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc", "enter":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
				if m.cursor < m.offset {
					m.offset = m.cursor
				}
			}
		case "down", "j":
			if m.cursor < len(m.names)-1 {
				m.cursor++
				if m.cursor >= m.offset+m.height {
					m.offset = m.cursor - m.height + 1
				}
			}
		}
	case tea.WindowSizeMsg:
		m.height = msg.Height - 6
		if m.height < 5 {
			m.height = 5
		}
	}
	return m, nil
}

func (m patternListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Operator Patterns"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  q quit"))
	b.WriteString("\n\n")

	end := m.offset + m.height
	if end > len(m.names) {
		end = len(m.names)
	}

	for i := m.offset; i < end; i++ {
		name := m.names[i]
		line := fmt.Sprintf("%-24s %s", name, m.reg.Lookup(name))
		if i == m.cursor {
			b.WriteString(listSelectedStyle.Render("» " + line))
		} else {
			b.WriteString(listNormalStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// browsePatterns runs the interactive registry browser.
func browsePatterns(names []string, reg *ir.Registry) error {
	_, err := tea.NewProgram(newPatternListModel(names, reg)).Run()
	return err
}
