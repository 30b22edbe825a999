package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const confirmWidth = 44

type confirmKeyMap struct {
	Confirm key.Binding
	Cancel  key.Binding
}

func defaultConfirmKeys() confirmKeyMap {
	return confirmKeyMap{
		Confirm: key.NewBinding(
			key.WithKeys("y", "enter"),
			key.WithHelp("y/enter", "Install"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("n", "esc", "q", "ctrl+c"),
			key.WithHelp("n/esc", "Cancel"),
		),
	}
}

// confirmModel asks whether to install a release.
type confirmModel struct {
	installed string
	available string
	pkg       string
	keys      confirmKeyMap

	confirmed bool
	done      bool
}

func newConfirmModel(installed, available, pkg string) *confirmModel {
	return &confirmModel{
		installed: installed,
		available: available,
		pkg:       pkg,
		keys:      defaultConfirmKeys(),
	}
}

// Init implements tea.Model.
func (m *confirmModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Confirm):
			m.confirmed = true
			m.done = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Cancel):
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *confirmModel) View() string {
	if m.done {
		return ""
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(warningColor).
		Padding(0, 1).
		Render(strings.Join(m.renderLines(), "\n"))
}

func (m *confirmModel) renderLines() []string {
	divider := dimStyle.Render(strings.Repeat("─", confirmWidth))
	installed := m.installed
	if installed == "" {
		installed = "not installed"
	}

	lines := []string{
		appStyle.Render("Update"),
		divider,
		"",
		warningStyle.Render("⚠") + " " + textStyle.Bold(true).Render("Install this release?"),
		"",
		"  " + dimStyle.Render("Installed: ") + textStyle.Render(installed),
		"  " + dimStyle.Render("Available: ") + successStyle.Render(m.available),
	}
	if m.pkg != "" {
		lines = append(lines, "  "+dimStyle.Render("Package:   ")+textStyle.Render(m.pkg))
	}
	lines = append(lines, "", divider, m.renderFooter())
	return lines
}

func (m *confirmModel) renderFooter() string {
	var hints []string
	for _, b := range []key.Binding{m.keys.Confirm, m.keys.Cancel} {
		h := b.Help()
		hints = append(hints, appStyle.Render(h.Key)+" "+dimStyle.Render(h.Desc))
	}
	return strings.Join(hints, dimStyle.Render("  •  "))
}

// runConfirm shows m until the user answers and reports whether they agreed.
func runConfirm(in io.Reader, out io.Writer, m *confirmModel) (bool, error) {
	prog := tea.NewProgram(m, tea.WithInput(in), tea.WithOutput(out))
	final, err := prog.Run()
	if err != nil {
		return false, fmt.Errorf("run confirmation: %w", err)
	}
	result, ok := final.(*confirmModel)
	if !ok {
		return false, fmt.Errorf("unexpected confirmation model %T", final)
	}
	return result.confirmed, nil
}
