// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"fmt"
	"strings"

	"featex/internal/feature"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned by PickFeatures when the user quits without
// confirming.
var ErrCancelled = errors.New("tui: feature selection cancelled")

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E8A33D"))
)

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Add     key.Binding
	Remove  key.Binding
	Confirm key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k")),
	Down:    key.NewBinding(key.WithKeys("down", "j")),
	Add:     key.NewBinding(key.WithKeys(" ", "space", "enter")),
	Remove:  key.NewBinding(key.WithKeys("backspace", "x")),
	Confirm: key.NewBinding(key.WithKeys("d", "ctrl+d")),
	Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c")),
}

// PickerModel is the Bubble Tea model for choosing an ordered feature
// selection. Features may be picked more than once.
type PickerModel struct {
	catalog   []feature.Info
	cursor    int
	selected  []feature.ID
	viewport  viewport.Model
	ready     bool
	confirmed bool
	cancelled bool
	notice    string
}

// NewPickerModel creates a picker pre-filled with initial.
func NewPickerModel(initial []feature.ID) PickerModel {
	return PickerModel{
		catalog:  feature.Catalog(),
		selected: append([]feature.ID(nil), initial...),
	}
}

// Init initializes the Bubble Tea model
func (m PickerModel) Init() tea.Cmd {
	return nil
}

// Update handles input and updates the model
func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-6)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 6
		}
		m.viewport.SetContent(m.renderCatalog())
		return m, nil

	case tea.KeyMsg:
		m.notice = ""
		switch {
		case key.Matches(msg, keys.Quit):
			m.cancelled = true
			return m, tea.Quit

		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}

		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.catalog)-1 {
				m.cursor++
			}

		case key.Matches(msg, keys.Add):
			m.selected = append(m.selected, m.catalog[m.cursor].ID)

		case key.Matches(msg, keys.Remove):
			if n := len(m.selected); n > 0 {
				m.selected = m.selected[:n-1]
			}

		case key.Matches(msg, keys.Confirm):
			if len(m.selected) == 0 {
				m.notice = "Select at least one feature."
				break
			}
			m.confirmed = true
			return m, tea.Quit
		}
		if m.ready {
			m.viewport.SetContent(m.renderCatalog())
		}
		return m, nil
	}

	// Mouse wheel and other messages scroll the viewport.
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the UI
func (m PickerModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	title := titleStyle.Render("Feature Selection")
	help := infoStyle.Render("↑/↓: Navigate • Space/Enter: Add • Backspace: Remove last • d: Done • q: Quit")

	var sel string
	if len(m.selected) == 0 {
		sel = "Selected: (none)"
	} else {
		sel = "Selected: " + strings.Join(feature.Names(m.selected), ", ")
	}
	if m.notice != "" {
		sel += "\n" + warnStyle.Render(m.notice)
	}
	return fmt.Sprintf("%s\n\n%s\n%s\n\n%s", title, m.viewport.View(), sel, help)
}

// renderCatalog formats the feature list
func (m PickerModel) renderCatalog() string {
	var sb strings.Builder
	for i, info := range m.catalog {
		marker := " "
		if i == m.cursor {
			marker = "▶"
		}
		line := fmt.Sprintf("%s [%d] %-9s %s", marker, int(info.ID), info.Name, info.Title)
		if info.Unit != "" {
			line += " (" + info.Unit + ")"
		}
		line += "\n"
		if i == m.cursor {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// Selection returns the ordered selection.
func (m PickerModel) Selection() []feature.ID {
	return append([]feature.ID(nil), m.selected...)
}

// Confirmed reports whether the user finished with d.
func (m PickerModel) Confirmed() bool { return m.confirmed }

// PickFeatures runs the picker and returns the confirmed selection.
func PickFeatures(initial []feature.ID, opts ...tea.ProgramOption) ([]feature.ID, error) {
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	final, err := tea.NewProgram(NewPickerModel(initial), opts...).Run()
	if err != nil {
		return nil, err
	}
	m, ok := final.(PickerModel)
	if !ok || !m.Confirmed() {
		return nil, ErrCancelled
	}
	return m.Selection(), nil
}
