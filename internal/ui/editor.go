package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/stationlink/stationcfg/internal/deviceconfig"
	"github.com/stationlink/stationcfg/internal/schema"
)

// SaveFunc writes the changed fields. It runs outside the UI goroutine.
type SaveFunc func(changes map[string]string) error

// Messages for async operations
type saveCompleteMsg struct {
	err error
}

// editorKeyMap defines key bindings for the section editor
type editorKeyMap struct {
	Up    key.Binding
	Down  key.Binding
	Save  key.Binding
	Reset key.Binding
	Quit  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k editorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Save, k.Reset, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k editorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Save, k.Reset, k.Quit},
	}
}

func newEditorKeyMap() editorKeyMap {
	return editorKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "shift+tab"),
			key.WithHelp("↑/shift+tab", "previous"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "tab", "enter"),
			key.WithHelp("↓/tab", "next"),
		),
		Save: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "write to station"),
		),
		Reset: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "reset field"),
		),
		Quit: key.NewBinding(
			key.WithKeys("esc", "ctrl+c"),
			key.WithHelp("esc", "quit"),
		),
	}
}

// EditorModel edits the writable fields of one section inline and writes
// the changed ones through a SaveFunc.
type EditorModel struct {
	Namespace schema.Namespace
	Fields    []schema.Field
	Inputs    []textinput.Model
	Original  map[string]string

	Cursor     int
	Saving     bool
	Saved      bool
	Quit       bool
	Status     string
	Err        error
	Violations map[string]string

	save    SaveFunc
	spinner spinner.Model
	help    help.Model
	keys    editorKeyMap
	width   int
}

// NewEditorModel creates an editor for current. Secret fields are masked
// while editing unless showSecrets is set.
func NewEditorModel(current *schema.Section, save SaveFunc, showSecrets bool) EditorModel {
	ns := current.Namespace
	fields := schema.SchemaFor(ns).Writable()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = StepRunningStyle

	m := EditorModel{
		Namespace: ns,
		Fields:    fields,
		Inputs:    make([]textinput.Model, len(fields)),
		Original:  make(map[string]string, len(fields)),
		save:      save,
		spinner:   s,
		help:      help.New(),
		keys:      newEditorKeyMap(),
		width:     GetTerminalWidth(),
	}

	for i, f := range fields {
		text := current.Text(f.Key)
		m.Original[f.Key] = text

		in := textinput.New()
		in.Prompt = ""
		in.CharLimit = 64
		in.SetValue(text)
		if f.Secret && !showSecrets {
			in.EchoMode = textinput.EchoPassword
			in.EchoCharacter = '•'
		}
		m.Inputs[i] = in
	}
	if len(m.Inputs) > 0 {
		m.Inputs[0].Focus()
	}
	return m
}

// Init implements tea.Model
func (m EditorModel) Init() tea.Cmd {
	return textinput.Blink
}

// Changes returns the fields whose text differs from the device value
func (m EditorModel) Changes() map[string]string {
	changes := make(map[string]string)
	for i, f := range m.Fields {
		if v := m.Inputs[i].Value(); v != m.Original[f.Key] {
			changes[f.Key] = v
		}
	}
	return changes
}

// Update implements tea.Model
func (m EditorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		if !m.Saving {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case saveCompleteMsg:
		m.Saving = false
		if msg.err == nil {
			m.Saved = true
			m.Status = "Written and verified."
			return m, tea.Quit
		}
		m.Err = msg.err
		m.Violations = deviceconfig.Violations(msg.err)
		m.Status = ""
		return m, nil

	case tea.KeyMsg:
		if m.Saving {
			// Writes are not cancelled halfway
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.Quit = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			return m.focus(m.Cursor - 1)
		case key.Matches(msg, m.keys.Down):
			return m.focus(m.Cursor + 1)
		case key.Matches(msg, m.keys.Reset):
			f := m.Fields[m.Cursor]
			m.Inputs[m.Cursor].SetValue(m.Original[f.Key])
			delete(m.Violations, f.Key)
			return m, nil
		case key.Matches(msg, m.keys.Save):
			return m.startSave()
		}
	}

	if len(m.Inputs) == 0 {
		return m, nil
	}
	var cmd tea.Cmd
	m.Inputs[m.Cursor], cmd = m.Inputs[m.Cursor].Update(msg)
	return m, cmd
}

func (m EditorModel) focus(i int) (tea.Model, tea.Cmd) {
	if len(m.Inputs) == 0 {
		return m, nil
	}
	// Wrap around
	i = (i + len(m.Inputs)) % len(m.Inputs)
	m.Inputs[m.Cursor].Blur()
	m.Cursor = i
	return m, m.Inputs[m.Cursor].Focus()
}

func (m EditorModel) startSave() (tea.Model, tea.Cmd) {
	changes := m.Changes()
	if len(changes) == 0 {
		m.Status = "No changes to write."
		return m, nil
	}

	m.Saving = true
	m.Err = nil
	m.Violations = nil
	m.Status = fmt.Sprintf("Writing %d field(s)...", len(changes))

	save := m.save
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		return saveCompleteMsg{err: save(changes)}
	})
}

// View implements tea.Model
func (m EditorModel) View() string {
	var b strings.Builder

	b.WriteString(SectionTitleStyle.Render(fmt.Sprintf("Edit %s", m.Namespace.Title())))
	b.WriteString("  ")
	b.WriteString(FieldReadOnlyStyle.Render(schema.LocatorFor(m.Namespace).String()))
	b.WriteString("\n\n")

	labelWidth := 0
	for _, f := range m.Fields {
		labelWidth = max(labelWidth, lipgloss.Width(f.Label))
	}

	for i, f := range m.Fields {
		marker := "  "
		labelStyle := FieldLabelStyle
		if i == m.Cursor {
			marker = FieldFocusedStyle.Render("▸ ")
			labelStyle = FieldFocusedStyle
		}
		label := labelStyle.Render(f.Label + ":" + strings.Repeat(" ", labelWidth-lipgloss.Width(f.Label)))

		line := marker + label + "  " + m.Inputs[i].View()
		if m.Inputs[i].Value() != m.Original[f.Key] {
			line += " " + FieldChangedStyle.Render("*")
		}
		b.WriteString(line + "\n")

		if reason, ok := m.Violations[f.Key]; ok {
			b.WriteString(strings.Repeat(" ", labelWidth+5))
			b.WriteString(ErrorMessageStyle.Render(reason))
			b.WriteString("\n")
		}
	}

	// Violations for keys not shown as fields
	var other []string
	for k, reason := range m.Violations {
		if _, ok := schema.SchemaFor(m.Namespace).Field(k); !ok {
			other = append(other, reason)
		}
	}
	sort.Strings(other)
	for _, reason := range other {
		b.WriteString(ErrorMessageStyle.Render("  "+reason) + "\n")
	}

	b.WriteString("\n")
	switch {
	case m.Saving:
		b.WriteString(m.spinner.View() + " " + StepRunningStyle.Render(m.Status))
	case m.Err != nil && len(m.Violations) == 0:
		b.WriteString(ErrorMessageStyle.Render(FailureMarker + " " + deviceconfig.GetShortErrorMessage(m.Err)))
	case m.Status != "":
		b.WriteString(StepCompleteStyle.Render(m.Status))
	}
	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))

	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}

// EditorResult reports how an editing session ended
type EditorResult struct {
	Saved   bool
	Changes map[string]string
	Err     error // Last write error, if the user quit after a failure
}

// RunEditor runs the editor full screen until the user saves or quits.
func RunEditor(current *schema.Section, save SaveFunc, showSecrets bool) (*EditorResult, error) {
	p := tea.NewProgram(NewEditorModel(current, save, showSecrets), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("editor failed: %w", err)
	}
	m := final.(EditorModel)
	return &EditorResult{Saved: m.Saved, Changes: m.Changes(), Err: m.Err}, nil
}
