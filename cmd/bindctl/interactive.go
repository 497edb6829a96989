package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/nativebind/classdb"
	"github.com/wippyai/nativebind/runtime"
	"github.com/wippyai/nativebind/variant"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectClass modelState = iota
	stateSelectMethod
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	err      error
	db       *classdb.DB
	rt       *runtime.Runtime
	filename string
	result   string
	classes  []*classdb.Class
	methods  []*classdb.Method
	inputs   []textinput.Model
	class    int
	method   int
	focusIdx int
	state    modelState
}

type callResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(db *classdb.DB, rt *runtime.Runtime, filename string) *interactiveModel {
	return &interactiveModel{
		db:       db,
		rt:       rt,
		filename: filename,
		classes:  db.Classes(),
		state:    stateSelectClass,
	}
}

func (m *interactiveModel) Init() tea.Cmd { return nil }

// callable lists the methods of c and its ancestors that a caller can
// invoke directly.
func callable(c *classdb.Class) []*classdb.Method {
	var out []*classdb.Method
	for k := c; k != nil; k = k.Base() {
		for _, meth := range k.OwnMethods() {
			if !meth.Virtual {
				out = append(out, meth)
			}
		}
	}
	return out
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "up", "k":
			switch m.state {
			case stateSelectClass:
				if m.class > 0 {
					m.class--
				}
			case stateSelectMethod:
				if m.method > 0 {
					m.method--
				}
			}

		case "down", "j":
			switch m.state {
			case stateSelectClass:
				if m.class < len(m.classes)-1 {
					m.class++
				}
			case stateSelectMethod:
				if m.method < len(m.methods)-1 {
					m.method++
				}
			}

		case "enter":
			switch m.state {
			case stateSelectClass:
				if len(m.classes) == 0 {
					break
				}
				m.methods = callable(m.classes[m.class])
				m.method = 0
				m.state = stateSelectMethod

			case stateSelectMethod:
				if len(m.methods) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callMethod
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callMethod

			case stateShowResult:
				m.state = stateSelectMethod
				m.result = ""
				m.err = nil
			}
			return m, nil

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateSelectMethod:
				m.state = stateSelectClass
			case stateInputArgs:
				m.state = stateSelectMethod
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectMethod
				m.result = ""
				m.err = nil
			}
		}

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	meth := m.methods[m.method]
	m.inputs = make([]textinput.Model, len(meth.Args))
	for i, a := range meth.Args {
		ti := textinput.New()
		ti.Placeholder = typeStr(a)
		ti.Prompt = a.Name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callMethod() tea.Msg {
	raw := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		raw[i] = input.Value()
	}
	c := m.classes[m.class]
	result, err := callOnNew(context.Background(), m.rt, c.Name, m.methods[m.method].Name, raw)
	return callResultMsg{result: result, err: err}
}

func (m *interactiveModel) View() string {
	if len(m.classes) == 0 {
		return errorStyle.Render("The API description has no classes.\n\nPress q to quit.")
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("bindctl"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	if m.rt == nil {
		b.WriteString(helpStyle.Render("  (no engine, browse only)"))
	}
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectClass:
		b.WriteString("Select a class:\n\n")
		for i, c := range m.classes {
			line := c.Name
			if c.Parent != "" {
				line += typeStyle.Render(" : " + c.Parent)
			}
			if i == m.class {
				b.WriteString(selectedStyle.Render("> " + c.Name))
				if c.Parent != "" {
					b.WriteString(typeStyle.Render(" : " + c.Parent))
				}
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter methods • q quit"))

	case stateSelectMethod:
		c := m.classes[m.class]
		b.WriteString(fmt.Sprintf("Methods of %s:\n\n", funcStyle.Render(c.Name)))
		if len(m.methods) == 0 {
			b.WriteString(helpStyle.Render("  (none)"))
			b.WriteString("\n")
		}
		for i, meth := range m.methods {
			if i == m.method {
				b.WriteString(selectedStyle.Render("> " + meth.Class + "." + meth.Name))
			} else {
				b.WriteString("  " + m.formatMethod(meth))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • esc back • q quit"))

	case stateInputArgs:
		meth := m.methods[m.method]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(meth.Class+"."+meth.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(typeStr(meth.Args[i])))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		meth := m.methods[m.method]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(meth.Class+"."+meth.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatMethod(meth *classdb.Method) string {
	var params []string
	for _, a := range meth.Args {
		params = append(params, a.Name+": "+typeStyle.Render(typeStr(a)))
	}
	result := ""
	if meth.Return.Type != variant.Nil {
		result = " -> " + typeStyle.Render(typeStr(meth.Return))
	}
	return funcStyle.Render(meth.Class+"."+meth.Name) + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(db *classdb.DB, rt *runtime.Runtime, filename string) error {
	p := tea.NewProgram(newInteractiveModel(db, rt, filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
