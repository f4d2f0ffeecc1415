package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-scripthost/proxy"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	memberStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	kindStyle = lipgloss.NewStyle().
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
	stateSelect modelState = iota
	stateInput
	stateResult
)

// action is what the input line feeds.
type action int

const (
	actionCall action = iota
	actionSet
)

type interactiveModel struct {
	err      error
	proxy    *proxy.Proxy
	name     string
	result   string
	members  []proxy.Member
	input    textinput.Model
	selected int
	state    modelState
	action   action
}

type resultMsg struct {
	err    error
	result string
}

func newInteractiveModel(name string, p *proxy.Proxy) *interactiveModel {
	return &interactiveModel{
		name:    name,
		proxy:   p,
		members: p.Members(),
		state:   stateSelect,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) current() proxy.Member {
	return m.members[m.selected]
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInput {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelect && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelect && m.selected < len(m.members)-1 {
				m.selected++
			}

		case "s":
			if m.state == stateSelect && len(m.members) > 0 && m.current().Writable {
				m.prepareInput(actionSet, "value: ", "new value")
				return m, textinput.Blink
			}

		case "enter":
			switch m.state {
			case stateSelect:
				if len(m.members) == 0 {
					return m, nil
				}
				member := m.current()
				switch {
				case member.Kind == proxy.Property && member.Readable:
					return m, m.get
				case member.Kind == proxy.Method && len(member.Params) > 0:
					m.prepareInput(actionCall, "args: ", typeList(member.Params))
					return m, textinput.Blink
				case member.Kind == proxy.Method:
					return m, m.call
				}

			case stateInput:
				if m.action == actionSet {
					return m, m.set
				}
				return m, m.call

			case stateResult:
				m.reset()
			}
			return m, nil

		case "esc":
			if m.state != stateSelect {
				m.reset()
				return m, nil
			}
		}

	case resultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateResult
		return m, nil
	}

	if m.state == stateInput {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) prepareInput(a action, prompt, placeholder string) {
	ti := textinput.New()
	ti.Prompt = prompt
	ti.Placeholder = placeholder
	ti.Width = 48
	ti.Focus()
	m.input = ti
	m.action = a
	m.state = stateInput
}

func (m *interactiveModel) reset() {
	m.state = stateSelect
	m.result = ""
	m.err = nil
}

func (m *interactiveModel) call() tea.Msg {
	member := m.current()
	var args []any
	if m.state == stateInput {
		for _, a := range splitArgs(m.input.Value()) {
			args = append(args, parseArg(a))
		}
	}
	v, err := invoke(context.Background(), m.proxy, member.Name, args)
	if err != nil {
		return resultMsg{err: err}
	}
	return resultMsg{result: formatResult(v)}
}

func (m *interactiveModel) get() tea.Msg {
	v, err := read(context.Background(), m.proxy, m.current().Name)
	if err != nil {
		return resultMsg{err: err}
	}
	return resultMsg{result: formatResult(v)}
}

func (m *interactiveModel) set() tea.Msg {
	name := m.current().Name
	if err := m.proxy.TrySet(context.Background(), name, parseArg(m.input.Value())); err != nil {
		return resultMsg{err: err}
	}
	return resultMsg{result: name + " updated"}
}

func formatResult(v any) string {
	switch v := v.(type) {
	case nil:
		return "ok"
	case string:
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Script Host"))
	b.WriteString(" ")
	b.WriteString(m.name)
	b.WriteString("\n\n")

	if len(m.members) == 0 {
		b.WriteString("The module exports no members.\n\n")
		b.WriteString(helpStyle.Render("q quit"))
		return b.String()
	}

	switch m.state {
	case stateSelect:
		b.WriteString("Select a member:\n\n")
		for i, member := range m.members {
			line := kindStyle.Render(fmt.Sprintf("%-8s ", member.Kind)) + memberStyle.Render(describe(member))
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + fmt.Sprintf("%-8s ", member.Kind) + describe(member)))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call/get • s set • q quit"))

	case stateInput:
		member := m.current()
		verb := "Calling"
		if m.action == actionSet {
			verb = "Setting"
		}
		b.WriteString(fmt.Sprintf("%s %s\n\n", verb, memberStyle.Render(member.Name)))
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render(`separate arguments with commas, quote strings: "Bob"`))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter run • esc back"))

	case stateResult:
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", memberStyle.Render(m.current().Name)))
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

func runInteractive(name string, p *proxy.Proxy) error {
	prog := tea.NewProgram(newInteractiveModel(name, p), tea.WithAltScreen())
	_, err := prog.Run()
	return err
}
