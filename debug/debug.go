// Package debug adapts the teacher's Bubble Tea runner TUI into a
// step-debugger for the interpreter: every brk instruction pauses
// execution and hands control to a model showing the active frame's
// token, instruction offset, evaluation-stack tags, and local slots.
package debug

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/clrvm/interp"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	tokenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	tagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// Action is the debugger's verdict once the user responds to a break.
type Action int

const (
	// ActionContinue resumes execution until the next brk or return.
	ActionContinue Action = iota
	// ActionAbort stops the run entirely.
	ActionAbort
)

const (
	viewportWidth  = 60
	viewportHeight = 16
)

type model struct {
	rt     *interp.Runtime
	frame  *interp.Frame
	action Action
	body   viewport.Model
}

func newModel(rt *interp.Runtime, f *interp.Frame) *model {
	m := &model{rt: rt, frame: f, body: viewport.New(viewportWidth, viewportHeight)}
	m.body.SetContent(m.renderBody())
	return m
}

func (m *model) Init() tea.Cmd { return nil }

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case "c", "s", "enter":
		m.action = ActionContinue
		return m, tea.Quit
	case "q", "ctrl+c":
		m.action = ActionAbort
		return m, tea.Quit
	case "up", "k", "down", "j", "pgup", "pgdown":
		var cmd tea.Cmd
		m.body, cmd = m.body.Update(keyMsg)
		return m, cmd
	}
	return m, nil
}

func (m *model) renderBody() string {
	var b strings.Builder

	b.WriteString("stack (bottom to top)\n")
	tags := m.rt.Stack().Tags()
	if len(tags) == 0 {
		b.WriteString("  (empty)\n")
	}
	for i, t := range tags {
		fmt.Fprintf(&b, "  [%d] %s\n", i, tagStyle.Render(t.String()))
	}

	b.WriteString("\nlocals\n")
	locals := m.frame.Locals()
	if len(locals) == 0 {
		b.WriteString("  (none written)\n")
	}
	for i, l := range locals {
		if !l.Has {
			fmt.Fprintf(&b, "  [%d] (empty)\n", i)
			continue
		}
		fmt.Fprintf(&b, "  [%d] %s\n", i, tagStyle.Render(l.Tag.String()))
	}

	return b.String()
}

func (m *model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("clrvm break"))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "method  %s\n", tokenStyle.Render(m.frame.MethodTok.String()))
	fmt.Fprintf(&b, "offset  %s\n", tokenStyle.Render(fmt.Sprintf("0x%x", m.frame.Offset())))
	fmt.Fprintf(&b, "instr   %s\n\n", tokenStyle.Render(m.frame.Current().Opcode.String()))

	b.WriteString(m.body.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("↑/↓ scroll • c/s continue • q abort"))
	return b.String()
}

// Hook returns an interp.BreakHook that opens a full-screen inspector on
// every brk. Aborting the run surfaces as an error the next time the frame
// loop tries to fetch an instruction, since the interpreter's frame loop
// has no external pause/resume entry point beyond the break hook itself;
// single-instruction stepping past brk is therefore not offered here, only
// a continue/abort choice per break.
func Hook() interp.BreakHook {
	return func(rt *interp.Runtime, f *interp.Frame) {
		m := newModel(rt, f)
		p := tea.NewProgram(m, tea.WithAltScreen())
		result, err := p.Run()
		if err != nil {
			return
		}
		if finished, ok := result.(*model); ok && finished.action == ActionAbort {
			rt.Abort()
		}
	}
}
