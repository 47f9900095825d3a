package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"dictate/event"
	"dictate/hotkey"
	"dictate/session"
)

const maxHistory = 6

// statusSource is what the view polls on every tick.
type statusSource interface {
	Snapshot() session.Snapshot
}

type levelSource interface {
	Level() float64
}

type tickMsg time.Time

type eventMsg event.Event

type historyLine struct {
	text    string
	command bool
}

type tuiModel struct {
	status statusSource
	level  levelSource
	keys   *hotkey.FakeHotkey

	header string
	device string

	snap    session.Snapshot
	audio   float64
	frame   int
	width   int
	history []historyLine
	warning string
	errLine string
}

var stateStyles = map[session.State]lipgloss.Style{
	session.Idle:       lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	session.Warming:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	session.Listening:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	session.Processing: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	session.Error:      lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true),
}

func newTUIModel(status statusSource, level levelSource, keys *hotkey.FakeHotkey, header, device string) tuiModel {
	return tuiModel{
		status: status,
		level:  level,
		keys:   keys,
		header: header,
		device: device,
		width:  60,
	}
}

// NewTUIProgram builds the status view. Space presses the focus-scoped
// hotkey; the global one keeps working while the view runs.
func NewTUIProgram(m tuiModel) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// tuiBridge forwards events into the program once it is attached. Events
// emitted earlier are dropped.
type tuiBridge struct {
	mu sync.Mutex
	p  *tea.Program
}

func (b *tuiBridge) attach(p *tea.Program) {
	b.mu.Lock()
	b.p = p
	b.mu.Unlock()
}

func (b *tuiBridge) Emit(e event.Event) {
	b.mu.Lock()
	p := b.p
	b.mu.Unlock()
	if p != nil {
		go p.Send(eventMsg(e))
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ":
			if m.keys != nil {
				keys := m.keys
				return m, func() tea.Msg {
					keys.SimTap()
					return nil
				}
			}
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width - 4
		if m.width < 20 {
			m.width = 20
		}
	case tickMsg:
		m.frame++
		if m.status != nil {
			m.snap = m.status.Snapshot()
		}
		if m.level != nil {
			m.audio = m.level.Level()
		}
		return m, tuiTick()
	case eventMsg:
		m = m.apply(event.Event(msg))
	}
	return m, nil
}

func (m tuiModel) apply(e event.Event) tuiModel {
	switch e.Kind {
	case event.SessionStarted:
		m.errLine = ""
		m.warning = ""
	case event.Delivered:
		m.push(historyLine{text: strings.TrimSpace(e.Text)})
	case event.CommandExecuted:
		m.push(historyLine{text: fmt.Sprintf("undo %d", e.UndoCount), command: true})
	case event.Error:
		msg := e.ErrKind.String()
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		if e.ErrKind.Soft() {
			m.warning = msg
		} else {
			m.errLine = msg
		}
	}
	return m
}

func (m *tuiModel) push(l historyLine) {
	m.history = append(m.history, l)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
}

func (m tuiModel) View() string {
	var b strings.Builder

	style, ok := stateStyles[m.snap.State]
	if !ok {
		style = stateStyles[session.Idle]
	}
	badge := strings.ToUpper(m.snap.State.String())
	if m.snap.State == session.Listening && m.frame%10 < 5 {
		badge = "● " + badge
	}
	b.WriteString(style.Render(badge))
	if m.snap.Mode != "" && m.snap.State.Active() {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render(" (" + string(m.snap.Mode) + ")"))
	}
	b.WriteString("\n")

	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	b.WriteString(dim.Render(m.header) + "\n")
	b.WriteString(dim.Render("mic: "+m.device) + "  " + renderMeter(m.audio, 16) + "\n\n")

	live := lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	if m.snap.Buffer != "" {
		for _, line := range wrapText(m.snap.Buffer, m.width) {
			b.WriteString(live.Render(line) + "\n")
		}
	} else {
		b.WriteString(dim.Render("…") + "\n")
	}
	b.WriteString("\n")

	delivered := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	command := lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	for _, h := range m.history {
		if h.command {
			b.WriteString(command.Render("↶ "+h.text) + "\n")
			continue
		}
		for _, line := range wrapText(h.text, m.width-2) {
			b.WriteString(delivered.Render("✓ "+line) + "\n")
		}
	}

	if m.warning != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Render("warning: "+m.warning) + "\n")
	}
	if m.errLine != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("error: "+m.errLine) + "\n")
	}

	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boldStyle := helpStyle.Bold(true)
	b.WriteString("\n" + boldStyle.Render("space") + helpStyle.Render(" start/stop  ") +
		boldStyle.Render("q") + helpStyle.Render(" quit"))

	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}

// renderMeter draws level in [0,1] as a bar of width cells.
func renderMeter(level float64, width int) string {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	filled := int(level*float64(width) + 0.5)
	on := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	off := lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
	return on.Render(strings.Repeat("▮", filled)) + off.Render(strings.Repeat("▯", width-filled))
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
