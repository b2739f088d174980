package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"adorable/internal/events"
)

const maxRecentFiles = 8

type eventMsg struct {
	ev events.Event
	ok bool
}

// ProgressModel is a bubbletea model following one event stream: a
// spinner with the current status and the most recently written files.
type ProgressModel struct {
	source   <-chan events.Event
	renderer *Renderer
	spinner  spinner.Model

	status   string
	files    []string
	warnings []string
	result   string
	errText  string
	done     bool
}

// NewProgressModel creates a progress view over source.
func NewProgressModel(source <-chan events.Event) ProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = DefaultStyles().Status
	return ProgressModel{
		source:   source,
		renderer: NewRenderer(nil),
		spinner:  s,
		status:   "starting",
	}
}

func (m ProgressModel) wait() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.source
		return eventMsg{ev: ev, ok: ok}
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.wait())
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.status = "detached; the run continues in the background"
			m.done = true
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case eventMsg:
		if !msg.ok {
			m.done = true
			return m, tea.Quit
		}
		m.apply(msg.ev)
		if m.done {
			return m, tea.Quit
		}
		return m, m.wait()
	}
	return m, nil
}

func (m *ProgressModel) apply(ev events.Event) {
	switch ev.Type {
	case events.TypeStatus:
		m.status = ev.Message
	case events.TypeFileUpdate:
		if ev.File != nil {
			m.files = append(m.files, m.renderer.Line(ev))
			if len(m.files) > maxRecentFiles {
				m.files = m.files[len(m.files)-maxRecentFiles:]
			}
		}
	case events.TypeWarning:
		m.warnings = append(m.warnings, m.renderer.Line(ev))
	case events.TypeVersionCreated:
		m.result = m.renderer.Line(ev)
	case events.TypeError:
		m.errText = m.renderer.Line(ev)
	case events.TypeDone:
		m.done = true
	}
}

func (m ProgressModel) View() string {
	var b strings.Builder
	if m.done {
		b.WriteString(MessageIcons["done"] + " " + m.status + "\n")
	} else {
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), m.status)
	}
	for _, f := range m.files {
		b.WriteString("  " + f + "\n")
	}
	for _, w := range m.warnings {
		b.WriteString(w + "\n")
	}
	if m.result != "" {
		b.WriteString(m.result + "\n")
	}
	if m.errText != "" {
		b.WriteString(m.errText + "\n")
	}
	return b.String()
}

// Failed reports whether the stream ended with an error event.
func (m ProgressModel) Failed() bool {
	return m.errText != ""
}

// RunProgress shows the progress view until the stream is done.
func RunProgress(source <-chan events.Event) (ProgressModel, error) {
	final, err := tea.NewProgram(NewProgressModel(source)).Run()
	if err != nil {
		return ProgressModel{}, err
	}
	return final.(ProgressModel), nil
}
