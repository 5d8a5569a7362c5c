package watch

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"skyarena/internal/hub"
)

const maxLogLines = 1000

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries an event line for the viewport.
type logMsg struct{ line string }

// peersMsg replaces the peers table.
type peersMsg struct{ rows []PeerRow }

// statusMsg reports the stream connection state.
type statusMsg struct {
	connected bool
	err       error
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// TUI renders the stream with a bubbletea program: a peers table above a
// scrolling event log.
type TUI struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
	now        func() time.Time
}

// NewTUI starts the program. Quitting the program interrupts the process so
// the stream reader stops as well.
func NewTUI(source string) *TUI {
	w := &TUI{done: make(chan struct{}), now: time.Now}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newModel(source), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// Handle implements Sink.
func (w *TUI) Handle(m hub.Message) error {
	if rows, ok := Peers(m); ok {
		w.program.Send(peersMsg{rows: rows})
		return nil
	}
	if line, ok := Line(m, w.now()); ok {
		w.program.Send(logMsg{line: line})
	}
	return nil
}

// Status implements Sink.
func (w *TUI) Status(connected bool, err error) {
	w.program.Send(statusMsg{connected: connected, err: err})
}

// Close shuts down the program and waits for the terminal to be restored.
func (w *TUI) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type model struct {
	source     string
	table      table.Model
	vp         viewport.Model
	logs       []string
	peers      int
	connected  bool
	lastErr    error
	wrap       bool
	autoscroll bool
	width      int
	height     int
}

func newModel(source string) model {
	cols := []table.Column{
		{Title: "Team", Width: 6},
		{Title: "Lat", Width: 11},
		{Title: "Lon", Width: 11},
		{Title: "Alt", Width: 8},
		{Title: "Speed", Width: 7},
		{Title: "Batt", Width: 5},
		{Title: "Age ms", Width: 8},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(2))
	return model{
		source:     source,
		table:      t,
		vp:         viewport.New(0, 0),
		autoscroll: true,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.layout()
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
			return m, nil
		}
		if !m.autoscroll {
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshViewport()
	case peersMsg:
		rows := make([]table.Row, 0, len(msg.rows))
		for _, r := range msg.rows {
			team := r.Team
			if r.Home {
				team += "*"
			}
			rows = append(rows, table.Row{team, r.Lat, r.Lon, r.Alt, r.Speed, r.Battery, r.Age})
		}
		m.table.SetRows(rows)
		m.peers = len(rows)
		m.layout()
	case statusMsg:
		m.connected = msg.connected
		m.lastErr = msg.err
	}
	return m, nil
}

// layout sizes the table to its rows and gives the rest to the log.
func (m *model) layout() {
	th := m.peers + 1
	if th < 2 {
		th = 2
	}
	if limit := m.height / 2; limit > 2 && th > limit {
		th = limit
	}
	m.table.SetHeight(th)
	h := m.height - lipgloss.Height(m.table.View()) - 4
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *model) refreshViewport() {
	lines := m.logs
	if m.wrap && m.vp.Width > 0 {
		lines = make([]string, len(m.logs))
		for i, l := range m.logs {
			lines[i] = wordwrap.String(l, m.vp.Width)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m model) header() string {
	state := errStyle.Render("disconnected")
	if m.connected {
		state = okStyle.Render("connected")
	}
	h := fmt.Sprintf("%s  %s  %s", titleStyle.Render("skyarena watch"), m.source, state)
	if m.lastErr != nil && !m.connected {
		h += "  " + errStyle.Render(m.lastErr.Error())
	}
	return h
}

func (m model) View() string {
	flags := fmt.Sprintf("wrap=%t autoscroll=%t", m.wrap, m.autoscroll)
	return lipgloss.JoinVertical(lipgloss.Left,
		m.header(),
		m.table.View(),
		m.vp.View(),
		helpStyle.Render("q quit  w wrap  s autoscroll  "+flags),
	)
}
