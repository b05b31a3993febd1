package main

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"parley/clipboard"
	"parley/config"
	"parley/engine"
	"parley/log"
	"parley/nethealth"
	"parley/session"
	"parley/transcript"
	"parley/transport"
	"parley/uplink"
)

// TUI message types
type SnapshotMsg engine.Snapshot
type NoticeMsg struct{ Text string }
type tickMsg time.Time

const statusWidth = 34

var (
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKeyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	youStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	agentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	partialStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)

	stateColors = map[session.State]string{
		session.Disconnected: "241",
		session.Connecting:   "214",
		session.Listening:    "42",
		session.Thinking:     "141",
		session.Speaking:     "39",
	}
	healthColors = map[nethealth.Health]string{
		nethealth.Unknown:  "241",
		nethealth.Good:     "42",
		nethealth.Degraded: "214",
		nethealth.Bad:      "196",
	}
)

// Controller is what the TUI needs from the engine.
type Controller interface {
	Connect(ctx context.Context) error
	Disconnect()
}

type tuiModel struct {
	ctx    context.Context
	ctl    Controller
	snap   engine.Snapshot
	level  func() float64
	room   func() string
	combo  string
	ptt    bool
	notice string

	frame         int
	micLevel      float64
	width, height int
}

// tuiSink forwards engine updates into the Bubble Tea program.
type tuiSink struct{ p *tea.Program }

func (s tuiSink) Snapshot(snap engine.Snapshot) { s.p.Send(SnapshotMsg(snap)) }
func (s tuiSink) Notice(text string)            { s.p.Send(NoticeMsg{Text: text}) }

func newTUIModel(ctx context.Context, ctl Controller, cfg config.Config) tuiModel {
	m := tuiModel{
		ctx:   ctx,
		ctl:   ctl,
		level: func() float64 { return 0 },
		room:  func() string { return "" },
		ptt:   cfg.PTT.Enabled,
	}
	if c, err := cfg.Hotkey(); err == nil {
		m.combo = c.String()
	}
	return m
}

func runTUI(ctx context.Context, eng *engine.Engine, lk *transport.LiveKit, up *uplink.Uplink, cfg config.Config) error {
	m := newTUIModel(ctx, eng, cfg)
	m.level = up.Level
	m.room = lk.RoomName

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	pumpCtx, stop := context.WithCancel(ctx)
	defer stop()
	go pump(pumpCtx, eng, tuiSink{p})

	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		// interrupted by a signal
		return nil
	}
	return err
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) connect() tea.Cmd {
	return func() tea.Msg {
		if err := m.ctl.Connect(m.ctx); err != nil {
			log.Errorf("connect: %v", err)
			return NoticeMsg{Text: "connect failed: " + err.Error()}
		}
		return nil
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "s":
			if m.snap.State == session.Disconnected {
				m.notice = ""
				return m, m.connect()
			}
		case "d":
			if m.snap.State != session.Disconnected {
				go m.ctl.Disconnect()
			}
		case "c":
			n, err := clipboard.CopyTranscript(m.snap.Entries)
			switch {
			case err != nil:
				m.notice = err.Error()
			case n == 0:
				m.notice = "nothing to copy"
			default:
				m.notice = fmt.Sprintf("copied %d entries", n)
			}
		}

	case tickMsg:
		m.frame++
		// smooth like a VU meter: fast attack, slow release
		if l := m.level(); l > m.micLevel {
			m.micLevel = l
		} else {
			m.micLevel = m.micLevel*0.8 + l*0.2
		}
		return m, tuiTick()

	case SnapshotMsg:
		m.snap = engine.Snapshot(msg)

	case NoticeMsg:
		m.notice = msg.Text
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	status := lipgloss.NewStyle().
		Width(statusWidth).
		Height(m.height).
		Render(strings.Join(m.statusLines(), "\n"))

	panelWidth := max(m.width-statusWidth-1, 20)
	panel := lipgloss.NewStyle().
		Width(panelWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(m.transcriptView(panelWidth-2, m.height))

	return lipgloss.JoinHorizontal(lipgloss.Top, status, panel)
}

func (m tuiModel) statusLines() []string {
	s := m.snap
	var lines []string

	stateStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(stateColors[s.State])).Bold(true)
	marker := "○"
	if s.State.Active() {
		marker = "●"
		// pulse while waiting for the agent
		if s.State == session.Connecting && m.frame/8%2 == 1 {
			marker = "◌"
		}
	}
	lines = append(lines, stateStyle.Render(marker+" "+strings.ToUpper(s.State.String())))

	if room := m.room(); room != "" && s.State.Active() {
		lines = append(lines, dimStyle.Render("room: "+room))
	}

	healthStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(healthColors[s.Report.Health]))
	lines = append(lines, healthStyle.Render("net: "+s.Report.Health.String()))
	if detail := s.Report.String(); detail != "" {
		lines = append(lines, dimStyle.Render("  "+detail))
	}

	mic := "mic: off"
	if s.MicEnabled && s.State.Active() {
		mic = "mic: on  " + levelBar(m.micLevel, 12)
	}
	lines = append(lines, dimStyle.Render(mic))

	if s.NoAgent {
		lines = append(lines, "", warnStyle.Render("⚠ no agent has joined"))
	}
	if m.notice != "" {
		lines = append(lines, "", warnStyle.Render(m.notice))
	}

	lines = append(lines, "")
	if s.State == session.Disconnected {
		lines = append(lines, helpKeyStyle.Render("s")+helpStyle.Render(" start conversation"))
	} else {
		lines = append(lines, helpKeyStyle.Render("d")+helpStyle.Render(" disconnect"))
	}
	lines = append(lines,
		helpKeyStyle.Render("c")+helpStyle.Render(" copy transcript"),
		helpKeyStyle.Render("q")+helpStyle.Render(" quit"),
	)
	if m.ptt && m.combo != "" {
		lines = append(lines, helpKeyStyle.Render(m.combo)+helpStyle.Render(" talk"))
	}
	lines = append(lines, helpStyle.Render("parley "+version))
	return lines
}

func levelBar(level float64, width int) string {
	// speech RMS rarely exceeds 0.3
	n := int(level / 0.3 * float64(width))
	n = min(max(n, 0), width)
	return strings.Repeat("▮", n) + strings.Repeat("▯", width-n)
}

// transcriptView renders entries oldest first, keeping the newest lines
// visible when they overflow the pane.
func (m tuiModel) transcriptView(width, height int) string {
	entries := m.snap.Entries
	if len(entries) == 0 {
		return dimStyle.Render("No transcript yet")
	}
	var lines []string
	for i, e := range entries {
		if i > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, renderEntry(e, width)...)
	}
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	return strings.Join(lines, "\n")
}

func renderEntry(e transcript.Entry, width int) []string {
	style := agentStyle
	if e.Local() {
		style = youStyle
	}
	label := lipgloss.NewStyle().Bold(true).Inherit(style).Render(e.Speaker + ":")
	textStyle := style
	if !e.Final {
		textStyle = partialStyle
	}
	var out []string
	for i, line := range wrapText(e.Text, width-utf8.RuneCountInString(e.Speaker)-2) {
		if i == 0 {
			out = append(out, label+" "+textStyle.Render(line))
			continue
		}
		out = append(out, strings.Repeat(" ", utf8.RuneCountInString(e.Speaker)+2)+textStyle.Render(line))
	}
	return out
}

// wrapText breaks text on spaces into lines of at most width runes.
func wrapText(text string, width int) []string {
	if text == "" {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}
	var lines []string
	runes := []rune(text)
	for len(runes) > width {
		splitAt := width
		for i := width; i > 0; i-- {
			if runes[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, string(runes[:splitAt]))
		runes = []rune(strings.TrimLeft(string(runes[splitAt:]), " "))
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return lines
}
