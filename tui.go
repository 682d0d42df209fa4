package main

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"quill/controller"
	"quill/history"
)

// TUI message types
type StatusMsg struct{ State controller.State }
type TranscriptMsg struct {
	Text  string
	Final bool
}
type ErrorMsg struct{ Err error }
type HistoryMsg struct{ Entry history.Entry }
type LevelMsg struct{ Level float64 }
type SilenceMsg struct{ Active bool }
type clearErrorMsg struct{ seq int }
type tickMsg time.Time

// errorBannerTTL is how long a transient error stays on screen before
// clearing itself. Errors never require acknowledgment.
const errorBannerTTL = 4 * time.Second

// TUICommands are the controller actions a key press may issue. The TUI
// issues the same commands a hotkey edge would; it never touches
// controller state directly.
type TUICommands struct {
	Start    func()
	Stop     func()
	Cancel   func()
	CopyLast func()
	Retype   func()
}

type palette struct {
	accent  lipgloss.Color
	text    lipgloss.Color
	dim     lipgloss.Color
	faint   lipgloss.Color
	rec     lipgloss.Color
	ok      lipgloss.Color
	warn    lipgloss.Color
	errCol  lipgloss.Color
	speech  lipgloss.Color
	silence lipgloss.Color
}

func themeFor(name string) palette {
	if name == "light" {
		return palette{
			accent:  lipgloss.Color("25"),
			text:    lipgloss.Color("235"),
			dim:     lipgloss.Color("243"),
			faint:   lipgloss.Color("249"),
			rec:     lipgloss.Color("160"),
			ok:      lipgloss.Color("28"),
			warn:    lipgloss.Color("130"),
			errCol:  lipgloss.Color("124"),
			speech:  lipgloss.Color("25"),
			silence: lipgloss.Color("130"),
		}
	}
	return palette{
		accent:  lipgloss.Color("75"),
		text:    lipgloss.Color("252"),
		dim:     lipgloss.Color("243"),
		faint:   lipgloss.Color("239"),
		rec:     lipgloss.Color("196"),
		ok:      lipgloss.Color("42"),
		warn:    lipgloss.Color("214"),
		errCol:  lipgloss.Color("160"),
		speech:  lipgloss.Color("4"),
		silence: lipgloss.Color("208"),
	}
}

// TUI owns the Bubble Tea program and exposes the visibility predicate
// the hotkey bridge routes on. It subscribes to the controller through
// Observer and re-renders from events; it holds no state of its own
// beyond presentation.
type TUI struct {
	program *tea.Program
	widget  *atomic.Bool
}

func NewTUI(theme, modeLine, deviceLine, hotkeyLine string, cmds TUICommands) *TUI {
	widget := new(atomic.Bool)
	m := tuiModel{
		theme:      themeFor(theme),
		cmds:       cmds,
		widget:     widget,
		modeLine:   modeLine,
		deviceLine: deviceLine,
		hotkeyLine: hotkeyLine,
	}
	return &TUI{
		program: tea.NewProgram(m, tea.WithAltScreen()),
		widget:  widget,
	}
}

// Run blocks until the user quits.
func (t *TUI) Run() error {
	_, err := t.program.Run()
	return err
}

func (t *TUI) Quit() {
	t.program.Quit()
}

// WidgetVisible reports whether the compact widget is the surface on
// screen. Registered with the hotkey bridge so edges route to the
// widget only while it is showing.
func (t *TUI) WidgetVisible() bool {
	return t.widget.Load()
}

// Observer returns the controller subscription feeding this TUI. All
// callbacks hand off to the program's message queue and do not block.
func (t *TUI) Observer() controller.Observer {
	return controller.Funcs{
		OnStatus:     func(s controller.State) { t.program.Send(StatusMsg{State: s}) },
		OnTranscript: func(text string, final bool) { t.program.Send(TranscriptMsg{Text: text, Final: final}) },
		OnError:      func(err error) { t.program.Send(ErrorMsg{Err: err}) },
		OnHistory:    func(e history.Entry) { t.program.Send(HistoryMsg{Entry: e}) },
		OnLevel:      func(l float64) { t.program.Send(LevelMsg{Level: l}) },
		OnSilence:    func(active bool) { t.program.Send(SilenceMsg{Active: active}) },
	}
}

type tuiModel struct {
	theme  palette
	cmds   TUICommands
	widget *atomic.Bool

	state      controller.State
	frame      int
	recStarted time.Time
	audioLevel float64
	peakLevel  float64

	width, height int
	compact       bool

	modeLine   string
	deviceLine string
	hotkeyLine string

	interim  string
	lastText string
	noSpeech bool
	msgCount int

	lastEntry *history.Entry

	errText string
	errSeq  int
	silence bool
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
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
		case "tab":
			m.compact = !m.compact
			m.widget.Store(m.compact)
		case " ":
			switch m.state {
			case controller.Idle:
				if m.cmds.Start != nil {
					m.cmds.Start()
				}
			case controller.Recording:
				if m.cmds.Stop != nil {
					m.cmds.Stop()
				}
			}
		case "esc":
			if m.cmds.Cancel != nil {
				m.cmds.Cancel()
			}
		case "y":
			if m.cmds.CopyLast != nil {
				m.cmds.CopyLast()
			}
		case "r":
			if m.cmds.Retype != nil {
				m.cmds.Retype()
			}
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case StatusMsg:
		m.state = msg.State
		switch msg.State {
		case controller.Recording:
			m.recStarted = time.Now()
			m.peakLevel = 0
			m.interim = ""
		case controller.Idle:
			m.audioLevel = 0
			m.silence = false
		}

	case TranscriptMsg:
		if msg.Final {
			m.msgCount++
			m.lastText = msg.Text
			m.noSpeech = msg.Text == ""
			m.interim = ""
		} else {
			m.interim = msg.Text
		}

	case ErrorMsg:
		m.errText = msg.Err.Error()
		m.errSeq++
		seq := m.errSeq
		return m, tea.Tick(errorBannerTTL, func(time.Time) tea.Msg {
			return clearErrorMsg{seq: seq}
		})

	case clearErrorMsg:
		if msg.seq == m.errSeq {
			m.errText = ""
		}

	case HistoryMsg:
		e := msg.Entry
		m.lastEntry = &e

	case LevelMsg:
		if m.state == controller.Recording {
			m.audioLevel = m.audioLevel*0.6 + msg.Level*0.4
			if msg.Level > m.peakLevel {
				m.peakLevel = msg.Level
			}
		}

	case SilenceMsg:
		m.silence = msg.Active
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.compact {
		return m.viewWidget()
	}
	return m.viewPanel()
}

// viewWidget is the compact surface: one status line plus the level
// meter, for keeping in a corner terminal.
func (m tuiModel) viewWidget() string {
	var b strings.Builder
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	if m.state == controller.Recording {
		b.WriteString(m.levelMeter(16))
		b.WriteString("\n")
	}
	if m.errText != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(m.theme.errCol).Render(m.errText))
		b.WriteString("\n")
	}
	help := lipgloss.NewStyle().Foreground(m.theme.faint)
	b.WriteString(help.Render("tab panel  q quit"))
	return b.String()
}

func (m tuiModel) viewPanel() string {
	var lines []string

	title := lipgloss.NewStyle().Foreground(m.theme.accent).Bold(true)
	lines = append(lines, title.Render("quill "+version), "")

	lines = append(lines, m.statusLine())

	if m.state == controller.Recording {
		meter := m.levelMeter(28)
		if m.peakLevel > 0 {
			meter += lipgloss.NewStyle().Foreground(m.theme.faint).
				Render(fmt.Sprintf("  peak %.2f", m.peakLevel))
		}
		lines = append(lines, meter)
	}

	if m.silence {
		lines = append(lines, lipgloss.NewStyle().Foreground(m.theme.silence).
			Render("no speech detected, still listening"))
	}

	lines = append(lines, "")

	dim := lipgloss.NewStyle().Foreground(m.theme.dim)
	if m.modeLine != "" {
		lines = append(lines, dim.Render(m.modeLine))
	}
	if m.deviceLine != "" {
		lines = append(lines, dim.Render(m.deviceLine))
	}

	lines = append(lines, "")
	lines = append(lines, m.transcriptLines()...)

	if m.errText != "" {
		lines = append(lines, "")
		banner := lipgloss.NewStyle().Foreground(m.theme.errCol).Bold(true)
		lines = append(lines, banner.Render("✗ "+m.errText))
	}

	lines = append(lines, "")
	help := lipgloss.NewStyle().Foreground(m.theme.faint)
	bold := lipgloss.NewStyle().Foreground(m.theme.faint).Bold(true)
	if m.hotkeyLine != "" {
		lines = append(lines, bold.Render(m.hotkeyLine)+help.Render(" to dictate"))
	}
	lines = append(lines, help.Render("space start/stop  esc cancel  r retype  y copy last  tab widget  q quit"))

	return strings.Join(lines, "\n")
}

func (m tuiModel) statusLine() string {
	switch m.state {
	case controller.Recording:
		dur := time.Since(m.recStarted).Seconds()
		return lipgloss.NewStyle().Foreground(m.theme.rec).Bold(true).
			Render(fmt.Sprintf("● REC %.1fs", dur))
	case controller.Connecting:
		return lipgloss.NewStyle().Foreground(m.theme.warn).
			Render("◌ CONNECTING" + spinnerDots(m.frame))
	case controller.Processing:
		return lipgloss.NewStyle().Foreground(m.theme.warn).
			Render("◌ PROCESSING" + spinnerDots(m.frame))
	case controller.Injecting:
		return lipgloss.NewStyle().Foreground(m.theme.ok).
			Render("● TYPING")
	case controller.Failed:
		return lipgloss.NewStyle().Foreground(m.theme.errCol).Bold(true).
			Render("✗ ERROR")
	default:
		return lipgloss.NewStyle().Foreground(m.theme.dim).
			Render("○ STANDBY")
	}
}

func spinnerDots(frame int) string {
	return strings.Repeat(".", frame/8%4)
}

func (m tuiModel) levelMeter(width int) string {
	filled := int(m.audioLevel * 10 * float64(width))
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return lipgloss.NewStyle().Foreground(m.theme.speech).Render(bar)
}

func (m tuiModel) transcriptLines() []string {
	wrapWidth := m.width - 4
	if wrapWidth < 20 {
		wrapWidth = 60
	}

	if m.interim != "" {
		style := lipgloss.NewStyle().Foreground(m.theme.dim).Italic(true)
		var out []string
		for _, line := range wrapText(m.interim, wrapWidth) {
			out = append(out, style.Render(line))
		}
		return out
	}

	if m.lastText == "" && !m.noSpeech {
		return []string{lipgloss.NewStyle().Foreground(m.theme.faint).
			Render("No transcriptions yet")}
	}

	header := lipgloss.NewStyle().Foreground(m.theme.dim).
		Render(fmt.Sprintf("Last transcription (#%d)", m.msgCount))
	out := []string{header, ""}

	if m.noSpeech {
		out = append(out, lipgloss.NewStyle().Foreground(m.theme.silence).
			Render("(no speech)"))
		return out
	}

	textStyle := lipgloss.NewStyle().Foreground(m.theme.speech)
	for _, line := range wrapText(m.lastText, wrapWidth) {
		out = append(out, textStyle.Render(line))
	}

	if m.lastEntry != nil && m.lastEntry.Text == m.lastText {
		meta := fmt.Sprintf("%s  %s  %.1fs audio",
			m.lastEntry.Provider, m.lastEntry.Mode, m.lastEntry.AudioS)
		out = append(out, "", lipgloss.NewStyle().Foreground(m.theme.faint).Render(meta))
	}
	return out
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
