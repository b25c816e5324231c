// Package tui is the interactive review surface for one file.
package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/StepaOpa/SQLinter/internal/engine"
	"github.com/StepaOpa/SQLinter/internal/model"
)

// Dispatcher runs user events; *engine.Engine implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev engine.Event) []engine.Effect
}

// Writer persists corrected file text.
type Writer interface {
	Write(path, text string) error
}

const detailHeight = 6

type effectsMsg []engine.Effect

type recordItem struct {
	rec model.QueryRecord
}

func (i recordItem) FilterValue() string { return i.rec.QueryText }

type recordDelegate struct{}

func (d recordDelegate) Height() int                             { return 1 }
func (d recordDelegate) Spacing() int                            { return 0 }
func (d recordDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d recordDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(recordItem)
	if !ok {
		return
	}
	rec := it.rec

	tag := verdictStyle(rec.Verdict).Width(9).Render(strings.ToUpper(rec.Verdict.String()))
	pos := fmt.Sprintf("%4d:%-3d", rec.Span.StartLine, rec.Span.StartColumn+1)
	fix := " "
	if rec.Fixable() {
		fix = "✎"
	}
	width := m.Width() - 20
	query := truncate(strings.Join(strings.Fields(rec.QueryText), " "), width)

	textStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	if index == m.Index() {
		textStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6")).Bold(true)
	}
	_, _ = fmt.Fprintf(w, "%s %s %s %s", tag, pos, fix, textStyle.Render(query))
}

func verdictStyle(k model.VerdictKind) lipgloss.Style {
	switch k {
	case model.VerdictError:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	case model.VerdictWarning:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	case model.VerdictCorrect:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	}
}

// Model reviews the records of one file: a applies the selected correction,
// d dismisses the selected record, r re-analyses and q quits.
type Model struct {
	ctx    context.Context
	path   string
	disp   Dispatcher
	writer Writer

	list    list.Model
	records []model.QueryRecord
	status  string
	level   engine.NoticeLevel
	busy    bool
	width   int
	height  int
}

func New(ctx context.Context, path string, disp Dispatcher, writer Writer) *Model {
	l := list.New(nil, recordDelegate{}, 80, 20)
	l.Title = path
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.KeyMap.Quit.SetEnabled(false)
	return &Model{ctx: ctx, path: path, disp: disp, writer: writer, list: l, width: 80, height: 26}
}

func (m *Model) Init() tea.Cmd {
	return m.analyze()
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case effectsMsg:
		m.busy = false
		m.status, m.level = "", ""
		if err := engine.Deliver(m, msg); err != nil {
			m.Notify(engine.NoticeError, err.Error())
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(msg.Width, max(msg.Height-detailHeight-2, 3))
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.analyze()
		case "a":
			if rec, ok := m.selected(); ok {
				if !rec.Fixable() {
					m.Notify(engine.NoticeInfo, "no correction for this query")
					return m, nil
				}
				return m, m.dispatch(engine.Event{Type: engine.EventApply, Identity: rec.Identity})
			}
			return m, nil
		case "d":
			if rec, ok := m.selected(); ok {
				return m, m.dispatch(engine.Event{Type: engine.EventDismiss, Identity: rec.Identity})
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) analyze() tea.Cmd {
	return m.dispatch(engine.Event{Type: engine.EventAnalyze, Path: m.path})
}

// dispatch runs ev off the UI loop. Keys are ignored while an event is in flight.
func (m *Model) dispatch(ev engine.Event) tea.Cmd {
	if m.busy {
		return nil
	}
	m.busy = true
	m.status, m.level = fmt.Sprintf("%s…", ev.Type), engine.NoticeInfo
	ctx, disp := m.ctx, m.disp
	return func() tea.Msg {
		return effectsMsg(disp.Dispatch(ctx, ev))
	}
}

func (m *Model) selected() (model.QueryRecord, bool) {
	it, ok := m.list.SelectedItem().(recordItem)
	if !ok {
		return model.QueryRecord{}, false
	}
	return it.rec, true
}

// Show implements engine.Surface.
func (m *Model) Show(path string, records []model.QueryRecord) {
	if path != m.path {
		return
	}
	m.records = records
	items := make([]list.Item, len(records))
	for i, r := range records {
		items[i] = recordItem{rec: r}
	}
	_ = m.list.SetItems(items)
	if n := len(items); n > 0 && m.list.Index() >= n {
		m.list.Select(n - 1)
	}
}

// Notify implements engine.Surface.
func (m *Model) Notify(level engine.NoticeLevel, message string) {
	m.status, m.level = message, level
}

// Write implements engine.Surface.
func (m *Model) Write(path, text string) error {
	return m.writer.Write(path, text)
}

func (m *Model) Records() []model.QueryRecord { return m.records }

func (m *Model) View() string {
	var b strings.Builder
	if len(m.records) == 0 && m.busy {
		b.WriteString(fmt.Sprintf("Analysing %s…\n", m.path))
	} else if len(m.records) == 0 {
		b.WriteString(fmt.Sprintf("%s: no SQL queries.\n", m.path))
	} else {
		b.WriteString(m.list.View())
		b.WriteString("\n")
		b.WriteString(m.detail())
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(noticeStyle(m.level).Render(m.status))
	}
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("a apply • d dismiss • r re-analyse • q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m *Model) detail() string {
	rec, ok := m.selected()
	if !ok {
		return ""
	}
	label := lipgloss.NewStyle().Bold(true)
	width := m.width - 12

	lines := []string{
		label.Render("Query:      ") + truncate(oneLine(rec.QueryText), width),
	}
	if rec.Reason != "" {
		lines = append(lines, label.Render("Reason:     ")+truncate(oneLine(rec.Reason), width))
	}
	if rec.Correction != nil {
		lines = append(lines, label.Render("Correction: ")+truncate(oneLine(*rec.Correction), width))
	}
	return lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true, false, false, false).Render(strings.Join(lines, "\n"))
}

func noticeStyle(level engine.NoticeLevel) lipgloss.Style {
	switch level {
	case engine.NoticeError:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case engine.NoticeWarning, engine.NoticePrompt:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	}
}

func oneLine(s string) string { return strings.Join(strings.Fields(s), " ") }

func truncate(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 1 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "…")
}

// Run starts the review program on the terminal.
func Run(ctx context.Context, path string, disp Dispatcher, writer Writer) error {
	m := New(ctx, path, disp, writer)
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		m.Update(tea.WindowSizeMsg{Width: w, Height: h})
	}
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("review %s: %w", path, err)
	}
	return nil
}
