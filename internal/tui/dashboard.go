// Package tui implements the live terminal dashboard (cmd/agentmaild's
// "dashboard" subcommand): a bubbletea program showing one project's
// agents, recent messages, and active file-path claims, refreshed on a
// timer and on archive filesystem events. Grounded on the teacher's
// internal/tui/dashboard package, scoped down from a multi-pane tmux
// session monitor to a single-project mail/claims monitor.
package tui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/term"

	"github.com/agentfleet/agentmaild/internal/engine"
	"github.com/agentfleet/agentmaild/internal/index"
	"github.com/agentfleet/agentmaild/internal/model"
)

const tickInterval = 2 * time.Second

// tickMsg drives the periodic refresh; fsWatchMsg arrives when fsnotify
// sees the project's archive directory change, forcing an early refresh
// instead of waiting out the tick.
type tickMsg time.Time
type fsWatchMsg struct{}

type refreshMsg struct {
	project model.Project
	agents  []model.Agent
	claims  []model.Claim
	inbox   []model.Message
	err     error
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("244")).MarginTop(1)
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// keyMap binds the dashboard's quit key, following the teacher's
// bubbles/key pattern for declaring bindings rather than matching raw
// runes in Update.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// Model is the dashboard's bubbletea state.
type Model struct {
	eng        *engine.Engine
	projectKey string
	agentName  string // if set, show this agent's inbox; otherwise no messages are shown

	width, height int
	renderer      *glamour.TermRenderer

	project model.Project
	agents  []model.Agent
	claims  []model.Claim
	inbox   []model.Message
	err     error

	watcherEvents <-chan fsnotify.Event
	quitting      bool
}

// New builds a dashboard model for one project. agentName may be empty,
// in which case the dashboard lists agents and claims only. watchDir, if
// non-empty, is watched with fsnotify so the dashboard refreshes as soon
// as the archive changes instead of waiting for the next tick.
func New(eng *engine.Engine, projectKey, agentName, watchDir string) Model {
	m := Model{eng: eng, projectKey: projectKey, agentName: agentName}
	// A real terminal width before bubbletea's first tea.WindowSizeMsg
	// arrives keeps the first rendered frame from wrapping at glamour's
	// zero-width default; tea.WindowSizeMsg still overrides this as soon
	// as it arrives.
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		m.width, m.height = w, h
		m.initRenderer(w)
	}
	if watchDir == "" {
		return m
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return m
	}
	if err := w.Add(watchDir); err != nil {
		w.Close()
		return m
	}
	events := make(chan fsnotify.Event)
	go func() {
		defer close(events)
		for ev := range w.Events {
			events <- ev
		}
	}()
	m.watcherEvents = events
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.tick(), m.watch(), tea.EnterAltScreen)
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// watch returns a tea.Cmd that relays the next event of the fsnotify
// watch New started on the archive root as a fsWatchMsg, the
// same single-shot-then-resubscribe shape the teacher's watcher
// integration uses for FileChangeMsg.
func (m *Model) watch() tea.Cmd {
	return func() tea.Msg {
		if m.watcherEvents == nil {
			return nil
		}
		if _, ok := <-m.watcherEvents; !ok {
			return nil
		}
		return fsWatchMsg{}
	}
}

func (m Model) refresh() tea.Cmd {
	eng, projectKey, agentName := m.eng, m.projectKey, m.agentName
	return func() tea.Msg {
		ctx := context.Background()
		now := time.Now().UTC()

		proj, err := eng.EnsureProject(ctx, projectKey, now)
		if err != nil {
			return refreshMsg{err: err}
		}
		agents, err := eng.ListAgents(ctx, projectKey, false, now)
		if err != nil {
			return refreshMsg{err: err}
		}
		claims, err := eng.ActiveClaims(ctx, projectKey, now)
		if err != nil {
			return refreshMsg{err: err}
		}

		var inbox []model.Message
		if agentName != "" {
			inbox, err = eng.FetchInbox(ctx, projectKey, agentName, index.InboxOptions{Limit: 10}, now)
			if err != nil {
				return refreshMsg{err: err}
			}
		}

		return refreshMsg{project: proj, agents: agents, claims: claims, inbox: inbox}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.initRenderer(msg.Width)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), m.tick())

	case fsWatchMsg:
		return m, tea.Batch(m.refresh(), m.watch())

	case refreshMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.project, m.agents, m.claims, m.inbox = msg.project, msg.agents, msg.claims, msg.inbox
		return m, nil
	}
	return m, nil
}

func (m *Model) initRenderer(width int) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width-4))
	if err != nil {
		return
	}
	m.renderer = r
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("agentmaild — %s", m.project.HumanKey)))
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString(sectionStyle.Render(fmt.Sprintf("Agents (%d)", len(m.agents))))
	b.WriteString("\n")
	for _, a := range m.agents {
		line := fmt.Sprintf("  %-20s %-10s policy=%s, last active %s", truncate(a.Name, 20), a.Program, a.ContactPolicy, humanize.Time(a.LastActiveTS))
		b.WriteString(line + "\n")
	}

	b.WriteString(sectionStyle.Render(fmt.Sprintf("Active claims (%d)", len(m.claims))))
	b.WriteString("\n")
	for _, c := range m.claims {
		b.WriteString(fmt.Sprintf("  %-40s held by %s, expires %s\n", truncate(c.Path, 40), c.AgentName, humanize.Time(c.ExpiresTS)))
	}

	if m.agentName != "" {
		b.WriteString(sectionStyle.Render(fmt.Sprintf("Inbox: %s", m.agentName)))
		b.WriteString("\n")
		for _, msg := range m.inbox {
			b.WriteString(m.renderMessage(msg))
		}
	}

	b.WriteString(dimStyle.Render("\nq to quit"))
	return b.String()
}

func (m Model) renderMessage(msg model.Message) string {
	header := fmt.Sprintf("  [%s] %s — %s\n", msg.CreatedTS.Format("15:04:05"), msg.FromAgent, msg.Subject)
	if m.renderer == nil {
		return header + wordwrap.String(msg.BodyMD, 80) + "\n"
	}
	rendered, err := m.renderer.Render(msg.BodyMD)
	if err != nil {
		return header + wordwrap.String(msg.BodyMD, 80) + "\n"
	}
	return header + rendered
}

func truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width-1, "…")
}
