package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kalambet/ragchat/internal/session"
	"github.com/kalambet/ragchat/internal/state"
)

// sessionEventMsg carries one controller event into the Bubble Tea loop.
type sessionEventMsg struct {
	event session.Event
}

// noticeMsg is a transient one-line result shown above the input.
type noticeMsg string

type chatModel struct {
	app    *app
	events chan session.Event
	theme  theme

	input    textinput.Model
	viewport viewport.Model
	spin     spinner.Model

	width  int
	height int
	ready  bool

	messages     []session.Message
	stats        state.StatsSnapshot
	mlops        state.MLOpsSnapshot
	loading      bool
	admin        bool
	confirmReset bool
	notice       string
}

func newChatModel(a *app, events chan session.Event) chatModel {
	th := newTheme()

	ti := textinput.New()
	ti.Prompt = "❯ "
	ti.Placeholder = "Ask something..."
	ti.CharLimit = 2000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = th.spinner

	vp := viewport.New(0, 0)
	vp.MouseWheelEnabled = true

	return chatModel{
		app:      a,
		events:   events,
		theme:    th,
		input:    ti,
		viewport: vp,
		spin:     sp,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitEvent(m.events))
}

// waitEvent blocks on the controller's event channel and surfaces the next
// event as a message. It re-arms itself from Update.
func waitEvent(ch chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return sessionEventMsg{event: ev}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case sessionEventMsg:
		cmd := m.applyEvent(msg.event)
		return m, tea.Batch(waitEvent(m.events), cmd)

	case noticeMsg:
		m.notice = string(msg)
		m.layout()
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m chatModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirmReset {
		m.confirmReset = false
		if msg.String() == "y" {
			return m, m.resetCmd()
		}
		m.notice = "Reset cancelled"
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.loading {
			return m, nil
		}
		m.input.Reset()
		m.notice = ""
		return m, m.sendCmd(text)

	case "ctrl+l":
		return m, m.clearMemoryCmd()

	case "ctrl+o":
		return m, m.memoryStatusCmd()

	case "ctrl+e":
		return m, m.exportCmd()

	case "ctrl+a":
		return m, m.toggleAdminCmd()

	case "ctrl+t":
		if m.admin {
			return m, m.trainCmd()
		}
		return m, nil

	case "ctrl+r":
		if m.admin {
			m.confirmReset = true
		}
		return m, nil

	case "ctrl+f":
		if m.admin {
			return m, m.forceRefreshCmd()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// applyEvent folds a controller event into the view state.
func (m *chatModel) applyEvent(ev session.Event) tea.Cmd {
	switch ev := ev.(type) {
	case session.MessageAppended:
		m.messages = append(m.messages, ev.Message)
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
	case session.LoadingChanged:
		m.loading = ev.Loading
		if m.loading {
			return m.spin.Tick
		}
	case session.ModeChanged:
		m.admin = ev.Admin
		m.layout()
	case session.StatsUpdated:
		m.stats = ev.Stats
	case session.MLOpsUpdated:
		m.mlops = ev.MLOps
	}
	return nil
}

// layout recomputes the viewport size from the fixed chrome around it.
func (m *chatModel) layout() {
	if !m.ready {
		return
	}
	chrome := 4 // header, status bar, input, help
	if m.notice != "" {
		chrome++
	}
	if m.admin {
		chrome += lipgloss.Height(m.adminView())
	}
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-chrome, 1)
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m chatModel) sendCmd(text string) tea.Cmd {
	return func() tea.Msg {
		m.app.controller.Send(context.Background(), text)
		return nil
	}
}

func (m chatModel) clearMemoryCmd() tea.Cmd {
	return func() tea.Msg {
		if err := m.app.client.ClearMemory(context.Background()); err != nil {
			return noticeMsg(fmt.Sprintf("Clear memory failed: %v", err))
		}
		return noticeMsg("Conversation memory cleared")
	}
}

func (m chatModel) memoryStatusCmd() tea.Cmd {
	return func() tea.Msg {
		mem, err := m.app.client.Memory(context.Background())
		if err != nil {
			return noticeMsg(fmt.Sprintf("Memory status failed: %v", err))
		}
		return noticeMsg(fmt.Sprintf("Memory: %d/%d messages", mem.Count, mem.MaxCount))
	}
}

func (m chatModel) exportCmd() tea.Cmd {
	doc := m.app.controller.Export()
	return func() tea.Msg {
		name := fmt.Sprintf("ragchat-session-%s.json", time.Now().Format("20060102-150405"))
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return noticeMsg(fmt.Sprintf("Export failed: %v", err))
		}
		if err := os.WriteFile(name, data, 0o644); err != nil {
			return noticeMsg(fmt.Sprintf("Export failed: %v", err))
		}
		return noticeMsg(fmt.Sprintf("Session exported to %s", name))
	}
}

func (m chatModel) toggleAdminCmd() tea.Cmd {
	// The entry refresh inside ToggleAdmin does network I/O, so it runs as a
	// command rather than inline in Update.
	return func() tea.Msg {
		m.app.controller.ToggleAdmin(context.Background())
		return nil
	}
}

func (m chatModel) trainCmd() tea.Cmd {
	return func() tea.Msg {
		res, ok, err := m.app.controller.TriggerTraining(context.Background())
		if !ok {
			return nil
		}
		if err != nil {
			return noticeMsg(fmt.Sprintf("Training request failed: %v", err))
		}
		if !res.Success {
			return noticeMsg("Training not started: " + res.Message)
		}
		return noticeMsg(fmt.Sprintf("Training started with %d conversations", res.TrainingDataCount))
	}
}

func (m chatModel) resetCmd() tea.Cmd {
	return func() tea.Msg {
		res, ok, err := m.app.controller.ResetTrainingData(context.Background())
		if !ok {
			return nil
		}
		if err != nil {
			return noticeMsg(fmt.Sprintf("Reset failed: %v", err))
		}
		return noticeMsg(fmt.Sprintf("Cleared %d collected conversations (backed up)", res.ClearedCount))
	}
}

func (m chatModel) forceRefreshCmd() tea.Cmd {
	return func() tea.Msg {
		m.app.controller.ForceRefresh(context.Background())
		return noticeMsg("Refreshing status")
	}
}

func (m chatModel) renderTranscript() string {
	var b strings.Builder
	for i, msg := range m.messages {
		if i > 0 {
			b.WriteString("\n")
		}
		ts := msg.Timestamp.Format("15:04:05")
		switch msg.Role {
		case session.RoleUser:
			b.WriteString(m.theme.userLabel.Render("you") + " " + m.theme.meta.Render(ts) + "\n")
			b.WriteString(sanitize(msg.Content) + "\n")
		case session.RoleAssistant:
			b.WriteString(m.theme.botLabel.Render("rag") + " " + m.theme.meta.Render(ts) + "\n")
			if msg.Meta != nil && msg.Meta.IsError {
				b.WriteString(m.theme.errorText.Render(sanitize(msg.Content)) + "\n")
				continue
			}
			b.WriteString(sanitize(msg.Content) + "\n")
			b.WriteString(m.renderMeta(msg.Meta))
		}
	}
	return b.String()
}

// renderMeta prints the compact metadata footer of an assistant message.
func (m chatModel) renderMeta(meta *session.Metadata) string {
	if meta == nil {
		return ""
	}
	var parts []string
	if meta.Timing != nil {
		parts = append(parts, fmt.Sprintf("total %s · search %s · gpt %s",
			sanitize(meta.Timing.Total), sanitize(meta.Timing.Search), sanitize(meta.Timing.GPT)))
	}
	if len(meta.SearchResults) > 0 {
		top := meta.SearchResults[0]
		parts = append(parts, fmt.Sprintf("top match %.2f: %s", top.Score, truncate(sanitize(top.Document), 60)))
	}
	if m.admin && meta.MLOps != nil && meta.MLOps.Collected {
		parts = append(parts, fmt.Sprintf("collected (%d total)", meta.MLOps.TotalCollected))
	}
	if len(parts) == 0 {
		return ""
	}
	return m.theme.meta.Render(strings.Join(parts, "  ")) + "\n"
}

func (m chatModel) adminView() string {
	lines := []string{
		m.theme.adminTitle.Render("ML Pipeline"),
		fmt.Sprintf("status: %s", m.mlops.TrainingStatus),
		fmt.Sprintf("collected: %d total, %d new, %d until next run",
			m.mlops.TotalCollected, m.mlops.NewDataCount, m.mlops.PendingCount),
		fmt.Sprintf("progress: %.1f%% of batch %d", m.mlops.ProgressPercent, m.mlops.BatchSize),
		fmt.Sprintf("model: %s", m.mlops.ModelVersion),
	}
	return m.theme.adminPanel.Render(strings.Join(lines, "\n"))
}

func (m chatModel) statusView() string {
	status := m.stats.ServerStatus
	if status == "" {
		status = "connecting"
	}
	s := fmt.Sprintf("server %s · model %s · %d docs · %d queries",
		status, m.stats.ModelLoaded, m.stats.DocumentCount, m.stats.TotalQueries)
	if m.stats.AvgResponseTime != "" {
		s += " · avg " + sanitize(m.stats.AvgResponseTime)
	}
	return m.theme.statusBar.Render(s)
}

func (m chatModel) helpView() string {
	if m.confirmReset {
		return m.theme.notice.Render("Clear all collected training data? (y/n)")
	}
	help := "enter send · ctrl+l clear memory · ctrl+o memory · ctrl+e export · ctrl+a admin · esc quit"
	if m.admin {
		help += " · ctrl+t train · ctrl+r reset · ctrl+f refresh"
	}
	return m.theme.help.Render(help)
}

func (m chatModel) View() string {
	if !m.ready {
		return "loading..."
	}

	header := m.theme.title.Render("ragchat")
	if m.admin {
		header += " " + m.theme.adminTitle.Render("[admin]")
	}
	if m.loading {
		header += " " + m.spin.View()
	}

	var b strings.Builder
	b.WriteString(header + "\n")
	b.WriteString(m.viewport.View() + "\n")
	if m.admin {
		b.WriteString(m.adminView() + "\n")
	}
	b.WriteString(m.statusView() + "\n")
	if m.notice != "" {
		b.WriteString(m.theme.notice.Render(sanitize(m.notice)) + "\n")
	}
	b.WriteString(m.input.View() + "\n")
	b.WriteString(m.helpView())
	return b.String()
}

// sanitize strips control and escape bytes from remote-provided text so it
// cannot corrupt the terminal. Newlines and tabs survive.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

// runChat starts the interactive chat session: the background poller, the
// controller event bridge and the terminal program.
func runChat() error {
	a, err := newApp()
	if err != nil {
		return err
	}

	events := make(chan session.Event, 256)
	a.controller.Subscribe(func(ev session.Event) {
		select {
		case events <- ev:
		default:
			// A stalled UI must not block sends or the poller.
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.scheduler.Start(ctx)
	defer a.scheduler.Stop()

	p := tea.NewProgram(newChatModel(a, events), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run chat UI: %w", err)
	}
	return nil
}
