package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Messages.
type snapshotMsg struct {
	snapshot Snapshot
}
type tickMsg time.Time

// Model is the single-screen dashboard model.
type Model struct {
	width  int
	height int

	snapshot    *Snapshot
	loading     bool
	spinner     spinner.Model
	lastRefresh time.Time
}

func NewModel() Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorAccent)

	return Model{
		spinner: s,
		loading: true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		fetchSnapshotCmd(),
		tickCmd(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "r":
			m.loading = true
			return m, tea.Batch(m.spinner.Tick, fetchSnapshotCmd())
		}
		return m, nil

	case snapshotMsg:
		m.loading = false
		m.lastRefresh = time.Now()
		m.snapshot = &msg.snapshot
		return m, nil

	case tickMsg:
		if !m.loading && time.Since(m.lastRefresh) > 10*time.Second {
			m.loading = true
			return m, tea.Batch(m.spinner.Tick, fetchSnapshotCmd(), tickCmd())
		}
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	header := lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Render("🤖 droidgram Dashboard")
	b.WriteString(header)
	b.WriteString("\n\n")

	panelW := m.width - 4
	if panelW > 100 {
		panelW = 100
	}
	if panelW < 40 {
		panelW = 40
	}

	if m.loading && m.snapshot == nil {
		b.WriteString(fmt.Sprintf("\n  %s Loading...\n", m.spinner.View()))
	} else if m.snapshot != nil {
		b.WriteString(renderSuggestion(m.snapshot, panelW))
		b.WriteString(renderGatewayPanel(m.snapshot, panelW))
		b.WriteString(renderAgentPanel(m.snapshot, panelW))
		b.WriteString(renderJobsPanel(m.snapshot, panelW))
	}

	// Pad to push the status bar to the bottom.
	rendered := b.String()
	lines := strings.Count(rendered, "\n") + 1
	for lines < m.height-1 {
		rendered += "\n"
		lines++
	}
	rendered += m.renderStatusBar()

	return rendered
}

func renderSuggestion(snap *Snapshot, width int) string {
	body := " " + styleBold.Render(snap.SuggestedStep())
	panel := styleSuggestedPanel.Width(width).Render(body)
	return placePanelTitle(panel, stylePanelTitle.Render("Next Step"))
}

func renderGatewayPanel(snap *Snapshot, width int) string {
	var lines []string

	serviceStatus := "off"
	serviceText := "not installed"
	switch {
	case snap.ServiceRunning:
		serviceStatus, serviceText = "running", "running"
	case snap.ServiceInstalled:
		serviceStatus, serviceText = "warn", "installed, not running"
	}
	backend := snap.ServiceBackend
	if backend == "" {
		backend = "unknown"
	}
	lines = append(lines, fmt.Sprintf(" %s %s%s",
		statusIcon(serviceStatus),
		styleLabel.Render("Service"),
		styleValue.Render(serviceText)+styleDim.Render("  ("+backend+")")))

	lines = append(lines, channelLine("Telegram", snap.Telegram))
	lines = append(lines, channelLine("Discord", snap.Discord))

	routingStatus := "off"
	routingText := "disabled"
	if snap.RoutingEnabled {
		routingStatus = "ok"
		routingText = fmt.Sprintf("%d mappings", snap.RoutingMappings)
	}
	lines = append(lines, fmt.Sprintf(" %s %s%s",
		statusIcon(routingStatus),
		styleLabel.Render("Routing"),
		styleValue.Render(routingText)))

	panel := stylePanel.Width(width).Render(strings.Join(lines, "\n"))
	return placePanelTitle(panel, stylePanelTitle.Render("Gateway"))
}

func channelLine(name string, ch ChannelSnapshot) string {
	text := "disabled"
	switch ch.Status {
	case "ready":
		text = fmt.Sprintf("ready (%d allowed)", ch.AllowFrom)
	case "open":
		text = "enabled, open to anyone"
	case "broken":
		text = "enabled but token missing"
	}
	return fmt.Sprintf(" %s %s%s",
		statusIcon(ch.Status),
		styleLabel.Render(name),
		styleValue.Render(text))
}

func renderAgentPanel(snap *Snapshot, width int) string {
	var lines []string

	row := func(icon, label, value string) string {
		return fmt.Sprintf(" %s %s%s", statusIcon(icon), styleLabel.Render(label), styleValue.Render(value))
	}

	workspaceStatus := "missing"
	if snap.WorkspaceExists {
		workspaceStatus = "ok"
	}
	lines = append(lines, row(workspaceStatus, "Workspace", snap.Workspace))

	model := snap.Model
	if model == "" {
		model = "default"
	}
	if snap.Effort != "" {
		model += styleDim.Render("  (effort: " + snap.Effort + ")")
	}
	lines = append(lines, row("ok", "Model", model))

	autonomy := snap.Autonomy
	if autonomy == "" {
		autonomy = "off"
	}
	autonomyIcon := "ok"
	if autonomy == "full" {
		autonomyIcon = "warn"
	}
	lines = append(lines, row(autonomyIcon, "Autonomy", autonomy))

	droidStatus := "missing"
	droidText := "not found"
	if snap.DroidBinary != "" {
		droidStatus = "ok"
		droidText = snap.DroidBinary
	}
	lines = append(lines, row(droidStatus, "Droid CLI", droidText))

	panel := stylePanel.Width(width).Render(strings.Join(lines, "\n"))
	return placePanelTitle(panel, stylePanelTitle.Render("Agent"))
}

func renderJobsPanel(snap *Snapshot, width int) string {
	var lines []string

	if !snap.JobsEnabled {
		lines = append(lines, styleDim.Render(" Job queue disabled."))
	} else {
		lines = append(lines, fmt.Sprintf(" %s queued  %s running  %s done  %s failed",
			styleBold.Render(fmt.Sprintf("%d", snap.Queued)),
			styleBold.Render(fmt.Sprintf("%d", snap.Running)),
			styleBold.Render(fmt.Sprintf("%d", snap.Done)),
			styleBold.Render(fmt.Sprintf("%d", snap.Failed))))

		if len(snap.Schedules) > 0 {
			lines = append(lines, "")
			lines = append(lines, styleDim.Render(" Schedules:"))
			for _, s := range snap.Schedules {
				next := "scheduled"
				if s.NextRun != nil {
					next = s.NextRun.Format("2006-01-02 15:04")
				}
				state := "enabled"
				if !s.Enabled {
					state = "off"
				}
				lines = append(lines, fmt.Sprintf("  %s %-18s %-22s next: %s",
					statusIcon(state), s.Name, styleDim.Render(s.Schedule), next))
			}
		}

		if len(snap.RecentJobs) > 0 {
			lines = append(lines, "")
			lines = append(lines, styleDim.Render(" Recent jobs:"))
			for _, j := range snap.RecentJobs {
				lines = append(lines, fmt.Sprintf("  %s %s  %s  %s",
					statusIcon(j.Status), j.ID, styleDim.Render(j.Created.Format("01-02 15:04")), j.Prompt))
			}
		}
	}

	panel := stylePanel.Width(width).Render(strings.Join(lines, "\n"))
	return placePanelTitle(panel, stylePanelTitle.Render("Jobs"))
}

func placePanelTitle(panel, title string) string {
	// Place title above the panel — reliable with ANSI-styled borders.
	return " " + title + "\n" + panel
}

func (m Model) renderStatusBar() string {
	left := ""
	if m.loading {
		left = fmt.Sprintf(" %s Refreshing...", m.spinner.View())
	}

	right := fmt.Sprintf("%s: refresh  %s: quit", styleKey.Render("r"), styleKey.Render("q"))
	if !m.lastRefresh.IsZero() {
		ago := time.Since(m.lastRefresh).Truncate(time.Second)
		right = fmt.Sprintf("Updated %s ago | %s", ago, right)
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}

	return styleStatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func fetchSnapshotCmd() tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg{snapshot: CollectSnapshot()}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
