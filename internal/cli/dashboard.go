package cli

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/tacklebox-studio/tacklebox/internal/core"
	"github.com/tacklebox-studio/tacklebox/pkg/models"
)

// maxExplorerLevel bounds the level selector. Levels above the admin tier
// unlock nothing new.
const maxExplorerLevel = core.AdminTierLevel + 1

type dashboardModel struct {
	machine *core.StateMachine
	levels  *core.LevelResolver

	roleIdx int
	level   int
	width   int
	height  int

	activity *activitySnapshot
	alerts   []alertSnapshot

	loading bool
	err     error
}

type activitySnapshot struct {
	validated int
	rejected  int
	moved     int
	denied    int
	redirects int
}

type alertSnapshot struct {
	severity string
	message  string
}

// dataLoadedMsg carries loaded activity back to the model.
type dataLoadedMsg struct {
	activity *activitySnapshot
	alerts   []alertSnapshot
	err      error
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	cellAllowed = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	cellGated   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	cellNone    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	severityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	severityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel(machine *core.StateMachine, levels *core.LevelResolver) dashboardModel {
	return dashboardModel{
		machine: machine,
		levels:  levels,
		level:   1,
		loading: true,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return loadData
}

func (m dashboardModel) role() models.Role {
	return models.AllRoles[m.roleIdx]
}

// user is the user the explorer is currently viewing the workflow as.
func (m dashboardModel) user() models.User {
	u, err := models.NewUser("explorer", m.role(), m.level)
	if err != nil {
		return nil
	}
	return u
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.roleIdx = (m.roleIdx + 1) % len(models.AllRoles)
			return m, nil
		case "shift+tab":
			m.roleIdx = (m.roleIdx - 1 + len(models.AllRoles)) % len(models.AllRoles)
			return m, nil
		case "up", "k", "+":
			if m.level < maxExplorerLevel {
				m.level++
			}
			return m, nil
		case "down", "j", "-":
			if m.level > 0 {
				m.level--
			}
			return m, nil
		case "r":
			m.loading = true
			return m, loadData
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case dataLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.activity = msg.activity
		m.alerts = msg.alerts
		m.err = nil
		return m, nil
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" TackleBox Workflow ")
	help := helpStyle.Render("tab: switch role | up/down: level | r: refresh | q: quit")

	matrix := panelStyle.Render(m.renderMatrix())
	level := panelStyle.Render(m.renderLevel())
	activity := panelStyle.Render(m.renderActivity())

	var body string
	if m.width > 140 {
		side := lipgloss.JoinVertical(lipgloss.Left, level, activity)
		body = lipgloss.JoinHorizontal(lipgloss.Top, matrix, side)
	} else {
		body = lipgloss.JoinVertical(lipgloss.Left, matrix, level, activity)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, help)
}

// matrixCell renders one from/to pair: a check when the current user may
// take the edge, a cross when the edge exists but is gated, and a dot when
// there is no edge.
func (m dashboardModel) matrixCell(from, to models.TaskStatus) string {
	if from == to {
		return cellNone.Render(" ")
	}
	result := m.machine.ValidateUserTransition(from, to, m.user())
	switch {
	case result.Allowed:
		return cellAllowed.Render("✓")
	case result.Reason == core.KindUnauthorized:
		return cellGated.Render("x")
	default:
		return cellNone.Render("·")
	}
}

func (m dashboardModel) renderMatrix() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Transitions as %s (level %d)", m.role().Label(), m.level)))
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("  %-12s", "from \\ to"))
	for _, to := range models.AllStatuses {
		b.WriteString(fmt.Sprintf(" %-4.4s", to))
	}
	b.WriteString("\n")

	for _, from := range models.AllStatuses {
		b.WriteString(fmt.Sprintf("  %-12s", from))
		for _, to := range models.AllStatuses {
			b.WriteString(" " + m.matrixCell(from, to) + "   ")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m dashboardModel) renderLevel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Level"))
	b.WriteString("\n")

	user := m.user()
	if user == nil {
		b.WriteString("  Unknown user.")
		return b.String()
	}

	r := buildLevelReport(m.levels, user)
	b.WriteString(fmt.Sprintf("  %-12s %d\n", "Effective", r.EffectiveLevel))
	if r.Title != "" {
		b.WriteString(fmt.Sprintf("  %-12s %s\n", "Title", r.Title))
	}
	if r.AdminTier {
		b.WriteString("  Admin tier\n")
	}
	if len(r.Capabilities) > 0 {
		b.WriteString("\n  Unlocked:\n")
		for _, c := range r.Capabilities {
			b.WriteString(fmt.Sprintf("    %s\n", c))
		}
	}
	if r.NextUnlockLevel > 0 {
		b.WriteString(fmt.Sprintf("\n  Level %d adds %s", r.NextUnlockLevel, strings.Join(r.NextUnlock, ", ")))
	}
	return b.String()
}

func (m dashboardModel) renderActivity() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Activity (7d)"))
	b.WriteString("\n")

	switch {
	case m.loading:
		b.WriteString("  Loading data...")
		return b.String()
	case m.err != nil:
		b.WriteString(fmt.Sprintf("  Error: %s", m.err))
		return b.String()
	}

	if m.activity == nil {
		b.WriteString("  No activity recorded.\n")
	} else {
		a := m.activity
		lines := []struct {
			label string
			value int
		}{
			{"Validated", a.validated},
			{"Rejected", a.rejected},
			{"Moved", a.moved},
			{"Denied", a.denied},
			{"Redirected", a.redirects},
		}
		for _, l := range lines {
			b.WriteString(fmt.Sprintf("  %-12s %d\n", l.label, l.value))
		}
	}

	if len(m.alerts) == 0 {
		b.WriteString("\n  No active alerts.")
		return b.String()
	}
	b.WriteString("\n")
	for _, a := range m.alerts {
		sev := styleForSeverity(a.severity).Render(fmt.Sprintf("[%s]", strings.ToUpper(a.severity)))
		b.WriteString(fmt.Sprintf("  %s %s\n", sev, a.message))
	}
	return b.String()
}

func styleForSeverity(severity string) lipgloss.Style {
	switch strings.ToLower(severity) {
	case "high":
		return severityHigh
	case "medium":
		return severityMedium
	case "low":
		return severityLow
	default:
		return lipgloss.NewStyle()
	}
}

func loadData() tea.Msg {
	var result dataLoadedMsg

	if MetricsCalc != nil {
		since := time.Now().UTC().AddDate(0, 0, -7)
		metrics, err := MetricsCalc.Calculate(since)
		if err != nil {
			result.err = fmt.Errorf("loading metrics: %w", err)
			return result
		}
		result.activity = &activitySnapshot{
			validated: metrics.TransitionsValidated,
			rejected:  metrics.TransitionsRejected,
			moved:     metrics.Transitioned,
			denied:    metrics.GuardDenied,
			redirects: metrics.GuardRedirects,
		}
	}

	// Alerts come back ordered by severity.
	if AlertEngine != nil {
		alerts, err := AlertEngine.Evaluate()
		if err != nil {
			result.err = fmt.Errorf("loading alerts: %w", err)
			return result
		}
		result.alerts = make([]alertSnapshot, 0, len(alerts))
		for _, a := range alerts {
			result.alerts = append(result.alerts, alertSnapshot{
				severity: string(a.Severity),
				message:  a.Message,
			})
		}
	}

	return result
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive workflow explorer",
	Long: `Launch an interactive terminal view of the status graph as seen by one
role and level, the capabilities that level unlocks, and recent access
activity and alerts.

Switch role with Tab, change level with the arrow keys, refresh activity
with r, quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Machine == nil || Levels == nil {
			return fmt.Errorf("state machine not initialized")
		}
		p := tea.NewProgram(newDashboardModel(Machine, Levels), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
