package tui

import (
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

// tickMsg is fired every second to update the lockout countdown.
type tickMsg time.Time

// state represents the current phase of a command.
type state int

const (
	stateInit       state = iota
	stateLoggingIn        // login request in flight
	stateRefreshing       // refreshing the access token
	stateLoading          // loading profile and stats
	stateLockedOut        // login blocked, counting down
	stateSuccess          // all done
	stateError            // fatal error
)

// statusKind distinguishes line types in the status log.
type statusKind int

const (
	statusOK   statusKind = iota
	statusWarn            // warning / non-fatal
	statusInfo            // neutral info
)

// statusLine is one row in the scrolling status log.
type statusLine struct {
	kind statusKind
	text string
}

// Model is the BubbleTea model for interactive commands.
type Model struct {
	state   state
	spinner spinner.Model
	width   int
	height  int

	serverURL string
	username  string

	// Lockout countdown
	lockMessage string
	lockUntil   time.Time
	remaining   time.Duration

	profile *Profile
	errMsg  string

	// Scrolling status log shown below the main panel
	statusLines []statusLine
}

var (
	styleTitleBox = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 2)

	styleLockBox = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(0, 2)

	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleErr  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styleBold = lipgloss.NewStyle().Bold(true)
)

// NewModel creates the initial TUI model.
func NewModel() Model {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))),
	)
	return Model{
		state:   stateInit,
		spinner: s,
	}
}

// Init starts the spinner animation.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if m.state != stateLockedOut {
			return m, nil
		}
		m.remaining = max(time.Until(m.lockUntil), 0)
		if m.remaining > 0 {
			return m, tickAfterSecond()
		}
		m.addStatus(statusInfo, "Lockout expired, you can log in again")
		return m, nil

	case tea.KeyPressMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	// ── command messages ─────────────────────────────────────────────────────

	case MsgBanner:
		m.serverURL = msg.ServerURL
		return m, nil

	case MsgSessionRestored:
		m.addStatus(statusOK, "Found stored session")
		return m, nil

	case MsgNotLoggedIn:
		m.addStatus(statusWarn, "Not logged in")
		return m, nil

	case MsgLoggingIn:
		m.username = msg.Username
		m.state = stateLoggingIn
		return m, nil

	case MsgLoginOK:
		m.addStatus(statusOK, "Logged in as "+msg.Username)
		return m, nil

	case MsgLoginFailed:
		text := "Login failed: " + msg.Message
		if msg.AttemptsRemaining != nil {
			text += fmt.Sprintf(" (%d attempts remaining)", *msg.AttemptsRemaining)
		}
		m.addStatus(statusWarn, text)
		return m, nil

	case MsgLockedOut:
		m.lockMessage = msg.Message
		m.lockUntil = msg.Until
		m.remaining = max(time.Until(msg.Until), 0)
		m.state = stateLockedOut
		m.addStatus(statusWarn, "Login locked")
		return m, tickAfterSecond()

	case MsgRefreshing:
		m.state = stateRefreshing
		m.addStatus(statusInfo, "Refreshing access token...")
		return m, nil

	case MsgRefreshOK:
		m.addStatus(statusOK, "Token refreshed successfully")
		return m, nil

	case MsgRefreshFailed:
		m.addStatus(statusWarn, fmt.Sprintf("Refresh failed: %v", msg.Err))
		return m, nil

	case MsgTokensSaved:
		m.addStatus(statusOK, "Tokens saved to "+msg.Location)
		return m, nil

	case MsgLoadingProfile:
		m.state = stateLoading
		return m, nil

	case MsgProfileLoaded:
		p := msg.Profile
		m.profile = &p
		m.state = stateSuccess
		return m, nil

	case MsgStatsUnavailable:
		m.addStatus(statusWarn, fmt.Sprintf("Failed to load stats: %v", msg.Err))
		return m, nil

	case MsgLoggedOut:
		m.profile = nil
		m.state = stateSuccess
		m.addStatus(statusOK, "Logged out")
		return m, nil

	case MsgAPICallOK:
		m.addStatus(statusOK, msg.What)
		return m, nil

	case MsgAPICallFailed:
		m.addStatus(statusWarn, fmt.Sprintf("API call failed: %v", msg.Err))
		return m, nil

	case MsgDone:
		if m.state != stateLockedOut && m.state != stateError {
			m.state = stateSuccess
		}
		return m, nil

	case MsgFatal:
		m.errMsg = msg.Err.Error()
		m.state = stateError
		return m, nil
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() tea.View {
	switch m.state {
	case stateSuccess:
		return tea.NewView(m.viewSuccess())
	case stateError:
		return tea.NewView(m.viewError())
	default:
		return tea.NewView(m.viewMain())
	}
}

func (m Model) viewTitle() string {
	title := "  Continuum  "
	if m.serverURL != "" {
		title = "  Continuum · " + m.serverURL + "  "
	}
	return "\n" + styleTitleBox.Render(title) + "\n\n"
}

// viewMain is shown while a command is in progress or locked out.
func (m Model) viewMain() string {
	var b strings.Builder
	b.WriteString(m.viewTitle())

	switch m.state {
	case stateLockedOut:
		b.WriteString(styleLockBox.Render("  " + m.lockMessage + "  "))
		b.WriteString("\n\n")
		if m.remaining > 0 {
			b.WriteString(styleBold.Render("Try again in "))
			b.WriteString(formatDuration(m.remaining))
			b.WriteString(styleDim.Render("  (at " + m.lockUntil.Local().Format(time.Kitchen) + ")"))
		} else {
			b.WriteString(styleOK.Render("You can log in again."))
		}
		b.WriteString("\n")

	case stateLoggingIn:
		b.WriteString(m.spinner.View())
		b.WriteString(" Logging in as " + m.username + "...\n")

	case stateRefreshing:
		b.WriteString(m.spinner.View())
		b.WriteString(" Refreshing access token...\n")

	case stateLoading:
		b.WriteString(m.spinner.View())
		b.WriteString(" Loading profile...\n")

	default:
		b.WriteString(m.spinner.View())
		b.WriteString(" Connecting...\n")
	}

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewSuccess is shown when the command finished.
func (m Model) viewSuccess() string {
	var b strings.Builder
	b.WriteString(m.viewTitle())

	if p := m.profile; p != nil {
		b.WriteString(styleOK.Render("  ✓ " + p.Nickname + " (@" + p.Username + ")"))
		b.WriteString("\n\n")

		b.WriteString(styleBold.Render("Role:     "))
		b.WriteString(p.Role + "\n")

		b.WriteString(styleBold.Render("Language: "))
		b.WriteString(p.Language + "\n")

		b.WriteString(styleBold.Render("Streak:   "))
		switch {
		case !p.HasStats:
			b.WriteString(styleDim.Render("unavailable"))
		case !p.StreakStarted:
			b.WriteString(styleDim.Render("not started"))
		default:
			b.WriteString(formatStreak(p.CurrentStreak))
			b.WriteString(styleDim.Render("  (longest " + formatStreak(p.LongestStreak) + ")"))
		}
		b.WriteString("\n")
	}

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewError is shown when a fatal error occurs.
func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleErr.Render("  ✗ Command failed"))
	b.WriteString("\n\n")
	b.WriteString(styleDim.Render("  " + m.errMsg))
	b.WriteString("\n")

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewStatusLog renders the scrolling status log.
func (m Model) viewStatusLog() string {
	if len(m.statusLines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")

	for _, line := range m.statusLines {
		switch line.kind {
		case statusOK:
			b.WriteString(styleOK.Render("  ✓ " + line.text))
		case statusWarn:
			b.WriteString(styleWarn.Render("  ⚠ " + line.text))
		default:
			b.WriteString(styleDim.Render("  · " + line.text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// addStatus appends a line to the status log.
func (m *Model) addStatus(kind statusKind, text string) {
	m.statusLines = append(m.statusLines, statusLine{kind: kind, text: text})
}

// tickAfterSecond returns a command that fires tickMsg after one second.
func tickAfterSecond() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// formatDuration formats a duration as "Xh Ym", "Xm Ys" or "Xs".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// formatStreak formats a streak length as "Nd Xh Ym".
func formatStreak(d time.Duration) string {
	if d < time.Hour {
		return formatDuration(d)
	}
	days := int(d.Hours()) / 24
	h := int(d.Hours()) % 24
	m := int(d.Minutes()) % 60
	if days == 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dd %dh %dm", days, h, m)
}
