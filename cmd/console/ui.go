package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/storyworld-balancer/internal/services/events"
	"github.com/jwebster45206/storyworld-balancer/pkg/tuner"
)

// sessionView is what the console knows about one session
type sessionView struct {
	ID         string
	JobID      string
	Path       string
	Iterations []*events.IterationDigest
	Outcome    tuner.Outcome
	Error      string
	Done       bool
}

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	title        string
	follow       bool
	updates      <-chan tea.Msg
	cancel       context.CancelFunc
	logViewport  viewport.Model
	metaViewport viewport.Model
	spinner      spinner.Model
	ready        bool
	width        int
	height       int
	listening    bool

	sessions map[string]*sessionView
	order    []string

	// Quit confirmation state
	showQuitModal bool
}

var (
	logPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	headingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	goodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	issueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(title string, follow bool, updates <-chan tea.Msg, cancel context.CancelFunc) ConsoleUI {
	logVp := viewport.New(50, 20)
	logVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		title:        title,
		follow:       follow,
		updates:      updates,
		cancel:       cancel,
		logViewport:  logVp,
		metaViewport: metaVp,
		spinner:      spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(loadingStyle)),
		listening:    true,
		sessions:     make(map[string]*sessionView),
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForUpdate(m.updates))
}

// apply folds one event into the session it belongs to
func (m *ConsoleUI) apply(e events.Event) {
	s, ok := m.sessions[e.SessionID]
	if !ok {
		s = &sessionView{ID: e.SessionID}
		m.sessions[e.SessionID] = s
		m.order = append(m.order, e.SessionID)
	}
	if e.Path != "" {
		s.Path = e.Path
	}
	if e.JobID != "" {
		s.JobID = e.JobID
	}
	switch e.Type {
	case events.EventTypeIterationDone:
		if e.Iteration != nil {
			s.Iterations = append(s.Iterations, e.Iteration)
		}
	case events.EventTypeSessionCompleted:
		s.Outcome = e.Outcome
		s.Done = true
	case events.EventTypeSessionFailed:
		s.Error = e.Error
		s.Done = true
	}
}

// running counts sessions that have not finished
func (m ConsoleUI) running() int {
	n := 0
	for _, s := range m.sessions {
		if !s.Done {
			n++
		}
	}
	return n
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.logViewport, vpCmd = m.logViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		logWidth := int(float64(m.width)*0.7) - 4
		metaWidth := m.width - logWidth - 6
		m.logViewport.Width = logWidth - 2
		m.logViewport.Height = m.height - 5
		m.metaViewport.Width = metaWidth - 2
		m.metaViewport.Height = m.height - 4
		m.ready = true
		m.writeLogContent()
		m.metaViewport.SetContent(m.writeMetadata())

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		}
		switch msg.String() {
		case "q":
			m.showQuitModal = true
			return m, nil
		}

	case eventMsg:
		m.apply(events.Event(msg))
		m.writeLogContent()
		m.metaViewport.SetContent(m.writeMetadata())
		return m, waitForUpdate(m.updates)

	case updatesClosedMsg:
		m.listening = false
		m.metaViewport.SetContent(m.writeMetadata())
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.metaViewport.SetContent(m.writeMetadata())
		return m, cmd
	}

	m.logViewport, vpCmd = m.logViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(vpCmd, mvCmd)
}

// writeLogContent renders every session for the current viewport width
func (m *ConsoleUI) writeLogContent() {
	width := m.logViewport.Width - 6
	if width < 20 {
		width = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("STORYWORLD BALANCER") + "\n")
	content.WriteString(promptStyle.Render(wordwrap.String(m.title, width)) + "\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", width)) + "\n\n")

	if len(m.order) == 0 {
		content.WriteString(loadingStyle.Render("Waiting for sessions...") + "\n")
	}
	for _, id := range m.order {
		content.WriteString(formatSession(m.sessions[id], width))
		content.WriteString("\n")
	}

	m.logViewport.SetContent(content.String())
	m.logViewport.GotoBottom()
}

func formatSession(s *sessionView, width int) string {
	var b strings.Builder
	b.WriteString(headingStyle.Render("Session "+shortID(s.ID)) + "\n")
	if s.Path != "" {
		b.WriteString(promptStyle.Render(wordwrap.String(s.Path, width)) + "\n")
	}
	for _, it := range s.Iterations {
		b.WriteString(fmt.Sprintf("  Iteration %d  seed %d  dead ends %.1f%%  effective endings %.2f\n",
			it.Number, it.Seed, it.DeadEndRate*100, it.EffectiveEndings))
		for _, issue := range it.Issues {
			b.WriteString(issueStyle.Render(indentLines(wordwrap.String("! "+issue, width-4), "    ")) + "\n")
		}
		if it.Adjustments > 0 {
			b.WriteString(fmt.Sprintf("    → %d adjustment(s)\n", it.Adjustments))
		}
	}
	switch {
	case s.Error != "":
		b.WriteString(errorStyle.Render(wordwrap.String("Failed: "+s.Error, width)) + "\n")
	case s.Done:
		b.WriteString(outcomeStyle(s.Outcome).Render(fmt.Sprintf("Outcome: %s after %d iteration(s)", s.Outcome, len(s.Iterations))) + "\n")
	}
	return b.String()
}

func outcomeStyle(o tuner.Outcome) lipgloss.Style {
	switch o {
	case tuner.Balanced:
		return goodStyle
	case tuner.Stalled:
		return loadingStyle
	default:
		return errorStyle
	}
}

func indentLines(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (m ConsoleUI) writeMetadata() string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("STATUS") + "\n\n")

	content.WriteString("Mode:\n")
	if m.follow {
		content.WriteString("Following workers\n\n")
	} else {
		content.WriteString("Local session\n\n")
	}

	content.WriteString("Sessions:\n")
	content.WriteString(fmt.Sprintf("%d seen, %d running\n\n", len(m.order), m.running()))

	if m.running() > 0 {
		content.WriteString(m.spinner.View() + " balancing\n\n")
	} else if !m.listening {
		content.WriteString(promptStyle.Render("Finished") + "\n\n")
	}

	if len(m.order) > 0 {
		last := m.sessions[m.order[len(m.order)-1]]
		if n := len(last.Iterations); n > 0 {
			it := last.Iterations[n-1]
			content.WriteString("Latest endings:\n")
			ids := make([]string, 0, len(it.EndingCounts))
			for id := range it.EndingCounts {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				content.WriteString(fmt.Sprintf("• %s: %d\n", id, it.EndingCounts[id]))
			}
			content.WriteString("\n")
		}
	}

	content.WriteString("Commands:\n")
	content.WriteString("• q / Ctrl+C: Quit\n")
	content.WriteString("• Wheel, ↑/↓: Scroll\n")

	return content.String()
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case eventMsg:
		m.apply(events.Event(msg))
		m.writeLogContent()
		return m, waitForUpdate(m.updates)

	case updatesClosedMsg:
		m.listening = false

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m.quit()
		default:
			switch msg.String() {
			case "y", "Y":
				return m.quit()
			case "n", "N":
				m.showQuitModal = false
				return m, nil
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) quit() (tea.Model, tea.Cmd) {
	if m.cancel != nil {
		m.cancel()
	}
	return m, tea.Quit
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	if m.running() > 0 && !m.follow {
		content.WriteString("The session is still running and will be cancelled.")
	} else {
		content.WriteString("Stop watching balance sessions?")
	}
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	logWidth := int(float64(m.width)*0.7) - 4
	metaWidth := m.width - logWidth - 6

	logPanel := logPanelStyle.Width(logWidth).Height(m.height - 3).Render(
		m.logViewport.View(),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, logPanel, metaPanel)
}
