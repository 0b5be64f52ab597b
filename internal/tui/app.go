// internal/tui/app.go
//
// Terminal monitor for a running story session, built on bubbletea's Elm
// loop: the model holds the latest session snapshot, a tick refreshes it,
// and the view renders phase, budget progress, and the run journal.

package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	progresspkg "github.com/storyloom/storyloom/internal/progress"
	"github.com/storyloom/storyloom/internal/session"
)

const refreshInterval = 500 * time.Millisecond

const journalTailLines = 8

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
)

type statusRefreshMsg struct {
	status  session.Status
	journal []string
}

// App is the bubbletea model monitoring one session.
type App struct {
	sess       *session.Session
	totalWords int

	spin spinner.Model
	bar  progress.Model

	width        int
	height       int
	status       session.Status
	journalLines []string
}

// NewApp builds the monitor for a running session. totalWords is the story
// word budget driving the progress bar.
func NewApp(sess *session.Session, totalWords int) *App {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	bar := progress.New(progress.WithDefaultGradient())
	return &App{
		sess:       sess,
		totalWords: totalWords,
		spin:       spin,
		bar:        bar,
		status:     sess.Status(),
	}
}

// Run drives the monitor until the user quits or the session ends.
func Run(sess *session.Session, totalWords int) error {
	_, err := tea.NewProgram(NewApp(sess, totalWords)).Run()
	return err
}

// Init starts the spinner and the refresh loop.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spin.Tick, a.refreshNow())
}

// Update folds one message into the model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.bar.Width = max(20, msg.Width-12)
		return a, nil

	case statusRefreshMsg:
		a.status = msg.status
		a.journalLines = msg.journal
		if a.status.Finished {
			// One last snapshot is already rendered; stop ticking.
			return a, nil
		}
		return a, a.scheduleRefresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return a, tea.Quit
		case "r":
			return a, a.refreshNow()
		}
	}
	return a, nil
}

// View renders the monitor.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	header := headerStyle.Render("◈ STORYLOOM")

	sections := []string{
		header,
		panelStyle.Width(max(30, width-2)).Render(a.renderRunPanel()),
		panelStyle.Width(max(30, width-2)).Render(a.renderProgressPanel()),
	}
	if journal := a.renderJournalPanel(); journal != "" {
		sections = append(sections, panelStyle.Width(max(30, width-2)).Render(journal))
	}
	sections = append(sections, dimStyle.Render("q → quit    r → refresh"))
	return strings.Join(sections, "\n")
}

func (a *App) renderRunPanel() string {
	lines := []string{
		fmt.Sprintf("%s %s", labelStyle.Render("Theme:"), a.status.Theme),
		fmt.Sprintf("%s %s", labelStyle.Render("Session:"), a.status.ID),
	}
	if a.status.Finished {
		lines = append(lines, fmt.Sprintf("%s %s after %d turns",
			labelStyle.Render("Outcome:"), a.status.Engine.Outcome, a.status.Engine.Turn))
	} else {
		lines = append(lines, fmt.Sprintf("%s %s %s · turn %d · %s speaking",
			a.spin.View(), labelStyle.Render("Phase:"),
			a.status.Engine.Phase, a.status.Engine.Turn, a.status.Engine.Speaker))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderProgressPanel() string {
	ratio := 0.0
	if a.totalWords > 0 {
		ratio = float64(a.status.Engine.WordCount) / float64(a.totalWords)
		if ratio > 1 {
			ratio = 1
		}
	}
	lines := []string{
		fmt.Sprintf("%s %d / %d words (%.1f pages)",
			labelStyle.Render("Budget:"), a.status.Engine.WordCount, a.totalWords, a.status.Engine.PageCount),
		a.bar.ViewAs(ratio),
		a.renderCheckpoints(),
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderCheckpoints() string {
	order := []progresspkg.Checkpoint{
		progresspkg.CheckpointOutlineApproval,
		progresspkg.CheckpointPage1Review,
		progresspkg.CheckpointPage2Review,
		progresspkg.CheckpointFinalApproval,
	}
	parts := make([]string, 0, len(order))
	for _, cp := range order {
		mark := "○"
		if a.status.Engine.Checkpoints[cp] {
			mark = "✓"
		}
		parts = append(parts, fmt.Sprintf("%s %s", mark, cp))
	}
	return dimStyle.Render(strings.Join(parts, "   "))
}

func (a *App) renderJournalPanel() string {
	if len(a.journalLines) == 0 {
		return ""
	}
	head := labelStyle.Render("JOURNAL")
	body := dimStyle.Render(strings.Join(a.journalLines, "\n"))
	return head + "\n" + body
}

func (a *App) refreshNow() tea.Cmd {
	return func() tea.Msg {
		return a.snapshot()
	}
}

func (a *App) scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return a.snapshot()
	})
}

func (a *App) snapshot() statusRefreshMsg {
	lines, _ := a.sess.JournalTail(journalTailLines)
	return statusRefreshMsg{
		status:  a.sess.Status(),
		journal: lines,
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
