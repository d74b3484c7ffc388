// Package tui provides the interactive project browser for launcha.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bang0930/mcp-web/internal/auth"
	"github.com/bang0930/mcp-web/internal/models"
	"github.com/bang0930/mcp-web/internal/registry"
	"github.com/bang0930/mcp-web/internal/replay"
	"github.com/bang0930/mcp-web/internal/teardown"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	projectItemStyle = lipgloss.NewStyle().
				Padding(0, 2)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	liveStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)
)

const (
	modeList   = "list"
	modeDetail = "detail"
)

// SessionSource yields the current session snapshot.
type SessionSource interface {
	Current() auth.Session
}

// Destroyer runs the teardown workflow for one project.
type Destroyer interface {
	DestroyProject(ctx context.Context, project models.Project, session auth.Session) (*teardown.Result, error)
}

// Retrier replays retained drafts and pending releases.
type Retrier interface {
	RetryProfiles(ctx context.Context, session auth.Session) (replay.Summary, error)
	RetryReleases(ctx context.Context, session auth.Session) (replay.Summary, error)
}

// Deps wires the browser to the registry and workflows. Sessions, Teardown
// and Replay are optional; commands that need a missing one report it.
type Deps struct {
	Registry *registry.Registry
	Sessions SessionSource
	Teardown Destroyer
	Replay   Retrier
	Timeout  time.Duration
}

// App is the main TUI application model.
type App struct {
	deps        Deps
	view        registry.View
	projects    []models.Project
	selectedIdx int
	input       textinput.Model
	viewport    viewport.Model
	width       int
	height      int
	mode        string
	current     *models.Project
	pending     *models.Project // awaiting delete confirmation
	notice      string
	message     string
	query       string
	loading     bool
	suggestions *Suggestions
	now         func() time.Time
}

// New creates a new project browser.
func New(deps Deps) *App {
	if deps.Timeout <= 0 {
		deps.Timeout = 30 * time.Second
	}

	ti := textinput.New()
	ti.Placeholder = "Search projects, or /command (refresh | delete | retry | whoami)"
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 80

	vp := viewport.New(80, 20)

	a := &App{
		deps:        deps,
		input:       ti,
		viewport:    vp,
		width:       80,
		height:      24,
		mode:        modeList,
		suggestions: NewSuggestions(),
		now:         time.Now,
	}
	if deps.Registry != nil {
		a.applyView(deps.Registry.Current())
	}
	return a
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		a.fetchProjects(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if a.pending != nil {
			return a, a.confirmDelete(msg.String())
		}
		idle := a.mode == modeDetail || a.input.Value() == ""

		switch msg.String() {
		case "esc":
			if a.mode == modeDetail {
				a.mode = modeList
				a.current = nil
				return a, nil
			}
			if !idle {
				a.input.SetValue("")
				a.setQuery("")
				a.suggestions.Update("")
				return a, nil
			}

		case "up", "k":
			if msg.String() == "k" && !idle {
				break
			}
			if a.suggestions.IsVisible() {
				a.suggestions.Prev()
				return a, nil
			}
			if a.mode == modeList && a.selectedIdx > 0 {
				a.selectedIdx--
				return a, nil
			}

		case "down", "j":
			if msg.String() == "j" && !idle {
				break
			}
			if a.suggestions.IsVisible() {
				a.suggestions.Next()
				return a, nil
			}
			if a.mode == modeList && a.selectedIdx < len(a.projects)-1 {
				a.selectedIdx++
				return a, nil
			}

		case "tab":
			if a.suggestions.IsVisible() {
				if selected := a.suggestions.Selected(); selected != nil {
					a.input.SetValue("/" + selected.Text)
					a.input.CursorEnd()
					a.suggestions.Update("")
				}
				return a, nil
			}

		case "enter":
			value := strings.TrimSpace(a.input.Value())
			if a.suggestions.IsVisible() {
				if selected := a.suggestions.Selected(); selected != nil {
					value = "/" + selected.Text
				}
			}
			if strings.HasPrefix(value, "/") {
				a.input.SetValue("")
				a.suggestions.Update("")
				a.setQuery("")
				return a, a.executeCommand(value)
			}
			if a.mode == modeList {
				a.openSelected()
				return a, nil
			}

		case "r":
			if idle {
				return a, a.fetchProjects()
			}

		case "d":
			if idle {
				a.askDelete()
				return a, nil
			}

		case "q":
			if idle {
				return a, tea.Quit
			}
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = msg.Width - 4
		a.viewport.Width = msg.Width
		a.viewport.Height = max(5, msg.Height-10)
		if a.current != nil {
			a.viewport.SetContent(a.renderProjectDetail(*a.current))
		}

	case projectsLoadedMsg:
		a.loading = false
		a.applyView(msg.view)
		if a.current != nil {
			if p, ok := a.find(a.current.ID); ok {
				a.current = &p
				a.viewport.SetContent(a.renderProjectDetail(p))
			}
		}

	case projectDeletedMsg:
		if a.deps.Registry != nil {
			a.deps.Registry.Remove(msg.project.ID)
			a.applyView(a.deps.Registry.Current())
		}
		a.message = fmt.Sprintf("✓ Deleted %s", msg.project.Name)
		if msg.result != nil && msg.result.Queued {
			a.message += " (infrastructure release queued for retry)"
		}
		if a.current != nil && a.current.ID == msg.project.ID {
			a.mode = modeList
			a.current = nil
		}
		return a, a.fetchProjects()

	case commandResultMsg:
		a.message = msg.message
		if msg.refresh {
			return a, a.fetchProjects()
		}
		return a, nil

	case errMsg:
		a.loading = false
		a.message = "Error: " + msg.err.Error()
		return a, nil
	}

	var cmd tea.Cmd
	if a.mode == modeDetail {
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd
	}

	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)

	value := a.input.Value()
	a.suggestions.Update(value)
	if !strings.HasPrefix(value, "/") {
		a.setQuery(value)
	}

	return a, tea.Batch(cmds...)
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	source := liveStyle.Render("● LIVE")
	if a.view.IsFallback() {
		source = noticeStyle.Render("○ SAMPLE")
	}

	userStatus := lipgloss.NewStyle().Foreground(mutedColor).Render("○ not signed in")
	if session := a.session(); session.Authenticated() {
		who := session.Email
		if who == "" {
			who = "signed in"
		}
		userStatus = lipgloss.NewStyle().Foreground(successColor).Render("● " + who)
	}

	header := titleStyle.Render("🚀 LAUNCHA Projects")
	header += "  " + source
	header += "  " + lipgloss.NewStyle().Foreground(cyanColor).Render(fmt.Sprintf("[%d projects]", len(a.view.Projects)))
	header += "  " + userStatus

	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", a.width) + "\n")

	contentHeight := a.height - 9
	if contentHeight < 5 {
		contentHeight = 5
	}

	switch a.mode {
	case modeList:
		label := " Search: [all]"
		if a.query != "" {
			label = fmt.Sprintf(" Search: [%s]", a.query)
		}
		b.WriteString(lipgloss.NewStyle().Foreground(mutedColor).Render(label) + "\n")
		b.WriteString(a.renderProjectList(contentHeight - 1))
	case modeDetail:
		b.WriteString(a.viewport.View())
	}

	// Fallback notice, non-blocking and distinct from errors
	b.WriteString("\n")
	if a.notice != "" {
		b.WriteString(noticeStyle.Render("⚠ " + a.notice))
	}

	// Message bar
	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		} else if a.pending != nil {
			msgStyle = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
		}
		b.WriteString("\n" + msgStyle.Render(a.message))
	} else {
		b.WriteString("\n")
	}

	if a.mode == modeList {
		b.WriteString("\n")
		b.WriteString(inputBoxStyle.Render(a.input.View()))
		if a.suggestions.IsVisible() {
			b.WriteString("\n")
			b.WriteString(a.suggestions.Render(a.width))
		}
	}
	b.WriteString("\n")

	var status string
	switch a.mode {
	case modeList:
		status = fmt.Sprintf(" Projects: %d/%d | ↑↓:nav | Enter:details | d:delete | r:refresh | /:commands | Ctrl+C:quit",
			len(a.projects), len(a.view.Projects))
	default:
		status = " ↑↓:scroll | d:delete | r:refresh | Esc:back | Ctrl+C:quit"
	}
	b.WriteString(statusBarStyle.Width(a.width).Render(status))

	return b.String()
}

func (a *App) session() auth.Session {
	if a.deps.Sessions == nil {
		return auth.Session{}
	}
	return a.deps.Sessions.Current()
}

func (a *App) applyView(view registry.View) {
	a.view = view
	a.notice = ""
	if view.Reason != nil {
		a.notice = view.Reason.Notice()
	}
	a.setQuery(a.query)
}

func (a *App) setQuery(query string) {
	a.query = strings.TrimSpace(query)
	a.projects = registry.FilterProjects(a.view.Projects, a.query)
	if a.selectedIdx >= len(a.projects) {
		a.selectedIdx = max(0, len(a.projects)-1)
	}
}

func (a *App) find(id int64) (models.Project, bool) {
	for _, p := range a.view.Projects {
		if p.ID == id {
			return p, true
		}
	}
	return models.Project{}, false
}

func (a *App) selected() (models.Project, bool) {
	if a.mode == modeDetail && a.current != nil {
		return *a.current, true
	}
	if len(a.projects) == 0 || a.selectedIdx >= len(a.projects) {
		return models.Project{}, false
	}
	return a.projects[a.selectedIdx], true
}

func (a *App) openSelected() {
	p, ok := a.selected()
	if !ok {
		return
	}
	a.mode = modeDetail
	a.current = &p
	a.viewport.SetContent(a.renderProjectDetail(p))
	a.viewport.GotoTop()
}

func (a *App) askDelete() {
	p, ok := a.selected()
	if !ok {
		a.message = "No project selected"
		return
	}
	if a.view.IsFallback() {
		a.message = "Error: sample projects cannot be deleted"
		return
	}
	a.pending = &p
	a.message = fmt.Sprintf("Delete %s? This releases its infrastructure. (y/n)", p.Name)
}

func (a *App) confirmDelete(key string) tea.Cmd {
	p := *a.pending
	a.pending = nil
	switch key {
	case "y", "Y":
		a.message = fmt.Sprintf("Deleting %s...", p.Name)
		return a.deleteProject(p)
	default:
		a.message = "Delete cancelled"
		return nil
	}
}

func (a *App) fetchProjects() tea.Cmd {
	if a.deps.Registry == nil {
		return nil
	}
	a.loading = true
	reg := a.deps.Registry
	session := a.session()
	timeout := a.deps.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return projectsLoadedMsg{view: reg.Refresh(ctx, session)}
	}
}

func (a *App) deleteProject(p models.Project) tea.Cmd {
	if a.deps.Teardown == nil {
		return func() tea.Msg { return commandResultMsg{message: "Error: delete is not available"} }
	}
	destroyer := a.deps.Teardown
	session := a.session()
	timeout := a.deps.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		result, err := destroyer.DestroyProject(ctx, p, session)
		if err != nil {
			return errMsg{err}
		}
		return projectDeletedMsg{project: p, result: result}
	}
}

func (a *App) executeCommand(input string) tea.Cmd {
	parts := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(parts) == 0 {
		return nil
	}

	switch parts[0] {
	case "refresh":
		return a.fetchProjects()

	case "open":
		a.openSelected()
		return nil

	case "delete":
		a.askDelete()
		return nil

	case "search":
		query := strings.Join(parts[1:], " ")
		a.input.SetValue(query)
		a.input.CursorEnd()
		a.setQuery(query)
		return nil

	case "clear":
		a.setQuery("")
		a.message = ""
		return nil

	case "whoami":
		session := a.session()
		if !session.Authenticated() {
			a.message = "Not signed in. Run: launcha login"
			return nil
		}
		who := session.Email
		if who == "" {
			who = session.Subject
		}
		a.message = "Signed in as " + who
		return nil

	case "retry":
		return a.retryPending()

	case "quit":
		return tea.Quit
	}

	a.message = fmt.Sprintf("Unknown command: %s", parts[0])
	return nil
}

func (a *App) retryPending() tea.Cmd {
	if a.deps.Replay == nil {
		a.message = "Error: retry is not available"
		return nil
	}
	replayer := a.deps.Replay
	session := a.session()
	timeout := a.deps.Timeout
	a.message = "Retrying pending work..."
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		profiles, err := replayer.RetryProfiles(ctx, session)
		if err != nil {
			return errMsg{err}
		}
		releases, err := replayer.RetryReleases(ctx, session)
		if err != nil {
			return errMsg{err}
		}
		return commandResultMsg{
			message: fmt.Sprintf("✓ Retried %d drafts (%d failed), %d releases (%d failed)",
				profiles.Attempted, profiles.Failed, releases.Attempted, releases.Failed),
			refresh: true,
		}
	}
}
