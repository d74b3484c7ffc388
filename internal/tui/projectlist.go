package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bang0930/mcp-web/internal/models"
)

func (a *App) renderProjectList(height int) string {
	if a.loading && len(a.view.Projects) == 0 {
		return "\n  Loading projects...\n"
	}
	if len(a.projects) == 0 {
		if a.query != "" {
			return fmt.Sprintf("\n  No projects match %q. Esc clears the search.\n", a.query)
		}
		return "\n  No projects yet. Create one with: launcha project create --repo <url>\n"
	}

	var lines []string
	for i, p := range a.projects {
		age := lipgloss.NewStyle().Foreground(mutedColor).Render(a.lastDeployed(p))
		if i == a.selectedIdx {
			line := selectedStyle.Render(fmt.Sprintf("▶ %s  %-24s %s", formatStatusPlain(p.Status), truncate(p.Name, 24), a.lastDeployed(p)))
			lines = append(lines, line)
		} else {
			line := projectItemStyle.Render(fmt.Sprintf("  %s  %-24s %s", formatStatus(p.Status), truncate(p.Name, 24), age))
			lines = append(lines, line)
		}
	}

	// Limit visible lines
	if len(lines) > height {
		start := a.selectedIdx - height/2
		if start < 0 {
			start = 0
		}
		end := start + height
		if end > len(lines) {
			end = len(lines)
			start = max(0, end-height)
		}
		lines = lines[start:end]
	}

	return strings.Join(lines, "\n")
}

func (a *App) lastDeployed(p models.Project) string {
	if p.LastDeployment == nil || p.LastDeployment.IsZero() {
		return "never deployed"
	}
	return formatAge(a.now().Sub(p.LastDeployment.Time))
}

func formatStatus(status models.ProjectStatus) string {
	switch status {
	case models.ProjectStatusDeployed:
		return lipgloss.NewStyle().Foreground(successColor).Render("● DEPLOYED")
	case models.ProjectStatusBuilding:
		return lipgloss.NewStyle().Foreground(secondaryColor).Render("◐ BUILDING")
	case models.ProjectStatusError:
		return lipgloss.NewStyle().Foreground(errorColor).Render("✗ ERROR   ")
	case models.ProjectStatusStopped:
		return lipgloss.NewStyle().Foreground(mutedColor).Render("○ STOPPED ")
	default:
		return string(status)
	}
}

func formatStatusPlain(status models.ProjectStatus) string {
	switch status {
	case models.ProjectStatusDeployed:
		return "●"
	case models.ProjectStatusBuilding:
		return "◐"
	case models.ProjectStatusError:
		return "✗"
	case models.ProjectStatusStopped:
		return "○"
	default:
		return "?"
	}
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
