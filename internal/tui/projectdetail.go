package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bang0930/mcp-web/internal/models"
)

var labelStyle = lipgloss.NewStyle().Foreground(mutedColor).Width(16)

func (a *App) renderProjectDetail(p models.Project) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("\n  📦 %s\n\n", lipgloss.NewStyle().Bold(true).Render(p.Name)))
	b.WriteString(renderField("ID", fmt.Sprintf("%d", p.ID)))
	b.WriteString(renderField("Status", formatStatus(p.Status)))
	b.WriteString(renderField("Repository", p.Repository))
	if url := p.URLValue(); url != "" {
		b.WriteString(renderField("URL", lipgloss.NewStyle().Foreground(cyanColor).Render(url)))
	}
	if p.LastDeployment != nil && !p.LastDeployment.IsZero() {
		b.WriteString(renderField("Last deployed", fmt.Sprintf("%s (%s)", formatTime(p.LastDeployment.Time), a.lastDeployed(p))))
	}
	if !p.CreatedAt.IsZero() {
		b.WriteString(renderField("Created", formatTime(p.CreatedAt.Time)))
	}
	if !p.UpdatedAt.IsZero() {
		b.WriteString(renderField("Updated", formatTime(p.UpdatedAt.Time)))
	}

	b.WriteString("\n  ☁️  Infrastructure\n")
	if p.HasInfrastructure() {
		b.WriteString(renderField("Service", p.ServiceIDValue()))
		b.WriteString(renderField("Instance", p.InstanceIDValue()))
	} else {
		b.WriteString("  " + helpStyle.Render("No instance linked; delete removes the record only.") + "\n")
	}

	if a.view.IsFallback() {
		b.WriteString("\n  " + noticeStyle.Render("Sample project shown while the backend is unavailable.") + "\n")
	}
	b.WriteString("\n  " + helpStyle.Render("Press Esc to go back, d to delete") + "\n")

	return b.String()
}

func renderField(label, value string) string {
	return "  " + labelStyle.Render(label+":") + " " + value + "\n"
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}
