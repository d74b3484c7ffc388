package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bang0930/mcp-web/internal/models"
	"github.com/bang0930/mcp-web/internal/orchestrator"
	"github.com/bang0930/mcp-web/internal/workflow"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validateOutput(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unsupported output format %q (use table, json or yaml)", format)
}

// printStructured writes v as JSON or YAML and reports whether it did.
// Table output is left to the caller.
func printStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

func printProjects(w io.Writer, projects []models.Project, now time.Time) {
	if len(projects) == 0 {
		fmt.Fprintln(w, "No projects found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tREPOSITORY\tLAST DEPLOYED\tURL")
	for _, p := range projects {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			p.ID,
			truncate(p.Name, 30),
			p.Status,
			truncate(p.Repository, 50),
			since(p.LastDeployment, now),
			orDash(p.URLValue()))
	}
	tw.Flush()
}

func printProject(w io.Writer, p models.Project) {
	fmt.Fprintf(w, "ID:            %d\n", p.ID)
	fmt.Fprintf(w, "Name:          %s\n", p.Name)
	fmt.Fprintf(w, "Status:        %s\n", p.Status)
	fmt.Fprintf(w, "Repository:    %s\n", p.Repository)
	fmt.Fprintf(w, "URL:           %s\n", orDash(p.URLValue()))
	fmt.Fprintf(w, "Service ID:    %s\n", orDash(p.ServiceIDValue()))
	fmt.Fprintf(w, "Instance ID:   %s\n", orDash(p.InstanceIDValue()))
	fmt.Fprintf(w, "Last Deployed: %s\n", formatTimestamp(p.LastDeployment))
	if !p.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:       %s\n", formatTimestamp(&p.CreatedAt))
	}
	if !p.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "Updated:       %s\n", formatTimestamp(&p.UpdatedAt))
	}
}

func printSummary(w io.Writer, s *orchestrator.DeploymentSummary) {
	d := s.Deployment
	status := "accepted"
	if !d.Accepted {
		status = "rejected"
	}

	fmt.Fprintf(w, "Repository:   %s\n", s.RepositoryURL)
	fmt.Fprintf(w, "Service ID:   %s\n", s.ServiceID)
	fmt.Fprintf(w, "Deployment:   %s\n", status)
	if d.Message != "" {
		fmt.Fprintf(w, "Message:      %s\n", d.Message)
	}
	if s.PlanID != "" {
		fmt.Fprintf(w, "Plan ID:      %s\n", s.PlanID)
	}
	if d.InstanceID != "" {
		fmt.Fprintf(w, "Instance ID:  %s\n", d.InstanceID)
	}
	if d.DeployedAt != nil && !d.DeployedAt.IsZero() {
		fmt.Fprintf(w, "Deployed At:  %s\n", formatTimestamp(d.DeployedAt))
	}

	p := s.Prediction
	fmt.Fprintln(w, "\nPrediction:")
	if p.RepoMetadata != nil && p.RepoMetadata.Language != "" {
		fmt.Fprintf(w, "  Language:        %s\n", p.RepoMetadata.Language)
	}
	ctx := p.ExtractedContext
	if ctx.ServiceType != "" {
		fmt.Fprintf(w, "  Service type:    %s\n", ctx.ServiceType)
	}
	fmt.Fprintf(w, "  Expected users:  %d\n", ctx.ExpectedUsers)
	if ctx.TimeSlot != "" {
		fmt.Fprintf(w, "  Peak time:       %s\n", ctx.TimeSlot)
	}
	if ctx.RuntimeEnv != "" {
		fmt.Fprintf(w, "  Runtime:         %s\n", ctx.RuntimeEnv)
	}
	rec := p.Recommendations
	if rec.Flavor != "" {
		fmt.Fprintf(w, "  Flavor:          %s\n", rec.Flavor)
	}
	if rec.CostPerDay != nil {
		fmt.Fprintf(w, "  Cost per day:    $%.2f\n", *rec.CostPerDay)
	}
	if rec.Notes != "" {
		fmt.Fprintf(w, "  Notes:           %s\n", rec.Notes)
	}

	if d.Instance != nil {
		printInstance(w, d.Instance)
	}
	printReport(w, s.Report)
}

func printInstance(w io.Writer, inst *models.InstanceInfo) {
	fmt.Fprintln(w, "\nInstance:")
	fields := []struct{ label, value string }{
		{"Name", inst.Name},
		{"Status", inst.Status},
		{"Flavor", inst.FlavorName},
		{"Image", inst.ImageName},
		{"Network", inst.NetworkName},
		{"Key pair", inst.KeyName},
	}
	for _, f := range fields {
		if f.value != "" {
			fmt.Fprintf(w, "  %-10s %s\n", f.label+":", f.value)
		}
	}

	if len(inst.Metadata) > 0 {
		fmt.Fprintln(w, "  Metadata:")
		for _, k := range sortedKeys(inst.Metadata) {
			fmt.Fprintf(w, "    %s = %v\n", k, inst.Metadata[k])
		}
	}

	if len(inst.Addresses) > 0 {
		fmt.Fprintln(w, "  Addresses:")
		networks := make([]string, 0, len(inst.Addresses))
		for n := range inst.Addresses {
			networks = append(networks, n)
		}
		sort.Strings(networks)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, n := range networks {
			for _, a := range inst.Addresses[n] {
				fmt.Fprintf(tw, "    %s\t%s\t%s\tIPv%d\n", n, a.Addr, a.Kind(), a.Version)
			}
		}
		tw.Flush()
	}
}

func printReport(w io.Writer, r workflow.Report) {
	degraded := r.Degraded()
	if len(degraded) == 0 {
		return
	}
	fmt.Fprintln(w, "\nIncomplete steps:")
	for _, s := range r.Steps {
		if s.Outcome == workflow.OutcomeDegraded {
			fmt.Fprintf(w, "  %s: %s\n", s.Name, s.Error)
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatTimestamp(ts *models.Timestamp) string {
	if ts == nil || ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func since(ts *models.Timestamp, now time.Time) string {
	if ts == nil || ts.IsZero() {
		return "never"
	}
	d := now.Sub(ts.Time)
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

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// --- Helpers ---

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
