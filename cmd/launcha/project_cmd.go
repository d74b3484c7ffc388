package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bang0930/mcp-web/internal/apiclient"
	"github.com/bang0930/mcp-web/internal/models"
	"github.com/bang0930/mcp-web/internal/orchestrator"
	"github.com/bang0930/mcp-web/internal/registry"
	"github.com/bang0930/mcp-web/internal/teardown"
)

var projectCmd = &cobra.Command{
	Use:     "project",
	Aliases: []string{"projects"},
	Short:   "Create, inspect and delete projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Predict resources for a repository and deploy it",
	RunE:  runProjectCreate,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE:  runProjectList,
}

var projectShowCmd = &cobra.Command{
	Use:   "show [project-id]",
	Short: "Show project details",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectShow,
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete [project-id]",
	Short: "Delete a project and release its infrastructure",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectDelete,
}

var (
	projectRepo         string
	projectRequirements string
	projectSearch       string
	forceLocal          bool
)

func init() {
	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectShowCmd, projectDeleteCmd)

	projectCreateCmd.Flags().StringVar(&projectRepo, "repo", "", "GitHub repository URL (required)")
	projectCreateCmd.Flags().StringVar(&projectRequirements, "requirements", "", "Expected load in plain language, e.g. \"500 users at lunch\" (required)")
	projectCreateCmd.MarkFlagRequired("repo")
	projectCreateCmd.MarkFlagRequired("requirements")

	projectListCmd.Flags().StringVar(&projectSearch, "search", "", "Filter by name or repository")

	projectDeleteCmd.Flags().BoolVar(&forceLocal, "force-local", false, "Drop the project from the local view even if the backend refuses the deletion")
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	draft := models.ProjectDraft{RepositoryURL: projectRepo, Requirements: projectRequirements}
	session := env.sessions.Current()

	summary, err := env.orchestrator.CreateAndDeploy(cmd.Context(), draft, session)
	if err != nil {
		return err
	}

	// Register the new project only once the deployment was accepted.
	if summary.Deployment.Accepted {
		env.registry.Refresh(cmd.Context(), session)
		p, added := env.registry.Add(orchestrator.ProjectFromSummary(summary, time.Now()))
		env.logger.Debug("registered project",
			zap.String("name", p.Name),
			zap.Int64("id", p.ID),
			zap.Bool("in_view", added))
	}

	if ok, err := printStructured(cmd.OutOrStdout(), outputFormat, summary); ok {
		return err
	}
	printSummary(cmd.OutOrStdout(), summary)
	noteDegraded(cmd.ErrOrStderr(), summary)
	return nil
}

// noteDegraded tells the user what a best-effort failure left behind.
func noteDegraded(w io.Writer, summary *orchestrator.DeploymentSummary) {
	for _, name := range summary.Report.Degraded() {
		switch name {
		case orchestrator.StepProfile:
			fmt.Fprintln(w, "warning: the project profile was not saved; the draft is kept locally, run: launcha pending retry")
		case orchestrator.StepPlan:
			fmt.Fprintln(w, "warning: plan submission failed; deployed without a plan")
		}
	}
}

type projectListing struct {
	Source   string           `json:"source" yaml:"source"`
	Notice   string           `json:"notice,omitempty" yaml:"notice,omitempty"`
	Projects []models.Project `json:"projects" yaml:"projects"`
}

func runProjectList(cmd *cobra.Command, args []string) error {
	view := env.registry.Refresh(cmd.Context(), env.sessions.Current())
	noteFallback(cmd.ErrOrStderr(), view)

	projects := registry.FilterProjects(view.Projects, projectSearch)
	listing := projectListing{Source: view.Source.String(), Projects: projects}
	if view.Reason != nil {
		listing.Notice = view.Reason.Notice()
	}

	if ok, err := printStructured(cmd.OutOrStdout(), outputFormat, listing); ok {
		return err
	}
	printProjects(cmd.OutOrStdout(), projects, time.Now())
	return nil
}

func runProjectShow(cmd *cobra.Command, args []string) error {
	id, err := parseProjectID(args[0])
	if err != nil {
		return err
	}
	session := env.sessions.Current()

	var p models.Project
	if session.Authenticated() {
		p, err = env.services.Projects.GetProject(cmd.Context(), session.Token(), id)
		if err != nil {
			return err
		}
	} else {
		view := env.registry.Refresh(cmd.Context(), session)
		noteFallback(cmd.ErrOrStderr(), view)
		var found bool
		if p, found = env.registry.Find(id); !found {
			return fmt.Errorf("project %d not found", id)
		}
	}

	if ok, err := printStructured(cmd.OutOrStdout(), outputFormat, p); ok {
		return err
	}
	printProject(cmd.OutOrStdout(), p)
	return nil
}

func runProjectDelete(cmd *cobra.Command, args []string) error {
	id, err := parseProjectID(args[0])
	if err != nil {
		return err
	}
	session := env.sessions.Current()
	if !session.Authenticated() {
		return apiclient.ErrUnauthenticated
	}

	view := env.registry.Refresh(cmd.Context(), session)
	if view.IsFallback() {
		return fmt.Errorf("cannot delete project %d: %s", id, view.Reason.Notice())
	}
	p, found := env.registry.Find(id)
	if !found {
		return fmt.Errorf("project %d not found", id)
	}

	result, err := env.teardown.DestroyProject(cmd.Context(), p, session)
	if err != nil {
		if forceLocal && errors.Is(err, teardown.ErrDeletionFailed) {
			env.registry.Remove(p.ID)
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s; removed %s from the local view only\n", errorText(err), p.Name)
			return nil
		}
		return err
	}
	env.registry.Remove(p.ID)
	env.registry.Refresh(cmd.Context(), session)

	if ok, err := printStructured(cmd.OutOrStdout(), outputFormat, result); ok {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Deleted project %s (%d)\n", p.Name, p.ID)
	switch {
	case result.Released:
		fmt.Fprintf(w, "Released instance %s\n", p.InstanceIDValue())
	case result.Queued:
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: releasing the instance failed; queued for retry, run: launcha pending retry")
	}
	return nil
}

func noteFallback(w io.Writer, view registry.View) {
	if view.Reason != nil {
		fmt.Fprintf(w, "note: %s\n", view.Reason.Notice())
	}
}

func parseProjectID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid project id %q", raw)
	}
	return id, nil
}
