// Package teardown deletes a project record and then, best-effort, releases
// the infrastructure behind it.
package teardown

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/bang0930/mcp-web/internal/apiclient"
	"github.com/bang0930/mcp-web/internal/audit"
	"github.com/bang0930/mcp-web/internal/auth"
	"github.com/bang0930/mcp-web/internal/models"
	"github.com/bang0930/mcp-web/internal/workflow"
)

// ErrDeletionFailed indicates the project record could not be deleted.
var ErrDeletionFailed = errors.New("project deletion failed")

// Step names.
const (
	StepDeleteProject = "delete-project"
	StepReleaseInfra  = "release-infrastructure"
)

// ProjectDeleter removes project records.
type ProjectDeleter interface {
	DeleteProject(ctx context.Context, token string, id int64) error
}

// InfraDestroyer releases provisioned instances.
type InfraDestroyer interface {
	Destroy(ctx context.Context, token string, input apiclient.DestroyInput) error
}

// ReleaseQueue keeps releases that failed for a later retry.
type ReleaseQueue interface {
	AddPendingRelease(projectID int64, serviceID, instanceID, lastError string) (*models.PendingRelease, error)
}

// Result describes a completed teardown. Released is true when the destroy
// call succeeded; Queued when a failed release was kept for retry.
type Result struct {
	ProjectID int64           `json:"project_id" yaml:"project_id"`
	Released  bool            `json:"released" yaml:"released"`
	Queued    bool            `json:"queued" yaml:"queued"`
	Report    workflow.Report `json:"report" yaml:"report"`
}

// Coordinator runs the teardown workflow.
type Coordinator struct {
	projects ProjectDeleter
	infra    InfraDestroyer
	queue    ReleaseQueue
	audit    *audit.Recorder
	runner   *workflow.Runner
	logger   *zap.Logger
}

// New creates a coordinator. queue and recorder may be nil.
func New(projects ProjectDeleter, infra InfraDestroyer, queue ReleaseQueue, recorder *audit.Recorder, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("teardown")
	return &Coordinator{
		projects: projects,
		infra:    infra,
		queue:    queue,
		audit:    recorder,
		runner:   workflow.NewRunner(logger),
		logger:   logger,
	}
}

// DestroyProject deletes project's record, then releases its instance when
// both identifiers are known. A failed release does not fail the call. The
// coordinator never touches the registry: the caller removes the project
// from its view once this returns nil.
func (c *Coordinator) DestroyProject(ctx context.Context, project models.Project, session auth.Session) (*Result, error) {
	if !session.Authenticated() {
		return nil, apiclient.ErrUnauthenticated
	}
	token := session.Token()
	result := &Result{ProjectID: project.ID}

	steps := []workflow.Step{
		{
			Name: StepDeleteProject,
			Kind: ErrDeletionFailed,
			Run: func(ctx context.Context) error {
				return c.projects.DeleteProject(ctx, token, project.ID)
			},
		},
		{
			Name:   StepReleaseInfra,
			Policy: workflow.BestEffort,
			When:   project.HasInfrastructure,
			Run: func(ctx context.Context) error {
				err := c.infra.Destroy(ctx, token, apiclient.DestroyInput{
					ServiceID:  project.ServiceIDValue(),
					InstanceID: project.InstanceIDValue(),
				})
				if err == nil {
					result.Released = true
				}
				return err
			},
			Fallback: func(ctx context.Context, err error) error {
				c.logger.Warn("infrastructure left behind",
					zap.Int64("project_id", project.ID),
					zap.String("service_id", project.ServiceIDValue()),
					zap.String("instance_id", project.InstanceIDValue()))
				if c.queue == nil {
					return nil
				}
				if _, qerr := c.queue.AddPendingRelease(project.ID, project.ServiceIDValue(), project.InstanceIDValue(), apiclient.Message(err)); qerr != nil {
					return qerr
				}
				result.Queued = true
				return nil
			},
		},
	}

	report, err := c.runner.Run(ctx, steps)
	result.Report = report

	inputs := map[string]any{
		"project_id":  project.ID,
		"service_id":  project.ServiceIDValue(),
		"instance_id": project.InstanceIDValue(),
	}
	if err != nil {
		c.record(inputs, string(workflow.OutcomeFailed), apiclient.Message(err))
		return nil, err
	}

	outcome := string(workflow.OutcomeSucceeded)
	if len(report.Degraded()) > 0 {
		outcome = string(workflow.OutcomeDegraded)
	}
	c.record(inputs, outcome, "")
	c.logger.Info("project destroyed",
		zap.Int64("project_id", project.ID),
		zap.Bool("released", result.Released),
		zap.Bool("queued", result.Queued))
	return result, nil
}

func (c *Coordinator) record(inputs any, outcome, details string) {
	if _, err := c.audit.Record(audit.ActionProjectDestroy, inputs, outcome, details); err != nil {
		c.logger.Warn("failed to write workflow record", zap.Error(err))
	}
}
