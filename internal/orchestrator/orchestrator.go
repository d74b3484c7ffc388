// Package orchestrator drives the create-project workflow: profile
// persistence, prediction, plan submission and deployment, reported as a
// single summary or a single terminal error.
package orchestrator

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bang0930/mcp-web/internal/apiclient"
	"github.com/bang0930/mcp-web/internal/audit"
	"github.com/bang0930/mcp-web/internal/auth"
	"github.com/bang0930/mcp-web/internal/models"
	"github.com/bang0930/mcp-web/internal/workflow"
)

// Step names, as they appear in reports and logs.
const (
	StepProfile = "persist-profile"
	StepPredict = "predict"
	StepCompose = "compose-deploy"
	StepPlan    = "submit-plan"
	StepDeploy  = "deploy"
)

// DefaultImageTag is sent with every deploy request.
const DefaultImageTag = "latest"

// ProfileWriter persists the draft on the user profile.
type ProfileWriter interface {
	PutProfile(ctx context.Context, token string, input apiclient.ProfileInput) (apiclient.Profile, error)
}

// Predictor returns a resource recommendation.
type Predictor interface {
	Predict(ctx context.Context, input apiclient.PredictInput) (models.PredictionResult, error)
}

// PlanSubmitter forwards the load context to the orchestration service.
type PlanSubmitter interface {
	SubmitPlan(ctx context.Context, token string, input apiclient.PlanInput) (apiclient.PlanAck, error)
}

// Deployer requests provisioning.
type Deployer interface {
	Deploy(ctx context.Context, token string, input apiclient.DeployInput) (models.DeploymentOutcome, error)
}

// DraftRetainer keeps drafts whose profile write failed.
type DraftRetainer interface {
	RetainProfile(repositoryURL, requirements, lastError string) (*models.PendingProfile, error)
}

// Deps are the collaborators of the orchestrator. Drafts and Audit may be nil.
type Deps struct {
	Profile    ProfileWriter
	Prediction Predictor
	Plan       PlanSubmitter
	Deploy     Deployer
	Drafts     DraftRetainer
	Audit      *audit.Recorder
}

// Options tune the workflow.
type Options struct {
	// SubmitPlan enables the best-effort plan submission step.
	SubmitPlan bool
	// MetricName is sent with the plan.
	MetricName string
	// ImageTag overrides DefaultImageTag.
	ImageTag string
	// IDs overrides the service identifier generator.
	IDs *IDGenerator
}

// DeploymentSummary is the consolidated result of a successful run.
type DeploymentSummary struct {
	Prediction    models.PredictionResult  `json:"prediction" yaml:"prediction"`
	Deployment    models.DeploymentOutcome `json:"deployment" yaml:"deployment"`
	ServiceID     string                   `json:"service_id" yaml:"service_id"`
	RepositoryURL string                   `json:"repository_url" yaml:"repository_url"`
	RepoID        string                   `json:"repo_id" yaml:"repo_id"`
	PlanID        string                   `json:"plan_id,omitempty" yaml:"plan_id,omitempty"`
	Report        workflow.Report          `json:"report" yaml:"report"`
}

// Orchestrator runs the create workflow.
type Orchestrator struct {
	deps   Deps
	opts   Options
	ids    *IDGenerator
	runner *workflow.Runner
	logger *zap.Logger
}

// New creates an orchestrator.
func New(deps Deps, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("orchestrator")
	if opts.ImageTag == "" {
		opts.ImageTag = DefaultImageTag
	}
	if opts.MetricName == "" {
		opts.MetricName = "cpu_usage"
	}
	ids := opts.IDs
	if ids == nil {
		ids = NewIDGenerator(nil)
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		ids:    ids,
		runner: workflow.NewRunner(logger),
		logger: logger,
	}
}

// ValidateDraft checks the draft without touching the network.
func ValidateDraft(draft models.ProjectDraft) error {
	raw := strings.TrimSpace(draft.RepositoryURL)
	if raw == "" {
		return fmt.Errorf("%w: repository url is required", ErrInvalidDraft)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: repository url: %v", ErrInvalidDraft, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: repository url must use http or https", ErrInvalidDraft)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: repository url has no host", ErrInvalidDraft)
	}
	if strings.TrimSpace(draft.Requirements) == "" {
		return fmt.Errorf("%w: requirements are required", ErrInvalidDraft)
	}
	return nil
}

// CreateAndDeploy runs the workflow for draft using the credential in
// session. It returns either a summary or exactly one error.
func (o *Orchestrator) CreateAndDeploy(ctx context.Context, draft models.ProjectDraft, session auth.Session) (*DeploymentSummary, error) {
	if !session.Authenticated() {
		return nil, apiclient.ErrUnauthenticated
	}
	if err := ValidateDraft(draft); err != nil {
		return nil, err
	}
	draft.RepositoryURL = strings.TrimSpace(draft.RepositoryURL)
	token := session.Token()

	var (
		prediction models.PredictionResult
		request    apiclient.DeployInput
		serviceID  string
		planID     string
		outcome    models.DeploymentOutcome
	)

	steps := []workflow.Step{
		{
			Name:   StepProfile,
			Policy: workflow.BestEffort,
			Run: func(ctx context.Context) error {
				_, err := o.deps.Profile.PutProfile(ctx, token, apiclient.ProfileInput{
					RepositoryURL: draft.RepositoryURL,
					Requirements:  draft.Requirements,
				})
				return err
			},
			Fallback: func(ctx context.Context, err error) error {
				if o.deps.Drafts == nil {
					return nil
				}
				_, rerr := o.deps.Drafts.RetainProfile(draft.RepositoryURL, draft.Requirements, apiclient.Message(err))
				return rerr
			},
		},
		{
			Name: StepPredict,
			Kind: ErrPredictionFailed,
			Run: func(ctx context.Context) error {
				var err error
				prediction, err = o.deps.Prediction.Predict(ctx, apiclient.PredictInput{
					GithubURL: draft.RepositoryURL,
					UserInput: draft.Requirements,
				})
				return err
			},
		},
		{
			Name: StepCompose,
			Run: func(ctx context.Context) error {
				serviceID = o.ids.Next()
				request = composeDeploy(draft.RepositoryURL, serviceID, o.opts.ImageTag, prediction.Recommendations)
				return nil
			},
		},
		{
			Name:   StepPlan,
			Policy: workflow.BestEffort,
			When:   func() bool { return o.opts.SubmitPlan && o.deps.Plan != nil },
			Run: func(ctx context.Context) error {
				ack, err := o.deps.Plan.SubmitPlan(ctx, token, apiclient.PlanInput{
					ServiceID:    serviceID,
					MetricName:   o.opts.MetricName,
					Context:      apiclient.PlanContext{GithubURL: draft.RepositoryURL},
					Requirements: draft.Requirements,
				})
				if err != nil {
					return err
				}
				planID = ack.PlanID
				request.PlanID = ack.PlanID
				return nil
			},
		},
		{
			Name: StepDeploy,
			Kind: ErrDeploymentFailed,
			Run: func(ctx context.Context) error {
				var err error
				outcome, err = o.deps.Deploy.Deploy(ctx, token, request)
				return err
			},
		},
	}

	report, err := o.runner.Run(ctx, steps)
	inputs := map[string]string{"repository_url": draft.RepositoryURL, "requirements": draft.Requirements}
	if err != nil {
		o.record(inputs, string(workflow.OutcomeFailed), apiclient.Message(err))
		return nil, err
	}

	summary := &DeploymentSummary{
		Prediction:    prediction,
		Deployment:    outcome,
		ServiceID:     serviceID,
		RepositoryURL: draft.RepositoryURL,
		RepoID:        request.RepoID,
		PlanID:        planID,
		Report:        report,
	}
	result := string(workflow.OutcomeSucceeded)
	if len(report.Degraded()) > 0 {
		result = string(workflow.OutcomeDegraded)
	}
	o.record(inputs, result, serviceID)
	o.logger.Info("project deployed",
		zap.String("service_id", serviceID),
		zap.String("instance_id", outcome.InstanceID),
		zap.Bool("accepted", outcome.Accepted),
		zap.Strings("degraded", report.Degraded()))
	return summary, nil
}

func (o *Orchestrator) record(inputs any, outcome, details string) {
	if _, err := o.deps.Audit.Record(audit.ActionProjectCreate, inputs, outcome, details); err != nil {
		o.logger.Warn("failed to write workflow record", zap.Error(err))
	}
}

func composeDeploy(repositoryURL, serviceID, imageTag string, rec models.Recommendations) apiclient.DeployInput {
	env := map[string]any{"service_id": serviceID}
	if rec.Flavor != "" {
		env["flavor"] = rec.Flavor
	}
	if rec.CostPerDay != nil {
		env["cost_per_day"] = *rec.CostPerDay
	}
	if rec.Notes != "" {
		env["notes"] = rec.Notes
	}
	return apiclient.DeployInput{
		GithubURL: repositoryURL,
		RepoID:    RepoID(repositoryURL),
		ImageTag:  imageTag,
		EnvConfig: env,
	}
}

// ProjectFromSummary builds the project record the caller registers.
func ProjectFromSummary(summary *DeploymentSummary, now time.Time) models.Project {
	status := models.ProjectStatusError
	switch {
	case summary.Deployment.Accepted && summary.Deployment.InstanceID != "":
		status = models.ProjectStatusDeployed
	case summary.Deployment.Accepted:
		status = models.ProjectStatusBuilding
	}

	deployedAt := now
	if summary.Deployment.DeployedAt != nil && !summary.Deployment.DeployedAt.IsZero() {
		deployedAt = summary.Deployment.DeployedAt.Time
	}

	p := models.Project{
		Name:       summary.RepoID,
		Repository: summary.RepositoryURL,
		Status:     status,
		CreatedAt:  models.Timestamp{Time: now},
		UpdatedAt:  models.Timestamp{Time: now},
	}
	if summary.Deployment.Accepted {
		p.LastDeployment = models.NewTimestamp(deployedAt)
		p.ServiceID = models.StringPtr(summary.ServiceID)
		p.InstanceID = models.StringPtr(summary.Deployment.InstanceID)
	}
	return p
}
