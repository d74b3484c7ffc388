package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bang0930/mcp-web/internal/apiclient"
	"github.com/bang0930/mcp-web/internal/apiclient/apiclienttest"
	"github.com/bang0930/mcp-web/internal/audit"
	"github.com/bang0930/mcp-web/internal/auth"
	"github.com/bang0930/mcp-web/internal/models"
	"github.com/bang0930/mcp-web/internal/store"
	"github.com/bang0930/mcp-web/internal/workflow"
)

type fixture struct {
	backend *apiclienttest.Backend
	store   *store.Store
	orch    *Orchestrator
	session auth.Session
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	backend := apiclienttest.New()
	t.Cleanup(backend.Close)

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	svc := backend.Services()
	orch := New(Deps{
		Profile:    svc.Profile,
		Prediction: svc.Prediction,
		Plan:       svc.Plan,
		Deploy:     svc.Deploy,
		Drafts:     s,
		Audit:      audit.NewRecorder(s),
	}, opts, nil)

	return &fixture{
		backend: backend,
		store:   s,
		orch:    orch,
		session: auth.NewSession(backend.Token(), "bearer", "user@example.com"),
	}
}

func exampleDraft() models.ProjectDraft {
	return models.ProjectDraft{
		RepositoryURL: "https://example.com/org/app",
		Requirements:  "100 users, peak 2-4pm",
	}
}

func TestCreateAndDeploy_ExampleScenario(t *testing.T) {
	f := newFixture(t, Options{SubmitPlan: true})

	summary, err := f.orch.CreateAndDeploy(context.Background(), exampleDraft(), f.session)
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Equal(t, "inst-1", summary.Deployment.InstanceID)
	assert.Equal(t, "m1.small", summary.Prediction.Recommendations.Flavor)
	assert.Equal(t, 100, summary.Prediction.ExtractedContext.ExpectedUsers)
	assert.True(t, strings.HasPrefix(summary.ServiceID, "svc-"))
	assert.Equal(t, "https://example.com/org/app", summary.RepositoryURL)
	assert.Equal(t, "app", summary.RepoID)
	assert.Equal(t, "plan-1", summary.PlanID)
	assert.Empty(t, summary.Report.Degraded())

	for _, route := range []string{apiclienttest.RouteProfile, apiclienttest.RoutePredict, apiclienttest.RoutePlans, apiclienttest.RouteDeploy} {
		assert.Equal(t, 1, f.backend.Calls(route), route)
	}

	var deploy struct {
		GithubURL string         `json:"github_url"`
		RepoID    string         `json:"repo_id"`
		ImageTag  string         `json:"image_tag"`
		PlanID    string         `json:"plan_id"`
		EnvConfig map[string]any `json:"env_config"`
	}
	bodies := f.backend.Bodies(apiclienttest.RouteDeploy)
	require.Len(t, bodies, 1)
	require.NoError(t, json.Unmarshal(bodies[0], &deploy))
	assert.Equal(t, "https://example.com/org/app", deploy.GithubURL)
	assert.Equal(t, "app", deploy.RepoID)
	assert.Equal(t, "latest", deploy.ImageTag)
	assert.Equal(t, "plan-1", deploy.PlanID)
	assert.Equal(t, summary.ServiceID, deploy.EnvConfig["service_id"])
	assert.Equal(t, "m1.small", deploy.EnvConfig["flavor"])
	assert.InDelta(t, 2.4, deploy.EnvConfig["cost_per_day"], 1e-9)
	assert.NotContains(t, deploy.EnvConfig, "notes")

	var predict apiclient.PredictInput
	require.NoError(t, json.Unmarshal(f.backend.Bodies(apiclienttest.RoutePredict)[0], &predict))
	assert.Equal(t, "100 users, peak 2-4pm", predict.UserInput)
	assert.Empty(t, f.backend.LastAuthorization(apiclienttest.RoutePredict))

	recs, err := f.store.ListWorkflowRecords(10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "succeeded", recs[0].Outcome)
}

func TestCreateAndDeploy_RepoIDKeepsLastSegment(t *testing.T) {
	f := newFixture(t, Options{})

	draft := models.ProjectDraft{RepositoryURL: "https://github.com/org/service.git", Requirements: "batch jobs at night"}
	summary, err := f.orch.CreateAndDeploy(context.Background(), draft, f.session)
	require.NoError(t, err)
	assert.Equal(t, "service.git", summary.RepoID)

	var deploy struct {
		RepoID string `json:"repo_id"`
	}
	bodies := f.backend.Bodies(apiclienttest.RouteDeploy)
	require.Len(t, bodies, 1)
	require.NoError(t, json.Unmarshal(bodies[0], &deploy))
	assert.Equal(t, "service.git", deploy.RepoID)
}

func TestCreateAndDeploy_Unauthenticated(t *testing.T) {
	f := newFixture(t, Options{SubmitPlan: true})

	summary, err := f.orch.CreateAndDeploy(context.Background(), exampleDraft(), auth.Session{})
	require.ErrorIs(t, err, apiclient.ErrUnauthenticated)
	assert.Nil(t, summary)

	expired := auth.Session{AccessToken: "tok", ExpiresAt: time.Now().Add(-time.Hour)}
	_, err = f.orch.CreateAndDeploy(context.Background(), exampleDraft(), expired)
	require.ErrorIs(t, err, apiclient.ErrUnauthenticated)

	for _, route := range []string{apiclienttest.RouteProfile, apiclienttest.RoutePredict, apiclienttest.RoutePlans, apiclienttest.RouteDeploy} {
		assert.Zero(t, f.backend.Calls(route), route)
	}
}

func TestCreateAndDeploy_InvalidDraft(t *testing.T) {
	f := newFixture(t, Options{})

	drafts := []models.ProjectDraft{
		{RepositoryURL: "", Requirements: "x"},
		{RepositoryURL: "not a url", Requirements: "x"},
		{RepositoryURL: "ftp://example.com/org/app", Requirements: "x"},
		{RepositoryURL: "https://example.com/org/app", Requirements: "   "},
	}
	for _, d := range drafts {
		_, err := f.orch.CreateAndDeploy(context.Background(), d, f.session)
		assert.ErrorIs(t, err, ErrInvalidDraft, d.RepositoryURL)
	}
	assert.Zero(t, f.backend.Calls(apiclienttest.RoutePredict))
}

func TestCreateAndDeploy_PredictionFailureStopsBeforeDeploy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "rejected", status: http.StatusBadGateway, body: `{"detail":"model offline"}`},
		{name: "validation", status: http.StatusUnprocessableEntity, body: `{"detail":[{"msg":"invalid github url"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{SubmitPlan: true})
			f.backend.Fail(apiclienttest.RoutePredict, tt.status, tt.body)

			summary, err := f.orch.CreateAndDeploy(context.Background(), exampleDraft(), f.session)
			require.Error(t, err)
			assert.Nil(t, summary)
			assert.ErrorIs(t, err, ErrPredictionFailed)
			assert.ErrorIs(t, err, apiclient.ErrUpstreamRejected)
			assert.NotErrorIs(t, err, apiclient.ErrUnauthenticated)
			assert.NotEmpty(t, err.Error())

			assert.Zero(t, f.backend.Calls(apiclienttest.RouteDeploy))
			assert.Zero(t, f.backend.Calls(apiclienttest.RoutePlans))
		})
	}
}

func TestCreateAndDeploy_PredictionUnreachable(t *testing.T) {
	f := newFixture(t, Options{})
	svc := f.backend.Services()
	dead, err := apiclient.NewServices(apiclient.Endpoints{Core: f.backend.URL(), Deploy: f.backend.URL(), Prediction: "http://127.0.0.1:1"})
	require.NoError(t, err)

	orch := New(Deps{Profile: svc.Profile, Prediction: dead.Prediction, Deploy: svc.Deploy}, Options{}, nil)
	_, err = orch.CreateAndDeploy(context.Background(), exampleDraft(), f.session)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPredictionFailed)
	assert.ErrorIs(t, err, apiclient.ErrUpstreamUnreachable)
	assert.NotErrorIs(t, err, apiclient.ErrUnauthenticated)
	assert.Zero(t, f.backend.Calls(apiclienttest.RouteDeploy))
}

func TestCreateAndDeploy_ProfileFailureIsIsolated(t *testing.T) {
	f := newFixture(t, Options{})
	f.backend.Fail(apiclienttest.RouteProfile, http.StatusInternalServerError, `{"detail":"db locked"}`)

	summary, err := f.orch.CreateAndDeploy(context.Background(), exampleDraft(), f.session)
	require.NoError(t, err)
	assert.NotEmpty(t, summary.ServiceID)
	assert.Equal(t, []string{StepProfile}, summary.Report.Degraded())
	assert.Equal(t, workflow.OutcomeSkipped, summary.Report.Outcome(StepPlan))

	retained, err := f.store.GetPendingProfile("https://example.com/org/app")
	require.NoError(t, err)
	assert.Equal(t, "100 users, peak 2-4pm", retained.Requirements)
	assert.Equal(t, "db locked", retained.LastError)

	recs, err := f.store.ListWorkflowRecords(10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "degraded", recs[0].Outcome)
}

func TestCreateAndDeploy_PlanFailureIsIsolated(t *testing.T) {
	f := newFixture(t, Options{SubmitPlan: true})
	f.backend.Fail(apiclienttest.RoutePlans, http.StatusServiceUnavailable, "")

	summary, err := f.orch.CreateAndDeploy(context.Background(), exampleDraft(), f.session)
	require.NoError(t, err)
	assert.Empty(t, summary.PlanID)
	assert.Equal(t, []string{StepPlan}, summary.Report.Degraded())

	var deploy map[string]any
	require.NoError(t, json.Unmarshal(f.backend.Bodies(apiclienttest.RouteDeploy)[0], &deploy))
	assert.NotContains(t, deploy, "plan_id")
}

func TestCreateAndDeploy_DeployFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.backend.Fail(apiclienttest.RouteDeploy, http.StatusBadRequest, `{"message":"quota exceeded"}`)

	summary, err := f.orch.CreateAndDeploy(context.Background(), exampleDraft(), f.session)
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, ErrDeploymentFailed)
	assert.Equal(t, "deployment failed: quota exceeded", err.Error())
	assert.Equal(t, "quota exceeded", apiclient.Message(err))

	recs, err := f.store.ListWorkflowRecords(10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "failed", recs[0].Outcome)
}

func TestCreateAndDeploy_SummaryOrErrorNeverBoth(t *testing.T) {
	failures := []string{"", apiclienttest.RouteProfile, apiclienttest.RoutePredict, apiclienttest.RoutePlans, apiclienttest.RouteDeploy}
	drafts := []models.ProjectDraft{
		exampleDraft(),
		{RepositoryURL: "https://github.com/org/service.git", Requirements: "batch jobs at night"},
		{RepositoryURL: "http://gitlab.local", Requirements: "1k users"},
	}
	for _, route := range failures {
		for _, d := range drafts {
			f := newFixture(t, Options{SubmitPlan: true})
			if route != "" {
				f.backend.Fail(route, http.StatusInternalServerError, `{"detail":"boom"}`)
			}
			summary, err := f.orch.CreateAndDeploy(context.Background(), d, f.session)
			if err != nil {
				assert.Nil(t, summary)
				assert.NotEmpty(t, err.Error())
				continue
			}
			require.NotNil(t, summary)
			assert.NotEmpty(t, summary.ServiceID)
		}
	}
}

func TestCreateAndDeploy_DistinctServiceIDs(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	f := newFixture(t, Options{IDs: NewIDGenerator(func() time.Time { return fixed })})

	a, err := f.orch.CreateAndDeploy(context.Background(), exampleDraft(), f.session)
	require.NoError(t, err)
	b, err := f.orch.CreateAndDeploy(context.Background(), exampleDraft(), f.session)
	require.NoError(t, err)
	assert.NotEqual(t, a.ServiceID, b.ServiceID)
	assert.Equal(t, "svc-1700000000000", a.ServiceID)
	assert.Equal(t, "svc-1700000000001", b.ServiceID)
}

func TestCreateAndDeploy_OptionalRecommendations(t *testing.T) {
	f := newFixture(t, Options{})
	f.backend.SetPrediction(models.PredictionResult{
		ExtractedContext: models.ExtractedContext{ServiceType: "api", ExpectedUsers: 10},
	})

	summary, err := f.orch.CreateAndDeploy(context.Background(), exampleDraft(), f.session)
	require.NoError(t, err)
	assert.Empty(t, summary.Prediction.Recommendations.Flavor)

	var deploy struct {
		EnvConfig map[string]any `json:"env_config"`
	}
	require.NoError(t, json.Unmarshal(f.backend.Bodies(apiclienttest.RouteDeploy)[0], &deploy))
	assert.Equal(t, map[string]any{"service_id": summary.ServiceID}, deploy.EnvConfig)
}

func TestProjectFromSummary(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	base := DeploymentSummary{ServiceID: "svc-1", RepositoryURL: "https://github.com/org/app", RepoID: "app"}

	deployed := base
	deployed.Deployment = models.DeploymentOutcome{Accepted: true, InstanceID: "inst-1"}
	p := ProjectFromSummary(&deployed, now)
	assert.Equal(t, models.ProjectStatusDeployed, p.Status)
	assert.Equal(t, "app", p.Name)
	assert.Equal(t, "svc-1", p.ServiceIDValue())
	assert.Equal(t, "inst-1", p.InstanceIDValue())
	assert.True(t, p.HasInfrastructure())
	require.NotNil(t, p.LastDeployment)
	assert.True(t, p.LastDeployment.Equal(now))

	building := base
	building.Deployment = models.DeploymentOutcome{Accepted: true}
	p = ProjectFromSummary(&building, now)
	assert.Equal(t, models.ProjectStatusBuilding, p.Status)
	assert.Nil(t, p.InstanceID)

	rejected := base
	rejected.Deployment = models.DeploymentOutcome{Accepted: false, Message: "no capacity"}
	p = ProjectFromSummary(&rejected, now)
	assert.Equal(t, models.ProjectStatusError, p.Status)
	assert.Nil(t, p.ServiceID)
	assert.Nil(t, p.InstanceID)
	assert.Nil(t, p.LastDeployment)
}

func TestRepoID(t *testing.T) {
	tests := map[string]string{
		"https://example.com/org/app":         "app",
		"https://github.com/org/app/":         "app",
		"https://github.com/org/service.git":  "service.git",
		"https://github.com":                  "https://github.com",
		"https://github.com/":                 "https://github.com/",
		"https://github.com/org/app?tab=code": "app",
	}
	for in, want := range tests {
		assert.Equal(t, want, RepoID(in), in)
	}
}

func TestValidateDraft(t *testing.T) {
	assert.NoError(t, ValidateDraft(exampleDraft()))
	err := ValidateDraft(models.ProjectDraft{RepositoryURL: "https://x.io/a"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDraft))
}
