package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bang0930/mcp-web/internal/models"
)

// Logical service names used in errors and logs.
const (
	ServiceAuth       = "auth"
	ServiceProfile    = "profile"
	ServicePrediction = "prediction"
	ServicePlan       = "plan"
	ServiceDeploy     = "deploy"
	ServiceProjects   = "projects"
)

// Endpoints holds the base URLs of the three independently addressed backends.
type Endpoints struct {
	// Core serves auth, profile, plans and projects.
	Core string
	// Deploy serves deploy and destroy.
	Deploy string
	// Prediction serves /api/predict.
	Prediction string
}

// Services bundles one typed client per backend call group.
type Services struct {
	Auth       *AuthClient
	Profile    *ProfileClient
	Prediction *PredictionClient
	Plan       *PlanClient
	Deploy     *DeployClient
	Projects   *ProjectsClient
}

// NewServices builds every client from the endpoint set.
func NewServices(ep Endpoints, opts ...Option) (*Services, error) {
	build := func(service, base string) (*Client, error) {
		return New(service, base, opts...)
	}
	auth, err := build(ServiceAuth, ep.Core)
	if err != nil {
		return nil, err
	}
	profile, err := build(ServiceProfile, ep.Core)
	if err != nil {
		return nil, err
	}
	prediction, err := build(ServicePrediction, ep.Prediction)
	if err != nil {
		return nil, err
	}
	plan, err := build(ServicePlan, ep.Core)
	if err != nil {
		return nil, err
	}
	deploy, err := build(ServiceDeploy, ep.Deploy)
	if err != nil {
		return nil, err
	}
	projects, err := build(ServiceProjects, ep.Core)
	if err != nil {
		return nil, err
	}
	return &Services{
		Auth:       &AuthClient{c: auth},
		Profile:    &ProfileClient{c: profile},
		Prediction: &PredictionClient{c: prediction},
		Plan:       &PlanClient{c: plan},
		Deploy:     &DeployClient{c: deploy},
		Projects:   &ProjectsClient{c: projects},
	}, nil
}

// --- Auth ---

// AuthClient talks to the core API's account endpoints.
type AuthClient struct {
	c *Client
}

// LoginResponse captures the token payload emitted by the API.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// SignupInput is the account creation payload.
type SignupInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// Login exchanges credentials for an access token.
func (a *AuthClient) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}
	var resp LoginResponse
	if err := a.c.do(ctx, call{op: "login", method: http.MethodPost, path: "/auth/login", body: body}, &resp); err != nil {
		return LoginResponse{}, err
	}
	if resp.AccessToken == "" {
		return LoginResponse{}, &DecodeError{Service: ServiceAuth, Op: "login", Err: fmt.Errorf("access_token missing")}
	}
	return resp, nil
}

// Signup creates an account.
func (a *AuthClient) Signup(ctx context.Context, input SignupInput) error {
	return a.c.do(ctx, call{op: "signup", method: http.MethodPost, path: "/auth/signup", body: input}, nil)
}

// DeleteAccount removes the authenticated account.
func (a *AuthClient) DeleteAccount(ctx context.Context, token string) error {
	return a.c.do(ctx, call{op: "delete-account", method: http.MethodDelete, path: "/auth/delete", token: token, auth: true}, nil)
}

// --- Profile ---

// ProfileClient persists the user's project profile.
type ProfileClient struct {
	c *Client
}

// ProfileInput is the profile update payload.
type ProfileInput struct {
	RepositoryURL string `json:"repository_url,omitempty"`
	Requirements  string `json:"requirements,omitempty"`
}

// Profile is the stored profile record.
type Profile map[string]any

// PutProfile stores the repository URL and requirements on the user profile.
func (p *ProfileClient) PutProfile(ctx context.Context, token string, input ProfileInput) (Profile, error) {
	var out Profile
	if err := p.c.do(ctx, call{op: "put-profile", method: http.MethodPut, path: "/auth/profile", body: input, token: token, auth: true}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- Prediction ---

// PredictionClient calls the resource prediction service.
type PredictionClient struct {
	c *Client
}

// PredictInput is the prediction request.
type PredictInput struct {
	GithubURL string `json:"github_url"`
	UserInput string `json:"user_input"`
}

// Predict asks for a resource recommendation. The endpoint is unauthenticated.
func (p *PredictionClient) Predict(ctx context.Context, input PredictInput) (models.PredictionResult, error) {
	var out models.PredictionResult
	if err := p.c.do(ctx, call{op: "predict", method: http.MethodPost, path: "/api/predict", body: input}, &out); err != nil {
		return models.PredictionResult{}, err
	}
	return out, nil
}

// --- Plans ---

// PlanClient submits load context to the orchestration service.
type PlanClient struct {
	c *Client
}

// PlanContext is the load context attached to a plan.
type PlanContext struct {
	GithubURL string `json:"github_url"`
}

// PlanInput is the plan submission payload.
type PlanInput struct {
	ServiceID    string      `json:"service_id"`
	MetricName   string      `json:"metric_name"`
	Context      PlanContext `json:"context"`
	Requirements string      `json:"requirements"`
}

// PlanAck is the orchestration service's acknowledgment.
type PlanAck struct {
	PlanID  string `json:"plan_id,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// SubmitPlan posts the plan context.
func (p *PlanClient) SubmitPlan(ctx context.Context, token string, input PlanInput) (PlanAck, error) {
	var out PlanAck
	if err := p.c.do(ctx, call{op: "submit-plan", method: http.MethodPost, path: "/plans", body: input, token: token, auth: true}, &out); err != nil {
		return PlanAck{}, err
	}
	return out, nil
}

// --- Deploy ---

// DeployClient provisions and releases infrastructure.
type DeployClient struct {
	c *Client
}

// DeployInput is the deploy request.
type DeployInput struct {
	GithubURL string         `json:"github_url"`
	RepoID    string         `json:"repo_id,omitempty"`
	ImageTag  string         `json:"image_tag,omitempty"`
	PlanID    string         `json:"plan_id,omitempty"`
	EnvConfig map[string]any `json:"env_config,omitempty"`
}

// DestroyInput identifies the infrastructure to release.
type DestroyInput struct {
	ServiceID  string `json:"service_id"`
	InstanceID string `json:"instance_id"`
}

// Deploy requests provisioning. The token is optional for this endpoint.
func (d *DeployClient) Deploy(ctx context.Context, token string, input DeployInput) (models.DeploymentOutcome, error) {
	var out models.DeploymentOutcome
	if err := d.c.do(ctx, call{op: "deploy", method: http.MethodPost, path: "/deploy", body: input, token: token}, &out); err != nil {
		return models.DeploymentOutcome{}, err
	}
	return out, nil
}

// Destroy releases the instance behind a service.
func (d *DeployClient) Destroy(ctx context.Context, token string, input DestroyInput) error {
	return d.c.do(ctx, call{op: "destroy", method: http.MethodPost, path: "/destroy", body: input, token: token, auth: true}, nil)
}

// --- Projects ---

// ProjectsClient reads and deletes project records.
type ProjectsClient struct {
	c *Client
}

type projectList struct {
	Projects []models.Project `json:"projects"`
}

// ListProjects returns the authoritative project list.
func (p *ProjectsClient) ListProjects(ctx context.Context, token string) ([]models.Project, error) {
	var out projectList
	if err := p.c.do(ctx, call{op: "list-projects", method: http.MethodGet, path: "/projects", token: token, auth: true}, &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

// GetProject fetches one project.
func (p *ProjectsClient) GetProject(ctx context.Context, token string, id int64) (models.Project, error) {
	path := fmt.Sprintf("/projects/%s", url.PathEscape(fmt.Sprint(id)))
	var out models.Project
	if err := p.c.do(ctx, call{op: "get-project", method: http.MethodGet, path: path, token: token, auth: true}, &out); err != nil {
		return models.Project{}, err
	}
	return out, nil
}

// DeleteProject removes a project record. The service answers 2xx with an empty body.
func (p *ProjectsClient) DeleteProject(ctx context.Context, token string, id int64) error {
	path := fmt.Sprintf("/projects/%s", url.PathEscape(fmt.Sprint(id)))
	return p.c.do(ctx, call{op: "delete-project", method: http.MethodDelete, path: path, token: token, auth: true}, nil)
}
