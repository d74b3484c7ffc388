// Package apiclienttest provides an in-process fake of the launcha backends.
package apiclienttest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/bang0930/mcp-web/internal/apiclient"
	"github.com/bang0930/mcp-web/internal/models"
)

// Route names used for call counting and failure injection.
const (
	RouteLogin         = "login"
	RouteSignup        = "signup"
	RouteDeleteAccount = "delete-account"
	RouteProfile       = "profile"
	RoutePredict       = "predict"
	RoutePlans         = "plans"
	RouteDeploy        = "deploy"
	RouteDestroy       = "destroy"
	RouteListProjects  = "list-projects"
	RouteGetProject    = "get-project"
	RouteDeleteProject = "delete-project"
)

// Failure is an injected non-2xx answer.
type Failure struct {
	Status int
	Body   string
}

// Backend serves every route on a single httptest server. All fields are
// guarded by mu; use the setters from tests.
type Backend struct {
	Server *httptest.Server

	mu         sync.Mutex
	calls      map[string]int
	failures   map[string]Failure
	bodies     map[string][]json.RawMessage
	tokens     map[string]string
	token      string
	prediction models.PredictionResult
	outcome    models.DeploymentOutcome
	planID     string
	projects   []models.Project
}

// New starts a fake backend. Close it with t.Cleanup(b.Close).
func New() *Backend {
	cost := 2.4
	b := &Backend{
		calls:    make(map[string]int),
		failures: make(map[string]Failure),
		bodies:   make(map[string][]json.RawMessage),
		tokens:   make(map[string]string),
		token:    "test-token",
		prediction: models.PredictionResult{
			ExtractedContext: models.ExtractedContext{
				ServiceType:   "web",
				ExpectedUsers: 100,
				TimeSlot:      "14:00-16:00",
				CurrCPU:       0.4,
				CurrMem:       512,
			},
			Recommendations: models.Recommendations{Flavor: "m1.small", CostPerDay: &cost},
		},
		outcome: models.DeploymentOutcome{
			Accepted:   true,
			InstanceID: "inst-1",
			Instance:   &models.InstanceInfo{ID: "inst-1", Name: "app", Status: "ACTIVE"},
			Message:    "deployment accepted",
		},
		planID: "plan-1",
	}

	r := chi.NewRouter()
	r.Post("/auth/login", b.handle(RouteLogin, false, b.login))
	r.Post("/auth/signup", b.handle(RouteSignup, false, b.empty(http.StatusCreated)))
	r.Delete("/auth/delete", b.handle(RouteDeleteAccount, true, b.empty(http.StatusNoContent)))
	r.Put("/auth/profile", b.handle(RouteProfile, true, b.profile))
	r.Post("/api/predict", b.handle(RoutePredict, false, b.predict))
	r.Post("/plans", b.handle(RoutePlans, true, b.plan))
	r.Post("/deploy", b.handle(RouteDeploy, false, b.deploy))
	r.Post("/destroy", b.handle(RouteDestroy, true, b.empty(http.StatusOK)))
	r.Get("/projects", b.handle(RouteListProjects, true, b.listProjects))
	r.Get("/projects/{id}", b.handle(RouteGetProject, true, b.getProject))
	r.Delete("/projects/{id}", b.handle(RouteDeleteProject, true, b.deleteProject))

	b.Server = httptest.NewServer(r)
	return b
}

// Close shuts the server down.
func (b *Backend) Close() {
	b.Server.Close()
}

// URL returns the server base URL.
func (b *Backend) URL() string {
	return b.Server.URL
}

// Endpoints points every service at this backend.
func (b *Backend) Endpoints() apiclient.Endpoints {
	return apiclient.Endpoints{Core: b.URL(), Deploy: b.URL(), Prediction: b.URL()}
}

// Services builds clients for this backend.
func (b *Backend) Services() *apiclient.Services {
	svc, err := apiclient.NewServices(b.Endpoints())
	if err != nil {
		panic(err)
	}
	return svc
}

// Token returns the bearer token the backend accepts.
func (b *Backend) Token() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token
}

// SetToken changes the accepted (and issued) bearer token.
func (b *Backend) SetToken(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = token
}

// Fail makes route answer with status and body until Clear is called.
func (b *Backend) Fail(route string, status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = Failure{Status: status, Body: body}
}

// Clear removes an injected failure.
func (b *Backend) Clear(route string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, route)
}

// Calls returns how many times route was hit.
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// Bodies returns the raw request bodies received on route.
func (b *Backend) Bodies(route string) []json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]json.RawMessage, len(b.bodies[route]))
	copy(out, b.bodies[route])
	return out
}

// LastAuthorization returns the Authorization header of the last call to route.
func (b *Backend) LastAuthorization(route string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens[route]
}

// SetPrediction replaces the prediction response.
func (b *Backend) SetPrediction(p models.PredictionResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prediction = p
}

// SetOutcome replaces the deploy response.
func (b *Backend) SetOutcome(o models.DeploymentOutcome) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outcome = o
}

// SetPlanID replaces the plan acknowledgment id.
func (b *Backend) SetPlanID(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.planID = id
}

// SetProjects replaces the authoritative project list.
func (b *Backend) SetProjects(projects []models.Project) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.projects = append([]models.Project(nil), projects...)
}

// Projects returns the current authoritative project list.
func (b *Backend) Projects() []models.Project {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Project(nil), b.projects...)
}

func (b *Backend) handle(route string, auth bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var raw json.RawMessage
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&raw)
		}

		b.mu.Lock()
		b.calls[route]++
		if len(raw) > 0 {
			b.bodies[route] = append(b.bodies[route], raw)
		}
		b.tokens[route] = r.Header.Get("Authorization")
		failure, failing := b.failures[route]
		token := b.token
		b.mu.Unlock()

		if failing {
			w.WriteHeader(failure.Status)
			_, _ = w.Write([]byte(failure.Body))
			return
		}
		if auth && r.Header.Get("Authorization") != "Bearer "+token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid token"})
			return
		}
		next(w, r)
	}
}

func (b *Backend) empty(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"access_token": b.Token(), "token_type": "bearer"})
}

func (b *Backend) profile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"id": 1, "email": "user@example.com"})
}

func (b *Backend) predict(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	p := b.prediction
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, p)
}

func (b *Backend) plan(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	id := b.planID
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"plan_id": id, "status": "accepted"})
}

func (b *Backend) deploy(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	o := b.outcome
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, o)
}

func (b *Backend) listProjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"projects": b.Projects()})
}

func (b *Backend) getProject(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid project id"})
		return
	}
	for _, p := range b.Projects() {
		if p.ID == id {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "project not found"})
}

func (b *Backend) deleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid project id"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, p := range b.projects {
		if p.ID == id {
			b.projects = append(b.projects[:i], b.projects[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "project not found"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
