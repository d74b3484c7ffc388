// Package models defines the core domain types for launcha.
package models

import (
	"strings"
	"time"
)

// ProjectStatus represents the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectStatusDeployed ProjectStatus = "deployed"
	ProjectStatusBuilding ProjectStatus = "building"
	ProjectStatusError    ProjectStatus = "error"
	ProjectStatusStopped  ProjectStatus = "stopped"
)

// Valid reports whether s is one of the known statuses.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusDeployed, ProjectStatusBuilding, ProjectStatusError, ProjectStatusStopped:
		return true
	}
	return false
}

// Project is the persistent project record kept by the core API.
type Project struct {
	ID             int64         `json:"id" yaml:"id"`
	Name           string        `json:"name" yaml:"name"`
	Repository     string        `json:"repository" yaml:"repository"`
	Status         ProjectStatus `json:"status" yaml:"status"`
	LastDeployment *Timestamp    `json:"lastDeployment" yaml:"last_deployment"`
	URL            *string       `json:"url" yaml:"url"`
	ServiceID      *string       `json:"service_id" yaml:"service_id"`
	InstanceID     *string       `json:"instance_id" yaml:"instance_id"`
	CreatedAt      Timestamp     `json:"created_at" yaml:"created_at"`
	UpdatedAt      Timestamp     `json:"updated_at" yaml:"updated_at"`
}

// HasInfrastructure reports whether the project carries both identifiers
// needed to release its backing instance.
func (p Project) HasInfrastructure() bool {
	return deref(p.ServiceID) != "" && deref(p.InstanceID) != ""
}

// ServiceIDValue returns the service identifier or "".
func (p Project) ServiceIDValue() string { return deref(p.ServiceID) }

// InstanceIDValue returns the instance identifier or "".
func (p Project) InstanceIDValue() string { return deref(p.InstanceID) }

// URLValue returns the public URL or "".
func (p Project) URLValue() string { return deref(p.URL) }

// ProjectDraft is the user input of the create-project workflow.
type ProjectDraft struct {
	RepositoryURL string `json:"repository_url" yaml:"repository_url"`
	Requirements  string `json:"requirements" yaml:"requirements"`
}

// RepoMetadata is the repository information the prediction service looked up.
type RepoMetadata struct {
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Language    string `json:"language,omitempty" yaml:"language,omitempty"`
	Stars       int    `json:"stars,omitempty" yaml:"stars,omitempty"`
	Forks       int    `json:"forks,omitempty" yaml:"forks,omitempty"`
}

// ExtractedContext is the load profile derived from the natural-language requirements.
type ExtractedContext struct {
	ServiceType   string  `json:"service_type" yaml:"service_type"`
	ExpectedUsers int     `json:"expected_users" yaml:"expected_users"`
	TimeSlot      string  `json:"time_slot" yaml:"time_slot"`
	RuntimeEnv    string  `json:"runtime_env,omitempty" yaml:"runtime_env,omitempty"`
	CurrCPU       float64 `json:"curr_cpu" yaml:"curr_cpu"`
	CurrMem       float64 `json:"curr_mem" yaml:"curr_mem"`
	Reasoning     string  `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
}

// Recommendations holds the sizing advice. Every field is optional.
type Recommendations struct {
	Flavor     string   `json:"flavor,omitempty" yaml:"flavor,omitempty"`
	CostPerDay *float64 `json:"cost_per_day,omitempty" yaml:"cost_per_day,omitempty"`
	Notes      string   `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// PredictionResult is the response of the prediction service.
type PredictionResult struct {
	RepoMetadata     *RepoMetadata    `json:"repo_metadata,omitempty" yaml:"repo_metadata,omitempty"`
	ExtractedContext ExtractedContext `json:"extracted_context" yaml:"extracted_context"`
	Recommendations  Recommendations  `json:"recommendations" yaml:"recommendations"`
}

// Address is one IP assigned to an instance on a network.
type Address struct {
	Addr    string `json:"addr,omitempty" yaml:"addr,omitempty"`
	IPType  string `json:"OS-EXT-IPS:type,omitempty" yaml:"ip_type,omitempty"`
	Type    string `json:"type,omitempty" yaml:"type,omitempty"`
	Version int    `json:"version,omitempty" yaml:"version,omitempty"`
}

// Kind returns the address type tag, preferring the provider extension field.
func (a Address) Kind() string {
	if a.IPType != "" {
		return a.IPType
	}
	if a.Type != "" {
		return a.Type
	}
	return "unknown"
}

// InstanceInfo describes the virtual machine the provider created.
type InstanceInfo struct {
	ID          string               `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string               `json:"name,omitempty" yaml:"name,omitempty"`
	Status      string               `json:"status,omitempty" yaml:"status,omitempty"`
	FlavorName  string               `json:"flavor_name,omitempty" yaml:"flavor_name,omitempty"`
	ImageName   string               `json:"image_name,omitempty" yaml:"image_name,omitempty"`
	NetworkName string               `json:"network_name,omitempty" yaml:"network_name,omitempty"`
	KeyName     string               `json:"key_name,omitempty" yaml:"key_name,omitempty"`
	Metadata    map[string]any       `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Addresses   map[string][]Address `json:"addresses,omitempty" yaml:"addresses,omitempty"`
}

// DeploymentOutcome is the canonical record of what was actually provisioned.
type DeploymentOutcome struct {
	Accepted   bool          `json:"accepted" yaml:"accepted"`
	PlanID     string        `json:"plan_id,omitempty" yaml:"plan_id,omitempty"`
	InstanceID string        `json:"instance_id,omitempty" yaml:"instance_id,omitempty"`
	Instance   *InstanceInfo `json:"instance,omitempty" yaml:"instance,omitempty"`
	Message    string        `json:"message" yaml:"message"`
	DeployedAt *Timestamp    `json:"deployed_at,omitempty" yaml:"deployed_at,omitempty"`
}

// Timestamp decodes the timestamp layouts emitted by the backends, which
// include ISO-8601 values without a zone offset.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t}
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339) + `"`), nil
}

// MarshalYAML implements yaml.Marshaler.
func (t Timestamp) MarshalYAML() (interface{}, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.UTC().Format(time.RFC3339), nil
}

// PendingProfile is a draft that could not be written to the profile service.
type PendingProfile struct {
	ID            string    `json:"id" yaml:"id"`
	RepositoryURL string    `json:"repository_url" yaml:"repository_url"`
	Requirements  string    `json:"requirements" yaml:"requirements"`
	LastError     string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	Attempts      int       `json:"attempts" yaml:"attempts"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"updated_at"`
}

// PendingRelease is infrastructure left behind after its project record was deleted.
type PendingRelease struct {
	ID         string    `json:"id" yaml:"id"`
	ProjectID  int64     `json:"project_id" yaml:"project_id"`
	ServiceID  string    `json:"service_id" yaml:"service_id"`
	InstanceID string    `json:"instance_id" yaml:"instance_id"`
	LastError  string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	Attempts   int       `json:"attempts" yaml:"attempts"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"updated_at"`
}

// WorkflowRecord is an audit entry for a create or destroy workflow.
type WorkflowRecord struct {
	ID         string    `json:"id" yaml:"id"`
	Action     string    `json:"action" yaml:"action"`
	InputsHash string    `json:"inputs_hash" yaml:"inputs_hash"`
	Outcome    string    `json:"outcome" yaml:"outcome"`
	Details    string    `json:"details,omitempty" yaml:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
