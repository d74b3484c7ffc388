// Package audit records the outcome of each create and destroy workflow.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/bang0930/mcp-web/internal/models"
)

// Actions recorded by the workflows.
const (
	ActionProjectCreate  = "project.create"
	ActionProjectDestroy = "project.destroy"
	ActionReplayProfile  = "replay.profile"
	ActionReplayRelease  = "replay.release"
)

// RecordStore persists workflow records.
type RecordStore interface {
	WriteWorkflowRecord(action, inputsHash, outcome, details string) (*models.WorkflowRecord, error)
}

// Recorder writes workflow records for audit trails.
type Recorder struct {
	store RecordStore
}

// NewRecorder creates a recorder. A nil store makes Record a no-op.
func NewRecorder(s RecordStore) *Recorder {
	return &Recorder{store: s}
}

// Record writes an entry for a state-mutating workflow. Inputs are hashed,
// never stored, so credentials and requirements stay out of the database.
func (r *Recorder) Record(action string, inputs any, outcome, details string) (*models.WorkflowRecord, error) {
	if r == nil || r.store == nil {
		return nil, nil
	}
	return r.store.WriteWorkflowRecord(action, HashInputs(inputs), outcome, details)
}

// HashInputs creates a SHA256 hash of the inputs for reproducibility.
func HashInputs(inputs any) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
