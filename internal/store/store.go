// Package store provides SQLite-backed local state for launcha: drafts whose
// profile write failed, infrastructure whose release failed, and workflow
// records.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/bang0930/mcp-web/internal/models"
)

// ErrNotFound indicates the row does not exist.
var ErrNotFound = errors.New("not found")

// Store provides access to the launcha SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pending_profiles (
		id TEXT PRIMARY KEY,
		repository_url TEXT NOT NULL UNIQUE,
		requirements TEXT NOT NULL,
		last_error TEXT,
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pending_releases (
		id TEXT PRIMARY KEY,
		project_id INTEGER NOT NULL,
		service_id TEXT NOT NULL,
		instance_id TEXT NOT NULL,
		last_error TEXT,
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (service_id, instance_id)
	);

	CREATE TABLE IF NOT EXISTS workflow_records (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_workflow_records_timestamp ON workflow_records(timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Pending profile operations ---

// RetainProfile stores a draft for a later profile write. Drafts are keyed by
// repository URL: retaining the same URL again replaces its requirements.
func (s *Store) RetainProfile(repositoryURL, requirements, lastError string) (*models.PendingProfile, error) {
	repositoryURL = strings.TrimSpace(repositoryURL)
	if repositoryURL == "" {
		return nil, fmt.Errorf("retain profile: repository url is empty")
	}
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO pending_profiles (id, repository_url, requirements, last_error, attempts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT(repository_url) DO UPDATE SET
		   requirements = excluded.requirements,
		   last_error = excluded.last_error,
		   updated_at = excluded.updated_at`,
		uuid.New().String(), repositoryURL, requirements, nullString(lastError), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert pending profile: %w", err)
	}
	return s.GetPendingProfile(repositoryURL)
}

// GetPendingProfile returns the retained draft for a repository URL.
func (s *Store) GetPendingProfile(repositoryURL string) (*models.PendingProfile, error) {
	row := s.db.QueryRow(
		`SELECT id, repository_url, requirements, last_error, attempts, created_at, updated_at
		 FROM pending_profiles WHERE repository_url = ?`,
		strings.TrimSpace(repositoryURL),
	)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query pending profile: %w", err)
	}
	return p, nil
}

// ListPendingProfiles returns retained drafts, oldest first.
func (s *Store) ListPendingProfiles() ([]models.PendingProfile, error) {
	rows, err := s.db.Query(
		`SELECT id, repository_url, requirements, last_error, attempts, created_at, updated_at
		 FROM pending_profiles ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending profiles: %w", err)
	}
	defer rows.Close()

	var out []models.PendingProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending profile: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// MarkProfileAttempt records a failed replay.
func (s *Store) MarkProfileAttempt(id, lastError string) error {
	return s.markAttempt("pending_profiles", id, lastError)
}

// DeletePendingProfile removes a retained draft.
func (s *Store) DeletePendingProfile(id string) error {
	return s.deleteRow("pending_profiles", id)
}

// --- Pending release operations ---

// AddPendingRelease records infrastructure whose release failed. The same
// service/instance pair is recorded once; re-adding refreshes the error.
func (s *Store) AddPendingRelease(projectID int64, serviceID, instanceID, lastError string) (*models.PendingRelease, error) {
	if serviceID == "" || instanceID == "" {
		return nil, fmt.Errorf("add pending release: service and instance ids are required")
	}
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO pending_releases (id, project_id, service_id, instance_id, last_error, attempts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT(service_id, instance_id) DO UPDATE SET
		   project_id = excluded.project_id,
		   last_error = excluded.last_error,
		   updated_at = excluded.updated_at`,
		uuid.New().String(), projectID, serviceID, instanceID, nullString(lastError), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert pending release: %w", err)
	}

	row := s.db.QueryRow(
		`SELECT id, project_id, service_id, instance_id, last_error, attempts, created_at, updated_at
		 FROM pending_releases WHERE service_id = ? AND instance_id = ?`,
		serviceID, instanceID,
	)
	r, err := scanRelease(row)
	if err != nil {
		return nil, fmt.Errorf("query pending release: %w", err)
	}
	return r, nil
}

// ListPendingReleases returns unreleased infrastructure, oldest first.
func (s *Store) ListPendingReleases() ([]models.PendingRelease, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, service_id, instance_id, last_error, attempts, created_at, updated_at
		 FROM pending_releases ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending releases: %w", err)
	}
	defer rows.Close()

	var out []models.PendingRelease
	for rows.Next() {
		r, err := scanRelease(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending release: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// MarkReleaseAttempt records a failed replay.
func (s *Store) MarkReleaseAttempt(id, lastError string) error {
	return s.markAttempt("pending_releases", id, lastError)
}

// DeletePendingRelease removes a release once it went through.
func (s *Store) DeletePendingRelease(id string) error {
	return s.deleteRow("pending_releases", id)
}

// --- Workflow record operations ---

// WriteWorkflowRecord writes an audit entry.
func (s *Store) WriteWorkflowRecord(action, inputsHash, outcome, details string) (*models.WorkflowRecord, error) {
	rec := &models.WorkflowRecord{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO workflow_records (id, action, inputs_hash, outcome, details, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Action, rec.InputsHash, rec.Outcome, rec.Details, rec.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert workflow record: %w", err)
	}
	return rec, nil
}

// ListWorkflowRecords returns the newest records first. limit <= 0 means 50.
func (s *Store) ListWorkflowRecords(limit int) ([]models.WorkflowRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, action, inputs_hash, outcome, details, timestamp FROM workflow_records ORDER BY timestamp DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query workflow records: %w", err)
	}
	defer rows.Close()

	var out []models.WorkflowRecord
	for rows.Next() {
		var rec models.WorkflowRecord
		var details sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Action, &rec.InputsHash, &rec.Outcome, &details, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan workflow record: %w", err)
		}
		rec.Details = details.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*models.PendingProfile, error) {
	var p models.PendingProfile
	var lastError sql.NullString
	if err := row.Scan(&p.ID, &p.RepositoryURL, &p.Requirements, &lastError, &p.Attempts, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.LastError = lastError.String
	return &p, nil
}

func scanRelease(row scanner) (*models.PendingRelease, error) {
	var r models.PendingRelease
	var lastError sql.NullString
	if err := row.Scan(&r.ID, &r.ProjectID, &r.ServiceID, &r.InstanceID, &lastError, &r.Attempts, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.LastError = lastError.String
	return &r, nil
}

// table is always one of the package's own constants.
func (s *Store) markAttempt(table, id, lastError string) error {
	res, err := s.db.Exec(
		`UPDATE `+table+` SET attempts = attempts + 1, last_error = ?, updated_at = ? WHERE id = ?`,
		nullString(lastError), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return requireAffected(res)
}

func (s *Store) deleteRow(table, id string) error {
	res, err := s.db.Exec(`DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
