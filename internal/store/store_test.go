package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNew_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if _, err := s.RetainProfile("https://github.com/org/app", "100 users", "down"); err != nil {
		t.Fatalf("RetainProfile failed: %v", err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s.Close()

	profiles, err := s.ListPendingProfiles()
	if err != nil {
		t.Fatalf("ListPendingProfiles failed: %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("Expected 1 profile after reopen, got %d", len(profiles))
	}
}

func TestPendingProfileUpsert(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	first, err := s.RetainProfile("https://github.com/org/app", "100 users", "profile: unreachable")
	if err != nil {
		t.Fatalf("RetainProfile failed: %v", err)
	}
	if first.ID == "" {
		t.Error("Profile ID should not be empty")
	}
	if first.LastError != "profile: unreachable" {
		t.Errorf("Expected last error to be kept, got %q", first.LastError)
	}

	second, err := s.RetainProfile("https://github.com/org/app", "500 users", "")
	if err != nil {
		t.Fatalf("RetainProfile (second) failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("Expected same row for same repository, got %s and %s", first.ID, second.ID)
	}
	if second.Requirements != "500 users" {
		t.Errorf("Expected requirements to be replaced, got %q", second.Requirements)
	}

	if _, err := s.RetainProfile("https://github.com/org/other", "10 users", ""); err != nil {
		t.Fatalf("RetainProfile (other) failed: %v", err)
	}
	profiles, err := s.ListPendingProfiles()
	if err != nil {
		t.Fatalf("ListPendingProfiles failed: %v", err)
	}
	if len(profiles) != 2 {
		t.Errorf("Expected 2 retained drafts, got %d", len(profiles))
	}

	if _, err := s.RetainProfile("  ", "x", ""); err == nil {
		t.Error("Expected error for empty repository url")
	}
}

func TestPendingProfileAttemptsAndDelete(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	p, err := s.RetainProfile("https://github.com/org/app", "100 users", "")
	if err != nil {
		t.Fatalf("RetainProfile failed: %v", err)
	}

	if err := s.MarkProfileAttempt(p.ID, "still down"); err != nil {
		t.Fatalf("MarkProfileAttempt failed: %v", err)
	}
	if err := s.MarkProfileAttempt(p.ID, "still down again"); err != nil {
		t.Fatalf("MarkProfileAttempt failed: %v", err)
	}
	got, err := s.GetPendingProfile(p.RepositoryURL)
	if err != nil {
		t.Fatalf("GetPendingProfile failed: %v", err)
	}
	if got.Attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", got.Attempts)
	}
	if got.LastError != "still down again" {
		t.Errorf("Expected last error updated, got %q", got.LastError)
	}

	if err := s.DeletePendingProfile(p.ID); err != nil {
		t.Fatalf("DeletePendingProfile failed: %v", err)
	}
	if _, err := s.GetPendingProfile(p.RepositoryURL); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeletePendingProfile(p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
	}
	if err := s.MarkProfileAttempt("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound marking missing row, got %v", err)
	}
}

func TestPendingReleases(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	r, err := s.AddPendingRelease(7, "svc-1", "vm-1", "deploy: unreachable")
	if err != nil {
		t.Fatalf("AddPendingRelease failed: %v", err)
	}
	if r.ProjectID != 7 || r.ServiceID != "svc-1" || r.InstanceID != "vm-1" {
		t.Errorf("Unexpected release: %+v", r)
	}

	again, err := s.AddPendingRelease(7, "svc-1", "vm-1", "deploy: 502")
	if err != nil {
		t.Fatalf("AddPendingRelease (again) failed: %v", err)
	}
	if again.ID != r.ID {
		t.Errorf("Expected same row for same service/instance pair")
	}
	if again.LastError != "deploy: 502" {
		t.Errorf("Expected refreshed last error, got %q", again.LastError)
	}

	if _, err := s.AddPendingRelease(8, "svc-2", "", "x"); err == nil {
		t.Error("Expected error when instance id is missing")
	}

	if err := s.MarkReleaseAttempt(r.ID, "timeout"); err != nil {
		t.Fatalf("MarkReleaseAttempt failed: %v", err)
	}
	releases, err := s.ListPendingReleases()
	if err != nil {
		t.Fatalf("ListPendingReleases failed: %v", err)
	}
	if len(releases) != 1 {
		t.Fatalf("Expected 1 release, got %d", len(releases))
	}
	if releases[0].Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", releases[0].Attempts)
	}

	if err := s.DeletePendingRelease(r.ID); err != nil {
		t.Fatalf("DeletePendingRelease failed: %v", err)
	}
	releases, err = s.ListPendingReleases()
	if err != nil {
		t.Fatalf("ListPendingReleases failed: %v", err)
	}
	if len(releases) != 0 {
		t.Errorf("Expected 0 releases, got %d", len(releases))
	}
}

func TestWorkflowRecords(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	for _, outcome := range []string{"succeeded", "failed", "degraded"} {
		if _, err := s.WriteWorkflowRecord("project.create", "abc123", outcome, ""); err != nil {
			t.Fatalf("WriteWorkflowRecord failed: %v", err)
		}
	}

	recs, err := s.ListWorkflowRecords(2)
	if err != nil {
		t.Fatalf("ListWorkflowRecords failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Expected 2 records with limit, got %d", len(recs))
	}
	if recs[0].Action != "project.create" {
		t.Errorf("Expected action project.create, got %s", recs[0].Action)
	}

	all, err := s.ListWorkflowRecords(0)
	if err != nil {
		t.Fatalf("ListWorkflowRecords failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 records, got %d", len(all))
	}
}

func newTestStore(t *testing.T) *Store {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}
