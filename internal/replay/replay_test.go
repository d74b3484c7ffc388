package replay

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bang0930/mcp-web/internal/apiclient"
	"github.com/bang0930/mcp-web/internal/apiclient/apiclienttest"
	"github.com/bang0930/mcp-web/internal/audit"
	"github.com/bang0930/mcp-web/internal/auth"
	"github.com/bang0930/mcp-web/internal/store"
)

func setup(t *testing.T, ratePerSecond float64) (*apiclienttest.Backend, *store.Store, *Replayer, auth.Session) {
	t.Helper()
	backend := apiclienttest.New()
	t.Cleanup(backend.Close)

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	svc := backend.Services()
	r := New(s, svc.Profile, svc.Deploy, audit.NewRecorder(s), ratePerSecond, nil)
	return backend, s, r, auth.NewSession(backend.Token(), "bearer", "")
}

func TestRetryProfiles(t *testing.T) {
	backend, s, r, session := setup(t, 0)
	_, err := s.RetainProfile("https://github.com/org/a", "10 users", "down")
	require.NoError(t, err)
	_, err = s.RetainProfile("https://github.com/org/b", "20 users", "down")
	require.NoError(t, err)

	sum, err := r.RetryProfiles(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, Summary{Attempted: 2, Succeeded: 2}, sum)
	assert.Equal(t, 2, backend.Calls(apiclienttest.RouteProfile))

	left, err := s.ListPendingProfiles()
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRetryProfiles_FailureKeepsRow(t *testing.T) {
	backend, s, r, session := setup(t, 0)
	backend.Fail(apiclienttest.RouteProfile, http.StatusServiceUnavailable, `{"detail":"maintenance"}`)
	_, err := s.RetainProfile("https://github.com/org/a", "10 users", "down")
	require.NoError(t, err)

	sum, err := r.RetryProfiles(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, Summary{Attempted: 1, Failed: 1}, sum)

	p, err := s.GetPendingProfile("https://github.com/org/a")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Attempts)
	assert.Equal(t, "maintenance", p.LastError)

	recs, err := s.ListWorkflowRecords(10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, audit.ActionReplayProfile, recs[0].Action)
}

func TestRetryReleases(t *testing.T) {
	backend, s, r, session := setup(t, 0)
	_, err := s.AddPendingRelease(1, "svc-1", "vm-1", "timeout")
	require.NoError(t, err)
	_, err = s.AddPendingRelease(2, "svc-2", "vm-2", "timeout")
	require.NoError(t, err)

	sum, err := r.RetryReleases(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, Summary{Attempted: 2, Succeeded: 2}, sum)
	assert.Equal(t, 2, backend.Calls(apiclienttest.RouteDestroy))

	left, err := s.ListPendingReleases()
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRetryReleases_Failure(t *testing.T) {
	backend, s, r, session := setup(t, 0)
	backend.Fail(apiclienttest.RouteDestroy, http.StatusBadGateway, "")
	_, err := s.AddPendingRelease(1, "svc-1", "vm-1", "timeout")
	require.NoError(t, err)

	sum, err := r.RetryReleases(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)

	left, err := s.ListPendingReleases()
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, 1, left[0].Attempts)
	assert.Equal(t, "Bad Gateway", left[0].LastError)
}

func TestRetry_RequiresSession(t *testing.T) {
	backend, s, r, _ := setup(t, 0)
	_, err := s.RetainProfile("https://github.com/org/a", "10 users", "down")
	require.NoError(t, err)

	_, err = r.RetryProfiles(context.Background(), auth.Session{})
	require.ErrorIs(t, err, apiclient.ErrUnauthenticated)
	_, err = r.RetryReleases(context.Background(), auth.Session{})
	require.ErrorIs(t, err, apiclient.ErrUnauthenticated)
	assert.Zero(t, backend.Calls(apiclienttest.RouteProfile))
}

func TestRetry_Paced(t *testing.T) {
	_, s, r, session := setup(t, 20)
	for _, repo := range []string{"a", "b", "c"} {
		_, err := s.RetainProfile("https://github.com/org/"+repo, "x", "")
		require.NoError(t, err)
	}

	start := time.Now()
	sum, err := r.RetryProfiles(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Succeeded)
	// burst of 1 at 20/s: the 2nd and 3rd calls wait ~50ms each
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestRetry_CancelledContext(t *testing.T) {
	_, s, r, session := setup(t, 0.001)
	for _, repo := range []string{"a", "b"} {
		_, err := s.RetainProfile("https://github.com/org/"+repo, "x", "")
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	sum, err := r.RetryProfiles(ctx, session)
	require.Error(t, err)
	assert.Equal(t, 1, sum.Attempted)
}
