package audit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bang0930/mcp-web/internal/store"
)

func TestHashInputs(t *testing.T) {
	a := HashInputs(map[string]string{"repository_url": "https://github.com/org/app"})
	b := HashInputs(map[string]string{"repository_url": "https://github.com/org/app"})
	c := HashInputs(map[string]string{"repository_url": "https://github.com/org/other"})

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "hash_error", HashInputs(func() {}))
}

func TestRecorder_Record(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer s.Close()

	r := NewRecorder(s)
	rec, err := r.Record(ActionProjectCreate, map[string]string{"repository_url": "https://github.com/org/app"}, "succeeded", "svc-1")
	require.NoError(t, err)
	assert.Equal(t, ActionProjectCreate, rec.Action)
	assert.NotContains(t, rec.InputsHash, "github")

	recs, err := s.ListWorkflowRecords(10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "svc-1", recs[0].Details)
}

func TestRecorder_NilStore(t *testing.T) {
	rec, err := NewRecorder(nil).Record(ActionProjectDestroy, 1, "failed", "")
	assert.NoError(t, err)
	assert.Nil(t, rec)
}
