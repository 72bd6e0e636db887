package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrycli/quarry/internal/errs"
)

func newStore(t *testing.T, token string) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "state.json"), []byte(token))
}

func sampleState() ProjectState {
	return ProjectState{
		ProjectSlug:   "network-basics",
		Runtime:       "go",
		WorkspacePath: "/home/learner/network-basics",
		Tasks: []TaskSummary{
			{ID: "tcp-echo", Name: "TCP echo server", Points: 10},
			{ID: "http-hello", Name: "HTTP hello endpoint", Points: 15},
		},
		ActiveTask: "tcp-echo",
		LastSync:   time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := newStore(t, "token-1")
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleState()))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleState(), got)
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	s := newStore(t, "token-1")
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ProjectState{}, got)
}

// Loading with a different token must void the whole state: nothing to
// decrypt, the tag simply fails verification.
func TestLoad_WrongTokenVoidsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	writer := New(path, []byte("token-1"))
	require.NoError(t, writer.Save(ctx, sampleState()))

	reader := New(path, []byte("token-2"))
	got, err := reader.Load(ctx)
	assert.ErrorIs(t, err, errs.StateIntegrity)
	assert.Equal(t, ProjectState{}, got)
}

func TestLoad_BitFlipVoidsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	s := New(path, []byte("token-1"))
	require.NoError(t, s.Save(ctx, sampleState()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	// Flip one byte inside the serialized state: the first 'l' in the file,
	// which falls in the "project_slug" key.
	idx := -1
	for i := range raw {
		if raw[i] == 'l' {
			idx = i
			break
		}
	}
	require.GreaterOrEqual(t, idx, 0)
	raw[idx] = 'L'
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	got, err := s.Load(ctx)
	assert.ErrorIs(t, err, errs.StateIntegrity)
	assert.Equal(t, ProjectState{}, got)
}

func TestLoad_UnknownVersionIsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	s := New(path, []byte("token-1"))
	require.NoError(t, s.Save(ctx, sampleState()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var f map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &f))
	f["version"] = json.RawMessage("99")
	out, err := json.Marshal(f)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, out, 0o644))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, ProjectState{}, got)
}

func TestCanonicalSerializationIsByteStable(t *testing.T) {
	a, err := canonicalJSON(sampleState())
	require.NoError(t, err)
	b, err := canonicalJSON(sampleState())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMutations(t *testing.T) {
	s := newStore(t, "token-1")
	ctx := context.Background()

	require.NoError(t, s.SetActive(ctx, "workers", "/tmp/ws", "go"))
	require.NoError(t, s.SetTasks(ctx, []TaskSummary{{ID: "job-queue", Name: "In-memory job queue", Points: 25}}))
	require.NoError(t, s.SetActiveTask(ctx, "job-queue"))
	require.NoError(t, s.MarkPointsEarned(ctx, "job-queue", 25))

	st, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "workers", st.ProjectSlug)
	assert.Equal(t, "job-queue", st.ActiveTask)
	require.Len(t, st.Tasks, 1)
	assert.Equal(t, 25, st.Tasks[0].PointsEarned)
	assert.Equal(t, "completed", st.Tasks[0].Status)
	assert.False(t, st.LastSync.IsZero())

	require.NoError(t, s.SetWorkspace(ctx, "/tmp/ws2"))
	st, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ws2", st.WorkspacePath)

	require.NoError(t, s.ClearActive(ctx))
	st, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, ProjectState{}, st)
}
