package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrycli/quarry/internal/spec"
)

func TestLookup_KnownTask(t *testing.T) {
	task, err := Lookup("http-hello")
	require.NoError(t, err)
	assert.Equal(t, "HTTP hello endpoint", task.Name)
	assert.Equal(t, 15, task.Points)
	assert.NotEmpty(t, task.Validators)
}

func TestLookup_UnknownTask(t *testing.T) {
	_, err := Lookup("no-such-task")
	assert.Error(t, err)
}

// Every validator string in the embedded table must parse; a typo here
// would otherwise only surface as a failing outcome at run time.
func TestAllValidatorSpecsParse(t *testing.T) {
	tasks, err := All()
	require.NoError(t, err)
	require.NotEmpty(t, tasks)

	for _, task := range tasks {
		require.NotEmpty(t, task.ID)
		require.NotEmpty(t, task.Validators, task.ID)
		for _, raw := range task.Validators {
			_, err := spec.Parse(raw)
			assert.NoError(t, err, "task %s spec %q", task.ID, raw)
		}
	}
}

func TestProjects(t *testing.T) {
	projects, err := Projects()
	require.NoError(t, err)
	assert.Contains(t, projects, "network-basics")
	assert.Contains(t, projects, "concurrency")
	assert.Contains(t, projects, "workers")
}

func TestScoreRulesAreOpaque(t *testing.T) {
	task, err := Lookup("tcp-echo")
	require.NoError(t, err)
	// Carried verbatim for display; the engine never interprets them.
	assert.Equal(t, "10:12:15|15:20:7", task.ScoreRule)
	assert.Equal(t, "10:30:T", task.HintRule)
}
