// Package registry is the Task Registry: the static mapping from task
// identity to its ordered validator sequence, hints, and points. The table
// is an embedded TOML document rather than a runtime-mutable map — the
// task set only changes when the binary does.
package registry

import (
	_ "embed"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

//go:embed tasks.toml
var tasksTOML []byte

// Task is one learning unit: an ordered validator sequence plus metadata.
// ScoreRule and HintRule are opaque server-side rule strings carried for
// display only; nothing in the engine parses them.
type Task struct {
	ID         string   `toml:"id"`
	Name       string   `toml:"name"`
	Project    string   `toml:"project"`
	Points     int      `toml:"points"`
	Validators []string `toml:"validators"`
	Hints      []string `toml:"hints"`
	ScoreRule  string   `toml:"score_rule"`
	HintRule   string   `toml:"hint_rule"`
}

type table struct {
	Tasks []Task `toml:"tasks"`
}

var (
	loadOnce sync.Once
	byID     map[string]Task
	ordered  []Task
	loadErr  error
)

func load() {
	var t table
	if err := toml.Unmarshal(tasksTOML, &t); err != nil {
		loadErr = errors.Wrap(err, "decoding embedded task table")
		return
	}
	byID = make(map[string]Task, len(t.Tasks))
	for _, task := range t.Tasks {
		byID[task.ID] = task
	}
	ordered = t.Tasks
}

// Lookup resolves a task by id.
func Lookup(id string) (Task, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return Task{}, loadErr
	}
	t, ok := byID[id]
	if !ok {
		return Task{}, errors.Newf("unknown task %q", id)
	}
	return t, nil
}

// All returns every registered task in declaration order.
func All() ([]Task, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return nil, loadErr
	}
	out := make([]Task, len(ordered))
	copy(out, ordered)
	return out, nil
}

// Projects returns the distinct project slugs present in the table, sorted.
func Projects() ([]string, error) {
	tasks, err := All()
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, t := range tasks {
		if !seen[t.Project] {
			seen[t.Project] = true
			out = append(out, t.Project)
		}
	}
	sort.Strings(out)
	return out, nil
}
