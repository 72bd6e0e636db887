// Package state is the tamper-evident local state store: the cached active
// project/task state, persisted under an integrity tag derived from the
// user's authentication token.
package state

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"

	"github.com/quarrycli/quarry/internal/errs"
)

// CurrentVersion is the only state-file version this build understands.
// Readers reject any other version by treating state as absent.
const CurrentVersion = 1

// lockTimeout bounds how long Load/Save wait to acquire the advisory lock
// on the state file before failing with state_locked.
const lockTimeout = 5 * time.Second
const lockRetryDelay = 50 * time.Millisecond

// TaskSummary is one entry of a Project State's cached task list.
type TaskSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Points       int    `json:"points"`
	Status       string `json:"status,omitempty"`
	PointsEarned int    `json:"points_earned,omitempty"`
}

// ProjectState is the cached active project/task record.
type ProjectState struct {
	ProjectSlug   string        `json:"project_slug"`
	Runtime       string        `json:"runtime"`
	WorkspacePath string        `json:"workspace_path"`
	Tasks         []TaskSummary `json:"tasks"`
	ActiveTask    string        `json:"active_task,omitempty"`
	LastSync      time.Time     `json:"last_sync"`
}

// file is the on-disk envelope: version, state, and its integrity tag.
type file struct {
	Version      int          `json:"version"`
	State        ProjectState `json:"state"`
	IntegrityTag string       `json:"integrity_tag"`
}

// Store is a single-writer, advisory-locked JSON state file.
type Store struct {
	path  string
	token []byte
}

// New returns a Store backed by path, using token as the HMAC key for the
// integrity tag. token is the raw authentication-token bytes; it is never
// itself persisted.
func New(path string, token []byte) *Store {
	return &Store{path: path, token: token}
}

// Load reads and verifies the state file. A missing file, an unreadable
// file, an unrecognized version, or an integrity-tag mismatch all produce
// the same result: an empty ProjectState, never partial data.
func (s *Store) Load(ctx context.Context) (ProjectState, error) {
	lock, err := s.acquireLock(ctx)
	if err != nil {
		return ProjectState{}, err
	}
	defer lock.Unlock()

	return s.loadLocked()
}

func (s *Store) loadLocked() (ProjectState, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ProjectState{}, nil
		}
		return ProjectState{}, nil
	}

	// The tag is verified over the state bytes as stored, before decoding:
	// encoding/json matches field names case-insensitively, so a tampered
	// key could otherwise decode back to the original struct.
	var f struct {
		Version      int             `json:"version"`
		State        json.RawMessage `json:"state"`
		IntegrityTag string          `json:"integrity_tag"`
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return ProjectState{}, nil
	}
	if f.Version != CurrentVersion {
		return ProjectState{}, nil
	}

	canonical, err := canonicalJSON(f.State)
	if err != nil {
		return ProjectState{}, nil
	}
	want := hmacTag(s.token, canonical)
	if !hmac.Equal([]byte(want), []byte(f.IntegrityTag)) {
		return ProjectState{}, errors.Wrap(errs.StateIntegrity, "state file integrity tag mismatch")
	}

	var st ProjectState
	if err := json.Unmarshal(f.State, &st); err != nil {
		return ProjectState{}, nil
	}
	return st, nil
}

// Save writes state atomically: canonicalize, tag, write to a sibling temp
// file, fsync, then rename over the destination.
func (s *Store) Save(ctx context.Context, st ProjectState) error {
	lock, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	return s.saveLocked(st)
}

func (s *Store) saveLocked(st ProjectState) error {
	canonical, err := canonicalJSON(st)
	if err != nil {
		return errors.Wrap(err, "canonicalizing state")
	}

	f := file{
		Version:      CurrentVersion,
		State:        st,
		IntegrityTag: hmacTag(s.token, canonical),
	}
	out, err := json.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "marshaling state file")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "creating state directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp state file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing temp state file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "fsyncing temp state file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp state file")
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return errors.Wrap(err, "renaming state file into place")
	}
	return nil
}

// update is the shared read-modify-write path every mutation goes through:
// one lock acquisition covering both the verified load and the atomic
// rewrite. An integrity failure on load mutates from the empty state — the
// tampered file is already void, so the mutation becomes its replacement.
func (s *Store) update(ctx context.Context, mutate func(*ProjectState)) error {
	lock, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	st, err := s.loadLocked()
	if err != nil && !errors.Is(err, errs.StateIntegrity) {
		return err
	}
	mutate(&st)
	return s.saveLocked(st)
}

// SetActive records the active project, workspace, and runtime.
func (s *Store) SetActive(ctx context.Context, project, workspace, runtime string) error {
	return s.update(ctx, func(st *ProjectState) {
		st.ProjectSlug = project
		st.WorkspacePath = workspace
		st.Runtime = runtime
	})
}

// SetWorkspace re-points the active project at a new workspace directory.
func (s *Store) SetWorkspace(ctx context.Context, path string) error {
	return s.update(ctx, func(st *ProjectState) {
		st.WorkspacePath = path
	})
}

// SetTasks replaces the cached task list and stamps the sync time.
func (s *Store) SetTasks(ctx context.Context, tasks []TaskSummary) error {
	return s.update(ctx, func(st *ProjectState) {
		st.Tasks = tasks
		st.LastSync = time.Now().UTC()
	})
}

// SetActiveTask records which task the learner is currently working.
func (s *Store) SetActiveTask(ctx context.Context, taskID string) error {
	return s.update(ctx, func(st *ProjectState) {
		st.ActiveTask = taskID
	})
}

// MarkPointsEarned records a first completed pass for taskID.
func (s *Store) MarkPointsEarned(ctx context.Context, taskID string, points int) error {
	return s.update(ctx, func(st *ProjectState) {
		for i := range st.Tasks {
			if st.Tasks[i].ID == taskID {
				st.Tasks[i].PointsEarned = points
				st.Tasks[i].Status = "completed"
				return
			}
		}
		st.Tasks = append(st.Tasks, TaskSummary{ID: taskID, PointsEarned: points, Status: "completed"})
	})
}

// ClearActive drops the active project, leaving an empty state behind.
func (s *Store) ClearActive(ctx context.Context) error {
	return s.update(ctx, func(st *ProjectState) {
		*st = ProjectState{}
	})
}

// acquireLock takes the advisory file lock with a bounded wait, failing
// with state_locked on contention.
func (s *Store) acquireLock(ctx context.Context) (*flock.Flock, error) {
	lockPath := s.path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating state directory")
	}

	lock := flock.New(lockPath)
	waitCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(waitCtx, lockRetryDelay)
	if err != nil || !locked {
		return nil, errors.Wrap(errs.StateLocked, "another quarry invocation holds the state lock")
	}
	return lock, nil
}

// canonicalJSON serializes v with sorted keys and no insignificant
// whitespace, the form the integrity tag is computed over. encoding/json
// emits struct fields in declaration order but sorts map keys, so the
// marshaled value is decoded into generic maps and marshaled again; UseNumber
// keeps numbers byte-exact through the round trip.
func canonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

func hmacTag(token, canonical []byte) string {
	mac := hmac.New(sha256.New, token)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil))
}
