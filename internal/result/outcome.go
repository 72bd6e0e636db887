// Package result holds the Validator Outcome, Task Result, and Task Status
// data types — the shapes the dispatcher produces and the reporter consumes.
package result

import "time"

// Outcome is the recorded result of executing one validator.
type Outcome struct {
	Name     string
	Passed   bool
	Error    string
	Duration time.Duration

	// kind is carried for log correlation only; it is never serialized
	// into the rendered line or the submission envelope.
	kind string
}

// NewOutcome builds a passing or failing Outcome for one validator spec.
func NewOutcome(kind, name string, passed bool, errMsg string, duration time.Duration) Outcome {
	return Outcome{Name: name, Passed: passed, Error: errMsg, Duration: duration, kind: kind}
}

// Kind returns the originating validator kind for internal correlation
// (logging, metrics) — not part of the wire shape.
func (o Outcome) Kind() string { return o.kind }

// Status is the closed task-status enum.
type Status string

const (
	StatusAwaits     Status = "awaits"
	StatusChallenged Status = "challenged"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusAbandoned  Status = "abandoned"
)

// TaskResult is the ordered sequence of outcomes for one task attempt.
type TaskResult struct {
	TaskID        string
	AttemptID     string
	Outcomes      []Outcome
	IsComplete    bool
	PointsEarned  int
	AttemptNumber int
}

// Compute derives IsComplete (and, if this is the first complete pass and
// points is supplied, PointsEarned) from the outcome vector.
func (r *TaskResult) Compute(points int, alreadyCompleted bool) {
	complete := true
	for _, o := range r.Outcomes {
		if !o.Passed {
			complete = false
			break
		}
	}
	r.IsComplete = complete
	if complete && !alreadyCompleted {
		r.PointsEarned = points
	}
}
