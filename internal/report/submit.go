package report

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/quarrycli/quarry/internal/result"
)

// OutcomeRecord is one element of the submission envelope's outcome list.
type OutcomeRecord struct {
	Name       string `json:"name"`
	Passed     bool   `json:"passed"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Envelope is the aggregated attempt outcome sent upstream.
type Envelope struct {
	TaskID      string          `json:"task_id"`
	AttemptID   string          `json:"attempt_id"`
	Outcomes    []OutcomeRecord `json:"outcomes"`
	IsComplete  bool            `json:"is_complete"`
	IsReattempt bool            `json:"is_reattempt"`
}

// NewEnvelope flattens a TaskResult into the wire shape.
func NewEnvelope(res *result.TaskResult) Envelope {
	outcomes := make([]OutcomeRecord, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		outcomes = append(outcomes, OutcomeRecord{
			Name:       o.Name,
			Passed:     o.Passed,
			Error:      o.Error,
			DurationMS: o.Duration.Milliseconds(),
		})
	}
	return Envelope{
		TaskID:      res.TaskID,
		AttemptID:   res.AttemptID,
		Outcomes:    outcomes,
		IsComplete:  res.IsComplete,
		IsReattempt: res.AttemptNumber > 1,
	}
}

// Submitter is the narrow interface the core consumes from the remote
// platform client; everything else about that client stays external.
type Submitter interface {
	Submit(ctx context.Context, env Envelope) error
}

// HTTPSubmitter posts envelopes to the platform's attempt endpoint.
type HTTPSubmitter struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewHTTPSubmitter builds a submitter with a bounded default client.
func NewHTTPSubmitter(baseURL, token string) *HTTPSubmitter {
	return &HTTPSubmitter{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Submit posts the envelope. A non-2xx response is an error; submission
// failures never alter the locally rendered result.
func (s *HTTPSubmitter) Submit(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "marshaling submission envelope")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.BaseURL+"/api/v1/attempts", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "building submission request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.Token)

	resp, err := s.Client.Do(req)
	if err != nil {
		return errors.Wrap(err, "posting attempt outcome")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Newf("attempt submission returned %d", resp.StatusCode)
	}
	return nil
}
