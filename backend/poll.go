package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ---------------------------------------------------------------------------
// Job status
// ---------------------------------------------------------------------------

// JobState is the terminal (or pending) state of an asynchronous job.
type JobState string

const (
	JobPending  JobState = "pending"
	JobFinished JobState = "finished"
	JobFailed   JobState = "failed"
	JobTimedOut JobState = "timed-out"
)

// JobStatus is one observation of a job.
type JobStatus struct {
	State JobState `json:"status"`
	// Result is the job's payload once finished.
	Result json.RawMessage `json:"result,omitempty"`
	// Reason carries the backend's failure message for failed jobs.
	Reason string `json:"error,omitempty"`
}

// GetJobStatus fetches the current state of a job.
func (c *Client) GetJobStatus(ctx context.Context, job *JobHandle) (*JobStatus, error) {
	var status JobStatus
	path := fmt.Sprintf("/v2/jobs/%s", url.PathEscape(job.ID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ---------------------------------------------------------------------------
// Polling
// ---------------------------------------------------------------------------

// PollJob polls a deferred job at the client's fixed PollInterval until the
// job finishes, fails, or the timeout budget elapses. A timeout is reported
// as a JobStatus with state JobTimedOut, not as an error; errors are
// reserved for transport failures.
func (c *Client) PollJob(ctx context.Context, job *JobHandle, timeout time.Duration) (*JobStatus, error) {
	deadline := time.Now().Add(timeout)

	for {
		status, err := c.GetJobStatus(ctx, job)
		if err != nil {
			return nil, err
		}
		if status.State == JobFinished || status.State == JobFailed {
			return status, nil
		}

		if time.Now().Add(c.PollInterval).After(deadline) {
			return &JobStatus{State: JobTimedOut}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.PollInterval):
		}
	}
}

// Resolve turns an Operation into its final payload: an immediate result
// is returned as-is, a deferred job is polled to completion.
func (c *Client) Resolve(ctx context.Context, op *Operation, timeout time.Duration) (*JobStatus, error) {
	if !op.Deferred() {
		return &JobStatus{State: JobFinished, Result: op.Result}, nil
	}
	return c.PollJob(ctx, op.Job, timeout)
}
