// Package jobs implements the client for the external job-tracking API.
// Uploads register a job on arrival and move it through its lifecycle so
// operators can follow long transfers from the outside.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mediastore/mediastore/internal/auth"

	mserr "github.com/mediastore/mediastore/internal/errors"
)

// Job lifecycle statuses.
const (
	StatusQueued     = "queued"
	StatusInProgress = "in-progress"
	StatusFinished   = "finished"
	StatusFailed     = "failed"
)

// Job is a tracking record owned by the job service.
type Job struct {
	ID          string `json:"_id,omitempty"`
	JobType     string `json:"job_type"`
	JobInfo     string `json:"job_info"`
	Status      string `json:"status"`
	StartTime   string `json:"start_time,omitempty"`
	EndTime     string `json:"end_time,omitempty"`
	User        string `json:"user"`
	AssetID     string `json:"asset_id"`
	MediafileID string `json:"mediafile_id"`
	ParentJobID string `json:"parent_job_id"`
}

// Tracker records upload jobs. Implementations must tolerate being called
// with a nil job so call sites stay unconditional.
type Tracker interface {
	Create(ctx context.Context, creds auth.Credentials, jobType, jobInfo, user, mediafileID string) (*Job, error)
	Progress(ctx context.Context, creds auth.Credentials, job *Job) error
	Finish(ctx context.Context, creds auth.Credentials, job *Job, message string) error
	Fail(ctx context.Context, creds auth.Credentials, job *Job, errorMessage string) error
}

// Client talks to the job API over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ Tracker = (*Client)(nil)

// NewClient creates a job API client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Create registers a new queued job and returns the record the service
// assigned an id to.
func (c *Client) Create(ctx context.Context, creds auth.Credentials, jobType, jobInfo, user, mediafileID string) (*Job, error) {
	job := &Job{
		JobType:     jobType,
		JobInfo:     jobInfo,
		Status:      StatusQueued,
		StartTime:   now(),
		User:        user,
		MediafileID: mediafileID,
	}
	var created Job
	if err := c.do(ctx, creds, http.MethodPost, "/jobs", job, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Progress marks the job in-progress.
func (c *Client) Progress(ctx context.Context, creds auth.Credentials, job *Job) error {
	if job == nil {
		return nil
	}
	job.Status = StatusInProgress
	return c.patch(ctx, creds, job)
}

// Finish marks the job finished, recording the end time and a message.
func (c *Client) Finish(ctx context.Context, creds auth.Credentials, job *Job, message string) error {
	if job == nil {
		return nil
	}
	job.Status = StatusFinished
	job.EndTime = now()
	if message != "" {
		job.JobInfo = message
	}
	return c.patch(ctx, creds, job)
}

// Fail marks the job failed, recording the end time and the error message.
func (c *Client) Fail(ctx context.Context, creds auth.Credentials, job *Job, errorMessage string) error {
	if job == nil {
		return nil
	}
	job.Status = StatusFailed
	job.EndTime = now()
	if errorMessage != "" {
		job.JobInfo = errorMessage
	}
	return c.patch(ctx, creds, job)
}

func (c *Client) patch(ctx context.Context, creds auth.Credentials, job *Job) error {
	return c.do(ctx, creds, http.MethodPatch, "/jobs/"+job.ID, job, job)
}

func (c *Client) do(ctx context.Context, creds auth.Credentials, method, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	creds.Apply(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", mserr.ErrUpstreamService, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return mserr.ErrUpstreamService.WithMessagef("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding job: %w", err)
		}
		return nil
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// NopTracker is used when no job API is configured.
type NopTracker struct{}

var _ Tracker = NopTracker{}

func (NopTracker) Create(context.Context, auth.Credentials, string, string, string, string) (*Job, error) {
	return nil, nil
}
func (NopTracker) Progress(context.Context, auth.Credentials, *Job) error { return nil }
func (NopTracker) Finish(context.Context, auth.Credentials, *Job, string) error {
	return nil
}
func (NopTracker) Fail(context.Context, auth.Credentials, *Job, string) error {
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
