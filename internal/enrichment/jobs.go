package enrichment

import (
	"errors"
	"time"
)

// ErrJobNotFound is returned by job stores for unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// JobStatus represents the lifecycle state of a search job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the status ends the job lifecycle.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// Job represents the metadata persisted for each submitted search.
type Job struct {
	ID        string        `json:"id"`
	Status    JobStatus     `json:"status"`
	Submitted time.Time     `json:"submitted_at"`
	Started   *time.Time    `json:"started_at,omitempty"`
	Finished  *time.Time    `json:"finished_at,omitempty"`
	ErrorText string        `json:"error_text,omitempty"`
	Request   SearchRequest `json:"request"`
	Counters  Stats         `json:"counters"`
	BlobURI   string        `json:"blob_uri,omitempty"`
}

// JobResult is the API view of a finished job.
type JobResult struct {
	Job    Job             `json:"job"`
	Places []EnrichedPlace `json:"places"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Request   SearchRequest
	Attempt   int
	Submitted int64
}
