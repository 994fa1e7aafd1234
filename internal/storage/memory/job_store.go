// Package memory provides in-process stores for development and tests.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/lead-enricher/internal/enrichment"
)

var (
	// ErrJobNotFound is returned for unknown job IDs.
	ErrJobNotFound = enrichment.ErrJobNotFound
	// ErrJobExists is returned when a job ID is reused.
	ErrJobExists = errors.New("job already exists")
)

// JobStore keeps jobs and their enriched places in maps guarded by a mutex.
type JobStore struct {
	mu     sync.RWMutex
	jobs   map[string]enrichment.Job
	places map[string][]enrichment.EnrichedPlace
	now    func() time.Time
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:   make(map[string]enrichment.Job),
		places: make(map[string][]enrichment.EnrichedPlace),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job enrichment.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return ErrJobExists
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus updates the status and counters for a job and stamps
// start/finish times on the first transition into running or a terminal state.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status enrichment.JobStatus,
	errText string,
	counters enrichment.Stats,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	job.ErrorText = errText
	job.Counters = counters
	now := s.now()
	if status == enrichment.JobStatusRunning && job.Started == nil {
		job.Started = &now
	}
	if status.IsTerminal() {
		job.Finished = &now
	}
	s.jobs[jobID] = job
	return nil
}

// SetBlobURI records where the job's result document was written.
func (s *JobStore) SetBlobURI(_ context.Context, jobID string, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.BlobURI = uri
	s.jobs[jobID] = job
	return nil
}

// RecordPlaces replaces the enriched places stored for a job.
func (s *JobStore) RecordPlaces(_ context.Context, jobID string, places []enrichment.EnrichedPlace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return ErrJobNotFound
	}
	s.places[jobID] = append([]enrichment.EnrichedPlace(nil), places...)
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (enrichment.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return enrichment.Job{}, ErrJobNotFound
	}
	return job, nil
}

// ListPlaces returns a copy of the places recorded for a job.
func (s *JobStore) ListPlaces(_ context.Context, jobID string) ([]enrichment.EnrichedPlace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.jobs[jobID]; !ok {
		return nil, ErrJobNotFound
	}
	places := s.places[jobID]
	out := make([]enrichment.EnrichedPlace, len(places))
	copy(out, places)
	return out, nil
}
