// Package worker runs queued search jobs through the enrichment pipeline.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enricher/internal/enrichment"
	"github.com/JakeFAU/lead-enricher/internal/metrics"
)

const resultContentType = "application/json"

// Runner executes one search end to end.
type Runner interface {
	Run(ctx context.Context, req enrichment.SearchRequest) (enrichment.Result, error)
}

// Config controls Worker behavior.
type Config struct {
	BlobPrefix string
	Topic      string
}

// Worker consumes queue items and persists pipeline results.
type Worker struct {
	queue      enrichment.Queue
	runner     Runner
	jobStore   enrichment.JobStore
	placeStore enrichment.PlaceStore
	blobStore  enrichment.BlobStore
	publisher  enrichment.Publisher
	hasher     enrichment.Hasher
	clock      enrichment.Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker. placeStore, blobStore and publisher are optional.
func New(
	queue enrichment.Queue,
	runner Runner,
	jobStore enrichment.JobStore,
	placeStore enrichment.PlaceStore,
	blobStore enrichment.BlobStore,
	publisher enrichment.Publisher,
	hasher enrichment.Hasher,
	clock enrichment.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:      queue,
		runner:     runner,
		jobStore:   jobStore,
		placeStore: placeStore,
		blobStore:  blobStore,
		publisher:  publisher,
		hasher:     hasher,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			// Closed queues fail immediately; avoid spinning.
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item enrichment.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	logger := w.logger.With(zap.String("job_id", item.JobID))
	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, enrichment.JobStatusRunning, "", enrichment.Stats{}); err != nil {
		logger.Error("update job status failed", zap.Error(err))
		return
	}

	result, err := w.runner.Run(ctx, item.Request)
	if err != nil {
		logger.Error("pipeline run failed", zap.Error(err))
		w.finish(ctx, logger, item.JobID, enrichment.JobStatusFailed, err.Error(), enrichment.Stats{})
		return
	}

	if err := w.persistAndPublish(ctx, item.JobID, result); err != nil {
		logger.Error("persist results failed", zap.Error(err))
		w.finish(ctx, logger, item.JobID, enrichment.JobStatusFailed, err.Error(), result.Stats)
		return
	}

	logger.Info("job succeeded",
		zap.Int("places", result.Stats.PlacesFound),
		zap.Int("emails", result.Stats.Emails),
		zap.Int("fetch_failures", result.Stats.FetchFailures),
	)
	w.finish(ctx, logger, item.JobID, enrichment.JobStatusSucceeded, "", result.Stats)
}

func (w *Worker) finish(
	ctx context.Context,
	logger *zap.Logger,
	jobID string,
	status enrichment.JobStatus,
	errText string,
	counters enrichment.Stats,
) {
	metrics.ObserveJob(string(status))
	// Record the outcome even if the run was canceled mid-flight.
	ctx = context.WithoutCancel(ctx)
	if err := w.jobStore.UpdateJobStatus(ctx, jobID, status, errText, counters); err != nil {
		logger.Error("final job status update failed", zap.Error(err))
	}
}

func (w *Worker) persistAndPublish(ctx context.Context, jobID string, result enrichment.Result) error {
	if err := w.jobStore.RecordPlaces(ctx, jobID, result.Places); err != nil {
		return fmt.Errorf("record places: %w", err)
	}
	if w.placeStore != nil {
		if err := w.placeStore.StorePlaces(ctx, jobID, result.Places); err != nil {
			return fmt.Errorf("store places: %w", err)
		}
	}

	uri, hash, err := w.storeDocument(ctx, jobID, result)
	if err != nil {
		return err
	}
	return w.publishResult(ctx, jobID, uri, hash, result)
}

type resultDocument struct {
	JobID       string                     `json:"job_id"`
	Query       string                     `json:"query"`
	Request     enrichment.SearchRequest   `json:"request"`
	Stats       enrichment.Stats           `json:"stats"`
	Places      []enrichment.EnrichedPlace `json:"places"`
	CompletedAt time.Time                  `json:"completed_at"`
}

func (w *Worker) storeDocument(ctx context.Context, jobID string, result enrichment.Result) (string, string, error) {
	if w.blobStore == nil {
		return "", "", nil
	}
	body, err := json.Marshal(resultDocument{
		JobID:       jobID,
		Query:       result.Query,
		Request:     result.Request,
		Stats:       result.Stats,
		Places:      result.Places,
		CompletedAt: w.clock.Now().UTC(),
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal result: %w", err)
	}
	hash, err := w.hasher.Hash(body)
	if err != nil {
		return "", "", fmt.Errorf("hash result: %w", err)
	}
	uri, err := w.blobStore.PutObject(ctx, w.buildBlobPath(jobID, hash), resultContentType, bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("put object: %w", err)
	}
	if err := w.jobStore.SetBlobURI(ctx, jobID, uri); err != nil {
		return "", "", fmt.Errorf("set blob uri: %w", err)
	}
	return uri, hash, nil
}

func (w *Worker) buildBlobPath(jobID, hash string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.json", jobID, hash)
	}
	return fmt.Sprintf("%s/%s/%s.json", prefix, jobID, hash)
}

func (w *Worker) publishResult(ctx context.Context, jobID, uri, hash string, result enrichment.Result) error {
	if w.cfg.Topic == "" || w.publisher == nil {
		return nil
	}
	payload := map[string]any{
		"job_id":    jobID,
		"query":     result.Query,
		"blob_uri":  uri,
		"hash":      hash,
		"stats":     result.Stats,
		"timestamp": w.clock.Now().UTC().Format(time.RFC3339),
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, payload)
	if err != nil {
		return fmt.Errorf("publish payload: %w", err)
	}
	w.logger.Info("result published",
		zap.String("job_id", jobID),
		zap.String("message_id", id),
		zap.String("blob_uri", uri),
	)
	return nil
}
