package enrichment

import (
	"context"
	"io"
	"time"

	"github.com/JakeFAU/lead-enricher/internal/extract"
)

// PlaceProvider serves one page of text-search results per call.
type PlaceProvider interface {
	SearchText(ctx context.Context, req PageRequest) (PageResponse, error)
}

// Searcher resolves a search request into an ordered list of places.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) ([]Place, error)
}

// PageFetcher retrieves a business website.
type PageFetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// ContactExtractor pulls contact channels out of page markup.
type ContactExtractor interface {
	Extract(html string) extract.Result
}

// Pauser waits for the given delay unless the context ends first.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// JobStore persists job metadata and enriched places.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string, counters Stats) error
	SetBlobURI(ctx context.Context, jobID string, uri string) error
	RecordPlaces(ctx context.Context, jobID string, places []EnrichedPlace) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListPlaces(ctx context.Context, jobID string) ([]EnrichedPlace, error)
}

// PlaceStore durably writes enriched places for downstream consumers.
type PlaceStore interface {
	StorePlaces(ctx context.Context, jobID string, places []EnrichedPlace) error
	Close() error
}

// BlobStore writes result documents and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for search jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for result documents.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
