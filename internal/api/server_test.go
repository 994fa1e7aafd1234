package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enricher/internal/config"
	"github.com/JakeFAU/lead-enricher/internal/dispatcher"
	"github.com/JakeFAU/lead-enricher/internal/enrichment"
	"github.com/JakeFAU/lead-enricher/internal/places"
	queueMemory "github.com/JakeFAU/lead-enricher/internal/queue/memory"
	storeMemory "github.com/JakeFAU/lead-enricher/internal/storage/memory"
)

type fakeIDGen struct {
	ids []string
	err error
}

func (f *fakeIDGen) NewID() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if len(f.ids) == 0 {
		return "", errors.New("no ids left")
	}
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type fakeRunner struct {
	result enrichment.Result
	err    error
	got    enrichment.SearchRequest
}

func (r *fakeRunner) Run(_ context.Context, req enrichment.SearchRequest) (enrichment.Result, error) {
	r.got = req
	return r.result, r.err
}

type failingEnqueuer struct{}

func (failingEnqueuer) Enqueue(context.Context, enrichment.QueueItem) error {
	return queueMemory.ErrFull
}

type testDeps struct {
	jobs   *storeMemory.JobStore
	queue  *queueMemory.Queue
	runner *fakeRunner
	server *Server
}

func newTestDeps(cfg config.Config, ids ...string) testDeps {
	jobs := storeMemory.NewJobStore()
	q := queueMemory.NewQueue(10)
	runner := &fakeRunner{}
	server := NewServer(
		jobs,
		dispatcher.New(q, nil),
		runner,
		&fakeIDGen{ids: ids},
		&fakeClock{now: time.Unix(100, 0).UTC()},
		nil,
		cfg,
		zap.NewNop(),
	)
	return testDeps{jobs: jobs, queue: q, runner: runner, server: server}
}

func serve(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_SubmitSearch_Succeeds(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(config.Config{}, "job-1")
	rec := serve(deps.server, http.MethodPost, "/v1/searches",
		`{"city":"Austin","area":"Downtown","industry":"bakery","limit":5}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"job_id":"job-1"}`, rec.Body.String())

	item, err := deps.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "job-1", item.JobID)
	require.Equal(t, 1, item.Attempt)
	require.Equal(t, int64(100), item.Submitted)
	require.Equal(t, enrichment.SearchRequest{City: "Austin", Area: "Downtown", Industry: "bakery", Limit: 5}, item.Request)

	job, err := deps.jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, enrichment.JobStatusQueued, job.Status)
	require.Equal(t, time.Unix(100, 0).UTC(), job.Submitted)
}

func TestServer_SubmitSearch_InvalidJSON(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(config.Config{})
	rec := serve(deps.server, http.MethodPost, "/v1/searches", "{invalid")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, 0, deps.queue.Len())
}

func TestServer_SubmitSearch_MissingFields(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		body string
		want string
	}{
		{"missing city", `{"industry":"bakery"}`, "city is required"},
		{"missing industry", `{"city":"Austin"}`, "industry is required"},
		{"negative limit", `{"city":"Austin","industry":"bakery","limit":-1}`, "limit"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			deps := newTestDeps(config.Config{}, "job-x")
			rec := serve(deps.server, http.MethodPost, "/v1/searches", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), tc.want)
		})
	}
}

func TestServer_SubmitSearch_EnqueueFailureMarksJobFailed(t *testing.T) {
	t.Parallel()

	jobs := storeMemory.NewJobStore()
	server := NewServer(jobs, failingEnqueuer{}, &fakeRunner{}, &fakeIDGen{ids: []string{"job-full"}},
		&fakeClock{now: time.Unix(100, 0)}, nil, config.Config{}, zap.NewNop())

	rec := serve(server, http.MethodPost, "/v1/searches", `{"city":"Austin","industry":"bakery"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	job, err := jobs.GetJob(context.Background(), "job-full")
	require.NoError(t, err)
	require.Equal(t, enrichment.JobStatusFailed, job.Status)
	require.Equal(t, "enqueue failed", job.ErrorText)
}

func TestServer_SubmitSearch_IDGenerationFails(t *testing.T) {
	t.Parallel()

	server := NewServer(storeMemory.NewJobStore(), failingEnqueuer{}, &fakeRunner{},
		&fakeIDGen{err: errors.New("entropy")}, &fakeClock{}, nil, config.Config{}, zap.NewNop())

	rec := serve(server, http.MethodPost, "/v1/searches", `{"city":"Austin","industry":"bakery"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "generate job id")
}

func TestServer_GetJobStatus(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(config.Config{})
	require.NoError(t, deps.jobs.CreateJob(context.Background(), enrichment.Job{
		ID:     "job-2",
		Status: enrichment.JobStatusQueued,
	}))

	rec := serve(deps.server, http.MethodGet, "/v1/searches/job-2/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Job enrichment.Job `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "job-2", body.Job.ID)
	require.Equal(t, enrichment.JobStatusQueued, body.Job.Status)
}

func TestServer_GetJobStatus_NotFound(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(config.Config{})
	rec := serve(deps.server, http.MethodGet, "/v1/searches/missing/status", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_GetJobResult_Pending(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(config.Config{})
	require.NoError(t, deps.jobs.CreateJob(context.Background(), enrichment.Job{
		ID:     "job-3",
		Status: enrichment.JobStatusRunning,
	}))

	rec := serve(deps.server, http.MethodGet, "/v1/searches/job-3/result", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "running")
}

func TestServer_GetJobResult_Succeeded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	deps := newTestDeps(config.Config{})
	require.NoError(t, deps.jobs.CreateJob(ctx, enrichment.Job{ID: "job-4", Status: enrichment.JobStatusQueued}))
	enriched := []enrichment.EnrichedPlace{{
		Place:   enrichment.Place{ID: "p1", Name: "Bakery", Email: "hi@bakery.example"},
		Outcome: enrichment.Outcome{Kind: enrichment.OutcomeExtracted},
	}}
	require.NoError(t, deps.jobs.RecordPlaces(ctx, "job-4", enriched))
	require.NoError(t, deps.jobs.UpdateJobStatus(ctx, "job-4", enrichment.JobStatusSucceeded, "",
		enrichment.Summarize(enriched)))

	rec := serve(deps.server, http.MethodGet, "/v1/searches/job-4/result", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result enrichment.JobResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, enrichment.JobStatusSucceeded, result.Job.Status)
	require.Len(t, result.Places, 1)
	require.Equal(t, "hi@bakery.example", result.Places[0].Email)
}

func TestServer_RunSearch(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(config.Config{})
	deps.runner.result = enrichment.Result{
		Query: "bakery in Austin, United States",
		Stats: enrichment.Stats{PlacesFound: 3},
	}

	rec := serve(deps.server, http.MethodPost, "/v1/searches/run", `{"city":"Austin","industry":"bakery"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "bakery in Austin, United States")
	require.Equal(t, "Austin", deps.runner.got.City)
}

func TestServer_RunSearch_ErrorMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want int
	}{
		{"provider", fmt.Errorf("search places: %w", places.ErrProvider), http.StatusBadGateway},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			deps := newTestDeps(config.Config{})
			deps.runner.err = tc.err
			rec := serve(deps.server, http.MethodPost, "/v1/searches/run", `{"city":"Austin","industry":"bakery"}`)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestServer_APIKeyRequired(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}}
	deps := newTestDeps(cfg, "job-5", "job-6")

	rec := serve(deps.server, http.MethodPost, "/v1/searches", `{"city":"Austin","industry":"bakery"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/searches", bytes.NewBufferString(`{"city":"Austin","industry":"bakery"}`))
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	deps.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Probes stay open.
	rec = serve(deps.server, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(config.Config{})
	rec := serve(deps.server, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = serve(deps.server, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	notReady := NewServer(storeMemory.NewJobStore(), failingEnqueuer{}, &fakeRunner{}, &fakeIDGen{}, &fakeClock{},
		func(context.Context) error { return errors.New("db down") }, config.Config{}, zap.NewNop())
	rec = serve(notReady, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_RequestIDPropagates(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	deps.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	rec = serve(deps.server, http.MethodGet, "/healthz", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(config.Config{})
	rec := serve(deps.server, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
}
