// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enricher/internal/api"
	"github.com/JakeFAU/lead-enricher/internal/clock/system"
	"github.com/JakeFAU/lead-enricher/internal/config"
	"github.com/JakeFAU/lead-enricher/internal/dispatcher"
	"github.com/JakeFAU/lead-enricher/internal/enrichment"
	"github.com/JakeFAU/lead-enricher/internal/extract"
	collyfetcher "github.com/JakeFAU/lead-enricher/internal/fetcher/colly"
	"github.com/JakeFAU/lead-enricher/internal/hash/sha256"
	"github.com/JakeFAU/lead-enricher/internal/id/uuid"
	"github.com/JakeFAU/lead-enricher/internal/logging"
	"github.com/JakeFAU/lead-enricher/internal/places"
	"github.com/JakeFAU/lead-enricher/internal/places/google"
	"github.com/JakeFAU/lead-enricher/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/lead-enricher/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/lead-enricher/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/lead-enricher/internal/queue/memory"
	gcsstorage "github.com/JakeFAU/lead-enricher/internal/storage/gcs"
	localstorage "github.com/JakeFAU/lead-enricher/internal/storage/local"
	memoryStorage "github.com/JakeFAU/lead-enricher/internal/storage/memory"
	pgstore "github.com/JakeFAU/lead-enricher/internal/storage/postgres"
	"github.com/JakeFAU/lead-enricher/internal/telemetry"
	"github.com/JakeFAU/lead-enricher/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	pipeline   *enrichment.Pipeline
	apiServer  *api.Server
	dispatch   *dispatcher.Dispatcher
	queue      *queueMemory.Queue
	publisher  enrichment.Publisher
	pubsubPub  *gcppublisher.Publisher
	storage    *storage.Client
	placeStore enrichment.PlaceStore
	tracer     *sdktrace.TracerProvider
	draining   atomic.Bool
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Search runs one search synchronously, bypassing the job queue.
func (a *App) Search(ctx context.Context, req enrichment.SearchRequest) (enrichment.Result, error) {
	if err := req.Validate(); err != nil {
		return enrichment.Result{}, err
	}
	return a.pipeline.Run(ctx, req)
}

// Run starts the HTTP server and workers and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Worker.Concurrency))
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")
	a.draining.Store(true)

	grace := time.Duration(a.cfg.Server.ShutdownTimeoutSec) * time.Second
	if grace <= 0 {
		grace = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not stop before the shutdown deadline")
	}

	return a.Close(shutdownCtx)
}

func (a *App) ready(context.Context) error {
	if a.draining.Load() {
		return errors.New("shutting down")
	}
	return nil
}

// Close releases clients and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeInfrastructure()
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.pubsubPub != nil {
		if err := a.pubsubPub.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.placeStore != nil {
		if err := a.placeStore.Close(); err != nil {
			a.logger.Warn("place store close failed", zap.Error(err))
		}
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracer != nil {
		if err := telemetry.Shutdown(ctx, a.tracer); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	// Sync on a console sink reports EINVAL; nothing useful to do with it.
	_ = a.logger.Sync()
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Int("workers", cfg.Worker.Concurrency),
	)

	if cfg.Telemetry.Enabled {
		app.tracer, err = telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
	}

	app.pipeline, err = setupPipeline(cfg, logger)
	if err != nil {
		return nil, err
	}

	blobStore, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}
	if err = setupDatabase(ctx, app); err != nil {
		return nil, err
	}
	if err = setupPublisher(ctx, app); err != nil {
		return nil, err
	}

	jobStore := memoryStorage.NewJobStore()
	clock := system.New()
	app.queue = queueMemory.NewQueue(cfg.Worker.QueueDepth)
	app.dispatch = setupDispatcher(app, jobStore, blobStore, clock)

	app.apiServer = api.NewServer(
		jobStore,
		app.dispatch,
		app.pipeline,
		uuid.New(),
		clock,
		app.ready,
		*cfg,
		logger.Named("api"),
	)
	return app, nil
}

func setupPipeline(cfg *config.Config, logger *zap.Logger) (*enrichment.Pipeline, error) {
	placesLimiter := ratelimit.New(ratelimit.Config{DefaultRPS: cfg.Places.RequestsPerSec, DefaultBurst: 1})
	client, err := google.New(google.Config{
		APIKey:       cfg.Places.APIKey,
		Endpoint:     cfg.Places.Endpoint,
		Timeout:      cfg.PlacesTimeout(),
		LanguageCode: cfg.Places.LanguageCode,
	}, nil, placesLimiter, logger.Named("places"))
	if err != nil {
		return nil, fmt.Errorf("places client init failed: %w", err)
	}
	searcher := places.NewAggregator(client, nil, places.Config{
		Country:    cfg.Places.Country,
		MaxPages:   cfg.Places.MaxPages,
		MaxResults: cfg.Places.MaxResults,
		PageDelay:  cfg.PageDelay(),
	}, logger.Named("aggregator"))

	var fetcher enrichment.PageFetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Fetcher.UserAgent,
		Timeout:       cfg.FetchTimeout(),
		MaxRedirects:  cfg.Fetcher.MaxRedirects,
		MaxBodyBytes:  cfg.Fetcher.MaxBodyBytes,
		RespectRobots: cfg.Fetcher.RespectRobots,
	})
	if cfg.Fetcher.PerHostRPS > 0 {
		fetcher = ratelimit.WrapFetcher(fetcher, ratelimit.New(ratelimit.Config{DefaultRPS: cfg.Fetcher.PerHostRPS}))
		logger.Info("per-host fetch limiter enabled", zap.Float64("rps", cfg.Fetcher.PerHostRPS))
	}

	orchestrator := enrichment.NewOrchestrator(fetcher, extract.New(), nil, enrichment.OrchestratorConfig{
		VisitDelay:   cfg.VisitDelay(),
		FetchTimeout: cfg.FetchTimeout(),
		UserAgent:    cfg.Fetcher.UserAgent,
		MaxRedirects: cfg.Fetcher.MaxRedirects,
	}, logger.Named("orchestrator"))
	return enrichment.NewPipeline(searcher, orchestrator, logger.Named("pipeline")), nil
}

func setupStorage(ctx context.Context, app *App) (enrichment.BlobStore, error) {
	switch app.cfg.Storage.Backend {
	case "gcs":
		app.logger.Info("using GCS storage backend", zap.String("bucket", app.cfg.Storage.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		blobStore, err := gcsstorage.New(client, gcsstorage.Config{Bucket: app.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobStore, nil
	case "local":
		app.logger.Info("using local storage backend", zap.String("path", app.cfg.Storage.LocalDir))
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobStore, nil
	default:
		app.logger.Info("using in-memory storage backend")
		return memoryStorage.NewBlobStore(), nil
	}
}

func setupDatabase(ctx context.Context, app *App) error {
	if app.cfg.DB.DSN == "" {
		app.logger.Warn("no DSN specified for database, skipping place store initialization")
		return nil
	}
	store, err := pgstore.NewPlaceStore(ctx, pgstore.PlaceStoreConfig{DSN: app.cfg.DB.DSN}, system.New())
	if err != nil {
		return fmt.Errorf("place store init failed: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("place store schema failed: %w", err)
	}
	app.placeStore = store
	app.logger.Info("place store initialized")
	return nil
}

func setupPublisher(ctx context.Context, app *App) error {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		app.publisher = memorypublisher.New()
		return nil
	}
	client, err := pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	pub, err := gcppublisher.New(client, app.cfg.PubSub.TopicName)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.pubsubPub = pub
	app.publisher = pub
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return nil
}

func setupDispatcher(
	app *App,
	jobStore enrichment.JobStore,
	blobStore enrichment.BlobStore,
	clock enrichment.Clock,
) *dispatcher.Dispatcher {
	hasher := sha256.New()
	workerCfg := worker.Config{
		BlobPrefix: app.cfg.Storage.Prefix,
		Topic:      app.cfg.PubSub.TopicName,
	}
	app.logger.Info("worker config",
		zap.String("blob_prefix", workerCfg.BlobPrefix),
		zap.String("topic", workerCfg.Topic),
		zap.Int("queue_depth", app.cfg.Worker.QueueDepth),
	)

	workers := make([]dispatcher.Worker, 0, app.cfg.Worker.Concurrency)
	for i := 0; i < app.cfg.Worker.Concurrency; i++ {
		workers = append(workers, worker.New(
			app.queue,
			app.pipeline,
			jobStore,
			app.placeStore,
			blobStore,
			app.publisher,
			hasher,
			clock,
			workerCfg,
			app.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	return dispatcher.New(app.queue, workers)
}
