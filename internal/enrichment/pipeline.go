package enrichment

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/JakeFAU/lead-enricher/internal/enrichment"

// QueryBuilder renders the provider query for a request.
type QueryBuilder interface {
	Query(req SearchRequest) string
}

// Pipeline runs search then enrichment for one request.
type Pipeline struct {
	searcher     Searcher
	orchestrator *Orchestrator
	logger       *zap.Logger
	tracer       trace.Tracer
}

// NewPipeline wires a searcher and an orchestrator.
func NewPipeline(searcher Searcher, orchestrator *Orchestrator, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		searcher:     searcher,
		orchestrator: orchestrator,
		logger:       logger,
		tracer:       otel.Tracer(tracerName),
	}
}

// Run searches for places and enriches each one. Only search errors fail the
// run; per-site failures are recorded on the individual places.
func (p *Pipeline) Run(ctx context.Context, req SearchRequest) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("search.city", req.City),
		attribute.String("search.area", req.Area),
		attribute.String("search.industry", req.Industry),
	))
	defer span.End()

	start := time.Now()
	result := Result{Request: req}
	if qb, ok := p.searcher.(QueryBuilder); ok {
		result.Query = qb.Query(req)
	}

	searchCtx, searchSpan := p.tracer.Start(ctx, "places.search")
	places, err := p.searcher.Search(searchCtx, req)
	if err != nil {
		searchSpan.RecordError(err)
		searchSpan.SetStatus(codes.Error, err.Error())
		searchSpan.End()
		span.SetStatus(codes.Error, "search failed")
		p.logger.Error("place search failed", zap.String("query", result.Query), zap.Error(err))
		return Result{}, fmt.Errorf("search places: %w", err)
	}
	searchSpan.SetAttributes(attribute.Int("places.count", len(places)))
	searchSpan.End()

	enrichCtx, enrichSpan := p.tracer.Start(ctx, "enrichment.enrich")
	result.Places = p.orchestrator.Enrich(enrichCtx, places)
	result.Stats = Summarize(result.Places)
	enrichSpan.SetAttributes(
		attribute.Int("enrichment.emails", result.Stats.Emails),
		attribute.Int("enrichment.fetch_failures", result.Stats.FetchFailures),
	)
	enrichSpan.End()

	p.logger.Info("pipeline complete",
		zap.String("query", result.Query),
		zap.Int("places", result.Stats.PlacesFound),
		zap.Int("with_website", result.Stats.WithWebsite),
		zap.Int("emails", result.Stats.Emails),
		zap.Int("facebook", result.Stats.Facebook),
		zap.Int("instagram", result.Stats.Instagram),
		zap.Int("fetch_failures", result.Stats.FetchFailures),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}
