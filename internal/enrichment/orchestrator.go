package enrichment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enricher/internal/metrics"
)

// DefaultVisitDelay is the pause inserted between successive website visits.
const DefaultVisitDelay = 500 * time.Millisecond

// OrchestratorConfig tunes website visits.
type OrchestratorConfig struct {
	VisitDelay   time.Duration
	FetchTimeout time.Duration
	UserAgent    string
	MaxRedirects int
}

// Orchestrator visits each place's website in order and fills in contact fields.
type Orchestrator struct {
	fetcher   PageFetcher
	extractor ContactExtractor
	pauser    Pauser
	cfg       OrchestratorConfig
	logger    *zap.Logger
}

// NewOrchestrator constructs an Orchestrator. A nil pauser waits on a real timer.
func NewOrchestrator(
	fetcher PageFetcher,
	extractor ContactExtractor,
	pauser Pauser,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) *Orchestrator {
	if pauser == nil {
		pauser = TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.VisitDelay < 0 {
		cfg.VisitDelay = 0
	}
	return &Orchestrator{
		fetcher:   fetcher,
		extractor: extractor,
		pauser:    pauser,
		cfg:       cfg,
		logger:    logger,
	}
}

// Enrich returns one EnrichedPlace per input place, in input order. A failed
// fetch is recorded on that place and never stops the batch. Once ctx is
// done, remaining places with websites are recorded as fetch failures
// without touching the network.
func (o *Orchestrator) Enrich(ctx context.Context, places []Place) []EnrichedPlace {
	out := make([]EnrichedPlace, 0, len(places))
	visited := false
	for i, place := range places {
		if !place.HasWebsite() {
			out = append(out, EnrichedPlace{
				Place:   place.WithoutContacts(),
				Outcome: Outcome{Kind: OutcomeNoWebsite},
			})
			metrics.ObserveOutcome(string(OutcomeNoWebsite))
			continue
		}
		if visited {
			o.pauser.Pause(ctx, o.cfg.VisitDelay)
		}
		visited = true
		enriched := o.enrichOne(ctx, place)
		o.logger.Debug("place enriched",
			zap.Int("index", i),
			zap.String("place_id", place.ID),
			zap.String("outcome", string(enriched.Outcome.Kind)),
		)
		out = append(out, enriched)
	}
	return out
}

func (o *Orchestrator) enrichOne(ctx context.Context, place Place) EnrichedPlace {
	target := NormalizeWebsiteURL(place.Website)
	place.Website = target
	if err := ctx.Err(); err != nil {
		return o.failed(place, target, 0, 0, fmt.Errorf("enrichment canceled: %w", err))
	}

	start := time.Now()
	resp, err := o.fetcher.Fetch(ctx, FetchRequest{
		URL:          target,
		UserAgent:    o.cfg.UserAgent,
		Timeout:      o.cfg.FetchTimeout,
		MaxRedirects: o.cfg.MaxRedirects,
	})
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObserveSiteFetch("error", 0, elapsed)
		return o.failed(place, target, resp.StatusCode, elapsed, err)
	}
	metrics.ObserveSiteFetch("ok", len(resp.Body), elapsed)

	found := o.extractor.Extract(string(resp.Body))
	place.Email = OrNotFound(found.Email)
	place.Facebook = OrNotFound(found.Facebook)
	place.Instagram = OrNotFound(found.Instagram)
	for channel, v := range map[string]string{"email": place.Email, "facebook": place.Facebook, "instagram": place.Instagram} {
		if IsPresent(v) {
			metrics.ObserveContact(channel)
		}
	}
	metrics.ObserveOutcome(string(OutcomeExtracted))
	return EnrichedPlace{
		Place: place,
		Outcome: Outcome{
			Kind:       OutcomeExtracted,
			URL:        target,
			StatusCode: resp.StatusCode,
			DurationMs: elapsed.Milliseconds(),
		},
	}
}

func (o *Orchestrator) failed(place Place, target string, status int, elapsed time.Duration, err error) EnrichedPlace {
	o.logger.Warn("website fetch failed",
		zap.String("place_id", place.ID),
		zap.String("url", target),
		zap.Error(err),
	)
	metrics.ObserveOutcome(string(OutcomeFetchFailed))
	return EnrichedPlace{
		Place: place.WithoutContacts(),
		Outcome: Outcome{
			Kind:       OutcomeFetchFailed,
			URL:        target,
			StatusCode: status,
			Error:      err.Error(),
			DurationMs: elapsed.Milliseconds(),
		},
	}
}

// NormalizeWebsiteURL trims the value and prefixes https:// when no scheme is present.
func NormalizeWebsiteURL(raw string) string {
	v := strings.TrimSpace(raw)
	lower := strings.ToLower(v)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return v
	}
	return "https://" + strings.TrimPrefix(v, "//")
}
