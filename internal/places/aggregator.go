// Package places turns a search request into an ordered list of business
// listings by paging through a text-search provider.
package places

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enricher/internal/enrichment"
	"github.com/JakeFAU/lead-enricher/internal/metrics"
)

// Provider limits. Config may lower them but never raise them.
const (
	ResultsPerPage = 20
	MaxPages       = 3
	MaxResults     = ResultsPerPage * MaxPages
)

// DefaultPageDelay is the pause before following a continuation token.
const DefaultPageDelay = 2 * time.Second

// ErrProvider wraps any failure reported by the place provider. A search that
// hits it returns no partial results.
var ErrProvider = errors.New("place provider error")

// Config tunes the aggregator.
type Config struct {
	Country    string
	PageSize   int
	MaxPages   int
	MaxResults int
	PageDelay  time.Duration
}

// Aggregator pages through provider results until a stop condition is met.
type Aggregator struct {
	provider enrichment.PlaceProvider
	pauser   enrichment.Pauser
	cfg      Config
	logger   *zap.Logger
}

// paginationState is local to one Search call.
type paginationState struct {
	token        string
	pagesFetched int
	accumulated  []enrichment.Place
}

// NewAggregator constructs an Aggregator. A nil pauser waits on a real timer.
func NewAggregator(
	provider enrichment.PlaceProvider,
	pauser enrichment.Pauser,
	cfg Config,
	logger *zap.Logger,
) *Aggregator {
	if pauser == nil {
		pauser = enrichment.TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		provider: provider,
		pauser:   pauser,
		cfg:      normalizeConfig(cfg),
		logger:   logger,
	}
}

func normalizeConfig(cfg Config) Config {
	if strings.TrimSpace(cfg.Country) == "" {
		cfg.Country = enrichment.DefaultCountry
	}
	cfg.PageSize = clamp(cfg.PageSize, ResultsPerPage)
	cfg.MaxPages = clamp(cfg.MaxPages, MaxPages)
	cfg.MaxResults = clamp(cfg.MaxResults, MaxResults)
	if cfg.PageDelay < 0 {
		cfg.PageDelay = 0
	}
	return cfg
}

// clamp returns v bounded to [1, ceiling], treating v <= 0 as ceiling.
func clamp(v, ceiling int) int {
	if v <= 0 || v > ceiling {
		return ceiling
	}
	return v
}

// BuildQuery renders "<industry> in <area>, <city>, <country>", dropping an empty area.
func BuildQuery(req enrichment.SearchRequest, country string) string {
	parts := make([]string, 0, 3)
	if area := strings.TrimSpace(req.Area); area != "" {
		parts = append(parts, area)
	}
	parts = append(parts, strings.TrimSpace(req.City), strings.TrimSpace(country))
	return strings.TrimSpace(req.Industry) + " in " + strings.Join(parts, ", ")
}

// Query returns the query text Search would send for req.
func (a *Aggregator) Query(req enrichment.SearchRequest) string {
	return BuildQuery(req, a.cfg.Country)
}

// Search collects places for req in provider order. Pagination stops when the
// result cap is reached (truncating the overflow), when the page limit is hit,
// or when the provider returns no continuation token.
func (a *Aggregator) Search(ctx context.Context, req enrichment.SearchRequest) ([]enrichment.Place, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	query := a.Query(req)
	limit := clamp(req.Limit, a.cfg.MaxResults)
	logger := a.logger.With(zap.String("query", query), zap.Int("limit", limit))

	state := paginationState{}
	for {
		resp, err := a.provider.SearchText(ctx, enrichment.PageRequest{
			QueryText:      query,
			MaxResultCount: a.cfg.PageSize,
			PageToken:      state.token,
		})
		if err != nil {
			logger.Warn("place search failed", zap.Int("page", state.pagesFetched+1), zap.Error(err))
			metrics.ObserveProviderPage("error", 0)
			return nil, fmt.Errorf("%w: page %d: %w", ErrProvider, state.pagesFetched+1, err)
		}
		state.pagesFetched++
		metrics.ObserveProviderPage("ok", len(resp.Places))

		for _, raw := range resp.Places {
			state.accumulated = append(state.accumulated, ToPlace(raw))
		}
		state.token = strings.TrimSpace(resp.NextPageToken)
		logger.Debug("place page received",
			zap.Int("page", state.pagesFetched),
			zap.Int("page_results", len(resp.Places)),
			zap.Int("total", len(state.accumulated)),
			zap.Bool("has_next", state.token != ""),
		)

		if len(state.accumulated) >= limit {
			state.accumulated = state.accumulated[:limit]
			break
		}
		if state.pagesFetched >= a.cfg.MaxPages || state.token == "" || len(resp.Places) == 0 {
			break
		}

		a.pauser.Pause(ctx, a.cfg.PageDelay)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("place search canceled: %w", err)
		}
	}

	logger.Info("place search complete",
		zap.Int("pages", state.pagesFetched),
		zap.Int("places", len(state.accumulated)),
	)
	return state.accumulated, nil
}

// ToPlace maps a provider listing into a Place with every absent field set to NotFound.
func ToPlace(raw enrichment.ProviderPlace) enrichment.Place {
	phone := strings.TrimSpace(raw.NationalPhone)
	if phone == "" {
		phone = raw.InternationalPhone
	}
	var rating *float64
	if raw.Rating != nil && *raw.Rating >= 0 && *raw.Rating <= 5 {
		r := *raw.Rating
		rating = &r
	}
	return enrichment.Place{
		ID:        enrichment.OrNotFound(raw.ID),
		Name:      enrichment.OrNotFound(raw.DisplayName),
		Address:   enrichment.OrNotFound(raw.FormattedAddress),
		Rating:    rating,
		Phone:     enrichment.OrNotFound(phone),
		Website:   enrichment.OrNotFound(raw.WebsiteURI),
		Email:     enrichment.NotFound,
		Instagram: enrichment.NotFound,
		Facebook:  enrichment.NotFound,
	}
}
