package enrichment

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/lead-enricher/internal/extract"
)

// NotFound marks a contact or listing field that could not be determined.
const NotFound = extract.NotFound

// DefaultCountry is appended to every search query.
const DefaultCountry = "USA"

// Place is a business listing as it flows through search and enrichment.
// Every string field holds either a value or NotFound; Rating is nil when absent.
type Place struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	Rating    *float64 `json:"rating"`
	Phone     string   `json:"phone"`
	Website   string   `json:"website"`
	Email     string   `json:"email"`
	Instagram string   `json:"instagram"`
	Facebook  string   `json:"facebook"`
}

// HasWebsite reports whether the listing carries a usable website.
func (p Place) HasWebsite() bool {
	return IsPresent(p.Website)
}

// WithoutContacts returns a copy with all contact fields reset to NotFound.
func (p Place) WithoutContacts() Place {
	p.Email = NotFound
	p.Instagram = NotFound
	p.Facebook = NotFound
	return p
}

// IsPresent reports whether a field holds a real value.
func IsPresent(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && v != NotFound
}

// OrNotFound returns the trimmed value or NotFound when it is blank.
func OrNotFound(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return NotFound
	}
	return v
}

// SearchRequest is the caller input for one pipeline run.
type SearchRequest struct {
	City     string `json:"city"`
	Area     string `json:"area"`
	Industry string `json:"industry"`
	// Limit caps the number of places; zero means the provider cap.
	Limit int `json:"limit,omitempty"`
}

// ErrInvalidRequest is returned when a search request is missing required fields.
var ErrInvalidRequest = errors.New("invalid search request")

// Validate checks the request for required fields.
func (r SearchRequest) Validate() error {
	if strings.TrimSpace(r.City) == "" {
		return fmt.Errorf("%w: city is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Industry) == "" {
		return fmt.Errorf("%w: industry is required", ErrInvalidRequest)
	}
	if r.Limit < 0 {
		return fmt.Errorf("%w: limit must be >= 0", ErrInvalidRequest)
	}
	return nil
}

// OutcomeKind tags how a single place went through enrichment.
type OutcomeKind string

// Outcome kinds recorded per place.
const (
	OutcomeNoWebsite   OutcomeKind = "no_website"
	OutcomeFetchFailed OutcomeKind = "fetch_failed"
	OutcomeExtracted   OutcomeKind = "extracted"
)

// Outcome records what happened to one place during enrichment.
type Outcome struct {
	Kind       OutcomeKind `json:"kind"`
	URL        string      `json:"url,omitempty"`
	StatusCode int         `json:"status_code,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMs int64       `json:"duration_ms,omitempty"`
}

// EnrichedPlace is a Place plus the outcome of its website visit.
type EnrichedPlace struct {
	Place
	Outcome Outcome `json:"outcome"`
}

// Stats summarizes a pipeline run.
type Stats struct {
	PlacesFound   int `json:"places_found"`
	WithWebsite   int `json:"with_website"`
	Emails        int `json:"emails"`
	Facebook      int `json:"facebook"`
	Instagram     int `json:"instagram"`
	FetchFailures int `json:"fetch_failures"`
}

// Summarize tallies the stats for a set of enriched places.
func Summarize(places []EnrichedPlace) Stats {
	stats := Stats{PlacesFound: len(places)}
	for _, p := range places {
		if p.HasWebsite() {
			stats.WithWebsite++
		}
		if IsPresent(p.Email) {
			stats.Emails++
		}
		if IsPresent(p.Facebook) {
			stats.Facebook++
		}
		if IsPresent(p.Instagram) {
			stats.Instagram++
		}
		if p.Outcome.Kind == OutcomeFetchFailed {
			stats.FetchFailures++
		}
	}
	return stats
}

// Result is the output of a pipeline run.
type Result struct {
	Request SearchRequest   `json:"request"`
	Query   string          `json:"query"`
	Places  []EnrichedPlace `json:"places"`
	Stats   Stats           `json:"stats"`
}

// PageRequest asks a place provider for one page of text-search results.
type PageRequest struct {
	QueryText      string
	MaxResultCount int
	PageToken      string
}

// ProviderPlace is a raw listing as reported by the provider.
type ProviderPlace struct {
	ID                 string
	DisplayName        string
	FormattedAddress   string
	Rating             *float64
	NationalPhone      string
	InternationalPhone string
	WebsiteURI         string
}

// PageResponse is one page of provider results.
type PageResponse struct {
	Places        []ProviderPlace
	NextPageToken string
}

// FetchRequest captures everything needed to fetch one business website.
type FetchRequest struct {
	URL          string
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
}

// FetchResponse captures the fetched page.
type FetchResponse struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	Headers    http.Header
	Duration   time.Duration
}
