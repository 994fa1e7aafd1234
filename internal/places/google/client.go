// Package google implements the place provider over the Google Places
// text-search endpoint.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/JakeFAU/lead-enricher/internal/enrichment"
)

const (
	// DefaultEndpoint is the Places API (New) text-search URL.
	DefaultEndpoint = "https://places.googleapis.com/v1/places:searchText"
	// DefaultTimeout bounds one provider request.
	DefaultTimeout = 10 * time.Second

	fieldMask = "places.id,places.displayName,places.formattedAddress,places.rating," +
		"places.nationalPhoneNumber,places.internationalPhoneNumber,places.websiteUri,nextPageToken"
	maxResponseBytes = 4 << 20
)

// tokenPaths are checked in order; the first non-empty value is the continuation token.
var tokenPaths = []string{
	"nextPageToken",
	"next_page_token",
	"response.nextPageToken",
	"response.next_page_token",
}

// ErrMissingAPIKey is returned by New when no API key is configured.
var ErrMissingAPIKey = errors.New("places api key is required")

// Limiter throttles outbound provider calls.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Config captures the provider connection settings.
type Config struct {
	APIKey       string
	Endpoint     string
	Timeout      time.Duration
	LanguageCode string
}

// Client calls the text-search endpoint and decodes one page per call.
type Client struct {
	httpClient *http.Client
	cfg        Config
	limiter    Limiter
	logger     *zap.Logger
}

type searchTextRequest struct {
	TextQuery      string `json:"textQuery"`
	PageSize       int    `json:"pageSize,omitempty"`
	MaxResultCount int    `json:"maxResultCount,omitempty"`
	PageToken      string `json:"pageToken,omitempty"`
	LanguageCode   string `json:"languageCode,omitempty"`
}

// New constructs a Client. httpClient and limiter may be nil.
func New(cfg Config, httpClient *http.Client, limiter Limiter, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// SearchText requests one page of results for req.
func (c *Client) SearchText(ctx context.Context, req enrichment.PageRequest) (enrichment.PageResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.cfg.Endpoint); err != nil {
			return enrichment.PageResponse{}, fmt.Errorf("places rate limit: %w", err)
		}
	}

	payload, err := json.Marshal(searchTextRequest{
		TextQuery:      req.QueryText,
		PageSize:       req.MaxResultCount,
		MaxResultCount: req.MaxResultCount,
		PageToken:      req.PageToken,
		LanguageCode:   c.cfg.LanguageCode,
	})
	if err != nil {
		return enrichment.PageResponse{}, fmt.Errorf("marshal search request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return enrichment.PageResponse{}, fmt.Errorf("build search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.cfg.APIKey)
	httpReq.Header.Set("X-Goog-FieldMask", fieldMask)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return enrichment.PageResponse{}, fmt.Errorf("places search request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close places response", zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return enrichment.PageResponse{}, fmt.Errorf("read places response: %w", err)
	}
	c.logger.Debug("places page fetched",
		zap.Int("status", resp.StatusCode),
		zap.Bool("has_token", req.PageToken != ""),
		zap.Duration("duration", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return enrichment.PageResponse{}, fmt.Errorf("places search status %d: %s", resp.StatusCode, errorMessage(body))
	}
	return ParseResponse(body)
}

// ParseResponse decodes a text-search body. It accepts both the current
// "places" shape and the legacy "results" shape.
func ParseResponse(body []byte) (enrichment.PageResponse, error) {
	if !gjson.ValidBytes(body) {
		return enrichment.PageResponse{}, errors.New("places response is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	if root.Get("error").Exists() {
		return enrichment.PageResponse{}, fmt.Errorf("places api error: %s", errorMessage(body))
	}
	if status := root.Get("status"); status.Exists() && status.Type == gjson.String {
		switch status.String() {
		case "OK", "ZERO_RESULTS":
		default:
			return enrichment.PageResponse{}, fmt.Errorf("places api status %s: %s",
				status.String(), root.Get("error_message").String())
		}
	}

	list := root.Get("places")
	if !list.Exists() {
		list = root.Get("results")
	}
	var out enrichment.PageResponse
	list.ForEach(func(_, p gjson.Result) bool {
		place := enrichment.ProviderPlace{
			ID:                 firstString(p, "id", "place_id"),
			DisplayName:        firstString(p, "displayName.text", "name"),
			FormattedAddress:   firstString(p, "formattedAddress", "formatted_address"),
			NationalPhone:      firstString(p, "nationalPhoneNumber", "formatted_phone_number"),
			InternationalPhone: firstString(p, "internationalPhoneNumber", "international_phone_number"),
			WebsiteURI:         firstString(p, "websiteUri", "website"),
		}
		if r := p.Get("rating"); r.Type == gjson.Number {
			v := r.Float()
			place.Rating = &v
		}
		out.Places = append(out.Places, place)
		return true
	})
	out.NextPageToken = NextPageToken(body)
	return out, nil
}

// NextPageToken returns the continuation token from any of the known locations.
func NextPageToken(body []byte) string {
	for _, path := range tokenPaths {
		if v := strings.TrimSpace(gjson.GetBytes(body, path).String()); v != "" {
			return v
		}
	}
	return ""
}

func firstString(node gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := node.Get(path); v.Exists() && v.Type == gjson.String {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

func errorMessage(body []byte) string {
	for _, path := range []string{"error.message", "error_message", "message"} {
		if v := gjson.GetBytes(body, path).String(); v != "" {
			return v
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
