// Package collyfetcher implements the website PageFetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/lead-enricher/internal/enrichment"
)

// Defaults applied when neither the config nor the request sets a value.
const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	DefaultTimeout      = 10 * time.Second
	DefaultMaxRedirects = 5
	DefaultMaxBodyBytes = 5 << 20
)

var (
	// ErrStatus is returned for responses outside the 2xx range.
	ErrStatus = errors.New("unexpected status code")
	// ErrTooManyRedirects is returned when the redirect bound is exceeded.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrUnsupportedURL is returned for URLs that are not absolute http(s).
	ErrUnsupportedURL = errors.New("unsupported url")
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	Timeout       time.Duration
	MaxRedirects  int
	MaxBodyBytes  int
	RespectRobots bool
}

// Fetcher implements enrichment.PageFetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET using Colly.
func (f *Fetcher) Fetch(ctx context.Context, request enrichment.FetchRequest) (enrichment.FetchResponse, error) {
	if err := validateURL(request.URL); err != nil {
		return enrichment.FetchResponse{}, err
	}
	var (
		result   enrichment.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector, timeout := f.buildCollector(request, start, &result, &fetchErr)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		// A status error means the visit finished, so the recorded response is safe to return.
		if errors.Is(err, ErrStatus) {
			return result, err
		}
		return enrichment.FetchResponse{URL: request.URL}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	request enrichment.FetchRequest,
	start time.Time,
	result *enrichment.FetchResponse,
	fetchErr *error,
) (*colly.Collector, time.Duration) {
	collector := f.baseCollector.Clone()
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.UserAgent = firstNonEmpty(request.UserAgent, f.cfg.UserAgent)
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.MaxBodySize = f.cfg.MaxBodyBytes

	timeout := request.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	collector.SetRequestTimeout(timeout)

	maxRedirects := request.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = f.cfg.MaxRedirects
	}
	collector.SetRedirectHandler(redirectPolicy(maxRedirects))

	result.URL = request.URL
	f.configureCollectorHooks(collector, start, result, fetchErr)
	return collector, timeout
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *enrichment.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = enrichment.FetchResponse{
			URL:        result.URL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    cloneHeaders(r.Headers),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
		if r.StatusCode < 200 || r.StatusCode > 299 {
			*fetchErr = fmt.Errorf("%w: %d", ErrStatus, r.StatusCode)
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func redirectPolicy(maxRedirects int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: limit %d", ErrTooManyRedirects, maxRedirects)
		}
		return nil
	}
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrUnsupportedURL, raw)
	}
	return nil
}

func cloneHeaders(h *http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	return h.Clone()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
