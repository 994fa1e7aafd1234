package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lead-enricher/internal/enrichment"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "config-agent", Timeout: time.Second, MaxBodyBytes: 1024})
	req := enrichment.FetchRequest{URL: "https://example.com", UserAgent: "request-agent", Timeout: 3 * time.Second}

	collector, timeout := f.buildCollector(req, time.Unix(0, 0), &enrichment.FetchResponse{}, new(error))
	require.Equal(t, "request-agent", collector.UserAgent)
	require.Equal(t, 3*time.Second, timeout)
	require.Equal(t, 1024, collector.MaxBodySize)
	require.True(t, collector.IgnoreRobotsTxt)
	require.True(t, collector.AllowURLRevisit)

	collector, timeout = f.buildCollector(enrichment.FetchRequest{URL: "https://example.com"},
		time.Unix(0, 0), &enrichment.FetchResponse{}, new(error))
	require.Equal(t, "config-agent", collector.UserAgent)
	require.Equal(t, time.Second, timeout)
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	require.Equal(t, DefaultUserAgent, f.cfg.UserAgent)
	require.Equal(t, DefaultTimeout, f.cfg.Timeout)
	require.Equal(t, DefaultMaxRedirects, f.cfg.MaxRedirects)
	require.Equal(t, DefaultMaxBodyBytes, f.cfg.MaxBodyBytes)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	result := enrichment.FetchResponse{URL: "https://example.com"}
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Contains(t, collyReq.Headers.Get("Accept"), "text/html")

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://www.example.com/home")},
	})
	require.NoError(t, fetchErr)
	require.Equal(t, "https://example.com", result.URL)
	require.Equal(t, "https://www.example.com/home", result.FinalURL)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusNotFound,
		Headers:    &http.Header{},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	require.ErrorIs(t, fetchErr, ErrStatus)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestFetchReturnsBodyAndSendsUserAgent(t *testing.T) {
	t.Parallel()

	agents := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body>hello@shop.com</body></html>`)
	}))
	defer srv.Close()

	resp, err := New(Config{}).Fetch(context.Background(), enrichment.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "hello@shop.com")
	require.Equal(t, DefaultUserAgent, <-agents)
}

func TestFetchFollowsRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>moved</html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := New(Config{}).Fetch(context.Background(), enrichment.FetchRequest{URL: srv.URL + "/old"})
	require.NoError(t, err)
	require.Contains(t, string(resp.Body), "moved")
}

func TestFetchRedirectLoopFails(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		http.Redirect(w, r, fmt.Sprintf("/loop/%d", n), http.StatusFound)
	}))
	defer srv.Close()

	_, err := New(Config{MaxRedirects: 3}).Fetch(context.Background(), enrichment.FetchRequest{URL: srv.URL})
	require.Error(t, err)
	require.LessOrEqual(t, hits.Load(), int32(4))
}

func TestFetchNon2xxIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "down")
	}))
	defer srv.Close()

	resp, err := New(Config{}).Fetch(context.Background(), enrichment.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, ErrStatus)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := New(Config{Timeout: 100 * time.Millisecond}).Fetch(context.Background(), enrichment.FetchRequest{URL: srv.URL})
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestFetchRejectsUnsupportedURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "ftp://example.com", "not a url", "https://"} {
		_, err := New(Config{}).Fetch(context.Background(), enrichment.FetchRequest{URL: raw})
		require.ErrorIs(t, err, ErrUnsupportedURL, raw)
	}
}

func TestFetchTruncatesLargeBodies(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 4096))
	}))
	defer srv.Close()

	resp, err := New(Config{MaxBodyBytes: 512}).Fetch(context.Background(), enrichment.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	require.LessOrEqual(t, len(resp.Body), 512)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
