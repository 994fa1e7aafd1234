package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lead-enricher/internal/enrichment"
)

func TestLimiterWaitDelaysSecondCall(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://places.googleapis.com/v1/places:searchText"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://places.googleapis.com/v1/places:searchText"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example/1"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://B.example/1"))
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterUnlimitedByDefault(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(ctx, "https://a.example"))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://slow.example"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://slow.example"))
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "shop.example", hostOf("https://Shop.Example:8443/x"))
	require.Equal(t, "unknown", hostOf("::bad"))
	require.Equal(t, "unknown", hostOf(""))
}

type stubFetcher struct {
	calls int
	err   error
}

func (s *stubFetcher) Fetch(_ context.Context, req enrichment.FetchRequest) (enrichment.FetchResponse, error) {
	s.calls++
	return enrichment.FetchResponse{URL: req.URL, StatusCode: 200}, s.err
}

func TestWrapFetcher(t *testing.T) {
	t.Parallel()

	next := &stubFetcher{}
	require.Same(t, next, WrapFetcher(next, nil))

	wrapped := WrapFetcher(next, New(Config{}))
	resp, err := wrapped.Fetch(context.Background(), enrichment.FetchRequest{URL: "https://a.example"})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, 1, next.calls)

	next.err = errors.New("boom")
	_, err = wrapped.Fetch(context.Background(), enrichment.FetchRequest{URL: "https://a.example"})
	require.ErrorIs(t, err, next.err)
}

func TestWrapFetcherCanceledBeforeFetch(t *testing.T) {
	t.Parallel()

	next := &stubFetcher{}
	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	wrapped := WrapFetcher(next, l)
	_, err := wrapped.Fetch(context.Background(), enrichment.FetchRequest{URL: "https://a.example"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = wrapped.Fetch(ctx, enrichment.FetchRequest{URL: "https://a.example"})
	require.Error(t, err)
	require.Equal(t, 1, next.calls)
}
