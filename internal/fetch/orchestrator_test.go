package fetch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javi11/marketcache/internal/cache"
	"github.com/javi11/marketcache/internal/cacheerr"
	"github.com/javi11/marketcache/internal/provider"
	"github.com/javi11/marketcache/internal/retrypolicy"
	"github.com/javi11/marketcache/internal/tsdata"
)

func d(n int) time.Time { return time.Date(2023, 1, n, 0, 0, 0, 0, time.UTC) }

func bars(days ...int) []tsdata.Record {
	out := make([]tsdata.Record, len(days))
	for i, n := range days {
		out[i] = tsdata.OHLCVRecord{TS: d(n), Open: 1, High: 2, Low: 0.5, Close: 1.5}
	}
	return out
}

type fakeProvider struct {
	calls     int32
	pageLimit int
	fn        func(ctx context.Context, symbol string, t0, t1 time.Time) (tsdata.TimeSeriesData, error)
}

func (f *fakeProvider) Fetch(ctx context.Context, symbol string, t0, t1 time.Time, _ provider.DataConfig) (tsdata.TimeSeriesData, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.fn(ctx, symbol, t0, t1)
}

func (f *fakeProvider) PageLimit() int { return f.pageLimit }

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New(afero.NewMemMapFs(), "/cache", nil)
	require.NoError(t, err)
	return c
}

func TestFetchBackfillsEmptyIndex(t *testing.T) {
	c := newTestCache(t)
	fp := &fakeProvider{fn: func(ctx context.Context, symbol string, t0, t1 time.Time) (tsdata.TimeSeriesData, error) {
		return tsdata.New(symbol, tsdata.OHLCV, bars(1, 2, 3, 4, 5, 6, 7, 8, 9, 10))
	}}

	orch := New(c, fp, retrypolicy.DefaultConfig(), nil, nil)
	res, err := orch.Fetch(context.Background(), "AAPL", tsdata.OHLCV, d(1), d(10), Options{})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Data.Len())
	assert.Equal(t, int32(1), fp.calls)

	missing, err := c.MissingRanges("AAPL", tsdata.OHLCV, d(1), d(10))
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestFetchOnlyRequestsMissingSubRanges(t *testing.T) {
	c := newTestCache(t)
	existing, err := tsdata.New("AAPL", tsdata.OHLCV, bars(1, 2, 3, 4, 5))
	require.NoError(t, err)
	_, err = c.Put("AAPL", tsdata.OHLCV, d(1), d(5), existing)
	require.NoError(t, err)

	var gotStart, gotEnd time.Time
	fp := &fakeProvider{fn: func(ctx context.Context, symbol string, t0, t1 time.Time) (tsdata.TimeSeriesData, error) {
		gotStart, gotEnd = t0, t1
		return tsdata.New(symbol, tsdata.OHLCV, bars(5, 6, 7, 8))
	}}

	orch := New(c, fp, retrypolicy.DefaultConfig(), nil, nil)
	res, err := orch.Fetch(context.Background(), "AAPL", tsdata.OHLCV, d(1), d(8), Options{})
	require.NoError(t, err)
	assert.True(t, gotStart.Equal(d(5)))
	assert.True(t, gotEnd.Equal(d(8)))
	assert.Equal(t, 8, res.Data.Len())
}

func TestFetchStrictFailureOnEmptyProviderResponse(t *testing.T) {
	c := newTestCache(t)
	fp := &fakeProvider{fn: func(ctx context.Context, symbol string, t0, t1 time.Time) (tsdata.TimeSeriesData, error) {
		return tsdata.TimeSeriesData{}, nil
	}}

	orch := New(c, fp, retrypolicy.DefaultConfig(), nil, nil)
	_, err := orch.Fetch(context.Background(), "AAPL", tsdata.OHLCV, d(1), d(10), Options{})
	require.Error(t, err)
	var partial *cacheerr.PartialDataError
	require.ErrorAs(t, err, &partial)
}

func TestFetchLenientReturnsPartialData(t *testing.T) {
	c := newTestCache(t)
	fp := &fakeProvider{fn: func(ctx context.Context, symbol string, t0, t1 time.Time) (tsdata.TimeSeriesData, error) {
		return tsdata.TimeSeriesData{}, nil
	}}

	orch := New(c, fp, retrypolicy.DefaultConfig(), nil, nil)
	res, err := orch.Fetch(context.Background(), "AAPL", tsdata.OHLCV, d(1), d(10), Options{Lenient: true})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Missing)
}

func TestFetchPaginatesFullPages(t *testing.T) {
	c := newTestCache(t)
	full, err := tsdata.New("AAPL", tsdata.OHLCV, bars(1, 2, 3, 4, 5, 6, 7, 8, 9, 10))
	require.NoError(t, err)

	fp := &fakeProvider{
		pageLimit: 5,
		fn: func(ctx context.Context, symbol string, t0, t1 time.Time) (tsdata.TimeSeriesData, error) {
			// Real vendors return whatever's on/after t0, capped by their
			// page limit; the orchestrator advances t0 itself.
			window := full.Filter(t0, t1)
			records := window.Records()
			if len(records) > 5 {
				records = records[:5]
			}
			return tsdata.New(symbol, tsdata.OHLCV, records)
		},
	}

	orch := New(c, fp, retrypolicy.DefaultConfig(), nil, nil)
	res, err := orch.Fetch(context.Background(), "AAPL", tsdata.OHLCV, d(1), d(10), Options{})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Data.Len())
	assert.GreaterOrEqual(t, fp.calls, int32(2))
}
