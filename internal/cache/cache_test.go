package cache

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javi11/marketcache/internal/cacheerr"
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

func newCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(afero.NewMemMapFs(), "/cache", nil)
	require.NoError(t, err)
	return c
}

func TestPutThenGetRoundTrip(t *testing.T) {
	c := newCache(t)
	series, err := tsdata.New("AAPL", tsdata.OHLCV, bars(1, 2, 3, 4, 5, 6, 7, 8, 9, 10))
	require.NoError(t, err)

	_, err = c.Put("AAPL", tsdata.OHLCV, d(1), d(10), series)
	require.NoError(t, err)

	got, err := c.Get("AAPL", tsdata.OHLCV, d(1), d(10))
	require.NoError(t, err)
	assert.Equal(t, 10, got.Len())
}

func TestGetWithGapsReturnsMissingRanges(t *testing.T) {
	c := newCache(t)
	series, err := tsdata.New("AAPL", tsdata.OHLCV, bars(1, 2, 3, 4, 5))
	require.NoError(t, err)
	_, err = c.Put("AAPL", tsdata.OHLCV, d(1), d(5), series)
	require.NoError(t, err)

	_, err = c.Get("AAPL", tsdata.OHLCV, d(1), d(10))
	require.Error(t, err)
	var missingErr *cacheerr.MissingRangesError
	require.ErrorAs(t, err, &missingErr)
}

func TestSubRangeReadFiltersToWindow(t *testing.T) {
	c := newCache(t)
	series, err := tsdata.New("AAPL", tsdata.OHLCV, bars(1, 2, 3, 4, 5, 6, 7, 8, 9, 10))
	require.NoError(t, err)
	_, err = c.Put("AAPL", tsdata.OHLCV, d(1), d(10), series)
	require.NoError(t, err)

	got, err := c.Get("AAPL", tsdata.OHLCV, d(3), d(5))
	require.NoError(t, err)
	require.Equal(t, 3, got.Len())
	assert.True(t, got.Start().Equal(d(3)))
	assert.True(t, got.End().Equal(d(5)))
}

func TestPutRejectsTimestampOutsideRange(t *testing.T) {
	c := newCache(t)
	series, err := tsdata.New("AAPL", tsdata.OHLCV, bars(1, 2, 15))
	require.NoError(t, err)

	_, err = c.Put("AAPL", tsdata.OHLCV, d(1), d(10), series)
	require.Error(t, err)
}

func TestClearThenMissingRangesIsFullWindow(t *testing.T) {
	c := newCache(t)
	series, err := tsdata.New("AAPL", tsdata.OHLCV, bars(1, 2, 3))
	require.NoError(t, err)
	_, err = c.Put("AAPL", tsdata.OHLCV, d(1), d(3), series)
	require.NoError(t, err)

	require.NoError(t, c.Clear("AAPL"))

	missing, err := c.MissingRanges("AAPL", tsdata.OHLCV, d(1), d(3))
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.True(t, missing[0].Start.Equal(d(1)))
	assert.True(t, missing[0].End.Equal(d(3)))
}

func TestStatsReflectsPuts(t *testing.T) {
	c := newCache(t)
	series, err := tsdata.New("AAPL", tsdata.OHLCV, bars(1, 2, 3))
	require.NoError(t, err)
	_, err = c.Put("AAPL", tsdata.OHLCV, d(1), d(3), series)
	require.NoError(t, err)

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ColdSegmentCount)
	assert.Contains(t, stats.Symbols, "AAPL")
	require.NotNil(t, stats.OldestSegment)
	require.NotNil(t, stats.NewestSegment)
}
