package segindex

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

func newIndex(t *testing.T) *SegmentIndex {
	t.Helper()
	idx, err := New(afero.NewMemMapFs(), "/cache", nil)
	require.NoError(t, err)
	return idx
}

func TestEmptyIndexFullMiss(t *testing.T) {
	idx := newIndex(t)
	missing, err := idx.MissingRanges("AAPL", tsdata.OHLCV, d(1), d(10))
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.True(t, missing[0].Start.Equal(d(1)))
	assert.True(t, missing[0].End.Equal(d(10)))
}

func TestExactMatchNoGaps(t *testing.T) {
	idx := newIndex(t)
	_, err := idx.AddSegment("AAPL", tsdata.OHLCV, d(1), d(10), "seg1.seg")
	require.NoError(t, err)

	missing, err := idx.MissingRanges("AAPL", tsdata.OHLCV, d(1), d(10))
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestGapInMiddle(t *testing.T) {
	idx := newIndex(t)
	_, err := idx.AddSegment("AAPL", tsdata.OHLCV, d(1), d(5), "seg1.seg")
	require.NoError(t, err)
	_, err = idx.AddSegment("AAPL", tsdata.OHLCV, d(8), d(10), "seg2.seg")
	require.NoError(t, err)

	missing, err := idx.MissingRanges("AAPL", tsdata.OHLCV, d(1), d(10))
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.True(t, missing[0].Start.Equal(d(5)))
	assert.True(t, missing[0].End.Equal(d(8)))
}

func TestOverlapRejected(t *testing.T) {
	idx := newIndex(t)
	_, err := idx.AddSegment("AAPL", tsdata.OHLCV, d(1), d(10), "seg1.seg")
	require.NoError(t, err)

	_, err = idx.AddSegment("AAPL", tsdata.OHLCV, d(5), d(15), "seg2.seg")
	require.Error(t, err)
	var overlapErr *cacheerr.OverlappingSegmentError
	require.ErrorAs(t, err, &overlapErr)
}

func TestAdjacentTouchingRejected(t *testing.T) {
	idx := newIndex(t)
	_, err := idx.AddSegment("AAPL", tsdata.OHLCV, d(1), d(5), "seg1.seg")
	require.NoError(t, err)

	_, err = idx.AddSegment("AAPL", tsdata.OHLCV, d(5), d(10), "seg2.seg")
	require.Error(t, err)
}

func TestInvalidRange(t *testing.T) {
	idx := newIndex(t)
	_, err := idx.MissingRanges("AAPL", tsdata.OHLCV, d(10), d(1))
	require.Error(t, err)
	var invalidErr *cacheerr.InvalidRangeError
	require.ErrorAs(t, err, &invalidErr)
}

func TestClearSymbol(t *testing.T) {
	idx := newIndex(t)
	_, err := idx.AddSegment("AAPL", tsdata.OHLCV, d(1), d(10), "seg1.seg")
	require.NoError(t, err)

	require.NoError(t, idx.Clear("AAPL"))
	missing, err := idx.MissingRanges("AAPL", tsdata.OHLCV, d(1), d(10))
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.True(t, missing[0].Start.Equal(d(1)))
	assert.True(t, missing[0].End.Equal(d(10)))
}

func TestClearIsIdempotent(t *testing.T) {
	idx := newIndex(t)
	_, err := idx.AddSegment("AAPL", tsdata.OHLCV, d(1), d(10), "seg1.seg")
	require.NoError(t, err)

	require.NoError(t, idx.Clear("AAPL"))
	require.NoError(t, idx.Clear("AAPL"))
	assert.Empty(t, idx.AllSegments())
}

func TestIndexSurvivesRestart(t *testing.T) {
	fs := afero.NewMemMapFs()
	idx, err := New(fs, "/cache", nil)
	require.NoError(t, err)
	_, err = idx.AddSegment("AAPL", tsdata.OHLCV, d(1), d(5), "seg1.seg")
	require.NoError(t, err)
	_, err = idx.AddSegment("AAPL", tsdata.OHLCV, d(8), d(10), "seg2.seg")
	require.NoError(t, err)

	reloaded, err := New(fs, "/cache", nil)
	require.NoError(t, err)

	before, _ := idx.MissingRanges("AAPL", tsdata.OHLCV, d(1), d(10))
	after, _ := reloaded.MissingRanges("AAPL", tsdata.OHLCV, d(1), d(10))
	assert.Equal(t, before, after)

	assert.ElementsMatch(t, idx.GetSegments("AAPL", tsdata.OHLCV, d(1), d(10)), reloaded.GetSegments("AAPL", tsdata.OHLCV, d(1), d(10)))
}

func TestMissingFileYieldsEmptyIndex(t *testing.T) {
	idx := newIndex(t)
	assert.Empty(t, idx.AllSegments())
}

func TestSegmentsSortedByStart(t *testing.T) {
	idx := newIndex(t)
	_, err := idx.AddSegment("AAPL", tsdata.OHLCV, d(8), d(10), "b.seg")
	require.NoError(t, err)
	_, err = idx.AddSegment("AAPL", tsdata.OHLCV, d(1), d(5), "a.seg")
	require.NoError(t, err)

	segs := idx.GetSegments("AAPL", tsdata.OHLCV, d(1), d(10))
	require.Len(t, segs, 2)
	assert.True(t, segs[0].Start.Before(segs[1].Start))
}
