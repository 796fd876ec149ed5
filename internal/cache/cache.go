// Package cache composes internal/segindex and internal/segstore into the
// Cache surface described by spec §4.3: Put, Get, Clear, Stats.
package cache

import (
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"github.com/javi11/marketcache/internal/cacheerr"
	"github.com/javi11/marketcache/internal/segindex"
	"github.com/javi11/marketcache/internal/segstore"
	"github.com/javi11/marketcache/internal/tsdata"
)

// Cache composes the index and store, keeping them consistent.
type Cache struct {
	index *segindex.SegmentIndex
	store *segstore.SegmentStore
	log   *slog.Logger
}

// Stats summarizes the current state of both tiers.
type Stats struct {
	HotSegmentCount  int
	HotBytesEstimate int64
	ColdSegmentCount int
	ColdBytes        int64
	Symbols          []string
	OldestSegment    *time.Time
	NewestSegment    *time.Time
}

// New builds a Cache rooted at dir on the given filesystem.
func New(fs afero.Fs, dir string, log *slog.Logger, storeOpts ...segstore.Option) (*Cache, error) {
	if log == nil {
		log = slog.Default()
	}
	idx, err := segindex.New(fs, dir, log)
	if err != nil {
		return nil, fmt.Errorf("cache: build index: %w", err)
	}
	store, err := segstore.New(fs, dir, log, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("cache: build store: %w", err)
	}
	return &Cache{index: idx, store: store, log: log}, nil
}

// Put reserves a non-overlapping slot for [t0, t1] and writes data to the
// store. If the store write fails after the index reserved the slot, the
// index entry is rolled back so the two tiers never diverge (spec §4.3,
// §5 atomicity boundary).
func (c *Cache) Put(symbol string, dataType tsdata.DataType, t0, t1 time.Time, data tsdata.TimeSeriesData) (string, error) {
	if !t0.Before(t1) {
		return "", &cacheerr.InvalidRangeError{Start: t0, End: t1}
	}
	if data.Len() == 0 {
		return "", fmt.Errorf("cache: put: data must be non-empty")
	}
	if data.DataType != dataType {
		return "", fmt.Errorf("cache: put: data type %s does not match requested %s", data.DataType, dataType)
	}
	for _, ts := range data.Timestamps() {
		if ts.Before(t0) || ts.After(t1) {
			return "", fmt.Errorf("cache: put: record timestamp %s outside [%s, %s]", ts, t0, t1)
		}
	}

	fileName := segstore.FileName(symbol, dataType, t0, t1)

	seg, err := c.index.AddSegment(symbol, dataType, t0, t1, fileName)
	if err != nil {
		return "", err
	}

	if _, err := c.store.PutSegment(seg.ID, fileName, data); err != nil {
		// Roll back: the index must not reflect a segment whose data was
		// never durably written.
		if rollbackErr := c.index.RemoveSegment(symbol, dataType, seg.ID); rollbackErr != nil {
			c.log.Error("cache: rollback failed after store write error", "error", rollbackErr)
		}
		return "", fmt.Errorf("cache: put: store write failed, index entry rolled back: %w", err)
	}

	return seg.ID, nil
}

// Get gathers every segment intersecting [t0, t1], loads each concurrently
// via the store, filters to [t0, t1], and concatenates in ascending
// timestamp order. Fails with *cacheerr.MissingRangesError if coverage is
// incomplete.
func (c *Cache) Get(symbol string, dataType tsdata.DataType, t0, t1 time.Time) (tsdata.TimeSeriesData, error) {
	missing, err := c.index.MissingRanges(symbol, dataType, t0, t1)
	if err != nil {
		return tsdata.TimeSeriesData{}, err
	}
	if len(missing) > 0 {
		return tsdata.TimeSeriesData{}, &cacheerr.MissingRangesError{Symbol: symbol, Ranges: missing}
	}

	segments := c.index.GetSegments(symbol, dataType, t0, t1)
	if len(segments) == 0 {
		empty, _ := tsdata.New(symbol, dataType, nil)
		return empty, nil
	}

	loaded := make([]tsdata.TimeSeriesData, len(segments))
	loadErrs := make([]error, len(segments))

	wg := pool.New().WithMaxGoroutines(runtime.GOMAXPROCS(0))
	for i, seg := range segments {
		i, seg := i, seg
		wg.Go(func() {
			data, err := c.store.GetSegment(seg)
			if err != nil {
				loadErrs[i] = err
				return
			}
			loaded[i] = data.Filter(t0, t1)
		})
	}
	wg.Wait()

	for _, err := range loadErrs {
		if err != nil {
			return tsdata.TimeSeriesData{}, err
		}
	}

	result := tsdata.Concat(loaded...)
	clone, err := result.Clone()
	if err != nil {
		return tsdata.TimeSeriesData{}, fmt.Errorf("cache: get: clone result: %w", err)
	}
	return clone, nil
}

// Clear clears both index and store consistently, either for one symbol
// or globally when symbol is "".
//
// A per-symbol clear deletes each of that symbol's indexed segments from
// both store tiers before dropping its index metadata; a global clear
// empties the hot tier and removes every segment file in the directory.
func (c *Cache) Clear(symbol string) error {
	if symbol == "" {
		if err := c.store.Clear(); err != nil {
			return fmt.Errorf("cache: clear store: %w", err)
		}
	} else {
		for _, seg := range c.index.AllSegments() {
			if seg.Symbol != symbol {
				continue
			}
			if err := c.store.DeleteSegment(seg); err != nil {
				return fmt.Errorf("cache: clear: delete segment %s: %w", seg.ID, err)
			}
		}
	}
	return c.index.Clear(symbol)
}

// Stats reports the current size/shape of both tiers.
func (c *Cache) Stats() (Stats, error) {
	cold, err := c.store.ColdBytes()
	if err != nil {
		return Stats{}, err
	}

	segments := c.index.AllSegments()
	sort.Slice(segments, func(i, j int) bool { return segments[i].Start.Before(segments[j].Start) })

	stats := Stats{
		HotSegmentCount:  c.store.HotCount(),
		HotBytesEstimate: c.store.HotBytesEstimate(),
		ColdSegmentCount: len(segments),
		ColdBytes:        cold,
		Symbols:          c.index.Symbols(),
	}
	if len(segments) > 0 {
		oldest := segments[0].Start
		newest := segments[0].End
		for _, s := range segments {
			if s.Start.Before(oldest) {
				oldest = s.Start
			}
			if s.End.After(newest) {
				newest = s.End
			}
		}
		stats.OldestSegment = &oldest
		stats.NewestSegment = &newest
	}
	return stats, nil
}

// MissingRanges exposes the index's coverage gap computation directly, for
// callers (the fetch orchestrator) that need it without attempting a Get.
func (c *Cache) MissingRanges(symbol string, dataType tsdata.DataType, t0, t1 time.Time) ([]cacheerr.TimeRange, error) {
	return c.index.MissingRanges(symbol, dataType, t0, t1)
}
