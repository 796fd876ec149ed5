// Package fetch implements the FetchOrchestrator of spec §4.4: given a
// request range, it diffs against the segment index, pulls only the
// missing sub-ranges from a Provider (honoring pagination and retries),
// writes them into the cache, and returns the unified series.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/javi11/marketcache/internal/cache"
	"github.com/javi11/marketcache/internal/cacheerr"
	"github.com/javi11/marketcache/internal/provider"
	"github.com/javi11/marketcache/internal/retrypolicy"
	"github.com/javi11/marketcache/internal/tsdata"
)

// minDelta is the minimum representable instant delta used to advance past
// the last record returned by a full page, per spec §4.4's pagination
// contract ("advances m0 past the last returned timestamp by the minimum
// representable delta").
const minDelta = time.Millisecond

// Result is returned by Fetch. Missing is non-empty only in lenient mode
// when coverage could not be completed.
type Result struct {
	Data    tsdata.TimeSeriesData
	Missing []cacheerr.TimeRange
}

// Options configures a single Fetch call.
type Options struct {
	Config  provider.DataConfig
	Lenient bool // when true, return partial data instead of failing (spec §4.4 step 4 default is strict)
}

// Orchestrator ties a Cache to a Provider.
type Orchestrator struct {
	cache    *cache.Cache
	provider provider.Provider
	retry    retrypolicy.Config
	classify retrypolicy.Classify
	log      *slog.Logger

	sf singleflight.Group
}

// New builds an Orchestrator. classify may be nil to use the default
// mapping of cacheerr.RateLimitError/ProviderError to retryable kinds.
func New(c *cache.Cache, p provider.Provider, retryCfg retrypolicy.Config, classify retrypolicy.Classify, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if classify == nil {
		classify = defaultClassify
	}
	return &Orchestrator{cache: c, provider: p, retry: retryCfg, classify: classify, log: log}
}

func defaultClassify(err error) retrypolicy.ErrorKind {
	var rl *cacheerr.RateLimitError
	if errors.As(err, &rl) {
		return retrypolicy.KindRateLimit
	}
	var pe *cacheerr.ProviderError
	if errors.As(err, &pe) {
		return retrypolicy.KindProviderError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return retrypolicy.KindTimeout
	}
	return retrypolicy.KindUnknown
}

// Fetch implements spec §4.4. Concurrent identical requests (same symbol,
// data type, and range) are coalesced via singleflight so only one of them
// talks to the provider.
func (o *Orchestrator) Fetch(ctx context.Context, symbol string, dataType tsdata.DataType, t0, t1 time.Time, opts Options) (Result, error) {
	if !t0.Before(t1) {
		return Result{}, &cacheerr.InvalidRangeError{Start: t0, End: t1}
	}

	key := fmt.Sprintf("%s|%d|%d|%d", symbol, dataType, t0.UnixNano(), t1.UnixNano())
	v, err, _ := o.sf.Do(key, func() (any, error) {
		return o.fetchLocked(ctx, symbol, dataType, t0, t1, opts)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (o *Orchestrator) fetchLocked(ctx context.Context, symbol string, dataType tsdata.DataType, t0, t1 time.Time, opts Options) (Result, error) {
	missing, err := o.cache.MissingRanges(symbol, dataType, t0, t1)
	if err != nil {
		return Result{}, err
	}

	if len(missing) == 0 {
		data, err := o.cache.Get(symbol, dataType, t0, t1)
		if err != nil {
			return Result{}, err
		}
		return Result{Data: data}, nil
	}

	for _, rng := range missing {
		if err := ctx.Err(); err != nil {
			return Result{}, &cacheerr.CancelledError{Symbol: symbol, UnderlyingErr: err}
		}
		if err := o.fetchAndStoreRange(ctx, symbol, dataType, rng.Start, rng.End, opts.Config); err != nil {
			var cancelled *cacheerr.CancelledError
			if errors.As(err, &cancelled) {
				return Result{}, err
			}
			o.log.Warn("fetch: sub-range fetch failed, will remain missing", "symbol", symbol, "start", rng.Start, "end", rng.End, "error", err)
		}
	}

	data, err := o.cache.Get(symbol, dataType, t0, t1)
	if err == nil {
		return Result{Data: data}, nil
	}

	var missingErr *cacheerr.MissingRangesError
	if !errors.As(err, &missingErr) {
		return Result{}, err
	}

	if opts.Lenient {
		partial := o.bestEffortPartial(symbol, dataType, t0, t1, missingErr.Ranges)
		return Result{Data: partial, Missing: missingErr.Ranges}, nil
	}
	return Result{}, &cacheerr.PartialDataError{Symbol: symbol, Missing: missingErr.Ranges}
}

// fetchAndStoreRange pulls [m0, m1] from the provider, paginating and
// retrying as needed, clamps the result to [m0, m1], and writes it to the
// cache. If the provider returns no data at all, the range is abandoned
// (no segment is recorded) so a future call can retry it.
func (o *Orchestrator) fetchAndStoreRange(ctx context.Context, symbol string, dataType tsdata.DataType, m0, m1 time.Time, cfg provider.DataConfig) error {
	var collected []tsdata.Record
	cursor := m0

	for {
		var page tsdata.TimeSeriesData
		err := retrypolicy.Do(ctx, o.retry, o.classify, func(ctx context.Context) error {
			p, err := o.provider.Fetch(ctx, symbol, cursor, m1, cfg)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return &cacheerr.CancelledError{Symbol: symbol, UnderlyingErr: ctx.Err()}
			}
			return fmt.Errorf("fetch: provider call for %s [%s, %s]: %w", symbol, cursor, m1, err)
		}

		clamped := page.Filter(m0, m1)
		collected = append(collected, clamped.Records()...)

		limit := o.provider.PageLimit()
		if limit <= 0 || page.Len() < limit {
			break
		}

		// Full page: advance past the last returned timestamp and
		// re-call for the remainder.
		last := page.End()
		next := last.Add(minDelta)
		if !next.After(cursor) || !next.Before(m1) {
			break
		}
		cursor = next
	}

	if len(collected) == 0 {
		return nil
	}

	merged, err := tsdata.New(symbol, dataType, collected)
	if err != nil {
		return fmt.Errorf("fetch: merge pages for %s: %w", symbol, err)
	}

	if _, err := o.cache.Put(symbol, dataType, m0, m1, merged); err != nil {
		return fmt.Errorf("fetch: cache put for %s [%s, %s]: %w", symbol, m0, m1, err)
	}
	return nil
}

// bestEffortPartial assembles whatever coverage is available for [t0, t1]
// without failing on the remaining gaps, for lenient-mode callers.
func (o *Orchestrator) bestEffortPartial(symbol string, dataType tsdata.DataType, t0, t1 time.Time, stillMissing []cacheerr.TimeRange) tsdata.TimeSeriesData {
	cursor := t0
	var parts []tsdata.TimeSeriesData
	for _, gap := range stillMissing {
		if gap.Start.After(cursor) {
			if part, err := o.cache.Get(symbol, dataType, cursor, gap.Start); err == nil {
				parts = append(parts, part)
			}
		}
		cursor = gap.End
	}
	if cursor.Before(t1) {
		if part, err := o.cache.Get(symbol, dataType, cursor, t1); err == nil {
			parts = append(parts, part)
		}
	}
	return tsdata.Concat(parts...)
}
