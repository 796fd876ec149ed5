// Package provider defines the external data-vendor boundary consumed by
// the fetch orchestrator (spec §6). Concrete vendor adapters (REST/WS wire
// protocols) live outside this module; this package only fixes the
// contract.
package provider

import (
	"context"
	"time"

	"github.com/javi11/marketcache/internal/tsdata"
)

// DataConfig is a sum type over the per-data-type request parameters a
// provider needs beyond (symbol, range). Exactly one of OHLCV/OrderFlow is
// set; which one is determined by the DataType the caller is requesting.
type DataConfig struct {
	OHLCV     *OHLCVConfig
	OrderFlow *OrderFlowConfig
}

// OHLCVConfig parameterizes a bar request.
type OHLCVConfig struct {
	Timeframe       time.Duration
	AdjustSplits    bool
	AdjustDividends bool
	IncludeVolume   bool
}

// OrderFlowConfig parameterizes a trade/book request.
type OrderFlowConfig struct {
	OrderTypes           []string
	MinSize              *float64
	MaxSize              *float64
	IncludeCancellations bool
	IncludeModifications bool
}

// Provider is the abstract contract the fetch orchestrator consumes.
// Implementations MUST return records ordered by timestamp and SHOULD cap
// a single page at their vendor's page limit (PageLimit advertises it so
// the orchestrator knows when to paginate). Implementations MUST surface
// throttling and other failures via the error returned from Fetch —
// typically a *cacheerr.RateLimitError or *cacheerr.ProviderError,
// constructed by the adapter using the Symbol/UnderlyingErr fields so the
// orchestrator's retry policy can classify them.
type Provider interface {
	// Fetch returns all records in [t0, t1] the provider has for symbol,
	// up to its page limit. A page smaller than PageLimit signals the
	// range is exhausted; a full page signals the caller should advance
	// t0 and call again.
	Fetch(ctx context.Context, symbol string, t0, t1 time.Time, cfg DataConfig) (tsdata.TimeSeriesData, error)

	// PageLimit is the maximum records a single Fetch call may return.
	// Zero means unbounded (no pagination needed).
	PageLimit() int
}
