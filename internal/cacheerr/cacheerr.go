// Package cacheerr defines the error kinds shared by every layer of the
// market-data cache: segment index, segment store, cache composition, and
// fetch orchestrator. Each kind is a distinct Go type so callers can match
// on it with errors.As instead of comparing error strings.
package cacheerr

import (
	"fmt"
	"time"
)

// TimeRange is an inclusive [Start, End] instant pair.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// InvalidRangeError is raised when a caller supplies t0 >= t1 where a
// strictly ordered range is required.
type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("cacheerr: invalid range [%s, %s]: start must be before end", e.Start, e.End)
}

// OverlappingSegmentError is raised when adding a segment would violate the
// pairwise non-overlap invariant for a (symbol, data type) pair.
type OverlappingSegmentError struct {
	Symbol      string
	NewStart    time.Time
	NewEnd      time.Time
	ExistingID  string
	ExistingRng TimeRange
}

func (e *OverlappingSegmentError) Error() string {
	return fmt.Sprintf(
		"cacheerr: segment [%s, %s] for %s overlaps existing segment %s [%s, %s]",
		e.NewStart, e.NewEnd, e.Symbol, e.ExistingID, e.ExistingRng.Start, e.ExistingRng.End,
	)
}

// MissingRangesError is raised by Cache.Get when the requested window is
// not fully covered by stored segments. Ranges is ordered and disjoint.
type MissingRangesError struct {
	Symbol string
	Ranges []TimeRange
}

func (e *MissingRangesError) Error() string {
	return fmt.Sprintf("cacheerr: %d missing range(s) for %s", len(e.Ranges), e.Symbol)
}

// SegmentDataMissingError indicates a segment is present in the index but
// absent from both the hot and cold store tiers. This signals corruption,
// not a normal miss.
type SegmentDataMissingError struct {
	SegmentID string
	FilePath  string
}

func (e *SegmentDataMissingError) Error() string {
	return fmt.Sprintf("cacheerr: segment %s data missing (file_path=%q)", e.SegmentID, e.FilePath)
}

// RateLimitError wraps a provider-side throttling response. Always
// retryable under the default retry policy.
type RateLimitError struct {
	Symbol        string
	RetryAfter    time.Duration
	UnderlyingErr error
}

func (e *RateLimitError) Error() string {
	if e.UnderlyingErr != nil {
		return fmt.Sprintf("cacheerr: rate limited fetching %s: %s", e.Symbol, e.UnderlyingErr)
	}
	return fmt.Sprintf("cacheerr: rate limited fetching %s", e.Symbol)
}

func (e *RateLimitError) Unwrap() error { return e.UnderlyingErr }

// ProviderError wraps any other provider-side failure.
type ProviderError struct {
	Symbol        string
	UnderlyingErr error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("cacheerr: provider error fetching %s: %s", e.Symbol, e.UnderlyingErr)
}

func (e *ProviderError) Unwrap() error { return e.UnderlyingErr }

// PartialDataError is raised by the fetch orchestrator in strict mode when
// one or more sub-ranges could not be filled after retries.
type PartialDataError struct {
	Symbol  string
	Missing []TimeRange
}

func (e *PartialDataError) Error() string {
	return fmt.Sprintf("cacheerr: partial data for %s, %d range(s) still missing", e.Symbol, len(e.Missing))
}

// CancelledError is raised when a caller-supplied context is cancelled
// while the orchestrator is mid-retry. Completed sub-ranges before the
// cancellation are not rolled back.
type CancelledError struct {
	Symbol        string
	UnderlyingErr error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("cacheerr: fetch for %s cancelled: %s", e.Symbol, e.UnderlyingErr)
}

func (e *CancelledError) Unwrap() error { return e.UnderlyingErr }
