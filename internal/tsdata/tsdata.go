// Package tsdata defines the immutable value types exchanged across every
// boundary of the market-data cache: the tagged record sum type and the
// TimeSeriesData container that carries it.
package tsdata

import (
	"fmt"
	"time"

	"github.com/jinzhu/copier"
)

// DataType is a closed enumeration of the record shapes the cache knows
// how to carry. Adding a new shape means adding a new Record variant and a
// new DataType value together; the cache core stays polymorphic over both.
type DataType int

const (
	OHLCV DataType = iota
	OrderFlow
)

func (d DataType) String() string {
	switch d {
	case OHLCV:
		return "OHLCV"
	case OrderFlow:
		return "ORDER_FLOW"
	default:
		return fmt.Sprintf("DataType(%d)", int(d))
	}
}

// Side is the aggressor side of a trade print.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// Record is implemented by every concrete payload variant. The timestamp
// accessor is what lets the cache core reason about ordering without
// knowing the concrete shape.
type Record interface {
	Timestamp() time.Time
}

// OHLCVRecord is a single bar. Volume is a pointer because it may be
// absent for some vendors/instruments.
type OHLCVRecord struct {
	TS     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume *float64
}

func (r OHLCVRecord) Timestamp() time.Time { return r.TS }

// TradeRecord is a single order-flow print.
type TradeRecord struct {
	TS    time.Time
	Price float64
	Size  float64
	Side  Side
	Flags uint32
}

func (r TradeRecord) Timestamp() time.Time { return r.TS }

// BookLevel is one price level of an order-book snapshot.
type BookLevel struct {
	Price float64
	Size  float64
}

// OrderBookSnapshot is a full-depth book capture at one instant.
type OrderBookSnapshot struct {
	TS   time.Time
	Bids []BookLevel
	Asks []BookLevel
}

func (r OrderBookSnapshot) Timestamp() time.Time { return r.TS }

// TimeSeriesData is the unit of payload exchanged across every interface
// in the cache. It is never mutated after construction; New validates the
// invariants spec'd for the type once, at the boundary, so every
// downstream consumer can assume them.
type TimeSeriesData struct {
	// Symbol is informational only; it is never used for addressing.
	Symbol   string
	DataType DataType
	records  []Record
}

// New builds a TimeSeriesData from records already ordered by timestamp.
// It fails if the ordering invariant (non-decreasing timestamps) does not
// hold, or if data type tagging is inconsistent with the concrete variants
// present.
func New(symbol string, dataType DataType, records []Record) (TimeSeriesData, error) {
	if err := validate(dataType, records); err != nil {
		return TimeSeriesData{}, err
	}
	cp := make([]Record, len(records))
	copy(cp, records)
	return TimeSeriesData{Symbol: symbol, DataType: dataType, records: cp}, nil
}

func validate(dataType DataType, records []Record) error {
	var last time.Time
	for i, r := range records {
		ts := r.Timestamp()
		if i > 0 && ts.Before(last) {
			return fmt.Errorf("tsdata: record %d timestamp %s precedes previous %s", i, ts, last)
		}
		last = ts

		switch dataType {
		case OHLCV:
			if _, ok := r.(OHLCVRecord); !ok {
				return fmt.Errorf("tsdata: record %d is %T, want OHLCVRecord for data type %s", i, r, dataType)
			}
		case OrderFlow:
			switch r.(type) {
			case TradeRecord, OrderBookSnapshot:
			default:
				return fmt.Errorf("tsdata: record %d is %T, not a valid order-flow variant", i, r)
			}
		default:
			return fmt.Errorf("tsdata: unknown data type %d", int(dataType))
		}
	}
	return nil
}

// Len returns the number of records.
func (t TimeSeriesData) Len() int { return len(t.records) }

// Records returns the underlying record slice. Callers must not mutate it;
// use Clone if an independently-owned copy is needed.
func (t TimeSeriesData) Records() []Record { return t.records }

// Timestamps derives the parallel timestamp slice from the records. It is
// never stored alongside records (spec invariant: "every record's own
// timestamp equals the parallel timestamp entry" is true by construction
// since there is only one source of truth).
func (t TimeSeriesData) Timestamps() []time.Time {
	out := make([]time.Time, len(t.records))
	for i, r := range t.records {
		out[i] = r.Timestamp()
	}
	return out
}

// Start returns the timestamp of the first record, or the zero time if
// empty.
func (t TimeSeriesData) Start() time.Time {
	if len(t.records) == 0 {
		return time.Time{}
	}
	return t.records[0].Timestamp()
}

// End returns the timestamp of the last record, or the zero time if empty.
func (t TimeSeriesData) End() time.Time {
	if len(t.records) == 0 {
		return time.Time{}
	}
	return t.records[len(t.records)-1].Timestamp()
}

// Filter returns a new TimeSeriesData containing only records whose
// timestamp lies in [from, to] (inclusive).
func (t TimeSeriesData) Filter(from, to time.Time) TimeSeriesData {
	out := make([]Record, 0, len(t.records))
	for _, r := range t.records {
		ts := r.Timestamp()
		if ts.Before(from) || ts.After(to) {
			continue
		}
		out = append(out, r)
	}
	return TimeSeriesData{Symbol: t.Symbol, DataType: t.DataType, records: out}
}

// Concat joins the records of parts in argument order; Symbol and DataType
// are taken from the first part. Callers are responsible for
// ensuring the result remains timestamp-ordered (true when concatenating
// data from non-overlapping, t_start-sorted segments).
func Concat(parts ...TimeSeriesData) TimeSeriesData {
	if len(parts) == 0 {
		return TimeSeriesData{}
	}
	total := 0
	for _, p := range parts {
		total += len(p.records)
	}
	out := make([]Record, 0, total)
	for _, p := range parts {
		out = append(out, p.records...)
	}
	return TimeSeriesData{Symbol: parts[0].Symbol, DataType: parts[0].DataType, records: out}
}

// Clone returns a deep copy so the caller can never observe mutation of
// cache-owned state through the returned value, and vice versa.
func (t TimeSeriesData) Clone() (TimeSeriesData, error) {
	recordsCopy := make([]Record, len(t.records))
	for i, r := range t.records {
		switch v := r.(type) {
		case OHLCVRecord:
			var dst OHLCVRecord
			if err := copier.Copy(&dst, &v); err != nil {
				return TimeSeriesData{}, fmt.Errorf("tsdata: clone record %d: %w", i, err)
			}
			recordsCopy[i] = dst
		case TradeRecord:
			var dst TradeRecord
			if err := copier.Copy(&dst, &v); err != nil {
				return TimeSeriesData{}, fmt.Errorf("tsdata: clone record %d: %w", i, err)
			}
			recordsCopy[i] = dst
		case OrderBookSnapshot:
			var dst OrderBookSnapshot
			if err := copier.Copy(&dst, &v); err != nil {
				return TimeSeriesData{}, fmt.Errorf("tsdata: clone record %d: %w", i, err)
			}
			// copier shares same-typed slices by default; give the clone
			// its own book levels.
			dst.Bids = append([]BookLevel(nil), v.Bids...)
			dst.Asks = append([]BookLevel(nil), v.Asks...)
			recordsCopy[i] = dst
		default:
			return TimeSeriesData{}, fmt.Errorf("tsdata: clone record %d: unknown variant %T", i, r)
		}
	}
	return TimeSeriesData{Symbol: t.Symbol, DataType: t.DataType, records: recordsCopy}, nil
}
