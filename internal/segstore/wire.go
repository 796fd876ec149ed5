package segstore

import (
	"encoding/gob"

	"github.com/javi11/marketcache/internal/tsdata"
)

func init() {
	gob.Register(tsdata.OHLCVRecord{})
	gob.Register(tsdata.TradeRecord{})
	gob.Register(tsdata.OrderBookSnapshot{})
}

// wire is the on-disk gob shape for a segment payload. Records is encoded
// as a slice of the tsdata.Record interface; gob resolves the concrete
// type via the registrations above.
type wire struct {
	Symbol   string
	DataType int
	Records  []tsdata.Record
}

func wireSeries(data tsdata.TimeSeriesData) wire {
	return wire{
		Symbol:   data.Symbol,
		DataType: int(data.DataType),
		Records:  data.Records(),
	}
}

func (w wire) toTimeSeriesData() (tsdata.TimeSeriesData, error) {
	return tsdata.New(w.Symbol, tsdata.DataType(w.DataType), w.Records)
}
