package segindex

import (
	"time"

	"github.com/javi11/marketcache/internal/tsdata"
)

// Segment is the atomic unit of caching: a contiguous, immutable time
// range of records for one (symbol, data type). FilePath is relative to
// the cache directory, never absolute, so the cache directory can be
// relocated without rewriting index entries.
type Segment struct {
	ID          string
	Symbol      string
	DataType    tsdata.DataType
	Start       time.Time
	End         time.Time
	FilePath    string
	CreatedAt   time.Time
	RecordCount int
}

// symbolKey identifies a (symbol, data type) bucket in the index.
type symbolKey struct {
	Symbol   string
	DataType tsdata.DataType
}
