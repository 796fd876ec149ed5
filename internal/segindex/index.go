// Package segindex implements the per-(symbol, data_type) segment
// metadata index: non-overlap enforcement, missing-range computation, and
// crash-safe persistence (spec §4.1).
package segindex

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/javi11/marketcache/internal/cacheerr"
	"github.com/javi11/marketcache/internal/tsdata"
)

// IndexFileName is the canonical on-disk filename for the persisted
// index, as named in spec §6.
const IndexFileName = "cache_segments.json"

// SegmentIndex tracks which time ranges are cached per (symbol, data
// type), kept sorted by Start, and persists itself as a single JSON blob
// via temp-write + rename (the same recipe the teacher's segcache catalog
// uses).
type SegmentIndex struct {
	mu       sync.RWMutex
	fs       afero.Fs
	dir      string
	segments map[symbolKey][]Segment
	log      *slog.Logger
}

// persistedSegment is the JSON wire shape; symbolKey isn't itself
// JSON-map-key-safe (it's a struct), so the index is flattened to a list
// on disk and regrouped on load.
type persistedSegment struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	DataType    int       `json:"data_type"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	FilePath    string    `json:"file_path"`
	CreatedAt   time.Time `json:"created_at"`
	RecordCount int       `json:"record_count"`
}

// New creates a SegmentIndex rooted at dir, loading any existing index
// file. A missing file yields an empty index (spec §4.1 persistence
// contract).
func New(fs afero.Fs, dir string, log *slog.Logger) (*SegmentIndex, error) {
	if log == nil {
		log = slog.Default()
	}
	idx := &SegmentIndex{
		fs:       fs,
		dir:      dir,
		segments: make(map[symbolKey][]Segment),
		log:      log,
	}
	if err := idx.load(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *SegmentIndex) path() string {
	return idx.dir + "/" + IndexFileName
}

// AddSegment reserves a non-overlapping [start, end] slot for (symbol,
// dataType) and persists the index atomically on success.
func (idx *SegmentIndex) AddSegment(symbol string, dataType tsdata.DataType, start, end time.Time, filePath string) (Segment, error) {
	if !start.Before(end) {
		return Segment{}, &cacheerr.InvalidRangeError{Start: start, End: end}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := symbolKey{Symbol: symbol, DataType: dataType}
	existing := idx.segments[key]

	for _, s := range existing {
		if overlaps(start, end, s.Start, s.End) {
			return Segment{}, &cacheerr.OverlappingSegmentError{
				Symbol:      symbol,
				NewStart:    start,
				NewEnd:      end,
				ExistingID:  s.ID,
				ExistingRng: cacheerr.TimeRange{Start: s.Start, End: s.End},
			}
		}
	}

	seg := Segment{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		DataType:  dataType,
		Start:     start,
		End:       end,
		FilePath:  filePath,
		CreatedAt: time.Now().UTC(),
	}

	updated := append(append([]Segment{}, existing...), seg)
	sort.Slice(updated, func(i, j int) bool { return updated[i].Start.Before(updated[j].Start) })
	idx.segments[key] = updated

	if err := idx.persistLocked(); err != nil {
		// Roll back the in-memory insert; the caller observes failure and
		// the on-disk state never reflected the new segment.
		idx.segments[key] = existing
		return Segment{}, fmt.Errorf("segindex: persist after add: %w", err)
	}

	return seg, nil
}

// overlaps implements spec §4.1's strict non-overlap rule: touching
// endpoints collide. Adjacency is permitted only when ranges share
// neither interior nor endpoint.
func overlaps(newStart, newEnd, existStart, existEnd time.Time) bool {
	coversExistingStart := !newStart.After(existStart) && !existStart.After(newEnd)
	coversExistingEnd := !newStart.After(existEnd) && !existEnd.After(newEnd)
	existingContainsNew := !existStart.After(newStart) && !existEnd.Before(newEnd)
	return coversExistingStart || coversExistingEnd || existingContainsNew
}

// GetSegments returns every segment for (symbol, dataType) intersecting
// [t0, t1], ascending by Start.
func (idx *SegmentIndex) GetSegments(symbol string, dataType tsdata.DataType, t0, t1 time.Time) []Segment {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	key := symbolKey{Symbol: symbol, DataType: dataType}
	var out []Segment
	for _, s := range idx.segments[key] {
		if s.Start.After(t1) || s.End.Before(t0) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// MissingRanges returns the ordered, disjoint sub-ranges of [t0, t1] not
// covered by any stored segment, per the walk algorithm of spec §4.1.
func (idx *SegmentIndex) MissingRanges(symbol string, dataType tsdata.DataType, t0, t1 time.Time) ([]cacheerr.TimeRange, error) {
	if !t0.Before(t1) {
		return nil, &cacheerr.InvalidRangeError{Start: t0, End: t1}
	}

	segments := idx.GetSegments(symbol, dataType, t0, t1)

	var missing []cacheerr.TimeRange
	cursor := t0
	for _, s := range segments {
		if s.Start.After(cursor) {
			missing = append(missing, cacheerr.TimeRange{Start: cursor, End: s.Start})
		}
		if s.End.After(cursor) {
			cursor = s.End
		}
	}
	if cursor.Before(t1) {
		missing = append(missing, cacheerr.TimeRange{Start: cursor, End: t1})
	}
	return missing, nil
}

// RemoveSegment deletes a single segment by id from (symbol, dataType) and
// persists the index. Used by Cache.Put to roll back an index reservation
// when the subsequent store write fails, without disturbing any other
// segment.
func (idx *SegmentIndex) RemoveSegment(symbol string, dataType tsdata.DataType, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := symbolKey{Symbol: symbol, DataType: dataType}
	existing := idx.segments[key]
	filtered := existing[:0:0]
	for _, s := range existing {
		if s.ID != id {
			filtered = append(filtered, s)
		}
	}
	idx.segments[key] = filtered

	if err := idx.persistLocked(); err != nil {
		idx.segments[key] = existing
		return fmt.Errorf("segindex: persist after remove: %w", err)
	}
	return nil
}

// Clear drops all metadata for one symbol, or globally when symbol is "".
func (idx *SegmentIndex) Clear(symbol string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if symbol == "" {
		idx.segments = make(map[symbolKey][]Segment)
	} else {
		for key := range idx.segments {
			if key.Symbol == symbol {
				delete(idx.segments, key)
			}
		}
	}
	return idx.persistLocked()
}

// Symbols returns the distinct symbols present in the index.
func (idx *SegmentIndex) Symbols() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[string]struct{})
	for key := range idx.segments {
		seen[key.Symbol] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// AllSegments returns every segment currently tracked, across all symbols
// and data types.
func (idx *SegmentIndex) AllSegments() []Segment {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []Segment
	for _, segs := range idx.segments {
		out = append(out, segs...)
	}
	return out
}

func (idx *SegmentIndex) persistLocked() error {
	var flat []persistedSegment
	for _, segs := range idx.segments {
		for _, s := range segs {
			flat = append(flat, persistedSegment{
				ID:          s.ID,
				Symbol:      s.Symbol,
				DataType:    int(s.DataType),
				Start:       s.Start,
				End:         s.End,
				FilePath:    s.FilePath,
				CreatedAt:   s.CreatedAt,
				RecordCount: s.RecordCount,
			})
		}
	}

	data, err := json.Marshal(flat)
	if err != nil {
		return fmt.Errorf("segindex: marshal: %w", err)
	}

	if err := idx.fs.MkdirAll(idx.dir, 0o755); err != nil {
		return fmt.Errorf("segindex: mkdir %s: %w", idx.dir, err)
	}

	final := idx.path()
	tmp := final + ".tmp"
	if err := afero.WriteFile(idx.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("segindex: write %s: %w", tmp, err)
	}
	if err := idx.fs.Rename(tmp, final); err != nil {
		_ = idx.fs.Remove(tmp)
		return fmt.Errorf("segindex: rename %s: %w", final, err)
	}
	return nil
}

func (idx *SegmentIndex) load() error {
	data, err := afero.ReadFile(idx.fs, idx.path())
	if err != nil {
		// Missing file yields an empty index (spec §4.1).
		return nil
	}

	var flat []persistedSegment
	if err := json.Unmarshal(data, &flat); err != nil {
		idx.log.Warn("segindex: corrupt index file, starting fresh", "path", idx.path(), "error", err)
		return nil
	}

	segments := make(map[symbolKey][]Segment)
	for _, p := range flat {
		key := symbolKey{Symbol: p.Symbol, DataType: tsdata.DataType(p.DataType)}
		segments[key] = append(segments[key], Segment{
			ID:          p.ID,
			Symbol:      p.Symbol,
			DataType:    tsdata.DataType(p.DataType),
			Start:       p.Start,
			End:         p.End,
			FilePath:    p.FilePath,
			CreatedAt:   p.CreatedAt,
			RecordCount: p.RecordCount,
		})
	}
	for key := range segments {
		sort.Slice(segments[key], func(i, j int) bool {
			return segments[key][i].Start.Before(segments[key][j].Start)
		})
	}

	idx.segments = segments
	return nil
}
