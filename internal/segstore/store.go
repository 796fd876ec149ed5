// Package segstore implements the two-tier segment blob store: a hot
// in-memory map and a cold on-disk directory of per-segment files, kept
// consistent by the caller (internal/cache) with internal/segindex (spec
// §4.2). The store itself is oblivious to time semantics — it is a blob
// store keyed by segment id.
package segstore

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"

	"github.com/javi11/marketcache/internal/cacheerr"
	"github.com/javi11/marketcache/internal/segindex"
	"github.com/javi11/marketcache/internal/tsdata"
)

// SegmentExt is the on-disk extension for per-segment payload files,
// matching the teacher's segcache ".seg" convention.
const SegmentExt = ".seg"

// SegmentStore is the hot map + cold directory described by spec §4.2.
type SegmentStore struct {
	mu          sync.RWMutex
	fs          afero.Fs
	dir         string
	hot         map[string]tsdata.TimeSeriesData
	compression bool
	log         *slog.Logger
}

// Option configures a SegmentStore.
type Option func(*SegmentStore)

// WithCompression toggles zstd compression of the gob-encoded payload
// (spec §6: "implementations MAY use columnar formats for large OHLCV
// ranges" — compression is this implementation's choice for that case).
func WithCompression(enabled bool) Option {
	return func(s *SegmentStore) { s.compression = enabled }
}

// New creates a SegmentStore rooted at dir. The hot tier starts empty;
// segments already on disk are loaded lazily on first GetSegment.
func New(fs afero.Fs, dir string, log *slog.Logger, opts ...Option) (*SegmentStore, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("segstore: mkdir %s: %w", dir, err)
	}
	s := &SegmentStore{
		fs:          fs,
		dir:         dir,
		hot:         make(map[string]tsdata.TimeSeriesData),
		compression: true,
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FileName builds the spec §6 filename template:
// <SYMBOL>_<DATATYPE>_<YYYYMMDD_start>_<YYYYMMDD_end>.<ext>
func FileName(symbol string, dataType tsdata.DataType, start, end time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%s%s",
		symbol, dataType.String(),
		start.UTC().Format("20060102"),
		end.UTC().Format("20060102"),
		SegmentExt,
	)
}

// PutSegment serializes data to a per-segment file (temp-write + rename),
// inserts it into the hot map, and returns the relative file path stored
// alongside the segment's index entry.
func (s *SegmentStore) PutSegment(segmentID string, fileName string, data tsdata.TimeSeriesData) (string, error) {
	encoded, err := s.encode(data)
	if err != nil {
		return "", fmt.Errorf("segstore: encode %s: %w", segmentID, err)
	}

	final := s.dir + "/" + fileName
	tmp := final + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, encoded, 0o644); err != nil {
		return "", fmt.Errorf("segstore: write %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, final); err != nil {
		_ = s.fs.Remove(tmp)
		return "", fmt.Errorf("segstore: rename %s: %w", final, err)
	}

	s.mu.Lock()
	s.hot[segmentID] = data
	s.mu.Unlock()

	return fileName, nil
}

// GetSegment returns the TimeSeriesData for segment, from the hot map if
// present, otherwise deserialized from segment.FilePath.
func (s *SegmentStore) GetSegment(segment segindex.Segment) (tsdata.TimeSeriesData, error) {
	s.mu.RLock()
	data, ok := s.hot[segment.ID]
	s.mu.RUnlock()
	if ok {
		return data, nil
	}

	if segment.FilePath == "" {
		return tsdata.TimeSeriesData{}, &cacheerr.SegmentDataMissingError{SegmentID: segment.ID}
	}

	raw, err := afero.ReadFile(s.fs, s.dir+"/"+segment.FilePath)
	if err != nil {
		return tsdata.TimeSeriesData{}, &cacheerr.SegmentDataMissingError{SegmentID: segment.ID, FilePath: segment.FilePath}
	}

	decoded, err := s.decode(raw)
	if err != nil {
		return tsdata.TimeSeriesData{}, fmt.Errorf("segstore: decode %s: %w", segment.ID, err)
	}

	s.mu.Lock()
	s.hot[segment.ID] = decoded
	s.mu.Unlock()

	return decoded, nil
}

// DeleteSegment removes segment from both tiers. Missing files are not an
// error (tolerant of already-absent cold data).
func (s *SegmentStore) DeleteSegment(segment segindex.Segment) error {
	s.mu.Lock()
	delete(s.hot, segment.ID)
	s.mu.Unlock()

	if segment.FilePath == "" {
		return nil
	}
	if err := s.fs.Remove(s.dir + "/" + segment.FilePath); err != nil && !isNotExist(err) {
		return fmt.Errorf("segstore: remove %s: %w", segment.FilePath, err)
	}
	return nil
}

// Clear drops the hot map and deletes every *.seg file in the store
// directory.
func (s *SegmentStore) Clear() error {
	s.mu.Lock()
	s.hot = make(map[string]tsdata.TimeSeriesData)
	s.mu.Unlock()

	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		return fmt.Errorf("segstore: readdir %s: %w", s.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if len(e.Name()) >= len(SegmentExt) && e.Name()[len(e.Name())-len(SegmentExt):] == SegmentExt {
			if err := s.fs.Remove(s.dir + "/" + e.Name()); err != nil && !isNotExist(err) {
				return fmt.Errorf("segstore: remove %s: %w", e.Name(), err)
			}
		}
	}
	return nil
}

// HotCount reports the number of segments in the hot tier, for Cache.Stats.
func (s *SegmentStore) HotCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hot)
}

// HotBytesEstimate sums a rough gob-encoded size of every hot entry.
func (s *SegmentStore) HotBytesEstimate() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, v := range s.hot {
		enc, err := s.encodeRaw(v)
		if err != nil {
			continue
		}
		total += int64(len(enc))
	}
	return total
}

// ColdBytes sums the size of every *.seg file on disk.
func (s *SegmentStore) ColdBytes() (int64, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if isNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("segstore: readdir %s: %w", s.dir, err)
	}
	var total int64
	for _, e := range entries {
		if !e.IsDir() && len(e.Name()) >= len(SegmentExt) && e.Name()[len(e.Name())-len(SegmentExt):] == SegmentExt {
			total += e.Size()
		}
	}
	return total, nil
}

func (s *SegmentStore) encodeRaw(data tsdata.TimeSeriesData) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(wireSeries(data)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *SegmentStore) encode(data tsdata.TimeSeriesData) ([]byte, error) {
	raw, err := s.encodeRaw(data)
	if err != nil {
		return nil, err
	}
	if !s.compression {
		return raw, nil
	}
	return compress(raw)
}

func (s *SegmentStore) decode(raw []byte) (tsdata.TimeSeriesData, error) {
	payload := raw
	if s.compression {
		decompressed, err := decompress(raw)
		if err == nil {
			payload = decompressed
		}
		// A store that was written with compression disabled falls back
		// to treating the bytes as raw gob.
	}

	var w wire
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&w); err != nil {
		// Retry assuming the payload was never compressed.
		var w2 wire
		if err2 := gob.NewDecoder(bytes.NewReader(raw)).Decode(&w2); err2 != nil {
			return tsdata.TimeSeriesData{}, err
		}
		w = w2
	}
	return w.toTimeSeriesData()
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := enc.Write(raw); err != nil {
		_ = enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(raw []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}

func isNotExist(err error) bool {
	return os.IsNotExist(err)
}
