package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrCorruptLog is returned when the log is corrupted.
	ErrCorruptLog = errors.New("log is corrupted")
)

// segment is one WAL file on disk
type segment struct {
	id   uint64
	path string
}

// listSegments returns the segment files in dir ordered by id
func listSegments(dir string) ([]segment, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*"+segmentExt))
	if err != nil {
		return nil, fmt.Errorf("failed to list segment files: %w", err)
	}

	segments := make([]segment, 0, len(files))
	for _, f := range files {
		id, err := strconv.ParseUint(strings.TrimSuffix(filepath.Base(f), segmentExt), 10, 64)
		if err != nil {
			continue
		}
		segments = append(segments, segment{id: id, path: f})
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].id < segments[j].id })
	return segments, nil
}

// LogReader reads records sequentially across all segments.
type LogReader struct {
	dir      string    // Directory containing WAL segments
	segments []segment // Segments known at the last SeekToStart
	current  int       // Current segment index
	file     *os.File  // Current segment file
	logger   zerolog.Logger
}

// NewLogReader creates a LogReader positioned at the start of the log.
func NewLogReader(dir string, logger zerolog.Logger) (*LogReader, error) {
	r := &LogReader{dir: dir, logger: logger}
	if err := r.SeekToStart(); err != nil {
		return nil, err
	}
	return r, nil
}

// Next reads the next record. It returns io.EOF after the last record. A
// record cut short at the end of a segment is a torn write from a crash and
// ends that segment; the writer always starts a fresh segment after reopening.
func (r *LogReader) Next() (*Record, error) {
	for {
		if r.file == nil {
			if r.current >= len(r.segments) {
				return nil, io.EOF
			}
			file, err := os.Open(r.segments[r.current].path)
			if err != nil {
				return nil, fmt.Errorf("failed to open segment %s: %w", r.segments[r.current].path, err)
			}
			r.file = file
		}

		record, err := r.readRecord()
		if err == nil {
			return record, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			r.logger.Warn().Str("segment", r.segments[r.current].path).Msg("Skipping torn record at end of segment")
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			// End of current segment, move on to the next one
			_ = r.file.Close()
			r.file = nil
			r.current++
			continue
		}
		return nil, err
	}
}

// readRecord reads one record from the current segment file
func (r *LogReader) readRecord() (*Record, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r.file, header); err != nil {
		return nil, err
	}

	keyLen := binary.BigEndian.Uint16(header[18:20])
	valueLen := binary.BigEndian.Uint16(header[20:22])

	buf := make([]byte, HeaderSize+int(keyLen)+int(valueLen))
	copy(buf, header)
	if _, err := io.ReadFull(r.file, buf[HeaderSize:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	record := &Record{}
	if err := record.Decode(buf); err != nil {
		return nil, fmt.Errorf("%w: segment %s: %v", ErrCorruptLog, r.segments[r.current].path, err)
	}
	return record, nil
}

// Close closes the LogReader and any open segment files.
func (r *LogReader) Close() error {
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

// SeekToStart rewinds the reader to the first segment, picking up segments
// created since the reader was opened.
func (r *LogReader) SeekToStart() error {
	if err := r.Close(); err != nil {
		return err
	}

	segments, err := listSegments(r.dir)
	if err != nil {
		return err
	}
	r.segments = segments
	r.current = 0
	return nil
}
