package wal

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrWALClosed is returned when attempting to write to a closed WAL.
	ErrWALClosed = errors.New("WAL is closed")
)

const (
	// DefaultBufferSize is the default size of the write buffer.
	DefaultBufferSize = 4 * 1024 // 4KB
	// DefaultSegmentSize is the default size of each segment file.
	DefaultSegmentSize = 64 * 1024 * 1024 // 64MB
	// DefaultFlushInterval is the default period of the background flusher.
	DefaultFlushInterval = time.Second

	segmentExt = ".wal"
)

// LogWriter appends encoded records to the active segment.
type LogWriter struct {
	mu          sync.Mutex
	dir         string         // Directory where WAL segments are stored
	file        *os.File       // Current segment file
	segmentID   uint64         // Current segment ID
	offset      int64          // Bytes already written to the current segment
	segmentSize int64          // Maximum size of each segment file
	buf         *bytes.Buffer  // In-memory buffer for batching writes
	sync        bool           // Whether to fsync after each flush
	closed      bool           // Whether the writer is closed
	flushTicker *time.Ticker   // Ticker for periodic flushes
	stopCh      chan struct{}  // Channel to stop background flusher
	wg          sync.WaitGroup // Wait group for background flusher
	logger      zerolog.Logger
}

// NewLogWriter creates a new LogWriter that appends to a fresh segment in dir.
func NewLogWriter(dir string, config *Config) (*LogWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	bufferSize := config.BufferSize
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	segmentSize := config.SegmentSize
	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}
	flushInterval := config.FlushInterval
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}

	w := &LogWriter{
		dir:         dir,
		sync:        config.Sync,
		segmentSize: segmentSize,
		buf:         bytes.NewBuffer(make([]byte, 0, bufferSize)),
		stopCh:      make(chan struct{}),
		flushTicker: time.NewTicker(flushInterval),
		logger:      config.Logger,
	}

	if err := w.openNextSegment(); err != nil {
		w.flushTicker.Stop()
		return nil, err
	}

	w.wg.Add(1)
	go w.backgroundFlusher()

	return w, nil
}

// Write buffers a record. The record is durable after the next flush.
func (w *LogWriter) Write(record *Record) (uint64, error) {
	data, err := record.Encode()
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrWALClosed
	}

	if w.offset+int64(w.buf.Len())+int64(len(data)) > w.segmentSize && w.offset+int64(w.buf.Len()) > 0 {
		if err := w.rotateSegment(); err != nil {
			return 0, fmt.Errorf("failed to rotate segment: %w", err)
		}
	}

	if _, err := w.buf.Write(data); err != nil {
		return 0, fmt.Errorf("failed to write to buffer: %w", err)
	}

	return record.LSN, nil
}

// Flush writes any buffered data to the segment file.
func (w *LogWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWALClosed
	}
	if err := w.flushBuffer(); err != nil {
		return fmt.Errorf("flush failed: %w", err)
	}
	return nil
}

// Sync flushes the buffer and fsyncs the current segment regardless of
// Config.Sync.
func (w *LogWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWALClosed
	}
	if err := w.flushBuffer(); err != nil {
		return fmt.Errorf("flush failed: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	return nil
}

// flushBuffer writes the buffered data to disk.
// Caller must hold w.mu
func (w *LogWriter) flushBuffer() error {
	if w.buf.Len() == 0 {
		return nil
	}

	n, err := w.file.Write(w.buf.Bytes())
	w.offset += int64(n)
	if err != nil {
		return err
	}
	w.buf.Reset()

	if w.sync {
		return w.file.Sync()
	}
	return nil
}

// backgroundFlusher periodically flushes the buffer to disk.
func (w *LogWriter) backgroundFlusher() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return

		case <-w.flushTicker.C:
			if w.mu.TryLock() {
				if !w.closed {
					if err := w.flushBuffer(); err != nil {
						w.logger.Error().Err(err).Uint64("segment", w.segmentID).Msg("Background flush failed")
					}
				}
				w.mu.Unlock()
			}
		}
	}
}

// Close flushes remaining data, stops the background flusher and closes the
// current segment.
func (w *LogWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.flushTicker.Stop()
	close(w.stopCh)

	// Release the lock while the flusher exits; it may be waiting on it.
	w.mu.Unlock()
	w.wg.Wait()
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.flushBuffer(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("failed to flush buffer during close: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close segment file: %w", err)
	}
	return nil
}

// openNextSegment creates a segment numbered after the highest existing one.
func (w *LogWriter) openNextSegment() error {
	segments, err := listSegments(w.dir)
	if err != nil {
		return err
	}

	var segmentID uint64 = 1
	if len(segments) > 0 {
		segmentID = segments[len(segments)-1].id + 1
	}
	return w.openSegment(segmentID)
}

// openSegment opens the segment file with the given id for appending
func (w *LogWriter) openSegment(id uint64) error {
	filename := segmentPath(w.dir, id)
	file, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		_ = file.Close()
		return err
	}

	w.file = file
	w.segmentID = id
	w.offset = offset
	w.logger.Debug().Uint64("segment", id).Str("path", filename).Msg("Opened WAL segment")
	return nil
}

// rotateSegment flushes and closes the current segment and opens the next one.
// Caller must hold w.mu
func (w *LogWriter) rotateSegment() error {
	if err := w.flushBuffer(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	return w.openSegment(w.segmentID + 1)
}

// segmentPath returns the file name of segment id in dir
func segmentPath(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%020d%s", id, segmentExt))
}
