// Package wal implements a segmented write-ahead log of key mutations with
// optional transactions. Records are CRC-checked and replayed in commit order.
package wal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrInvalidTxn is returned when committing or aborting an unknown or
// finished transaction.
var ErrInvalidTxn = errors.New("invalid or inactive transaction")

// Config holds configuration options for the WAL.
type Config struct {
	Dir           string        // Directory to store WAL segments
	SegmentSize   int64         // Maximum size of each segment file in bytes
	Sync          bool          // Whether to fsync on every flush
	BufferSize    int           // Size of the write buffer in bytes
	FlushInterval time.Duration // Interval for background flushes
	Logger        zerolog.Logger
}

// WAL represents a write-ahead log.
type WAL struct {
	writer *LogWriter
	reader *LogReader
	config *Config
	logger zerolog.Logger

	// mu orders LSN assignment with appends so log order matches LSN order
	mu       sync.Mutex
	lastLSN  uint64
	lastTxID uint64
	txns     map[uint64]*Transaction
}

// TransactionState represents the state of a transaction
type TransactionState string

const (
	// TransactionActive indicates a transaction is active
	TransactionActive TransactionState = "active"
	// TransactionCommitted indicates a transaction has been committed
	TransactionCommitted TransactionState = "committed"
	// TransactionAborted indicates a transaction has been aborted
	TransactionAborted TransactionState = "aborted"
)

// Transaction tracks an open transaction.
type Transaction struct {
	ID        uint64
	State     TransactionState
	Writes    int
	StartedAt time.Time
}

// Batch is a unit of replay: either one auto-commit record or all data
// records of one committed transaction. LSN is the position at which the
// batch took effect (the commit record's LSN for transactions).
type Batch struct {
	LSN     uint64
	TxID    uint64
	Records []*Record
}

// Open opens or creates a WAL in config.Dir and recovers its sequence
// counters from the existing segments.
func Open(config *Config) (*WAL, error) {
	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	reader, err := NewLogReader(config.Dir, config.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create log reader: %w", err)
	}

	w := &WAL{
		reader: reader,
		config: config,
		logger: config.Logger,
		txns:   make(map[uint64]*Transaction),
	}

	if err := w.recover(); err != nil {
		_ = reader.Close()
		return nil, fmt.Errorf("recovery failed: %w", err)
	}

	writer, err := NewLogWriter(config.Dir, config)
	if err != nil {
		_ = reader.Close()
		return nil, fmt.Errorf("failed to create log writer: %w", err)
	}
	w.writer = writer

	return w, nil
}

// recover scans the log to restore the highest LSN and transaction id.
// Transactions left open by a previous process can never commit, so they are
// not restored; replay ignores their records.
func (w *WAL) recover() error {
	if err := w.reader.SeekToStart(); err != nil {
		return fmt.Errorf("failed to reset reader during recovery: %w", err)
	}

	records := 0
	pending := make(map[uint64]bool)
	for {
		record, err := w.reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read record during recovery: %w", err)
		}
		records++

		if record.LSN > w.lastLSN {
			w.lastLSN = record.LSN
		}
		if record.TxID > w.lastTxID {
			w.lastTxID = record.TxID
		}

		switch record.Type {
		case RecordTypeTxnBegin:
			pending[record.TxID] = true
		case RecordTypeTxnCommit, RecordTypeTxnRollback:
			delete(pending, record.TxID)
		}
	}

	w.logger.Info().
		Int("records", records).
		Uint64("lsn", w.lastLSN).
		Uint64("txid", w.lastTxID).
		Int("abandoned_txns", len(pending)).
		Msg("Recovered WAL")

	return w.reader.SeekToStart()
}

// append assigns the next LSN to record and writes it. If flush is set the
// record is on disk when append returns.
// Caller must hold w.mu
func (w *WAL) append(record *Record, flush bool) (uint64, error) {
	record.LSN = w.lastLSN + 1
	if _, err := w.writer.Write(record); err != nil {
		return 0, err
	}
	w.lastLSN = record.LSN
	if flush {
		if err := w.writer.Flush(); err != nil {
			return 0, err
		}
	}
	return record.LSN, nil
}

// Begin starts a new transaction and returns its ID.
func (w *WAL) Begin() (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	txID := w.lastTxID + 1
	if _, err := w.append(BeginTxnRecord(txID, 0), false); err != nil {
		return 0, fmt.Errorf("failed to write begin record: %w", err)
	}
	w.lastTxID = txID
	w.txns[txID] = &Transaction{
		ID:        txID,
		State:     TransactionActive,
		StartedAt: time.Now(),
	}
	return txID, nil
}

// Put logs that key was set to value. If txID is 0 the write commits on its
// own and is flushed before Put returns; otherwise it becomes visible to
// replay only once the transaction commits.
func (w *WAL) Put(txID uint64, key, value []byte) (uint64, error) {
	return w.write(NewPutRecord(0, txID, key, value))
}

// Delete logs the removal of key, with the same transaction rules as Put.
func (w *WAL) Delete(txID uint64, key []byte) (uint64, error) {
	return w.write(NewDeleteRecord(0, txID, key))
}

func (w *WAL) write(record *Record) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var tx *Transaction
	if record.TxID != 0 {
		var ok bool
		tx, ok = w.txns[record.TxID]
		if !ok || tx.State != TransactionActive {
			return 0, ErrInvalidTxn
		}
	}

	lsn, err := w.append(record, tx == nil)
	if err != nil {
		return 0, err
	}
	if tx != nil {
		tx.Writes++
	}
	return lsn, nil
}

// Commit makes a transaction durable and returns the LSN of its commit
// record.
func (w *WAL) Commit(txID uint64) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	tx, ok := w.txns[txID]
	if !ok || tx.State != TransactionActive {
		return 0, ErrInvalidTxn
	}

	lsn, err := w.append(CommitTxnRecord(txID, 0), true)
	if err != nil {
		return 0, fmt.Errorf("failed to write commit record: %w", err)
	}

	tx.State = TransactionCommitted
	delete(w.txns, txID)
	return lsn, nil
}

// Abort rolls a transaction back.
func (w *WAL) Abort(txID uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tx, ok := w.txns[txID]
	if !ok || tx.State != TransactionActive {
		return ErrInvalidTxn
	}

	if _, err := w.append(RollbackTxnRecord(txID, 0), false); err != nil {
		return fmt.Errorf("failed to write abort record: %w", err)
	}

	tx.State = TransactionAborted
	delete(w.txns, txID)
	return nil
}

// MarkCheckpoint logs a checkpoint record and flushes it.
func (w *WAL) MarkCheckpoint() (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.append(NewCheckpointRecord(0), true)
}

// ReadBatches returns, in commit order, every batch that took effect after
// LSN after. Records of aborted or unfinished transactions are skipped.
func (w *WAL) ReadBatches(after uint64) ([]Batch, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return nil, err
	}
	if err := w.reader.SeekToStart(); err != nil {
		return nil, fmt.Errorf("failed to reset reader: %w", err)
	}
	defer w.reader.Close()

	var (
		batches []Batch
		pending = make(map[uint64][]*Record)
	)
	for {
		record, err := w.reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}

		switch record.Type {
		case RecordTypePut, RecordTypeDelete:
			if record.TxID == 0 {
				if record.LSN > after {
					batches = append(batches, Batch{LSN: record.LSN, Records: []*Record{record}})
				}
				continue
			}
			pending[record.TxID] = append(pending[record.TxID], record)

		case RecordTypeTxnCommit:
			if record.LSN > after {
				batches = append(batches, Batch{
					LSN:     record.LSN,
					TxID:    record.TxID,
					Records: pending[record.TxID],
				})
			}
			delete(pending, record.TxID)

		case RecordTypeTxnRollback:
			delete(pending, record.TxID)
		}
	}

	return batches, nil
}

// ReadAll returns every committed data record in commit order.
func (w *WAL) ReadAll() ([]*Record, error) {
	batches, err := w.ReadBatches(0)
	if err != nil {
		return nil, err
	}

	var records []*Record
	for _, b := range batches {
		records = append(records, b.Records...)
	}
	return records, nil
}

// LastLSN returns the LSN of the most recent record.
func (w *WAL) LastLSN() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastLSN
}

// ActiveTxns returns the number of open transactions.
func (w *WAL) ActiveTxns() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.txns)
}

// Sync flushes any buffered data and fsyncs the active segment, even when
// the WAL was opened without Config.Sync.
func (w *WAL) Sync() error {
	return w.writer.Sync()
}

// Close closes the WAL and releases any resources.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	err := w.writer.Close()
	if err2 := w.reader.Close(); err == nil {
		err = err2
	}
	return err
}
