package wal

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"math"
)

// RecordType represents the type of a log record.
type RecordType byte

const (
	// RecordTypePut stores a value under a key.
	RecordTypePut RecordType = iota + 1
	// RecordTypeDelete removes a key.
	RecordTypeDelete
	// RecordTypeCheckpoint marks a snapshot of the state at its LSN.
	RecordTypeCheckpoint
	// RecordTypeTxnBegin marks the beginning of a transaction
	RecordTypeTxnBegin
	// RecordTypeTxnCommit marks the successful end of a transaction
	RecordTypeTxnCommit
	// RecordTypeTxnRollback marks the unsuccessful end of a transaction
	RecordTypeTxnRollback
)

// String returns a short name for the record type.
func (t RecordType) String() string {
	switch t {
	case RecordTypePut:
		return "put"
	case RecordTypeDelete:
		return "delete"
	case RecordTypeCheckpoint:
		return "checkpoint"
	case RecordTypeTxnBegin:
		return "begin"
	case RecordTypeTxnCommit:
		return "commit"
	case RecordTypeTxnRollback:
		return "rollback"
	default:
		return "unknown"
	}
}

const (
	// HeaderSize is the size of the record header in bytes.
	// LSN (8) + TxID (8) + Type (1) + Flags (1) + KeyLen (2) + ValueLen (2) + Checksum (4) = 26 bytes
	HeaderSize = 26
	// MaxKeySize and MaxValueSize bound what fits the 2-byte length fields.
	MaxKeySize   = math.MaxUint16
	MaxValueSize = math.MaxUint16
)

var (
	// ErrChecksumMismatch is returned when a record fails CRC verification.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrRecordTooLarge is returned when a key or value exceeds the length fields.
	ErrRecordTooLarge = errors.New("key or value too large for a log record")
)

// Header represents the header of a log record.
type Header struct {
	LSN      uint64     // Log Sequence Number (8 bytes)
	TxID     uint64     // Transaction ID (8 bytes), 0 for auto-commit records
	Type     RecordType // Record type (1 byte)
	Flags    byte       // Flags (1 byte)
	KeyLen   uint16     // Length of the key (2 bytes)
	ValueLen uint16     // Length of the value (2 bytes)
	Checksum uint32     // CRC32 checksum (4 bytes)
}

// Record represents a single log record.
type Record struct {
	Header
	Key   []byte
	Value []byte
}

// Encode encodes the record into a byte slice.
func (r *Record) Encode() ([]byte, error) {
	if len(r.Key) > MaxKeySize || len(r.Value) > MaxValueSize {
		return nil, ErrRecordTooLarge
	}

	buf := make([]byte, HeaderSize+len(r.Key)+len(r.Value))

	binary.BigEndian.PutUint64(buf[0:], r.LSN)
	binary.BigEndian.PutUint64(buf[8:], r.TxID)
	buf[16] = byte(r.Type)
	buf[17] = r.Flags
	binary.BigEndian.PutUint16(buf[18:], uint16(len(r.Key)))
	binary.BigEndian.PutUint16(buf[20:], uint16(len(r.Value)))

	copy(buf[HeaderSize:], r.Key)
	copy(buf[HeaderSize+len(r.Key):], r.Value)

	// The checksum covers the first 22 header bytes and the payload.
	r.Checksum = checksum(buf)
	binary.BigEndian.PutUint32(buf[22:], r.Checksum)

	return buf, nil
}

// Decode decodes a byte slice into a Record.
func (r *Record) Decode(data []byte) error {
	if len(data) < HeaderSize {
		return io.ErrShortBuffer
	}

	r.LSN = binary.BigEndian.Uint64(data[0:])
	r.TxID = binary.BigEndian.Uint64(data[8:])
	r.Type = RecordType(data[16])
	r.Flags = data[17]
	r.KeyLen = binary.BigEndian.Uint16(data[18:])
	r.ValueLen = binary.BigEndian.Uint16(data[20:])
	r.Checksum = binary.BigEndian.Uint32(data[22:])

	expectedLen := HeaderSize + int(r.KeyLen) + int(r.ValueLen)
	if len(data) < expectedLen {
		return io.ErrUnexpectedEOF
	}
	if checksum(data[:expectedLen]) != r.Checksum {
		return ErrChecksumMismatch
	}

	r.Key = make([]byte, r.KeyLen)
	copy(r.Key, data[HeaderSize:HeaderSize+int(r.KeyLen)])

	r.Value = make([]byte, r.ValueLen)
	copy(r.Value, data[HeaderSize+int(r.KeyLen):expectedLen])

	return nil
}

// checksum computes the CRC over an encoded record, skipping the checksum field
func checksum(encoded []byte) uint32 {
	crc := crc32.ChecksumIEEE(encoded[:22])
	return crc32.Update(crc, crc32.IEEETable, encoded[HeaderSize:])
}

// NewPutRecord creates a new put record.
func NewPutRecord(lsn, txID uint64, key, value []byte) *Record {
	return &Record{
		Header: Header{
			LSN:      lsn,
			TxID:     txID,
			Type:     RecordTypePut,
			KeyLen:   uint16(len(key)),
			ValueLen: uint16(len(value)),
		},
		Key:   key,
		Value: value,
	}
}

// NewDeleteRecord creates a new delete record.
func NewDeleteRecord(lsn, txID uint64, key []byte) *Record {
	return &Record{
		Header: Header{
			LSN:    lsn,
			TxID:   txID,
			Type:   RecordTypeDelete,
			KeyLen: uint16(len(key)),
		},
		Key: key,
	}
}

// BeginTxnRecord creates a new transaction begin record
func BeginTxnRecord(txID, lsn uint64) *Record {
	return &Record{Header: Header{LSN: lsn, TxID: txID, Type: RecordTypeTxnBegin}}
}

// CommitTxnRecord creates a new transaction commit record
func CommitTxnRecord(txID, lsn uint64) *Record {
	return &Record{Header: Header{LSN: lsn, TxID: txID, Type: RecordTypeTxnCommit}}
}

// RollbackTxnRecord creates a new transaction rollback record
func RollbackTxnRecord(txID, lsn uint64) *Record {
	return &Record{Header: Header{LSN: lsn, TxID: txID, Type: RecordTypeTxnRollback}}
}

// NewCheckpointRecord creates a new checkpoint record.
func NewCheckpointRecord(lsn uint64) *Record {
	return &Record{Header: Header{LSN: lsn, Type: RecordTypeCheckpoint}}
}
