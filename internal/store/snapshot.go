package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/kumarlokesh/cow-trie/internal/trie"
)

// Snapshot file layout: [lsn: 8 bytes][crc32 of payload: 4 bytes][encoded trie]
const (
	snapshotFile       = "snapshot.cow"
	snapshotHeaderSize = 12
)

// ErrCorruptSnapshot is returned when the snapshot file fails verification.
var ErrCorruptSnapshot = errors.New("corrupt snapshot file")

func (s *Store) snapshotPath() string {
	return filepath.Join(s.dir, snapshotFile)
}

// Checkpoint writes the current version to the snapshot file so the next
// Open only replays the WAL written after it. It returns the LSN covered.
func (s *Store) Checkpoint() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	cur := s.current.Load()
	payload, err := trie.Encode(cur.Trie)
	if err != nil {
		return 0, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := writeSnapshot(s.snapshotPath(), cur.LSN, payload); err != nil {
		return 0, err
	}
	if _, err := s.wal.MarkCheckpoint(); err != nil {
		return 0, fmt.Errorf("failed to log checkpoint: %w", err)
	}

	s.logger.Info().Uint64("lsn", cur.LSN).Uint64("version", cur.ID).Int("bytes", len(payload)).Msg("Wrote checkpoint")
	return cur.LSN, nil
}

// writeSnapshot atomically replaces the snapshot at path
func writeSnapshot(path string, lsn uint64, payload []byte) error {
	buf := make([]byte, snapshotHeaderSize+len(payload))
	binary.BigEndian.PutUint64(buf[0:8], lsn)
	binary.BigEndian.PutUint32(buf[8:12], crc32.ChecksumIEEE(payload))
	copy(buf[snapshotHeaderSize:], payload)

	tmp, err := os.CreateTemp(filepath.Dir(path), snapshotFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to install snapshot: %w", err)
	}
	return nil
}

// readSnapshot loads the snapshot at path. A missing file is the empty trie
// at LSN 0.
func readSnapshot(path string) (trie.Trie, uint64, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return trie.New(), 0, nil
	}
	if err != nil {
		return trie.Trie{}, 0, fmt.Errorf("failed to read snapshot: %w", err)
	}

	if len(data) < snapshotHeaderSize {
		return trie.Trie{}, 0, fmt.Errorf("%w: short header", ErrCorruptSnapshot)
	}
	lsn := binary.BigEndian.Uint64(data[0:8])
	payload := data[snapshotHeaderSize:]
	if crc32.ChecksumIEEE(payload) != binary.BigEndian.Uint32(data[8:12]) {
		return trie.Trie{}, 0, fmt.Errorf("%w: checksum mismatch", ErrCorruptSnapshot)
	}

	t, err := trie.Decode(payload)
	if err != nil {
		return trie.Trie{}, 0, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return t, lsn, nil
}
