// Package store is a durable, multi-version key-value store built on the
// persistent trie. Every committed write publishes a new immutable Version;
// readers load the current version with a single atomic read and never block.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kumarlokesh/cow-trie/internal/trie"
	"github.com/kumarlokesh/cow-trie/internal/wal"
)

var (
	// ErrKeyNotFound is returned when a key has no value in the version read.
	ErrKeyNotFound = errors.New("key not found")
	// ErrConflict is returned when a transaction lost a write-write race.
	ErrConflict = errors.New("transaction conflict")
	// ErrTxnDone is returned when using a committed or rolled back transaction.
	ErrTxnDone = errors.New("transaction already finished")
	// ErrClosed is returned when writing to a closed store.
	ErrClosed = errors.New("store is closed")
)

// Config holds configuration options for the store.
type Config struct {
	Dir         string // Directory holding the snapshot and the WAL
	MaxVersions int    // Number of superseded versions kept for Version lookups
	WAL         wal.Config
	Logger      zerolog.Logger
}

// Version is one immutable state of the store.
type Version struct {
	ID        uint64    // Monotonic within one process
	LSN       uint64    // WAL position this version reflects
	Trie      trie.Trie // Keys map to []byte values
	CreatedAt time.Time
}

// Get returns the value of key in this version.
func (v *Version) Get(key string) ([]byte, error) {
	val, ok := trie.Get[[]byte](v.Trie, key)
	if !ok {
		return nil, ErrKeyNotFound
	}
	return cloneBytes(*val), nil
}

// Scan calls fn for each key under prefix in ascending order until fn
// returns false. The value slices are shared with the version and must not
// be modified.
func (v *Version) Scan(prefix string, fn func(key string, value []byte) bool) {
	v.Trie.Walk(prefix, func(key string, value any) bool {
		return fn(key, *value.(*[]byte))
	})
}

// Store is a versioned key-value store.
type Store struct {
	dir    string
	logger zerolog.Logger
	wal    *wal.WAL

	current atomic.Pointer[Version]

	// mu serializes writers
	mu     sync.Mutex
	nextID uint64
	closed bool

	histMu      sync.RWMutex
	history     []*Version // superseded versions, oldest first
	maxVersions int
}

// Open opens the store in config.Dir, loading the latest snapshot and
// replaying the WAL written after it.
func Open(config Config) (*Store, error) {
	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &Store{
		dir:         config.Dir,
		logger:      config.Logger.With().Str("component", "store").Logger(),
		maxVersions: config.MaxVersions,
	}

	base, lsn, err := readSnapshot(s.snapshotPath())
	if err != nil {
		return nil, err
	}

	walConfig := config.WAL
	walConfig.Dir = filepath.Join(config.Dir, "wal")
	walConfig.Logger = config.Logger
	w, err := wal.Open(&walConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL: %w", err)
	}
	s.wal = w

	batches, err := w.ReadBatches(lsn)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to replay WAL: %w", err)
	}
	for _, b := range batches {
		base = applyRecords(base, b.Records)
		lsn = b.LSN
	}

	s.publish(base, lsn)
	s.logger.Info().
		Str("path", config.Dir).
		Uint64("lsn", lsn).
		Int("replayed", len(batches)).
		Int("keys", base.Len()).
		Msg("Opened store")

	return s, nil
}

// applyRecords applies logged mutations to t
func applyRecords(t trie.Trie, records []*wal.Record) trie.Trie {
	for _, r := range records {
		switch r.Type {
		case wal.RecordTypePut:
			t = trie.Put(t, string(r.Key), r.Value)
		case wal.RecordTypeDelete:
			t = t.Remove(string(r.Key))
		}
	}
	return t
}

// publish installs t as the current version and retires the previous one
// into the history. Callers other than Open must hold s.mu.
func (s *Store) publish(t trie.Trie, lsn uint64) *Version {
	s.nextID++
	v := &Version{
		ID:        s.nextID,
		LSN:       lsn,
		Trie:      t,
		CreatedAt: time.Now(),
	}

	prev := s.current.Swap(v)
	if prev != nil && s.maxVersions > 0 {
		s.histMu.Lock()
		s.history = append(s.history, prev)
		if len(s.history) > s.maxVersions {
			// drop references so old nodes can be collected
			n := len(s.history) - s.maxVersions
			clear(s.history[:n])
			s.history = s.history[n:]
		}
		s.histMu.Unlock()
	}

	s.logger.Debug().Uint64("version", v.ID).Uint64("lsn", lsn).Msg("Published version")
	return v
}

// Snapshot returns the current version. It stays readable no matter what
// is written afterwards.
func (s *Store) Snapshot() *Version {
	return s.current.Load()
}

// Version returns a retained version by id.
func (s *Store) Version(id uint64) (*Version, bool) {
	if cur := s.current.Load(); cur.ID == id {
		return cur, true
	}

	s.histMu.RLock()
	defer s.histMu.RUnlock()
	for _, v := range s.history {
		if v.ID == id {
			return v, true
		}
	}
	return nil, false
}

// Versions returns the ids of all retained versions, oldest first.
func (s *Store) Versions() []uint64 {
	s.histMu.RLock()
	ids := make([]uint64, 0, len(s.history)+1)
	for _, v := range s.history {
		ids = append(ids, v.ID)
	}
	s.histMu.RUnlock()
	return append(ids, s.current.Load().ID)
}

// Get reads key from the current version.
func (s *Store) Get(key string) ([]byte, error) {
	return s.Snapshot().Get(key)
}

// Scan iterates the current version.
func (s *Store) Scan(prefix string, fn func(key string, value []byte) bool) {
	s.Snapshot().Scan(prefix, fn)
}

// Put sets key to value and returns the version that contains the write.
func (s *Store) Put(key string, value []byte) (*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	lsn, err := s.wal.Put(0, []byte(key), value)
	if err != nil {
		return nil, fmt.Errorf("failed to log put: %w", err)
	}

	cur := s.current.Load()
	return s.publish(trie.Put(cur.Trie, key, cloneBytes(value)), lsn), nil
}

// Delete removes key. Deleting an absent key writes nothing and returns the
// current version.
func (s *Store) Delete(key string) (*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	cur := s.current.Load()
	if _, ok := cur.Trie.Lookup(key); !ok {
		return cur, nil
	}

	lsn, err := s.wal.Delete(0, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to log delete: %w", err)
	}
	return s.publish(cur.Trie.Remove(key), lsn), nil
}

// LogRecords returns every committed WAL record in commit order, including
// those already covered by a checkpoint.
func (s *Store) LogRecords() ([]*wal.Record, error) {
	return s.wal.ReadAll()
}

// Close flushes and closes the WAL. Versions already handed out remain
// readable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.wal.Close()
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
