package store

import (
	"fmt"

	"github.com/kumarlokesh/cow-trie/internal/trie"
)

// Txn is a snapshot-isolated transaction. Reads see the version the
// transaction started on plus its own writes. A Txn must not be used from
// multiple goroutines at once.
type Txn struct {
	s    *Store
	id   uint64
	base *Version
	trie trie.Trie
	ops  []txnOp
	done bool
}

type txnOp struct {
	key    string
	value  []byte
	delete bool
}

// Begin starts a transaction on the current version.
func (s *Store) Begin() (*Txn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	id, err := s.wal.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	base := s.current.Load()
	s.logger.Debug().Uint64("txid", id).Uint64("version", base.ID).Msg("Began transaction")
	return &Txn{s: s, id: id, base: base, trie: base.Trie}, nil
}

// ID returns the transaction id.
func (tx *Txn) ID() uint64 {
	return tx.id
}

// Get reads key, including the transaction's own uncommitted writes.
func (tx *Txn) Get(key string) ([]byte, error) {
	if tx.done {
		return nil, ErrTxnDone
	}
	v, ok := trie.Get[[]byte](tx.trie, key)
	if !ok {
		return nil, ErrKeyNotFound
	}
	return cloneBytes(*v), nil
}

// Put sets key to value within the transaction.
func (tx *Txn) Put(key string, value []byte) error {
	if tx.done {
		return ErrTxnDone
	}
	value = cloneBytes(value)
	if _, err := tx.s.wal.Put(tx.id, []byte(key), value); err != nil {
		return fmt.Errorf("failed to log put: %w", err)
	}
	tx.trie = trie.Put(tx.trie, key, value)
	tx.ops = append(tx.ops, txnOp{key: key, value: value})
	return nil
}

// Delete removes key within the transaction. Deleting a key the
// transaction cannot see is a no-op.
func (tx *Txn) Delete(key string) error {
	if tx.done {
		return ErrTxnDone
	}
	if _, ok := tx.trie.Lookup(key); !ok {
		return nil
	}
	if _, err := tx.s.wal.Delete(tx.id, []byte(key)); err != nil {
		return fmt.Errorf("failed to log delete: %w", err)
	}
	tx.trie = tx.trie.Remove(key)
	tx.ops = append(tx.ops, txnOp{key: key, delete: true})
	return nil
}

// Commit publishes the transaction's writes as one new version. If another
// commit changed any key this transaction wrote since it began, Commit rolls
// back and returns ErrConflict. Otherwise the writes are applied on top of
// the current version.
func (tx *Txn) Commit() (*Version, error) {
	if tx.done {
		return nil, ErrTxnDone
	}
	tx.done = true

	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	cur := s.current.Load()
	if cur != tx.base {
		if key, ok := tx.conflict(cur); ok {
			if err := s.wal.Abort(tx.id); err != nil {
				return nil, fmt.Errorf("failed to roll back conflicting transaction: %w", err)
			}
			s.logger.Debug().Uint64("txid", tx.id).Str("key", key).Msg("Transaction conflict")
			return nil, fmt.Errorf("%w: key %q changed since version %d", ErrConflict, key, tx.base.ID)
		}
	}

	lsn, err := s.wal.Commit(tx.id)
	if err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	if len(tx.ops) == 0 {
		return cur, nil
	}

	next := tx.trie
	if cur != tx.base {
		// rebase onto the versions committed in the meantime
		next = cur.Trie
		for _, op := range tx.ops {
			if op.delete {
				next = next.Remove(op.key)
			} else {
				next = trie.Put(next, op.key, op.value)
			}
		}
	}

	v := s.publish(next, lsn)
	s.logger.Debug().Uint64("txid", tx.id).Uint64("version", v.ID).Int("writes", len(tx.ops)).Msg("Committed transaction")
	return v, nil
}

// conflict reports the first written key whose value in cur differs from the
// one the transaction started with. Unchanged keys share their value handle
// across versions, so identity comparison is exact.
func (tx *Txn) conflict(cur *Version) (string, bool) {
	for _, op := range tx.ops {
		before, _ := tx.base.Trie.Lookup(op.key)
		now, _ := cur.Trie.Lookup(op.key)
		if before != now {
			return op.key, true
		}
	}
	return "", false
}

// Rollback discards the transaction.
func (tx *Txn) Rollback() error {
	if tx.done {
		return ErrTxnDone
	}
	tx.done = true

	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	if tx.s.closed {
		return nil
	}
	return tx.s.wal.Abort(tx.id)
}
