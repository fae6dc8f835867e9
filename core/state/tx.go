package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"escrowledger/storage"
)

// ErrTxClosed is returned when a transaction is used after Commit or Discard.
var ErrTxClosed = errors.New("state: transaction closed")

// Tx buffers writes on top of a database so a whole operation is applied
// atomically on Commit or dropped entirely on Discard. Reads observe the
// transaction's own pending writes first.
//
// Tx is not safe for concurrent use; the host serialises transactions.
type Tx struct {
	mu      sync.Mutex
	db      storage.Database
	pending map[string][]byte
	closed  bool
}

// Begin opens a transaction against db.
func Begin(db storage.Database) *Tx {
	return &Tx{db: db, pending: make(map[string][]byte)}
}

// Get returns the value for key, or nil when it is absent.
func (tx *Tx) Get(key []byte) ([]byte, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return nil, ErrTxClosed
	}
	if value, ok := tx.pending[string(key)]; ok {
		return append([]byte(nil), value...), nil
	}
	value, err := tx.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Update stages value under key.
func (tx *Tx) Update(key, value []byte) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return ErrTxClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("state: key must not be empty")
	}
	tx.pending[string(key)] = append([]byte(nil), value...)
	return nil
}

// Dirty reports the number of staged keys.
func (tx *Tx) Dirty() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return len(tx.pending)
}

// Commit writes every staged key in one batch. Keys are written in sorted
// order so the batch content is deterministic.
func (tx *Tx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true
	if len(tx.pending) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tx.pending))
	for key := range tx.pending {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	batch := storage.NewBatch()
	for _, key := range keys {
		batch.Put([]byte(key), tx.pending[key])
	}
	tx.pending = nil
	return tx.db.Write(batch)
}

// Discard drops every staged write. Discarding a closed transaction is a no-op.
func (tx *Tx) Discard() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.closed = true
	tx.pending = nil
}
