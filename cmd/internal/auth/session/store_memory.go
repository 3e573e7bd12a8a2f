package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process session store for development and tests.
// A single mutex serializes admissions and sweeps.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]Row
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Row)}
}

// Admit implements Store. Writes are staged and applied only when fn succeeds.
func (s *MemoryStore) Admit(ctx context.Context, userID string, fn func(tx AdmissionTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s, staged: make(map[string]Row)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for fp, row := range tx.staged {
		s.rows[fp] = row
	}
	return nil
}

// DeleteExpired implements Store.
func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for fp, row := range s.rows {
		if row.ExpiresAt.Before(now) {
			delete(s.rows, fp)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored rows, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type memoryTx struct {
	store  *MemoryStore
	staged map[string]Row
}

func (tx *memoryTx) lookup(fp string) (Row, bool) {
	if row, ok := tx.staged[fp]; ok {
		return row, true
	}
	row, ok := tx.store.rows[fp]
	return row, ok
}

func (tx *memoryTx) Get(ctx context.Context, fingerprint string) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	row, ok := tx.lookup(fingerprint)
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	return row, nil
}

func (tx *memoryTx) CountActive(ctx context.Context, userID, excludeFingerprint string, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n := 0
	for fp, row := range tx.store.rows {
		if _, shadowed := tx.staged[fp]; shadowed {
			continue
		}
		if fp != excludeFingerprint && row.UserID == userID && row.Live(now) {
			n++
		}
	}
	for fp, row := range tx.staged {
		if fp != excludeFingerprint && row.UserID == userID && row.Live(now) {
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) Upsert(ctx context.Context, row Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.staged[row.Fingerprint] = row
	return nil
}

func (tx *memoryTx) Extend(ctx context.Context, fingerprint string, checkedAt, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row, ok := tx.lookup(fingerprint)
	if !ok {
		return ErrSessionNotFound
	}
	row.LastCheckedAt = checkedAt
	row.ExpiresAt = expiresAt
	tx.staged[fingerprint] = row
	return nil
}
