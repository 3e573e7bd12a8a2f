package identity

import (
	"context"
	"sync"
)

// MemoryStore is an in-process token store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byToken map[string]Token
	byID    map[string]string // id -> token string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byToken: make(map[string]Token),
		byID:    make(map[string]string),
	}
}

// GetByToken implements Store.
func (s *MemoryStore) GetByToken(ctx context.Context, token string) (Token, error) {
	const op = "identity.GetByToken"
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}

	s.mu.RLock()
	t, ok := s.byToken[token]
	s.mu.RUnlock()
	if !ok {
		return Token{}, tokenNotFound(op)
	}
	return t.Clone(), nil
}

// ApplyTransition implements Store.
func (s *MemoryStore) ApplyTransition(ctx context.Context, tr StatusTransition) error {
	const op = "identity.ApplyTransition"
	if err := ctx.Err(); err != nil {
		return err
	}
	if tr.TokenID == "" || tr.To == "" {
		return invalid(op, "token id and target status are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byID[tr.TokenID]
	if !ok {
		return nil
	}
	t := s.byToken[key]
	if t.Status != tr.From {
		return nil
	}
	t.Status = tr.To
	t.UpdatedAt = tr.At.UTC()
	s.byToken[key] = t
	return nil
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, in CreateTokenInput) (Token, error) {
	const op = "identity.Create"
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}

	in, err := normalizeCreate(op, in)
	if err != nil {
		return Token{}, err
	}
	id, err := NewULID(in.Now)
	if err != nil {
		return Token{}, err
	}
	t := tokenFromInput(id, in)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byToken[t.Token]; exists {
		return Token{}, ConflictError{Op: op, Field: "token"}
	}
	s.byToken[t.Token] = t.Clone()
	s.byID[t.ID] = t.Token
	return t, nil
}
