package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fintrack/internal/core"
	ports "fintrack/internal/sheets"
)

// Store keeps exported transactions in memory, one row per ID.
type Store struct {
	mu    sync.Mutex
	rows  map[int64]core.Transaction
	order []int64
	// exports counts every Export call that succeeded, including re-exports.
	exports int
}

var _ ports.TransactionExporter = (*Store)(nil)

func New() *Store {
	return &Store{rows: make(map[int64]core.Transaction)}
}

// Export stores t, replacing an earlier copy with the same ID.
func (s *Store) Export(_ context.Context, t core.Transaction) (string, error) {
	if t.ID <= 0 {
		return "", errors.New("transaction has no ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[t.ID]; !ok {
		s.order = append(s.order, t.ID)
	}
	s.rows[t.ID] = t
	s.exports++
	return fmt.Sprintf("mem:%d", t.ID), nil
}

// Get returns the stored copy of a transaction.
func (s *Store) Get(id int64) (core.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[id]
	return t, ok
}

// Rows returns the stored transactions in first-export order.
func (s *Store) Rows() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.rows[id])
	}
	return out
}

func (s *Store) Exports() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exports
}
