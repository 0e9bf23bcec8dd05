// Package memory provides an in-memory Store implementation, thread-safe for
// concurrent pipelines and handy for tests and demos.
package memory

import (
	"context"
	"sync"

	"github.com/offlinepay/relay/internal/interfaces"
	"github.com/offlinepay/relay/internal/models"
)

type Store struct {
	mu           sync.Mutex
	transactions map[string]models.Transaction
	entries      []models.LedgerEntry
}

var _ interfaces.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		transactions: make(map[string]models.Transaction),
		entries:      make([]models.LedgerEntry, 0),
	}
}

func (s *Store) PutTransaction(ctx context.Context, tx models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[tx.ID] = tx
	return nil
}

func (s *Store) AppendEntry(ctx context.Context, entry models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// CommitTransaction writes the transaction and its entry under one lock hold,
// so no reader ever observes one without the other.
func (s *Store) CommitTransaction(ctx context.Context, tx models.Transaction, entry models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[tx.ID] = tx
	s.entries = append(s.entries, entry)
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return models.Transaction{}, interfaces.ErrNotFound
	}
	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]models.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		list = append(list, tx)
	}
	return list, nil
}

func (s *Store) ListEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]models.LedgerEntry, len(s.entries))
	copy(copied, s.entries)
	return copied, nil
}

func (s *Store) GetEntriesByTransaction(ctx context.Context, txID string) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.LedgerEntry
	for _, entry := range s.entries {
		if entry.TransactionID == txID {
			result = append(result, entry)
		}
	}
	return result, nil
}
