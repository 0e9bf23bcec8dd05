package interfaces

import (
	"context"
	"errors"

	"github.com/offlinepay/relay/internal/models"
)

// ErrNotFound is returned by GetTransaction when no record exists for the id.
var ErrNotFound = errors.New("not found")

// Store is the durable local storage collaborator. Implementations are assumed
// durable and immediately consistent for subsequent reads.
type Store interface {
	// PutTransaction inserts or replaces a transaction record.
	PutTransaction(ctx context.Context, tx models.Transaction) error
	// AppendEntry appends one ledger entry. Entries are append-only.
	AppendEntry(ctx context.Context, entry models.LedgerEntry) error
	// CommitTransaction writes the transaction record and its ledger entry
	// atomically: both become visible, or neither does.
	CommitTransaction(ctx context.Context, tx models.Transaction, entry models.LedgerEntry) error
	// GetTransaction returns the transaction with the given id, or ErrNotFound.
	GetTransaction(ctx context.Context, id string) (models.Transaction, error)
	// ListTransactions returns all stored transactions.
	ListTransactions(ctx context.Context) ([]models.Transaction, error)
	// ListEntries returns all ledger entries in append order.
	ListEntries(ctx context.Context) ([]models.LedgerEntry, error)
	// GetEntriesByTransaction returns the entries recorded for one transaction.
	GetEntriesByTransaction(ctx context.Context, txID string) ([]models.LedgerEntry, error)
}
