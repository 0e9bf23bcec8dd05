// Package ledger turns a verified transaction into durable local state: the
// transaction record plus an append-only credit entry, written atomically.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/offlinepay/relay/internal/interfaces"
	"github.com/offlinepay/relay/internal/models"
)

var errAmountNotPositive = errors.New("amount must be positive")

// Ledger coordinates commits against a Store. Appends are serialized so that
// two pipelines committing different transactions never interleave a partial
// write.
type Ledger struct {
	store interfaces.Store
	mu    sync.Mutex
}

func NewLedger(store interfaces.Store) *Ledger {
	return &Ledger{store: store}
}

// Commit persists tx and its credit entry as one atomic write and returns the
// entry. Committing a transaction id that was already committed is a no-op
// returning the existing entry, so duplicate cross-context deliveries cannot
// double-credit.
func (l *Ledger) Commit(ctx context.Context, tx models.Transaction) (models.LedgerEntry, error) {
	if tx.Amount.Cmp(decimal.Zero) <= 0 {
		return models.LedgerEntry{}, errAmountNotPositive
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.store.GetTransaction(ctx, tx.ID); err == nil {
		entries, err := l.store.GetEntriesByTransaction(ctx, tx.ID)
		if err != nil {
			return models.LedgerEntry{}, err
		}
		for _, entry := range entries {
			if entry.Direction == models.DirectionCredit {
				return entry, nil
			}
		}
		return models.LedgerEntry{}, fmt.Errorf("transaction %s exists without a credit entry", tx.ID)
	}

	entry := models.LedgerEntry{
		ID:            tx.ID + "-credit",
		TransactionID: tx.ID,
		Amount:        tx.Amount,
		Direction:     models.DirectionCredit,
		Description:   tx.Description,
		CreatedAt:     time.Now().UTC(),
	}
	if err := l.store.CommitTransaction(ctx, tx, entry); err != nil {
		return models.LedgerEntry{}, err
	}
	return entry, nil
}

// MarkStatus updates the stored status of a committed transaction.
func (l *Ledger) MarkStatus(ctx context.Context, txID string, status models.Status) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.store.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	tx.Status = status
	return l.store.PutTransaction(ctx, tx)
}

// Balance sums all ledger entries, credits positive and debits negative.
func (l *Ledger) Balance(ctx context.Context) (decimal.Decimal, error) {
	entries, err := l.store.ListEntries(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	balance := decimal.Zero
	for _, entry := range entries {
		if entry.Direction == models.DirectionDebit {
			balance = balance.Sub(entry.Amount)
			continue
		}
		balance = balance.Add(entry.Amount)
	}
	return balance, nil
}

// Entries returns every ledger entry in append order.
func (l *Ledger) Entries(ctx context.Context) ([]models.LedgerEntry, error) {
	return l.store.ListEntries(ctx)
}
