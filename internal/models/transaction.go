package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status tracks how far a transaction has progressed on the receiving side.
type Status string

const (
	// StatusPending means the transaction is committed locally but not yet
	// reconciled with the remote ledger.
	StatusPending Status = "pending"
	// StatusVerified means the signature check passed and the transaction is
	// committed locally.
	StatusVerified Status = "verified"
	// StatusSynced means the remote ledger has acknowledged the transaction.
	StatusSynced Status = "synced"
)

// Transaction represents a single offline payment from a sender to a recipient.
// The signature, once set, covers the canonical field set (id, amount, sender,
// recipient, creation time, description); mutating any of those fields after
// signing yields a different transaction as far as verification is concerned.
type Transaction struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Sender      string          `json:"sender"`
	Recipient   string          `json:"recipient"`
	CreatedAt   time.Time       `json:"created_at"`
	Description string          `json:"description,omitempty"`
	Status      Status          `json:"status"`
	Signature   []byte          `json:"signature,omitempty"`
}
