package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction distinguishes a credit from a debit entry.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// LedgerEntry is a single append-only ledger record tied to one transaction.
// Entries are never mutated after creation.
type LedgerEntry struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Direction     Direction       `json:"direction"`
	Description   string          `json:"description,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
