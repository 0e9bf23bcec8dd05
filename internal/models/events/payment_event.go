package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/offlinepay/relay/internal/models"
)

// Kind tags a payment event.
type Kind string

const (
	PaymentSent     Kind = "payment_sent"
	PaymentReceived Kind = "payment_received"
	PayloadExpired  Kind = "payload_expired"
)

// PaymentEvent is an immutable, ephemeral notification about one transaction.
// Events carry no ordering guarantee relative to events of a different kind,
// and the cross-context path may duplicate them, so subscribers must be
// idempotent with respect to a given transaction id.
type PaymentEvent struct {
	Kind          Kind            `json:"kind"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Sender        string          `json:"sender"`
	Recipient     string          `json:"recipient"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// FromTransaction builds an event of the given kind for a transaction.
func FromTransaction(kind Kind, tx models.Transaction) PaymentEvent {
	return PaymentEvent{
		Kind:          kind,
		TransactionID: tx.ID,
		Amount:        tx.Amount,
		Sender:        tx.Sender,
		Recipient:     tx.Recipient,
		OccurredAt:    time.Now().UTC(),
	}
}
