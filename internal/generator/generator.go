// Package generator mints the sender side of a payment: a signed transaction
// encoded into a transportable payload with a bounded validity window.
package generator

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/offlinepay/relay/internal/bus"
	"github.com/offlinepay/relay/internal/codec"
	"github.com/offlinepay/relay/internal/expiry"
	"github.com/offlinepay/relay/internal/models"
	"github.com/offlinepay/relay/internal/models/events"
)

var errAmountNotPositive = errors.New("amount must be positive")

// NewSigningKey generates a fresh ed25519 keypair for a sender.
func NewSigningKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// Generator mints, signs and encodes transactions, announces them on the bus
// and arms the expiry supervisor for each new payload. Generating a new
// payload cancels the countdown of the previous one.
type Generator struct {
	logger     *slog.Logger
	bus        *bus.Bus
	supervisor *expiry.Supervisor
	priv       ed25519.PrivateKey
	pub        ed25519.PublicKey
}

func New(logger *slog.Logger, b *bus.Bus, supervisor *expiry.Supervisor, priv ed25519.PrivateKey) *Generator {
	return &Generator{
		logger:     logger,
		bus:        b,
		supervisor: supervisor,
		priv:       priv,
		pub:        priv.Public().(ed25519.PublicKey),
	}
}

// Generate mints a signed transaction and returns the payload together with
// its encoded text form, ready to render as a QR image.
func (g *Generator) Generate(amount decimal.Decimal, sender, recipient, description string) (models.QRPayload, string, error) {
	if amount.Cmp(decimal.Zero) <= 0 {
		return models.QRPayload{}, "", errAmountNotPositive
	}

	tx := models.Transaction{
		ID:          uuid.New().String(),
		Amount:      amount,
		Sender:      sender,
		Recipient:   recipient,
		CreatedAt:   time.Now().UTC(),
		Description: description,
		Status:      models.StatusPending,
	}
	sig, err := codec.Sign(tx, g.priv)
	if err != nil {
		return models.QRPayload{}, "", err
	}
	tx.Signature = sig

	payload := models.QRPayload{Transaction: tx, PublicKey: g.pub}
	text, err := codec.Encode(payload)
	if err != nil {
		return models.QRPayload{}, "", err
	}

	g.supervisor.Arm(tx)
	g.bus.Publish(events.PaymentSent, events.FromTransaction(events.PaymentSent, tx))
	g.logger.Info("payload generated",
		"transaction_id", tx.ID,
		"amount", amount.String(),
		"recipient", recipient,
	)
	return payload, text, nil
}
