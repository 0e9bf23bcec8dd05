// Package codec builds the canonical byte representation of a transaction for
// signing and verification, and serializes the QR payload that is physically
// transported between sender and receiver.
package codec

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/offlinepay/relay/internal/models"
)

// Decode failures. ErrMalformed covers syntax-level breakage; the rest flag a
// structurally valid document missing a required field.
var (
	ErrMalformed            = errors.New("payload is not well-formed")
	ErrMissingTransaction   = errors.New("payload has no transaction")
	ErrMissingPublicKey     = errors.New("payload has no public key")
	ErrMissingTransactionID = errors.New("transaction has no id")
	ErrInvalidAmount        = errors.New("transaction amount is not a positive number")
	ErrMissingSender        = errors.New("transaction has no sender")
	ErrMissingRecipient     = errors.New("transaction has no recipient")
)

// IsMissingField reports whether err is one of the missing/invalid-field
// decode failures, as opposed to a syntax failure.
func IsMissingField(err error) bool {
	for _, target := range []error{
		ErrMissingTransaction,
		ErrMissingPublicKey,
		ErrMissingTransactionID,
		ErrInvalidAmount,
		ErrMissingSender,
		ErrMissingRecipient,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// CanonicalBytes returns the deterministic byte string the signature covers:
// id, amount, sender, recipient, creation time and description, each quoted so
// no field value can masquerade as a separator. Status and Signature are
// deliberately excluded.
func CanonicalBytes(tx models.Transaction) []byte {
	var b strings.Builder
	b.WriteString(strconv.Quote(tx.ID))
	b.WriteByte('|')
	b.WriteString(tx.Amount.String())
	b.WriteByte('|')
	b.WriteString(strconv.Quote(tx.Sender))
	b.WriteByte('|')
	b.WriteString(strconv.Quote(tx.Recipient))
	b.WriteByte('|')
	b.WriteString(tx.CreatedAt.UTC().Format(time.RFC3339Nano))
	b.WriteByte('|')
	b.WriteString(strconv.Quote(tx.Description))
	return []byte(b.String())
}

// Sign produces an ed25519 signature over the canonical field set. Ed25519
// signing is deterministic: identical inputs always yield the same signature.
func Sign(tx models.Transaction, key ed25519.PrivateKey) ([]byte, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing key has wrong size %d", len(key))
	}
	return ed25519.Sign(key, CanonicalBytes(tx)), nil
}

// Verify checks the signature against the transaction's canonical field set.
// It fails closed: a malformed signature, a wrong-size key or any tampered
// field yields false, never a panic or an error.
func Verify(tx models.Transaction, sig []byte, pub ed25519.PublicKey) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, CanonicalBytes(tx), sig)
}

// Encode serializes a payload into the text form carried by the QR image.
func Encode(p models.QRPayload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	return string(data), nil
}

// wire forms used during decode so a bad amount can be told apart from a
// syntax failure.
type wirePayload struct {
	Transaction *wireTransaction `json:"transaction"`
	PublicKey   []byte           `json:"public_key"`
}

type wireTransaction struct {
	ID          string          `json:"id"`
	Amount      json.RawMessage `json:"amount"`
	Sender      string          `json:"sender"`
	Recipient   string          `json:"recipient"`
	CreatedAt   time.Time       `json:"created_at"`
	Description string          `json:"description"`
	Status      models.Status   `json:"status"`
	Signature   []byte          `json:"signature"`
}

// Decode parses text back into a payload. Every failure mode is a tagged
// error; Decode never panics on malformed input.
func Decode(text string) (models.QRPayload, error) {
	var wire wirePayload
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return models.QRPayload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if wire.Transaction == nil {
		return models.QRPayload{}, ErrMissingTransaction
	}
	if len(wire.PublicKey) == 0 {
		return models.QRPayload{}, ErrMissingPublicKey
	}
	tx := wire.Transaction
	if strings.TrimSpace(tx.ID) == "" {
		return models.QRPayload{}, ErrMissingTransactionID
	}
	amount, err := parseAmount(tx.Amount)
	if err != nil {
		return models.QRPayload{}, err
	}
	if strings.TrimSpace(tx.Sender) == "" {
		return models.QRPayload{}, ErrMissingSender
	}
	if strings.TrimSpace(tx.Recipient) == "" {
		return models.QRPayload{}, ErrMissingRecipient
	}

	return models.QRPayload{
		Transaction: models.Transaction{
			ID:          tx.ID,
			Amount:      amount,
			Sender:      tx.Sender,
			Recipient:   tx.Recipient,
			CreatedAt:   tx.CreatedAt,
			Description: tx.Description,
			Status:      tx.Status,
			Signature:   tx.Signature,
		},
		PublicKey: ed25519.PublicKey(wire.PublicKey),
	}, nil
}

func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	s = strings.Trim(s, `"`)
	if s == "" || s == "null" {
		return decimal.Zero, fmt.Errorf("%w: amount missing", ErrInvalidAmount)
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if amount.Cmp(decimal.Zero) <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return amount, nil
}
