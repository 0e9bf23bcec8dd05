package models

import "crypto/ed25519"

// QRPayload is the self-contained unit transported between sender and receiver,
// typically rendered as a QR image and read back as text. It carries everything
// a receiver needs to attempt verification; no external lookup is required.
type QRPayload struct {
	Transaction Transaction       `json:"transaction"`
	PublicKey   ed25519.PublicKey `json:"public_key"`
}
