package interfaces

import (
	"context"

	"github.com/offlinepay/relay/internal/models"
)

// RemoteLedger is the remote-sync collaborator. Submit must be idempotent on
// the transaction id: submitting the same transaction twice must not
// double-credit remotely.
type RemoteLedger interface {
	Submit(ctx context.Context, tx models.Transaction) error
}
