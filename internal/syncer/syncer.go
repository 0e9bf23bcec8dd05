// Package syncer decides whether a committed transaction is reconciled with
// the remote ledger right away or left pending for later.
package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/offlinepay/relay/internal/interfaces"
	"github.com/offlinepay/relay/internal/models"
	"github.com/offlinepay/relay/internal/netstate"
)

// ShouldSync is the sync policy: a pure function of the network state at the
// moment of commit. Reachable means attempt the sync as part of the pipeline;
// unreachable means skip it and leave the transaction pending.
func ShouldSync(state models.NetworkState) bool {
	return state.Reachable
}

// Syncer submits committed transactions to the remote ledger. A failed submit
// is non-fatal: the local commit stands and the transaction stays pending for
// an external reconciler to pick up later.
type Syncer struct {
	logger  *slog.Logger
	remote  interfaces.RemoteLedger
	monitor *netstate.Monitor
}

func New(logger *slog.Logger, remote interfaces.RemoteLedger, monitor *netstate.Monitor) *Syncer {
	return &Syncer{logger: logger, remote: remote, monitor: monitor}
}

// Sync submits tx and returns the status the stored record should carry:
// synced on success, pending when the submit fails (deferred).
func (s *Syncer) Sync(ctx context.Context, tx models.Transaction) models.Status {
	if err := s.remote.Submit(ctx, tx); err != nil {
		s.logger.Warn("remote sync deferred",
			"transaction_id", tx.ID,
			"error", err,
		)
		return models.StatusPending
	}
	s.monitor.MarkSynced(time.Now().UTC())
	return models.StatusSynced
}
