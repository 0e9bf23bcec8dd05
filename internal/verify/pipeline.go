// Package verify implements the receiver-side verification pipeline: decode,
// credential gate, signature check, atomic commit, network-gated sync, and
// the completion event.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/offlinepay/relay/internal/bus"
	"github.com/offlinepay/relay/internal/codec"
	"github.com/offlinepay/relay/internal/ledger"
	"github.com/offlinepay/relay/internal/models"
	"github.com/offlinepay/relay/internal/models/events"
	"github.com/offlinepay/relay/internal/netstate"
	"github.com/offlinepay/relay/internal/syncer"
)

// State of the pipeline. Complete and Error are terminal until Reset.
type State string

const (
	StateIdle               State = "idle"
	StateScanning           State = "scanning"
	StateAwaitingCredential State = "awaiting_credential"
	StateVerifying          State = "verifying"
	StateCommitting         State = "committing"
	StateSyncing            State = "syncing"
	StateComplete           State = "complete"
	StateError              State = "error"
)

// FailureCode classifies how an attempt failed.
type FailureCode string

const (
	FailureMalformedPayload  FailureCode = "malformed_payload"
	FailureInvalidCredential FailureCode = "invalid_credential"
	FailureSignatureMismatch FailureCode = "signature_mismatch"
	FailureLocalCommit       FailureCode = "local_commit_failed"
)

// Failure is the terminal error state's code plus a human-readable reason.
type Failure struct {
	Code   FailureCode
	Reason string
}

// Config wires a Pipeline's collaborators.
type Config struct {
	Logger *slog.Logger
	Bus    *bus.Bus
	Ledger *ledger.Ledger
	Net    *netstate.Monitor
	Syncer *syncer.Syncer
	// Secret is the shared credential the gate compares against. It stands in
	// for whatever authorization predicate the deployment really uses.
	Secret string
	// RearmScan, when set, is invoked whenever the pipeline becomes ready for
	// scan input again, so the optical-scan collaborator can resume capture.
	RearmScan func()
}

// Pipeline owns the in-flight verification of one scanned payload at a time.
// Its methods are safe for concurrent use but the design assumes a single
// logical thread of control per receiver.
type Pipeline struct {
	cfg Config

	mu       sync.Mutex
	state    State
	payload  *models.QRPayload
	failure  *Failure
	deferred bool
}

func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg, state: StateIdle}
}

// State returns the current pipeline state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Failure returns the failure behind the current error state, if any.
func (p *Pipeline) Failure() (Failure, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failure == nil {
		return Failure{}, false
	}
	return *p.failure, true
}

// SyncDeferred reports whether the last completed attempt committed locally
// but could not reach the remote ledger.
func (p *Pipeline) SyncDeferred() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deferred
}

// StartScanning arms the pipeline for scan input. Only valid from idle.
func (p *Pipeline) StartScanning() State {
	p.mu.Lock()
	if p.state == StateIdle {
		p.state = StateScanning
	}
	state := p.state
	p.mu.Unlock()

	if state == StateScanning && p.cfg.RearmScan != nil {
		p.cfg.RearmScan()
	}
	return state
}

// Scan feeds decoded text from the optical-scan collaborator into the
// pipeline. Empty input is ignored, as is any input arriving while the
// pipeline is not in the scanning state.
func (p *Pipeline) Scan(text string) State {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateScanning || text == "" {
		return p.state
	}

	payload, err := codec.Decode(text)
	if err != nil {
		reason := "payload is not well-formed"
		if codec.IsMissingField(err) {
			reason = "payload is missing required fields"
		}
		p.failLocked(FailureMalformedPayload, fmt.Sprintf("%s: %v", reason, err))
		return p.state
	}

	p.payload = &payload
	p.state = StateAwaitingCredential
	return p.state
}

// SupplyCredential resumes the pipeline with the external credential. Valid
// from awaiting_credential, and from an invalid-credential error so the same
// payload can be retried without a rescan.
func (p *Pipeline) SupplyCredential(ctx context.Context, secret string) State {
	p.mu.Lock()
	retryable := p.state == StateError && p.failure != nil && p.failure.Code == FailureInvalidCredential
	if p.state != StateAwaitingCredential && !retryable {
		state := p.state
		p.mu.Unlock()
		return state
	}

	if secret != p.cfg.Secret {
		p.failLocked(FailureInvalidCredential, "invalid credential")
		state := p.state
		p.mu.Unlock()
		return state
	}

	p.failure = nil
	p.state = StateVerifying
	payload := *p.payload
	p.mu.Unlock()

	return p.run(ctx, payload)
}

// run drives verifying through complete on the caller's goroutine.
func (p *Pipeline) run(ctx context.Context, payload models.QRPayload) State {
	tx := payload.Transaction

	if !codec.Verify(tx, tx.Signature, payload.PublicKey) {
		p.fail(FailureSignatureMismatch, "signature invalid, payload possibly tampered")
		return p.State()
	}

	p.setState(StateCommitting)
	tx.Status = models.StatusVerified
	entry, err := p.cfg.Ledger.Commit(ctx, tx)
	if err != nil {
		p.fail(FailureLocalCommit, fmt.Sprintf("local commit failed: %v", err))
		return p.State()
	}
	p.cfg.Logger.Info("transaction committed",
		"transaction_id", tx.ID,
		"amount", entry.Amount.String(),
	)

	status := models.StatusPending
	deferred := false
	if syncer.ShouldSync(p.cfg.Net.Snapshot()) {
		p.setState(StateSyncing)
		status = p.cfg.Syncer.Sync(ctx, tx)
		deferred = status != models.StatusSynced
	}
	if status != tx.Status {
		// A failed status update never unwinds the commit; the record just
		// keeps its committed status until a reconciler revisits it.
		if err := p.cfg.Ledger.MarkStatus(ctx, tx.ID, status); err != nil {
			p.cfg.Logger.Warn("status update failed", "transaction_id", tx.ID, "error", err)
		}
	}

	p.mu.Lock()
	p.deferred = deferred
	p.state = StateComplete
	p.mu.Unlock()

	p.cfg.Bus.Publish(events.PaymentReceived, events.FromTransaction(events.PaymentReceived, tx))
	return StateComplete
}

// Reset returns a terminal pipeline to idle and re-arms the scan source.
func (p *Pipeline) Reset() State {
	p.mu.Lock()
	if p.state != StateComplete && p.state != StateError {
		state := p.state
		p.mu.Unlock()
		return state
	}
	p.state = StateIdle
	p.payload = nil
	p.failure = nil
	p.deferred = false
	p.mu.Unlock()

	if p.cfg.RearmScan != nil {
		p.cfg.RearmScan()
	}
	return StateIdle
}

func (p *Pipeline) setState(state State) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

func (p *Pipeline) fail(code FailureCode, reason string) {
	p.mu.Lock()
	p.failLocked(code, reason)
	p.mu.Unlock()
}

func (p *Pipeline) failLocked(code FailureCode, reason string) {
	p.state = StateError
	p.failure = &Failure{Code: code, Reason: reason}
	p.cfg.Logger.Warn("verification failed", "code", string(code), "reason", reason)
}
