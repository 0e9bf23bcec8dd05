// Command relay runs a two-role demo of the offline payment relay: a sender
// mints and signs a payload, a receiver scans and verifies it, and the
// completion event travels back across the cross-context transport to cancel
// the sender's expiry countdown.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/offlinepay/relay/internal/bus"
	"github.com/offlinepay/relay/internal/config"
	"github.com/offlinepay/relay/internal/expiry"
	"github.com/offlinepay/relay/internal/generator"
	"github.com/offlinepay/relay/internal/interfaces"
	"github.com/offlinepay/relay/internal/ledger"
	"github.com/offlinepay/relay/internal/logging"
	"github.com/offlinepay/relay/internal/models"
	"github.com/offlinepay/relay/internal/netstate"
	"github.com/offlinepay/relay/internal/relay"
	kafkarelay "github.com/offlinepay/relay/internal/relay/kafka"
	"github.com/offlinepay/relay/internal/storage/memory"
	"github.com/offlinepay/relay/internal/storage/postgres"
	"github.com/offlinepay/relay/internal/syncer"
	"github.com/offlinepay/relay/internal/verify"
)

// loggingRemote stands in for the remote ledger client. It accepts every
// submission; a real deployment plugs its blockchain client in here.
type loggingRemote struct {
	logger *slog.Logger
}

func (r *loggingRemote) Submit(ctx context.Context, tx models.Transaction) error {
	r.logger.Info("remote ledger accepted transaction", "transaction_id", tx.ID)
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging)

	transport, err := buildTransport(cfg)
	if err != nil {
		logger.Error("transport setup failed", "error", err)
		os.Exit(1)
	}
	store, err := buildStore(cfg)
	if err != nil {
		logger.Error("store setup failed", "error", err)
		os.Exit(1)
	}

	// Sender and receiver each get their own bus over the shared transport,
	// standing in for two independent execution contexts.
	senderBus := bus.New(logger.With("role", "sender"), transport, bus.WithRecordHorizon(cfg.EventHorizon))
	receiverBus := bus.New(logger.With("role", "receiver"), transport, bus.WithRecordHorizon(cfg.EventHorizon))
	defer senderBus.Close()
	defer receiverBus.Close()

	// Sender role.
	_, priv, err := generator.NewSigningKey()
	if err != nil {
		logger.Error("key generation failed", "error", err)
		os.Exit(1)
	}
	supervisor := expiry.NewSupervisor(logger, senderBus, cfg.ValidityWindow,
		expiry.WithTickInterval(cfg.TickInterval))
	gen := generator.New(logger, senderBus, supervisor, priv)

	// Receiver role.
	monitor := netstate.NewMonitor(true)
	pipeline := verify.NewPipeline(verify.Config{
		Logger: logger.With("role", "receiver"),
		Bus:    receiverBus,
		Ledger: ledger.NewLedger(store),
		Net:    monitor,
		Syncer: syncer.New(logger, &loggingRemote{logger: logger}, monitor),
		Secret: cfg.Secret,
	})

	_, text, err := gen.Generate(decimal.NewFromFloat(50.00), "alice", "bob", "coffee")
	if err != nil {
		logger.Error("generate failed", "error", err)
		os.Exit(1)
	}

	pipeline.StartScanning()
	pipeline.Scan(text)
	state := pipeline.SupplyCredential(context.Background(), cfg.Secret)
	if state != verify.StateComplete {
		failure, _ := pipeline.Failure()
		logger.Error("verification failed", "state", string(state), "reason", failure.Reason)
		os.Exit(1)
	}

	// Give the completion event time to cross back to the sender's context.
	deadline := time.Now().Add(3 * time.Second)
	for supervisor.State() != expiry.StateCompleted && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	logger.Info("demo finished",
		"receiver_state", string(pipeline.State()),
		"sender_payload", supervisor.State().String(),
	)
}

func buildTransport(cfg config.Config) (interfaces.Transport, error) {
	switch {
	case len(cfg.KafkaBrokers) > 0:
		return kafkarelay.NewTransport(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case cfg.RelayDir != "":
		return relay.NewFile(cfg.RelayDir, relay.DefaultPollInterval)
	default:
		return relay.NewMemory(), nil
	}
}

func buildStore(cfg config.Config) (interfaces.Store, error) {
	if cfg.PostgresDSN != "" {
		return postgres.Open(cfg.PostgresDSN)
	}
	return memory.NewStore(), nil
}
