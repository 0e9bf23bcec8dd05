package expiry

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/offlinepay/relay/internal/bus"
	"github.com/offlinepay/relay/internal/models"
	"github.com/offlinepay/relay/internal/models/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTransaction(id string) models.Transaction {
	return models.Transaction{
		ID:        id,
		Amount:    decimal.RequireFromString("50.00"),
		Sender:    "alice",
		Recipient: "bob",
		CreatedAt: time.Now().UTC(),
	}
}

// expiredCounter records payload_expired events per transaction id.
type expiredCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newExpiredCounter(b *bus.Bus) *expiredCounter {
	c := &expiredCounter{counts: make(map[string]int)}
	b.Subscribe(events.PayloadExpired, func(ev events.PaymentEvent) {
		c.mu.Lock()
		c.counts[ev.TransactionID]++
		c.mu.Unlock()
	})
	return c
}

func (c *expiredCounter) count(txID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[txID]
}

func TestExpiresExactlyOnce(t *testing.T) {
	b := bus.New(testLogger(), nil)
	counter := newExpiredCounter(b)
	s := NewSupervisor(testLogger(), b, 100*time.Millisecond, WithTickInterval(10*time.Millisecond))

	s.Arm(testTransaction("t1"))

	require.Eventually(t, func() bool {
		return s.State() == StateExpired
	}, time.Second, 10*time.Millisecond)

	// Let any stray tick fire before asserting the count.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, counter.count("t1"))
}

func TestCompletionWinsRaceAgainstCountdown(t *testing.T) {
	b := bus.New(testLogger(), nil)
	counter := newExpiredCounter(b)
	s := NewSupervisor(testLogger(), b, 200*time.Millisecond, WithTickInterval(10*time.Millisecond))

	tx := testTransaction("t1")
	s.Arm(tx)

	// Event arrives well inside the window.
	time.Sleep(30 * time.Millisecond)
	b.Publish(events.PaymentReceived, events.FromTransaction(events.PaymentReceived, tx))

	require.Equal(t, StateCompleted, s.State())

	// The countdown must not fire expired afterwards.
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, StateCompleted, s.State())
	require.Equal(t, 0, counter.count("t1"))
}

func TestMismatchedEventDoesNotComplete(t *testing.T) {
	b := bus.New(testLogger(), nil)
	s := NewSupervisor(testLogger(), b, 100*time.Millisecond, WithTickInterval(10*time.Millisecond))

	s.Arm(testTransaction("t1"))
	b.Publish(events.PaymentReceived, events.FromTransaction(events.PaymentReceived, testTransaction("other")))

	require.Equal(t, StateArmed, s.State())
	require.Eventually(t, func() bool {
		return s.State() == StateExpired
	}, time.Second, 10*time.Millisecond)
}

func TestRearmingCancelsPriorCountdown(t *testing.T) {
	b := bus.New(testLogger(), nil)
	counter := newExpiredCounter(b)
	s := NewSupervisor(testLogger(), b, 100*time.Millisecond, WithTickInterval(10*time.Millisecond))

	s.Arm(testTransaction("t1"))
	s.Arm(testTransaction("t2"))

	require.Eventually(t, func() bool {
		return s.State() == StateExpired
	}, time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, counter.count("t1"), "cancelled countdown must not expire")
	require.Equal(t, 1, counter.count("t2"))
}

func TestCancelIsIdempotent(t *testing.T) {
	b := bus.New(testLogger(), nil)
	counter := newExpiredCounter(b)
	s := NewSupervisor(testLogger(), b, 100*time.Millisecond, WithTickInterval(10*time.Millisecond))

	require.NotPanics(t, s.Cancel) // nothing armed yet

	s.Arm(testTransaction("t1"))
	s.Cancel()
	s.Cancel()

	time.Sleep(200 * time.Millisecond)
	require.Equal(t, StateCompleted, s.State())
	require.Equal(t, 0, counter.count("t1"))
}

func TestRemainingCountsDown(t *testing.T) {
	b := bus.New(testLogger(), nil)
	s := NewSupervisor(testLogger(), b, 300*time.Millisecond, WithTickInterval(10*time.Millisecond))

	require.Equal(t, time.Duration(0), s.Remaining())
	s.Arm(testTransaction("t1"))
	start := s.Remaining()
	require.True(t, start > 0)

	time.Sleep(100 * time.Millisecond)
	require.True(t, s.Remaining() < start)
	s.Cancel()
}
