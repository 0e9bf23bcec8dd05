package bus

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/offlinepay/relay/internal/models/events"
	"github.com/offlinepay/relay/internal/relay"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent(txID string) events.PaymentEvent {
	return events.PaymentEvent{
		Kind:          events.PaymentReceived,
		TransactionID: txID,
		Amount:        decimal.RequireFromString("50.00"),
		Sender:        "alice",
		Recipient:     "bob",
		OccurredAt:    time.Now().UTC(),
	}
}

func TestPublishInRegistrationOrder(t *testing.T) {
	b := New(testLogger(), nil)
	defer b.Close()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		b.Subscribe(events.PaymentReceived, func(events.PaymentEvent) {
			order = append(order, i)
		})
	}

	b.Publish(events.PaymentReceived, testEvent("t1"))
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestUnsubscribeIsExactAndIdempotent(t *testing.T) {
	b := New(testLogger(), nil)
	defer b.Close()

	var first, second int
	unsubscribe := b.Subscribe(events.PaymentReceived, func(events.PaymentEvent) { first++ })
	b.Subscribe(events.PaymentReceived, func(events.PaymentEvent) { second++ })

	b.Publish(events.PaymentReceived, testEvent("t1"))
	require.Equal(t, 1, first)
	require.Equal(t, 1, second)

	unsubscribe()
	unsubscribe() // second call must be a no-op

	b.Publish(events.PaymentReceived, testEvent("t1"))
	require.Equal(t, 1, first)
	require.Equal(t, 2, second)
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	b := New(testLogger(), nil)
	defer b.Close()

	var after bool
	b.Subscribe(events.PaymentReceived, func(events.PaymentEvent) { panic("boom") })
	b.Subscribe(events.PaymentReceived, func(events.PaymentEvent) { after = true })

	require.NotPanics(t, func() {
		b.Publish(events.PaymentReceived, testEvent("t1"))
	})
	require.True(t, after)
}

func TestHandlerMayPublishDifferentKind(t *testing.T) {
	b := New(testLogger(), nil)
	defer b.Close()

	var expired int
	b.Subscribe(events.PayloadExpired, func(events.PaymentEvent) { expired++ })
	b.Subscribe(events.PaymentReceived, func(ev events.PaymentEvent) {
		b.Publish(events.PayloadExpired, testEvent(ev.TransactionID))
	})

	done := make(chan struct{})
	go func() {
		b.Publish(events.PaymentReceived, testEvent("t1"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("re-entrant publish deadlocked")
	}
	require.Equal(t, 1, expired)
}

func TestPublishRecordsAndCleansUp(t *testing.T) {
	transport := relay.NewMemory()
	b := New(testLogger(), transport, WithRecordHorizon(50*time.Millisecond))
	defer b.Close()

	ev := testEvent("t1")
	b.Publish(events.PaymentReceived, ev)

	key := RecordKey(events.PaymentReceived, ev)
	_, ok := transport.Get(key)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok := transport.Get(key)
		return !ok
	}, time.Second, 10*time.Millisecond, "record should be deleted after the horizon")
}

func TestRecordKeyFallsBackToTimestamp(t *testing.T) {
	ev := testEvent("")
	key := RecordKey(events.PaymentReceived, ev)
	require.Contains(t, key, "payment_received:")
	require.NotEqual(t, "payment_received:", key)
}

func TestCrossContextReplay(t *testing.T) {
	transport := relay.NewMemory()
	sender := New(testLogger(), transport)
	receiver := New(testLogger(), transport)
	defer sender.Close()
	defer receiver.Close()

	got := make(chan events.PaymentEvent, 1)
	sender.Subscribe(events.PaymentReceived, func(ev events.PaymentEvent) {
		got <- ev
	})

	receiver.Publish(events.PaymentReceived, testEvent("t1"))

	select {
	case ev := <-got:
		require.Equal(t, "t1", ev.TransactionID)
	case <-time.After(time.Second):
		t.Fatal("event never crossed contexts")
	}
}

func TestOwnRecordsAreNotReplayed(t *testing.T) {
	transport := relay.NewMemory()
	b := New(testLogger(), transport)
	defer b.Close()

	count := make(chan struct{}, 8)
	b.Subscribe(events.PaymentReceived, func(events.PaymentEvent) {
		count <- struct{}{}
	})

	b.Publish(events.PaymentReceived, testEvent("t1"))

	// Local fan-out delivers exactly once; the watcher must skip the bus's
	// own record rather than delivering it a second time.
	<-count
	select {
	case <-count:
		t.Fatal("own record was replayed")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	b := New(testLogger(), relay.NewMemory())
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}
