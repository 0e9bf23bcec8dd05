package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/offlinepay/relay/internal/interfaces"
	"github.com/offlinepay/relay/internal/models/events"
)

func fileRecordFixture(key, origin string) interfaces.Record {
	return interfaces.Record{
		Key:    key,
		Origin: origin,
		Event: events.PaymentEvent{
			Kind:          events.PaymentReceived,
			TransactionID: "t1",
			OccurredAt:    time.Now().UTC(),
		},
	}
}

func TestFileTransportDeliversAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewFile(dir, 20*time.Millisecond)
	require.NoError(t, err)
	reader, err := NewFile(dir, 20*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := reader.Watch(ctx)
	require.NoError(t, err)

	rec := fileRecordFixture("payment_received:t1", "ctx-a")
	require.NoError(t, writer.Put(ctx, rec, time.Minute))

	select {
	case got := <-ch:
		require.Equal(t, rec.Key, got.Key)
		require.Equal(t, rec.Origin, got.Origin)
		require.Equal(t, "t1", got.Event.TransactionID)
	case <-time.After(2 * time.Second):
		t.Fatal("record never observed")
	}
}

func TestFileTransportSkipsOwnWrites(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir, 20*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := f.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, f.Put(ctx, fileRecordFixture("k1", "ctx-a"), time.Minute))

	select {
	case rec := <-ch:
		t.Fatalf("own write observed: %v", rec.Key)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestFileTransportSkipsExpiredRecords(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewFile(dir, 20*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, writer.Put(context.Background(), fileRecordFixture("k1", "ctx-a"), -time.Second))

	reader, err := NewFile(dir, 20*time.Millisecond)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := reader.Watch(ctx)
	require.NoError(t, err)

	select {
	case rec := <-ch:
		t.Fatalf("expired record observed: %v", rec.Key)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestFileTransportDelete(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir, 20*time.Millisecond)
	require.NoError(t, err)

	rec := fileRecordFixture("k1", "ctx-a")
	require.NoError(t, f.Put(context.Background(), rec, time.Minute))
	require.NoError(t, f.Delete(context.Background(), "k1"))
	// Deleting again must not error.
	require.NoError(t, f.Delete(context.Background(), "k1"))
}

func TestMemoryTransportPutDuringWatcherShutdown(t *testing.T) {
	// A publish racing a watcher's cancellation must never send on the
	// watcher's just-closed channel.
	for i := 0; i < 500; i++ {
		m := NewMemory()
		ctx, cancel := context.WithCancel(context.Background())
		_, err := m.Watch(ctx)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				require.NoError(t, m.Put(context.Background(), fileRecordFixture("k1", "ctx-a"), 0))
			}
		}()
		cancel()
		wg.Wait()
	}
}

func TestMemoryTransportTTL(t *testing.T) {
	m := NewMemory()
	rec := fileRecordFixture("k1", "ctx-a")
	require.NoError(t, m.Put(context.Background(), rec, 30*time.Millisecond))

	_, ok := m.Get("k1")
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok := m.Get("k1")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
