package broadcaster

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobsim/infra/metrics"
	exitwal "lobsim/infra/wal/exit"
)

type fakePublisher struct {
	mu   sync.Mutex
	fail bool
	keys []string
	vals []string
}

func (f *fakePublisher) Publish(_ context.Context, key, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker unavailable")
	}
	f.keys = append(f.keys, string(key))
	f.vals = append(f.vals, string(value))
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func openOutbox(t *testing.T) *exitwal.ExitWAL {
	t.Helper()
	w, err := exitwal.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestReplayOnceAcksPublished(t *testing.T) {
	out := openOutbox(t)
	require.NoError(t, out.PutNew(1, []byte("a")))
	require.NoError(t, out.PutNew(2, []byte("b")))

	pub := &fakePublisher{}
	m := metrics.New(prometheus.NewRegistry())
	b := New(out, pub, DefaultConfig(), m)

	n, err := b.ReplayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"1", "2"}, pub.keys)
	assert.Equal(t, []string{"a", "b"}, pub.vals)

	rec, err := out.Get(2)
	require.NoError(t, err)
	assert.Equal(t, exitwal.StateAcked, rec.State)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Outbox.WithLabelValues("ACKED")))

	n, err = b.ReplayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "acked events are not republished")
}

func TestReplayOnceRecordsFailures(t *testing.T) {
	out := openOutbox(t)
	require.NoError(t, out.PutNew(1, []byte("a")))

	pub := &fakePublisher{fail: true}
	b := New(out, pub, Config{Interval: time.Millisecond, MaxRetries: 2}, nil)

	for i := 0; i < 3; i++ {
		n, err := b.ReplayOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	}

	rec, err := out.Get(1)
	require.NoError(t, err)
	assert.Equal(t, exitwal.StateFailed, rec.State)
	assert.Equal(t, uint32(2), rec.Retries, "gives up after MaxRetries")

	pub.fail = false
	n, err := b.ReplayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReplayOnceRetriesAfterRecovery(t *testing.T) {
	out := openOutbox(t)
	require.NoError(t, out.PutNew(1, []byte("a")))

	pub := &fakePublisher{fail: true}
	b := New(out, pub, DefaultConfig(), nil)

	_, err := b.ReplayOnce(context.Background())
	require.NoError(t, err)

	pub.fail = false
	n, err := b.ReplayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStartDrainsUntilCancelled(t *testing.T) {
	out := openOutbox(t)
	require.NoError(t, out.PutNew(1, []byte("a")))

	pub := &fakePublisher{}
	b := New(out, pub, Config{Interval: 5 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := b.Start(ctx)

	assert.Eventually(t, func() bool {
		return len(pub.published()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcaster did not stop")
	}
}

func TestSaramaPublisher(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true

	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewSaramaPublisherFrom(producer, "fills")
	require.NoError(t, pub.Publish(context.Background(), []byte("1"), []byte("a")))
	assert.True(t, errors.Is(pub.Publish(context.Background(), []byte("2"), []byte("b")), sarama.ErrOutOfBrokers))
	require.NoError(t, pub.Close())
}

func TestBroadcasterWithSarama(t *testing.T) {
	out := openOutbox(t)
	require.NoError(t, out.PutNew(9, []byte("fill")))

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != "fill" {
			return errors.Newf("unexpected payload %q", val)
		}
		return nil
	})

	b := New(out, NewSaramaPublisherFrom(producer, "fills"), DefaultConfig(), nil)
	n, err := b.ReplayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, b.Close())
}
