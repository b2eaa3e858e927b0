package broadcaster

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clob/infra/store"
)

type recordingPublisher struct {
	failNext int
	values   []string
}

func (p *recordingPublisher) Publish(_ context.Context, _, value []byte, _ string) error {
	if p.failNext > 0 {
		p.failNext--
		return errors.New("broker unavailable")
	}
	p.values = append(p.values, string(value))
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func openOutbox(t *testing.T, payloads ...string) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	b := s.NewBatch()
	for i, p := range payloads {
		require.NoError(t, b.PutEvent(uint64(i+1), []byte(p)))
	}
	require.NoError(t, b.Commit())
	return s
}

func TestRelayInOrderWithRetry(t *testing.T) {
	s := openOutbox(t, "a", "b", "c")
	pub := &recordingPublisher{failNext: 1}
	m := NewMetrics(prometheus.NewRegistry())
	b := New(s, pub, Config{Key: "SOL-USDC"}, zap.NewNop(), m)

	n, err := b.RelayOnce(context.Background())
	require.Error(t, err)
	require.Zero(t, n)

	rec, err := s.Event(1)
	require.NoError(t, err)
	require.Equal(t, store.StateFailed, rec.State)
	require.EqualValues(t, 1, rec.Retries)

	n, err = b.RelayOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []string{"a", "b", "c"}, pub.values)

	_, err = s.Event(1)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Equal(t, 3.0, testutil.ToFloat64(m.published))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failed))

	n, err = b.RelayOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRelayBatchSize(t *testing.T) {
	s := openOutbox(t, "a", "b", "c")
	pub := &recordingPublisher{}
	b := New(s, pub, Config{BatchSize: 2}, zap.NewNop(), NewMetrics(nil))

	n, err := b.RelayOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"a", "b"}, pub.values)
}

func TestSaramaPublisher(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != "payload" {
			return errors.Newf("unexpected value %q", val)
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewSaramaPublisherFrom(producer, "clob.events")
	require.NoError(t, pub.Publish(context.Background(), []byte("k"), []byte("payload"), "application/json"))
	require.ErrorIs(t, pub.Publish(context.Background(), []byte("k"), []byte("x"), "application/json"), sarama.ErrOutOfBrokers)
	require.NoError(t, pub.Close())
}
