package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/concert-booking/internal/adapters/crdb"
	"github.com/robertarktes/concert-booking/internal/observability"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	records   []crdb.OutboxRecord
	published map[uuid.UUID]bool
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeStore) ClaimUnpublished(_ context.Context, limit int) ([]crdb.OutboxRecord, error) {
	var out []crdb.OutboxRecord
	for _, r := range f.records {
		if !f.published[r.ID] && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkPublished(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.published[id] = true
	return nil
}

type fakeBroker struct {
	sent   []amqp.Publishing
	failAt int
}

func (b *fakeBroker) Publish(_ context.Context, key string, msg amqp.Publishing) error {
	if b.failAt > 0 && len(b.sent)+1 == b.failAt {
		return errors.New("broker unavailable")
	}
	b.sent = append(b.sent, msg)
	return nil
}

func newStore(n int) *fakeStore {
	s := &fakeStore{published: map[uuid.UUID]bool{}}
	for i := 0; i < n; i++ {
		s.records = append(s.records, crdb.OutboxRecord{
			ID:        uuid.New(),
			EventType: "booking.created",
			Payload:   []byte(`{}`),
		})
	}
	return s
}

func newPublisher(s Store, b Broker) *Publisher {
	l, _ := test.NewNullLogger()
	return NewPublisher(s, b, observability.FromLogrus(l), time.Millisecond)
}

func TestPublisher_RelaysAndMarks(t *testing.T) {
	store := newStore(3)
	broker := &fakeBroker{}

	n, err := newPublisher(store, broker).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, broker.sent, 3)
	assert.Equal(t, store.records[0].ID.String(), broker.sent[0].MessageId)
	assert.Len(t, store.published, 3)

	n, err = newPublisher(store, broker).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPublisher_PartialFailureKeepsEarlierRows(t *testing.T) {
	store := newStore(3)
	broker := &fakeBroker{failAt: 2}

	n, err := newPublisher(store, broker).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, store.published[store.records[0].ID])
	assert.False(t, store.published[store.records[1].ID])
}

func TestPublisher_FirstFailureIsReported(t *testing.T) {
	store := newStore(1)
	_, err := newPublisher(store, &fakeBroker{failAt: 1}).RunOnce(context.Background())
	assert.Error(t, err)
	assert.Empty(t, store.published)
}

func TestPublisher_RunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newPublisher(newStore(0), &fakeBroker{}).Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}
}
