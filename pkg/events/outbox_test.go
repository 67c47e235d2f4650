package events

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx satisfies pgx.Tx for the relay, which only ever commits or rolls
// back; everything else goes through the faked repository.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error { t.committed = true; return nil }

func (t *fakeTx) Rollback(ctx context.Context) error { t.rolledBack = true; return nil }

type fakeTxManager struct {
	tx *fakeTx
}

func (m *fakeTxManager) BeginTx(ctx context.Context) (pgx.Tx, error) {
	m.tx = &fakeTx{}
	return m.tx, nil
}

func (m *fakeTxManager) BeginSerializableTx(ctx context.Context) (pgx.Tx, error) {
	return m.BeginTx(ctx)
}

type fakeOutboxRepo struct {
	pending   []*OutboxEvent
	statuses  map[uuid.UUID]OutboxStatus
	updateErr error
}

func (r *fakeOutboxRepo) GetPendingEvents(ctx context.Context, tx pgx.Tx, limit int) ([]*OutboxEvent, error) {
	if len(r.pending) > limit {
		return r.pending[:limit], nil
	}
	return r.pending, nil
}

func (r *fakeOutboxRepo) UpdateEventStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status OutboxStatus) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	if r.statuses == nil {
		r.statuses = make(map[uuid.UUID]OutboxStatus)
	}
	r.statuses[id] = status
	return nil
}

type fakePublisher struct {
	published []string
	failOn    map[string]error // keyed by routing key
}

func (p *fakePublisher) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	if err, ok := p.failOn[routingKey]; ok {
		return err
	}
	p.published = append(p.published, routingKey)
	return nil
}

func pendingEvent(eventType string) *OutboxEvent {
	return &OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   []byte(`{}`),
		Status:    OutboxStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func newTestRelay(repo OutboxRepository, pub EventPublisher, tm *fakeTxManager) *OutboxRelay {
	return NewOutboxRelay(repo, pub, tm, 10, time.Millisecond, "auction.events", slog.Default())
}

func TestProcessBatch_PublishesPendingEvents(t *testing.T) {
	first := pendingEvent("auction.bid.placed")
	second := pendingEvent("auction.settled")
	repo := &fakeOutboxRepo{pending: []*OutboxEvent{first, second}}
	pub := &fakePublisher{}
	tm := &fakeTxManager{}

	err := newTestRelay(repo, pub, tm).processBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"auction.bid.placed", "auction.settled"}, pub.published)
	assert.Equal(t, OutboxStatusPublished, repo.statuses[first.ID])
	assert.Equal(t, OutboxStatusPublished, repo.statuses[second.ID])
	assert.True(t, tm.tx.committed)
}

func TestProcessBatch_OneFailureDoesNotBlockBatch(t *testing.T) {
	first := pendingEvent("event.a")
	second := pendingEvent("event.b")
	third := pendingEvent("event.c")
	repo := &fakeOutboxRepo{pending: []*OutboxEvent{first, second, third}}
	pub := &fakePublisher{failOn: map[string]error{"event.b": errors.New("broker unavailable")}}
	tm := &fakeTxManager{}

	err := newTestRelay(repo, pub, tm).processBatch(context.Background())
	require.NoError(t, err)

	// The broker hiccup marks only its own event failed; the rest of the
	// batch still goes out and the whole batch commits.
	assert.Equal(t, []string{"event.a", "event.c"}, pub.published)
	assert.Equal(t, OutboxStatusPublished, repo.statuses[first.ID])
	assert.Equal(t, OutboxStatusFailed, repo.statuses[second.ID])
	assert.Equal(t, OutboxStatusPublished, repo.statuses[third.ID])
	assert.True(t, tm.tx.committed)
}

func TestProcessBatch_EmptyBatchSkipsCommit(t *testing.T) {
	repo := &fakeOutboxRepo{}
	pub := &fakePublisher{}
	tm := &fakeTxManager{}

	err := newTestRelay(repo, pub, tm).processBatch(context.Background())
	require.NoError(t, err)

	assert.Empty(t, pub.published)
	assert.False(t, tm.tx.committed)
}

func TestProcessBatch_StatusUpdateFailureAbortsBatch(t *testing.T) {
	event := pendingEvent("auction.bid.placed")
	repo := &fakeOutboxRepo{
		pending:   []*OutboxEvent{event},
		updateErr: errors.New("connection reset"),
	}
	pub := &fakePublisher{}
	tm := &fakeTxManager{}

	err := newTestRelay(repo, pub, tm).processBatch(context.Background())
	require.Error(t, err)
	assert.False(t, tm.tx.committed, "a failed status write must not commit the claim")
}

func TestProcessBatch_RespectsBatchSize(t *testing.T) {
	repo := &fakeOutboxRepo{pending: []*OutboxEvent{
		pendingEvent("event.a"),
		pendingEvent("event.b"),
		pendingEvent("event.c"),
	}}
	pub := &fakePublisher{}
	tm := &fakeTxManager{}
	relay := NewOutboxRelay(repo, pub, tm, 2, time.Millisecond, "auction.events", slog.Default())

	err := relay.processBatch(context.Background())
	require.NoError(t, err)
	assert.Len(t, pub.published, 2)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	repo := &fakeOutboxRepo{}
	pub := &fakePublisher{}
	tm := &fakeTxManager{}
	relay := NewOutboxRelay(repo, pub, tm, 10, time.Millisecond, "auction.events", slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after cancel")
	}
}
