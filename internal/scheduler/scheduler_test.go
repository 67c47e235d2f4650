package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/mkellner/hammer/internal/auction"
)

type fakeSettler struct {
	mu      sync.Mutex
	settled []uuid.UUID
	failOn  map[uuid.UUID]error
}

func (f *fakeSettler) Settle(ctx context.Context, listingID uuid.UUID, trigger auction.TriggerSource) (*auction.SettlementResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failOn[listingID]; ok {
		return nil, err
	}
	f.settled = append(f.settled, listingID)
	return &auction.SettlementResult{AuctionUpdated: true}, nil
}

type fakeLister struct {
	due      []uuid.UUID
	upcoming map[uuid.UUID]time.Time
	dueErr   error
}

func (f *fakeLister) ListDueAuctions(ctx context.Context, asOf time.Time, limit int) ([]uuid.UUID, error) {
	return f.due, f.dueErr
}

func (f *fakeLister) ListUpcomingEndTimes(ctx context.Context, until time.Time, limit int) (map[uuid.UUID]time.Time, error) {
	return f.upcoming, nil
}

type fakeSchedule struct {
	mu         sync.Mutex
	registered map[uuid.UUID]time.Time
	due        []uuid.UUID
}

func newFakeSchedule() *fakeSchedule {
	return &fakeSchedule{registered: make(map[uuid.UUID]time.Time)}
}

func (f *fakeSchedule) Register(ctx context.Context, listingID uuid.UUID, endsAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered[listingID] = endsAt
	return nil
}

func (f *fakeSchedule) Release(ctx context.Context, listingID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.registered, listingID)
	return nil
}

func (f *fakeSchedule) Due(ctx context.Context, asOf time.Time, limit int) ([]uuid.UUID, error) {
	return f.due, nil
}

func newTestScheduler(settler Settler, lister DueLister, sched auction.EndSchedule) *Scheduler {
	return New(settler, lister, sched, time.Minute, time.Minute, 15*time.Minute, 100, slog.Default())
}

func TestSweepDue_SettlesFromBothSources(t *testing.T) {
	fromDB := uuid.New()
	fromSchedule := uuid.New()

	settler := &fakeSettler{}
	lister := &fakeLister{due: []uuid.UUID{fromDB}}
	sched := newFakeSchedule()
	sched.due = []uuid.UUID{fromSchedule}

	s := newTestScheduler(settler, lister, sched)
	s.SweepDue(context.Background())

	assert.ElementsMatch(t, []uuid.UUID{fromDB, fromSchedule}, settler.settled)
}

func TestSweepDue_DeduplicatesOverlappingSources(t *testing.T) {
	id := uuid.New()

	settler := &fakeSettler{}
	lister := &fakeLister{due: []uuid.UUID{id}}
	sched := newFakeSchedule()
	sched.due = []uuid.UUID{id}

	s := newTestScheduler(settler, lister, sched)
	s.SweepDue(context.Background())

	assert.Equal(t, []uuid.UUID{id}, settler.settled)
}

func TestSweepDue_OneFailureDoesNotBlockOthers(t *testing.T) {
	bad := uuid.New()
	good := uuid.New()

	settler := &fakeSettler{failOn: map[uuid.UUID]error{bad: errors.New("boom")}}
	lister := &fakeLister{due: []uuid.UUID{bad, good}}

	s := newTestScheduler(settler, lister, nil)
	s.SweepDue(context.Background())

	assert.Equal(t, []uuid.UUID{good}, settler.settled)
}

func TestSweepDue_ReleasesTriggerForCancelledAuction(t *testing.T) {
	cancelled := uuid.New()

	settler := &fakeSettler{failOn: map[uuid.UUID]error{
		cancelled: auction.Reject(auction.CodeAuctionAlreadyCancelled, "auction was cancelled"),
	}}
	lister := &fakeLister{}
	sched := newFakeSchedule()
	sched.registered[cancelled] = time.Now().UTC().Add(-time.Minute)
	sched.due = []uuid.UUID{cancelled}

	s := newTestScheduler(settler, lister, sched)
	s.SweepDue(context.Background())

	// The trigger is dropped; the next sweep will not re-read it.
	assert.NotContains(t, sched.registered, cancelled)
	assert.Empty(t, settler.settled)
}

func TestSweepDue_KeepsTriggerOnTransientFailure(t *testing.T) {
	flaky := uuid.New()

	settler := &fakeSettler{failOn: map[uuid.UUID]error{flaky: errors.New("boom")}}
	lister := &fakeLister{}
	sched := newFakeSchedule()
	sched.registered[flaky] = time.Now().UTC().Add(-time.Minute)
	sched.due = []uuid.UUID{flaky}

	s := newTestScheduler(settler, lister, sched)
	s.SweepDue(context.Background())

	assert.Contains(t, sched.registered, flaky)
}

func TestSweepDue_WorksWithoutSchedule(t *testing.T) {
	id := uuid.New()
	settler := &fakeSettler{}
	lister := &fakeLister{due: []uuid.UUID{id}}

	s := newTestScheduler(settler, lister, nil)
	s.SweepDue(context.Background())

	assert.Equal(t, []uuid.UUID{id}, settler.settled)
}

func TestSyncSchedule_RegistersUpcomingEndTimes(t *testing.T) {
	id := uuid.New()
	endsAt := time.Now().UTC().Add(10 * time.Minute)

	settler := &fakeSettler{}
	lister := &fakeLister{upcoming: map[uuid.UUID]time.Time{id: endsAt}}
	sched := newFakeSchedule()

	s := newTestScheduler(settler, lister, sched)
	s.syncSchedule(context.Background())

	assert.Equal(t, endsAt, sched.registered[id])
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	settler := &fakeSettler{}
	lister := &fakeLister{}

	s := New(settler, lister, nil, 5*time.Millisecond, time.Minute, 15*time.Minute, 100, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
