// Package scheduler runs the background loops of the settlement worker:
// sweeping due auctions into the settlement procedure and keeping the
// external end-time schedule in sync with the database.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mkellner/hammer/internal/auction"
)

// Settler is the settlement entry point the scheduler drives. Declared here
// so tests can drop in a fake without a database.
type Settler interface {
	Settle(ctx context.Context, listingID uuid.UUID, trigger auction.TriggerSource) (*auction.SettlementResult, error)
}

// DueLister lists auctions whose end time has passed, straight from the
// authoritative store.
type DueLister interface {
	ListDueAuctions(ctx context.Context, asOf time.Time, limit int) ([]uuid.UUID, error)
	ListUpcomingEndTimes(ctx context.Context, until time.Time, limit int) (map[uuid.UUID]time.Time, error)
}

// Scheduler periodically settles due auctions. The redis schedule is the fast
// path; the database sweep is authoritative and catches triggers that were
// never registered or were lost. Settlement is idempotent, so settling the
// same listing from both sources is harmless.
type Scheduler struct {
	settler     Settler
	listings    DueLister
	schedule    auction.EndSchedule // may be nil; DB sweep still runs
	sweepEvery  time.Duration
	syncEvery   time.Duration
	syncHorizon time.Duration
	batchSize   int
	logger      *slog.Logger
}

// New creates a scheduler.
func New(
	settler Settler,
	listings DueLister,
	sched auction.EndSchedule,
	sweepEvery, syncEvery, syncHorizon time.Duration,
	batchSize int,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		settler:     settler,
		listings:    listings,
		schedule:    sched,
		sweepEvery:  sweepEvery,
		syncEvery:   syncEvery,
		syncHorizon: syncHorizon,
		batchSize:   batchSize,
		logger:      logger,
	}
}

// Run blocks until ctx is cancelled, sweeping due auctions on every tick and
// refreshing the end-time schedule on a slower cadence.
func (s *Scheduler) Run(ctx context.Context) error {
	sweep := time.NewTicker(s.sweepEvery)
	defer sweep.Stop()
	sync := time.NewTicker(s.syncEvery)
	defer sync.Stop()

	s.syncSchedule(ctx)
	s.SweepDue(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			return nil
		case <-sync.C:
			s.syncSchedule(ctx)
		case <-sweep.C:
			s.SweepDue(ctx)
		}
	}
}

// SweepDue settles every due auction it can find. One failing settlement does
// not block the others.
func (s *Scheduler) SweepDue(ctx context.Context) {
	now := time.Now().UTC()
	seen := make(map[uuid.UUID]bool)

	if s.schedule != nil {
		ids, err := s.schedule.Due(ctx, now, s.batchSize)
		if err != nil {
			s.logger.Warn("failed to read due triggers from schedule", "error", err)
		} else {
			for _, id := range ids {
				seen[id] = true
			}
		}
	}

	ids, err := s.listings.ListDueAuctions(ctx, now, s.batchSize)
	if err != nil {
		s.logger.Error("failed to list due auctions", "error", err)
	} else {
		for _, id := range ids {
			seen[id] = true
		}
	}

	for id := range seen {
		if _, err := s.settler.Settle(ctx, id, auction.TriggerScheduler); err != nil {
			if rej, ok := auction.AsRejection(err); ok && terminalRejection(rej.Code) {
				// The auction can never settle; drop its trigger so the next
				// sweep does not pick it up again.
				s.logger.Warn("dropping trigger for unsettleable auction",
					"listing_id", id, "code", rej.Code)
				s.releaseTrigger(ctx, id)
				continue
			}
			s.logger.Error("failed to settle auction", "listing_id", id, "error", err)
		}
	}
}

// terminalRejection reports whether settlement can never succeed for the
// listing, as opposed to a transient failure worth re-sweeping.
func terminalRejection(code auction.RejectCode) bool {
	return code == auction.CodeAuctionAlreadyCancelled || code == auction.CodeAuctionNotFound
}

func (s *Scheduler) releaseTrigger(ctx context.Context, listingID uuid.UUID) {
	if s.schedule == nil {
		return
	}
	if err := s.schedule.Release(ctx, listingID); err != nil {
		s.logger.Warn("failed to release end-time trigger", "listing_id", listingID, "error", err)
	}
}

// syncSchedule registers end-time triggers for auctions ending within the
// horizon. Registration is idempotent, so re-registering is cheap.
func (s *Scheduler) syncSchedule(ctx context.Context) {
	if s.schedule == nil {
		return
	}

	upcoming, err := s.listings.ListUpcomingEndTimes(ctx, time.Now().UTC().Add(s.syncHorizon), s.batchSize)
	if err != nil {
		s.logger.Error("failed to list upcoming end times", "error", err)
		return
	}
	for id, endsAt := range upcoming {
		if err := s.schedule.Register(ctx, id, endsAt); err != nil {
			s.logger.Warn("failed to register end-time trigger", "listing_id", id, "error", err)
		}
	}
}
