package auction

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// PlaceBidFunc is one placement attempt. The retry controller is decoupled
// from the transport layer and testable with any function of this shape.
type PlaceBidFunc func(ctx context.Context) (*PlacementResult, error)

// RetryController resubmits a placement on transient concurrency conflicts
// only, with jittered backoff and a hard attempt ceiling. Validation
// rejections are returned immediately: the input is invalid, not the
// transaction.
type RetryController struct {
	maxAttempts int
	baseDelay   time.Duration
	maxJitter   time.Duration
	logger      *slog.Logger

	// sleep is injectable for tests; defaults to a context-aware wait.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryController creates a controller with the given attempt budget.
// Each retry waits baseDelay plus a uniform random jitter in [0, maxJitter)
// to avoid a thundering herd of resubmissions.
func NewRetryController(maxAttempts int, baseDelay, maxJitter time.Duration, logger *slog.Logger) *RetryController {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryController{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxJitter:   maxJitter,
		logger:      logger,
		sleep:       sleepCtx,
	}
}

// Do runs fn until it succeeds, fails with a non-conflict error, or the
// attempt budget is exhausted. An exhausted budget returns the last conflict
// rejection with Attempts set so the caller can surface "try again".
func (c *RetryController) Do(ctx context.Context, fn PlaceBidFunc) (*PlacementResult, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !IsConflict(err) {
			return nil, err
		}
		lastErr = err

		if attempt == c.maxAttempts {
			break
		}

		delay := c.baseDelay
		if c.maxJitter > 0 {
			delay += time.Duration(rand.Int63n(int64(c.maxJitter)))
		}
		c.logger.Debug("placement conflict, retrying",
			"attempt", attempt, "max_attempts", c.maxAttempts, "delay", delay)

		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	if rej, ok := AsRejection(lastErr); ok {
		exhausted := *rej
		exhausted.Attempts = c.maxAttempts
		return nil, &exhausted
	}
	return nil, lastErr
}

// PlacementPipeline is the retry controller wrapped around the placement
// service: the unit callers submit bids to.
type PlacementPipeline struct {
	service *Service
	retry   *RetryController
}

// NewPlacementPipeline wires the placement service behind the retry
// controller.
func NewPlacementPipeline(service *Service, retry *RetryController) *PlacementPipeline {
	return &PlacementPipeline{service: service, retry: retry}
}

// PlaceBid submits one bid, resubmitting on transient conflicts.
func (p *PlacementPipeline) PlaceBid(ctx context.Context, req BidRequest) (*PlacementResult, error) {
	return p.retry.Do(ctx, func(ctx context.Context) (*PlacementResult, error) {
		return p.service.PlaceBid(ctx, req)
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
