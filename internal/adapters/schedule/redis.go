package schedule

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKey is the sorted set holding auction end-time triggers.
const DefaultKey = "auction:end_schedule"

// RedisEndSchedule implements auction.EndSchedule on a redis sorted set:
// member = listing id, score = end time as unix seconds. Registration is
// idempotent (ZADD overwrites the score) and release is a plain ZREM, so the
// settlement path can call both more than once safely.
type RedisEndSchedule struct {
	client *redis.Client
	key    string
}

// NewRedisEndSchedule creates a schedule on the given key; pass DefaultKey
// unless tests need isolation.
func NewRedisEndSchedule(client *redis.Client, key string) *RedisEndSchedule {
	return &RedisEndSchedule{client: client, key: key}
}

// Register records the listing's end-time trigger.
func (s *RedisEndSchedule) Register(ctx context.Context, listingID uuid.UUID, endsAt time.Time) error {
	err := s.client.ZAdd(ctx, s.key, redis.Z{
		Score:  float64(endsAt.Unix()),
		Member: listingID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to register end-time trigger: %w", err)
	}
	return nil
}

// Release removes the listing's trigger after settlement.
func (s *RedisEndSchedule) Release(ctx context.Context, listingID uuid.UUID) error {
	if err := s.client.ZRem(ctx, s.key, listingID.String()).Err(); err != nil {
		return fmt.Errorf("failed to release end-time trigger: %w", err)
	}
	return nil
}

// Due returns listings whose trigger time has passed, earliest first.
func (s *RedisEndSchedule) Due(ctx context.Context, asOf time.Time, limit int) ([]uuid.UUID, error) {
	members, err := s.client.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(asOf.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read due triggers: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, parseErr := uuid.Parse(m)
		if parseErr != nil {
			// A malformed member cannot be settled; drop it so it does not
			// wedge the schedule.
			_ = s.client.ZRem(ctx, s.key, m).Err()
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
