package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"call-pipeline/pkg/utils"
)

// RedisClaimer holds a short-lived Redis lease per call so only one
// replica fetches from the provider at a time.
//
// The TTL must exceed the retry policy's worst case; an expired lease only
// costs a duplicate fetch, never a duplicate write.
type RedisClaimer struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisClaimer(rdb *redis.Client, ttl time.Duration) *RedisClaimer {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisClaimer{rdb: rdb, ttl: ttl, prefix: "reconcile:lease:"}
}

func (c *RedisClaimer) Claim(ctx context.Context, key string) (func(), error) {
	leaseKey := c.prefix + key
	token := uuid.NewString()

	ok, err := utils.AcquireLease(ctx, c.rdb, leaseKey, token, c.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInProgress
	}
	return func() {
		_ = utils.ReleaseLease(context.WithoutCancel(ctx), c.rdb, leaseKey, token)
	}, nil
}
