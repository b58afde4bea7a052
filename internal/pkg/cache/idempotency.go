package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyPrefix     = "payments:idempotency:"
	idempotencyInProgress = "IN_PROGRESS"

	DefaultIdempotencyLockTTL   = 30 * time.Second
	DefaultIdempotencyResultTTL = 24 * time.Hour
)

// ErrIdempotencyInProgress is returned when another request holds the key.
var ErrIdempotencyInProgress = errors.New("a request with this idempotency key is already in progress")

// IdempotencyStore remembers which payment a client supplied Idempotency-Key produced.
type IdempotencyStore struct {
	rdb       *redis.Client
	lockTTL   time.Duration
	resultTTL time.Duration
}

// NewIdempotencyStore returns a store whose in-progress claims live for lockTTL.
// lockTTL must outlast the longest create request; zero selects the default.
func NewIdempotencyStore(rdb *redis.Client, lockTTL time.Duration) *IdempotencyStore {
	if lockTTL <= 0 {
		lockTTL = DefaultIdempotencyLockTTL
	}
	return &IdempotencyStore{
		rdb:       rdb,
		lockTTL:   lockTTL,
		resultTTL: DefaultIdempotencyResultTTL,
	}
}

// Claim takes the key for the caller. When the key already finished it returns the
// stored payment id with claimed=false. A key still being processed yields
// ErrIdempotencyInProgress.
func (s *IdempotencyStore) Claim(ctx context.Context, key string) (paymentID string, claimed bool, err error) {
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.rdb.SetNX(ctx, idempotencyPrefix+key, idempotencyInProgress, s.lockTTL).Result()
		if err != nil {
			return "", false, err
		}
		if ok {
			return "", true, nil
		}

		val, err := s.rdb.Get(ctx, idempotencyPrefix+key).Result()
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return "", false, err
		}
		if val == idempotencyInProgress {
			return "", false, ErrIdempotencyInProgress
		}
		return val, false, nil
	}
	return "", false, ErrIdempotencyInProgress
}

// Complete stores the payment id for the key.
func (s *IdempotencyStore) Complete(ctx context.Context, key, paymentID string) error {
	return s.rdb.Set(ctx, idempotencyPrefix+key, paymentID, s.resultTTL).Err()
}

// Release frees a claimed key so the client may retry.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, idempotencyPrefix+key).Err()
}
