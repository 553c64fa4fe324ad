package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/custody/internal/address"
)

const challengePrefix = "challenge:v1:"

// Repository persists outstanding challenges, one per address.
type Repository interface {
	Save(ctx context.Context, challenge Challenge, ttl time.Duration) error
	// Take returns and removes the challenge for addr.
	Take(ctx context.Context, addr address.Address) (Challenge, error)
}

// RedisRepository keeps challenges in Redis with a TTL.
type RedisRepository struct {
	cache *redis.Client
}

// NewRedisRepository builds a Redis-backed challenge repository.
func NewRedisRepository(cache *redis.Client) *RedisRepository {
	return &RedisRepository{cache: cache}
}

// Save stores the challenge, replacing any outstanding one for the same address.
func (r *RedisRepository) Save(ctx context.Context, challenge Challenge, ttl time.Duration) error {
	payload, err := json.Marshal(challenge)
	if err != nil {
		return err
	}
	return r.cache.Set(ctx, challengePrefix+challenge.Address.String(), payload, ttl).Err()
}

// Take fetches and deletes the challenge atomically.
func (r *RedisRepository) Take(ctx context.Context, addr address.Address) (Challenge, error) {
	raw, err := r.cache.GetDel(ctx, challengePrefix+addr.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Challenge{}, ErrChallengeNotFound
	}
	if err != nil {
		return Challenge{}, err
	}
	var challenge Challenge
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return Challenge{}, fmt.Errorf("decode challenge: %w", err)
	}
	return challenge, nil
}
