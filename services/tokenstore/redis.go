package tokenstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/darasa/core"
)

const keyPrefix = "darasa:revoked:"

type redisStore struct {
	client *redis.Client
}

var _ core.TokenStore = (*redisStore)(nil)

// NewRedisStore returns a TokenStore shared by every API instance using the same redis.
func NewRedisStore(ctx context.Context, conf core.RedisConfig) (*redisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Address,
		Password: conf.Password,
		DB:       conf.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return &redisStore{client: client}, nil
}

// Revoke stores the token id with a TTL matching the token expiry.
func (s *redisStore) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return errors.Wrap(s.client.Set(ctx, keyPrefix+tokenID, 1, ttl).Err(), "revoking token")
}

func (s *redisStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+tokenID).Result()
	if err != nil {
		return false, errors.Wrap(err, "checking revoked token")
	}
	return n > 0, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
