package core

import (
	"context"
	"time"
)

// TokenStore keeps track of revoked (logged out) access tokens until they expire.
type TokenStore interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
