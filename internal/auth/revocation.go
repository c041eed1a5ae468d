package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "session:revoked:"

// RevocationList stores signed-out tokens in Redis until they would have expired anyway.
type RevocationList struct {
	client redis.Cmdable
}

// NewRevocationList wraps a Redis client.
func NewRevocationList(client redis.Cmdable) *RevocationList {
	return &RevocationList{client: client}
}

// Revoke marks token as signed out for ttl. A non-positive ttl means the token is already dead.
func (l *RevocationList) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return l.client.Set(ctx, revokedKey(token), "1", ttl).Err()
}

// IsRevoked checks the list.
func (l *RevocationList) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := l.client.Exists(ctx, revokedKey(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// revokedKey stores a digest rather than the bearer credential itself.
func revokedKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return revokedKeyPrefix + hex.EncodeToString(sum[:])
}
