package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/versefi/versequeue/internal/domain"
)

// releaseLua deletes a claim key only if its value matches the caller's
// unique token, so one holder can never release another holder's claim.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// ClaimManager implements domain.ClaimManager using Redis SETNX with a TTL
// and a Lua-based conditional release. Multi-node keeper deployments route
// their position claims through here so the at-most-one-winner guarantee
// spans processes; a single-node deployment runs on the in-process tables
// alone.
type ClaimManager struct {
	rdb       *redis.Client
	releaseSc *redis.Script
}

// NewClaimManager creates a ClaimManager backed by the given Client.
func NewClaimManager(c *Client) *ClaimManager {
	return &ClaimManager{
		rdb:       c.Underlying(),
		releaseSc: redis.NewScript(releaseLua),
	}
}

func claimKey(key string) string {
	return "claim:" + key
}

// Claim attempts to take an exclusive claim on the key with the given TTL.
// On success it returns a release function, safe to call more than once.
// It returns domain.ErrLockHeld when another party holds the claim.
func (cm *ClaimManager) Claim(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	ck := claimKey(key)

	ok, err := cm.rdb.SetNX(ctx, ck, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: claim %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true

		// A background context lets release succeed even when the caller's
		// context is already cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = cm.releaseSc.Run(releaseCtx, cm.rdb, []string{ck}, token).Err()
	}

	return release, nil
}

// Compile-time interface check.
var _ domain.ClaimManager = (*ClaimManager)(nil)
