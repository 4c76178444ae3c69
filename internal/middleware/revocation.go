package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/autotab/api/internal/database"
)

// Denylist records revoked token ids until the token would have expired.
type Denylist interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisDenylist shares revocations between replicas.
type RedisDenylist struct {
	redis *database.Redis
}

func NewRedisDenylist(r *database.Redis) *RedisDenylist {
	return &RedisDenylist{redis: r}
}

func (d *RedisDenylist) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return d.redis.Mark(ctx, database.Key("revoked", jti), ttl)
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return d.redis.Exists(ctx, database.Key("revoked", jti))
}

// MemoryDenylist is the in-process fallback. Expired entries are dropped
// lazily on Revoke.
type MemoryDenylist struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{entries: map[string]time.Time{}}
}

func (d *MemoryDenylist) Revoke(_ context.Context, jti string, until time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	for k, exp := range d.entries {
		if now.After(exp) {
			delete(d.entries, k)
		}
	}
	d.entries[jti] = until
	return nil
}

func (d *MemoryDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	exp, ok := d.entries[jti]
	return ok && time.Now().Before(exp), nil
}
