package artifact

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/autotab/api/internal/database"
	"github.com/google/uuid"
)

// Latest points at the most recent reports of one user.
type Latest struct {
	ModelID     uuid.UUID `json:"model_id"`
	Predictions string    `json:"predictions"`
	Importance  string    `json:"importance,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LatestIndex tracks the last training run per user.
type LatestIndex interface {
	Set(ctx context.Context, owner uuid.UUID, l Latest) error
	// Get returns ErrNotFound when the user never trained a model.
	Get(ctx context.Context, owner uuid.UUID) (Latest, error)
}

// RedisLatest stores the index in Redis so every API replica sees it.
type RedisLatest struct {
	redis *database.Redis
}

func NewRedisLatest(r *database.Redis) *RedisLatest {
	return &RedisLatest{redis: r}
}

func (r *RedisLatest) Set(ctx context.Context, owner uuid.UUID, l Latest) error {
	if err := r.redis.SetJSON(ctx, database.Key("latest", owner.String()), l, 0); err != nil {
		return fmt.Errorf("set latest: %w", err)
	}
	return nil
}

func (r *RedisLatest) Get(ctx context.Context, owner uuid.UUID) (Latest, error) {
	var l Latest
	err := r.redis.GetJSON(ctx, database.Key("latest", owner.String()), &l)
	if errors.Is(err, database.ErrCacheMiss) {
		return Latest{}, ErrNotFound
	}
	if err != nil {
		return Latest{}, fmt.Errorf("get latest: %w", err)
	}
	return l, nil
}

// MemoryLatest is the single-process index used without Redis.
type MemoryLatest struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]Latest
}

func NewMemoryLatest() *MemoryLatest {
	return &MemoryLatest{entries: map[uuid.UUID]Latest{}}
}

func (m *MemoryLatest) Set(_ context.Context, owner uuid.UUID, l Latest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[owner] = l
	return nil
}

func (m *MemoryLatest) Get(_ context.Context, owner uuid.UUID) (Latest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.entries[owner]
	if !ok {
		return Latest{}, ErrNotFound
	}
	return l, nil
}
