package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const pauseKeyPrefix = "abuse:pause:"

// PauseStore keeps the time-boxed abuse pause in Redis; the key's TTL is the
// pause window, so expiry needs no sweeper.
type PauseStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewPauseStore(client redis.UniversalClient) *PauseStore {
	return &PauseStore{client: client, now: time.Now}
}

func pauseKey(tenantID uuid.UUID) string {
	return pauseKeyPrefix + tenantID.String()
}

// Pause sets the flag unless one is already active and reports whether this
// call created it.
func (p *PauseStore) Pause(ctx context.Context, tenantID uuid.UUID, reason string, ttl time.Duration) (bool, error) {
	return p.client.SetNX(ctx, pauseKey(tenantID), reason, ttl).Result()
}

func (p *PauseStore) IsPaused(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	n, err := p.client.Exists(ctx, pauseKey(tenantID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Until returns when the pause ends, or nil when the tenant is not paused.
func (p *PauseStore) Until(ctx context.Context, tenantID uuid.UUID) (*time.Time, error) {
	ttl, err := p.client.PTTL(ctx, pauseKey(tenantID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if ttl <= 0 {
		return nil, nil
	}
	until := p.now().Add(ttl).UTC()
	return &until, nil
}

func (p *PauseStore) Clear(ctx context.Context, tenantID uuid.UUID) error {
	return p.client.Del(ctx, pauseKey(tenantID)).Err()
}
