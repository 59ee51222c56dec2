// Package cache stores per-user rule set snapshots between mutations.
//
// A snapshot is only an optimization for evaluation: it is dropped after
// every committed rule change, and readers compare its Version with the
// audit log so a snapshot written back by an overlapping evaluation is
// ignored. Cache failures never fail an evaluation; callers fall back to
// the database.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-mail-triage/internal/domain"
)

// RuleSetCache is the narrow contract used by the service layer.
type RuleSetCache interface {
	// Get returns the cached snapshot; ok is false on a miss.
	Get(ctx context.Context, userEmail string) (rs *domain.RuleSet, ok bool, err error)
	Set(ctx context.Context, rs domain.RuleSet) error
	Invalidate(ctx context.Context, userEmail string) error
}

// DefaultTTL bounds how long a snapshot survives without invalidation.
const DefaultTTL = 10 * time.Minute

const keyPrefix = "triage:rules:"

// Redis is a RuleSetCache backed by a Redis server.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps an existing client. ttl <= 0 selects DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func key(userEmail string) string { return keyPrefix + userEmail }

// Get implements RuleSetCache.
func (r *Redis) Get(ctx context.Context, userEmail string) (*domain.RuleSet, bool, error) {
	raw, err := r.client.Get(ctx, key(userEmail)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var rs domain.RuleSet
	if err := json.Unmarshal(raw, &rs); err != nil {
		// A corrupt entry is a miss; drop it so the next Set replaces it.
		_ = r.client.Del(ctx, key(userEmail)).Err()
		return nil, false, nil
	}
	return &rs, true, nil
}

// Set implements RuleSetCache.
func (r *Redis) Set(ctx context.Context, rs domain.RuleSet) error {
	raw, err := json.Marshal(rs)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key(rs.UserEmail), raw, r.ttl).Err()
}

// Invalidate implements RuleSetCache.
func (r *Redis) Invalidate(ctx context.Context, userEmail string) error {
	return r.client.Del(ctx, key(userEmail)).Err()
}

// Noop never stores anything. It is used when REDIS_ADDR is unset.
type Noop struct{}

// Get implements RuleSetCache.
func (Noop) Get(context.Context, string) (*domain.RuleSet, bool, error) { return nil, false, nil }

// Set implements RuleSetCache.
func (Noop) Set(context.Context, domain.RuleSet) error { return nil }

// Invalidate implements RuleSetCache.
func (Noop) Invalidate(context.Context, string) error { return nil }

var (
	_ RuleSetCache = (*Redis)(nil)
	_ RuleSetCache = Noop{}
)
