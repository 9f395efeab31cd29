package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"raggingwatch/internal/store"
)

type Denylist interface {
	Revoke(ctx context.Context, sessionID string, until time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
	Ping(ctx context.Context) error
}

type MemoryDenylist struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{entries: map[string]time.Time{}}
}

func (d *MemoryDenylist) Revoke(ctx context.Context, sessionID string, until time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now().UTC()
	for k, exp := range d.entries {
		if now.After(exp) {
			delete(d.entries, k)
		}
	}
	d.entries[sessionID] = until
	return nil
}

func (d *MemoryDenylist) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	exp, ok := d.entries[sessionID]
	return ok && time.Now().UTC().Before(exp), nil
}

func (d *MemoryDenylist) Ping(ctx context.Context) error { return nil }

// RedisDenylist stores one key per revoked session with a TTL matching the
// token's remaining lifetime.
type RedisDenylist struct {
	client *redis.Client
	prefix string
}

func NewRedisDenylist(client *redis.Client, prefix string) *RedisDenylist {
	if prefix == "" {
		prefix = "raggingwatch:revoked:"
	}
	return &RedisDenylist{client: client, prefix: prefix}
}

func (d *RedisDenylist) Revoke(ctx context.Context, sessionID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, d.prefix+sessionID, "1", ttl).Err()
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+sessionID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisDenylist) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}

// StoreDenylist keeps revoked session ids in the revoked_sessions table.
type StoreDenylist struct {
	st *store.Store
}

func NewStoreDenylist(st *store.Store) *StoreDenylist {
	return &StoreDenylist{st: st}
}

func (d *StoreDenylist) Revoke(ctx context.Context, sessionID string, until time.Time) error {
	if err := d.st.RevokeSession(ctx, sessionID, until); err != nil {
		return err
	}
	_, err := d.st.PurgeRevokedSessions(ctx, time.Now().UTC())
	return err
}

func (d *StoreDenylist) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	return d.st.IsSessionRevoked(ctx, sessionID)
}

func (d *StoreDenylist) Ping(ctx context.Context) error { return d.st.Ping(ctx) }

// NewDenylist picks Redis when redisURL is set and the SQL table otherwise.
func NewDenylist(redisURL string, st *store.Store) (Denylist, error) {
	if redisURL == "" {
		return NewStoreDenylist(st), nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return NewRedisDenylist(redis.NewClient(opts), ""), nil
}
