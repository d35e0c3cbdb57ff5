package ingestion

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock coordinates ownership of one key across horizontally-scaled Engine
// instances: only the instance holding the lock for a named loop (a source
// type's poller or a connection's indexer) runs that loop. This supplements, rather than
// replaces, the per-item CAS on knowledge.DocumentStore — the CAS alone is
// correct even without a lock, but the lock avoids every instance
// redundantly polling/claiming the same connection.
type Lock interface {
	// TryAcquire attempts to claim key for ttl, returning true if this
	// caller now owns it.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Renew extends an already-held lock's ttl. Callers must stop acting as
	// owner if Renew reports false (another holder's TTL expired and it was
	// reclaimed, or this caller never actually held it).
	Renew(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release relinquishes key, if still held by this caller.
	Release(ctx context.Context, key string) error
}

// RedisLock implements Lock with SETNX-style claims on a Redis client.
type RedisLock struct {
	client *redis.Client
	owner  string
	prefix string
}

// NewRedisLock constructs a RedisLock. owner should be a process-unique
// identifier (hostname+pid is typical) so Release/Renew never affect a
// different instance's claim.
func NewRedisLock(client *redis.Client, owner string) *RedisLock {
	return &RedisLock{client: client, owner: owner, prefix: "agentcore:ingestion:lock:"}
}

func (l *RedisLock) fullKey(key string) string {
	return l.prefix + key
}

// TryAcquire implements Lock via Redis SET key value NX PX ttl.
func (l *RedisLock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.fullKey(key), l.owner, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// renewScript atomically extends a key's TTL only if this owner still
// holds it, avoiding a race where the lease expired and a different
// instance already claimed the key.
const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`

// Renew implements Lock.
func (l *RedisLock) Renew(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	res, err := l.client.Eval(ctx, renewScript, []string{l.fullKey(key)}, l.owner, ttl.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	n, _ := res.(int64)
	return n == 1, nil
}

// releaseScript atomically deletes a key only if this owner still holds
// it, so one instance can never release a lock another instance reclaimed
// after this instance's lease expired.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// Release implements Lock.
func (l *RedisLock) Release(ctx context.Context, key string) error {
	_, err := l.client.Eval(ctx, releaseScript, []string{l.fullKey(key)}, l.owner).Result()
	return err
}

var _ Lock = (*RedisLock)(nil)
