// ABOUTME: Redis-backed distributed lock using SETNX with TTL
// ABOUTME: Ownership is checked in Lua so one replica never releases another's lock
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harper/mediaindex/internal/models"
)

const lockPrefix = "mediaindex:lock:"

// Redis implements Locker across processes sharing one Redis server
type Redis struct {
	client  *redis.Client
	ownerID string
	ttl     time.Duration
	poll    time.Duration
}

// NewRedis creates a lock holding keys for ttl
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{
		client:  client,
		ownerID: generateOwnerID(),
		ttl:     ttl,
		poll:    100 * time.Millisecond,
	}
}

// NewRedisFromURL parses a redis:// URL and verifies the server is reachable
func NewRedisFromURL(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedis(client, ttl), nil
}

// generateOwnerID creates a unique identifier for this lock holder.
// Format: hostname:pid:random
func generateOwnerID() string {
	hostname, _ := os.Hostname()
	randomBytes := make([]byte, 8)
	_, _ = rand.Read(randomBytes)
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), hex.EncodeToString(randomBytes))
}

// OwnerID returns the unique identifier for this lock instance
func (l *Redis) OwnerID() string {
	return l.ownerID
}

// Acquire attempts to take name once; false means another owner holds it
func (l *Redis) Acquire(ctx context.Context, name string) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockPrefix+name, l.ownerID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release drops name if this instance still owns it
func (l *Redis) Release(ctx context.Context, name string) error {
	_, err := releaseScript.Run(ctx, l.client, []string{lockPrefix + name}, l.ownerID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// Lock polls until name is acquired. Waiting longer than the TTL means the
// holder is stuck or racing, which is reported as a state conflict.
func (l *Redis) Lock(ctx context.Context, name string) (func(), error) {
	deadline := time.Now().Add(l.ttl)
	for {
		ok, err := l.Acquire(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// Release must run even when the caller's ctx is already done
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = l.Release(ctx, name)
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, models.Conflict(name, fmt.Sprintf("%s is locked by another setup in progress; retry later", name))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}

// Close closes the underlying client
func (l *Redis) Close() error {
	return l.client.Close()
}
