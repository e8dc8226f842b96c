// Package redis implements provider.Locker on Redis/Valkey so that only one
// worker instance reconciles or syncs at a time.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/wastecal/internal/provider"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

var _ provider.Locker = (*Locker)(nil)

const defaultPrefix = "wastecal:"

// Both scripts act only while the key still holds this Locker's token.
var (
	releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Locker is a SET NX lock whose value is a per-acquire token.
type Locker struct {
	client *goredis.Client
	prefix string

	mu     sync.Mutex
	tokens map[string]string
}

// New creates a Locker from config.
func New(cfg *types.RedisConfig) *Locker {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewFromClient(client, cfg.KeyPrefix)
}

// NewFromClient creates a Locker from an existing client (useful for testing).
func NewFromClient(client *goredis.Client, prefix string) *Locker {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Locker{client: client, prefix: prefix, tokens: make(map[string]string)}
}

func (l *Locker) lockKey(key string) string {
	return l.prefix + "lock:" + key
}

func (l *Locker) token(key string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tok, ok := l.tokens[key]
	return tok, ok
}

// AcquireLock attempts to acquire a distributed lock with the given key and TTL.
func (l *Locker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	tok := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.lockKey(key), tok, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if ok {
		l.mu.Lock()
		l.tokens[key] = tok
		l.mu.Unlock()
	}
	return ok, nil
}

// ExtendLock resets the TTL if this Locker still owns key.
func (l *Locker) ExtendLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	tok, ok := l.token(key)
	if !ok {
		return false, nil
	}
	n, err := extendScript.Run(ctx, l.client, []string{l.lockKey(key)}, tok, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("extend lock %s: %w", key, err)
	}
	return n == 1, nil
}

// ReleaseLock deletes key if this Locker still owns it. A lock that expired
// and was taken over is left to its new owner.
func (l *Locker) ReleaseLock(ctx context.Context, key string) error {
	tok, ok := l.token(key)
	if !ok {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{l.lockKey(key)}, tok).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	l.mu.Lock()
	if l.tokens[key] == tok {
		delete(l.tokens, key)
	}
	l.mu.Unlock()
	return nil
}

// Ping checks connectivity to the Redis server.
func (l *Locker) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the client connection.
func (l *Locker) Close() error {
	return l.client.Close()
}
