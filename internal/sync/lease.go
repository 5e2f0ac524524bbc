package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSyncRunning is returned when the run lease is already held. Callers
// must surface it immediately rather than block or queue.
var ErrSyncRunning = errors.New("sync already running")

// releaseScript deletes the lease only when the stored token matches, so an
// expired-and-reacquired lease is never released by the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// extendScript refreshes the TTL only for the current holder.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// Lease is a TTL-bounded distributed mutex over Redis. The TTL guarantees a
// crashed run cannot deadlock future syncs.
type Lease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

// NewLease builds a lease for the given resource key.
func NewLease(client *redis.Client, key string, ttl time.Duration) *Lease {
	return &Lease{client: client, key: key, ttl: ttl}
}

// Acquire takes the lease or fails immediately with ErrSyncRunning.
func (l *Lease) Acquire(ctx context.Context) error {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("sync: acquire lease: %w", err)
	}
	if !ok {
		return ErrSyncRunning
	}
	l.token = token
	return nil
}

// Extend refreshes the TTL. It fails when the lease expired and another run
// took over.
func (l *Lease) Extend(ctx context.Context) error {
	if l.token == "" {
		return errors.New("sync: lease not held")
	}
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("sync: extend lease: %w", err)
	}
	if n == 0 {
		return errors.New("sync: lease lost")
	}
	return nil
}

// Release frees the lease if this holder still owns it.
func (l *Lease) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	defer func() { l.token = "" }()
	if _, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int(); err != nil {
		return fmt.Errorf("sync: release lease: %w", err)
	}
	return nil
}
