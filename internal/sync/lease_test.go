package sync

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLeaseSecondAcquireFails(t *testing.T) {
	_, client := testRedis(t)
	ctx := context.Background()

	first := NewLease(client, "orgsync:test:lock", time.Minute)
	second := NewLease(client, "orgsync:test:lock", time.Minute)

	require.NoError(t, first.Acquire(ctx))
	assert.ErrorIs(t, second.Acquire(ctx), ErrSyncRunning)
}

func TestLeaseReacquireAfterRelease(t *testing.T) {
	_, client := testRedis(t)
	ctx := context.Background()

	lease := NewLease(client, "orgsync:test:lock", time.Minute)
	require.NoError(t, lease.Acquire(ctx))
	require.NoError(t, lease.Release(ctx))

	other := NewLease(client, "orgsync:test:lock", time.Minute)
	assert.NoError(t, other.Acquire(ctx))
}

func TestLeaseExpiryFreesTheLock(t *testing.T) {
	mr, client := testRedis(t)
	ctx := context.Background()

	crashed := NewLease(client, "orgsync:test:lock", time.Second)
	require.NoError(t, crashed.Acquire(ctx))

	// Simulate a crashed holder: the TTL runs out without a release.
	mr.FastForward(2 * time.Second)

	next := NewLease(client, "orgsync:test:lock", time.Minute)
	assert.NoError(t, next.Acquire(ctx))

	// The crashed holder must not release the new holder's lease.
	require.NoError(t, crashed.Release(ctx))
	assert.True(t, mr.Exists("orgsync:test:lock"))
}

func TestLeaseExtendRefreshesTTL(t *testing.T) {
	mr, client := testRedis(t)
	ctx := context.Background()

	lease := NewLease(client, "orgsync:test:lock", 2*time.Second)
	require.NoError(t, lease.Acquire(ctx))

	mr.FastForward(time.Second)
	require.NoError(t, lease.Extend(ctx))

	// Without the extend the key would be gone by now.
	mr.FastForward(1500 * time.Millisecond)
	assert.True(t, mr.Exists("orgsync:test:lock"))
}

func TestLeaseExtendFailsAfterTakeover(t *testing.T) {
	mr, client := testRedis(t)
	ctx := context.Background()

	lease := NewLease(client, "orgsync:test:lock", time.Second)
	require.NoError(t, lease.Acquire(ctx))

	mr.FastForward(2 * time.Second)
	usurper := NewLease(client, "orgsync:test:lock", time.Minute)
	require.NoError(t, usurper.Acquire(ctx))

	assert.Error(t, lease.Extend(ctx))
}

func TestLeaseReleaseWithoutAcquireIsNoop(t *testing.T) {
	_, client := testRedis(t)
	lease := NewLease(client, "orgsync:test:lock", time.Minute)
	assert.NoError(t, lease.Release(context.Background()))
}
