package cache

import (
	"context"
	"testing"
	"time"

	"github.com/Domenick1991/eventbooking/config"
	"github.com/Domenick1991/eventbooking/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_Event(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(config.RedisConfig{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisCache(client, time.Minute)
	ctx := context.Background()

	got, err := c.GetEvent(ctx, "event-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	event := &domain.Event{ID: "event-1", Name: "Opera", TotalCapacity: 50, AvailableCapacity: 12}
	require.NoError(t, c.SetEvent(ctx, event))

	got, err = c.GetEvent(ctx, "event-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 12, got.AvailableCapacity)
	assert.Equal(t, time.Minute, mr.TTL("cache:event:event-1"))

	require.NoError(t, c.InvalidateEvent(ctx, "event-1"))
	got, err = c.GetEvent(ctx, "event-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCache_InvalidationFencesStaleSnapshot(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(config.RedisConfig{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisCache(client, time.Minute)
	ctx := context.Background()

	// A reader loaded this before a confirmation took two seats.
	stale := &domain.Event{ID: "event-3", TotalCapacity: 10, AvailableCapacity: 10}
	require.NoError(t, c.InvalidateEvent(ctx, "event-3"))
	require.NoError(t, c.SetEvent(ctx, stale))

	got, err := c.GetEvent(ctx, "event-3")
	require.NoError(t, err)
	assert.Nil(t, got, "snapshot written inside the fence must be dropped")

	mr.FastForward(fenceTTL + time.Second)

	fresh := &domain.Event{ID: "event-3", TotalCapacity: 10, AvailableCapacity: 8}
	require.NoError(t, c.SetEvent(ctx, fresh))
	got, err = c.GetEvent(ctx, "event-3")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 8, got.AvailableCapacity)
}

func TestRedisCache_Expiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(config.RedisConfig{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisCache(client, time.Second)
	ctx := context.Background()

	require.NoError(t, c.SetEvent(ctx, &domain.Event{ID: "event-2"}))
	mr.FastForward(2 * time.Second)

	got, err := c.GetEvent(ctx, "event-2")
	require.NoError(t, err)
	assert.Nil(t, got)
}
