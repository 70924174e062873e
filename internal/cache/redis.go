package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/eventbooking/config"
	"github.com/Domenick1991/eventbooking/internal/domain"
	"github.com/redis/go-redis/v9"
)

func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
}

// fenceTTL is how long an invalidated event refuses new snapshots. A reader
// that loaded the event before the write lands inside this window.
const fenceTTL = 5 * time.Second

// setUnlessFenced writes the snapshot only when no invalidation fence exists.
var setUnlessFenced = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// RedisCache holds event snapshots for read paths. Capacity is authoritative
// only in the database; every capacity change invalidates the snapshot.
type RedisCache struct {
	client    *redis.Client
	eventsTTL time.Duration
	fenceTTL  time.Duration
}

func NewRedisCache(client *redis.Client, eventsTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:    client,
		eventsTTL: eventsTTL,
		fenceTTL:  fenceTTL,
	}
}

func (c *RedisCache) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	data, err := c.client.Get(ctx, eventKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var event domain.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *RedisCache) SetEvent(ctx context.Context, event *domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	keys := []string{eventKey(event.ID), fenceKey(event.ID)}
	err = setUnlessFenced.Run(ctx, c.client, keys, payload, c.eventsTTL.Milliseconds()).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// InvalidateEvent drops the snapshot and fences the key for a few seconds so
// a read that started before the write cannot put the old snapshot back.
func (c *RedisCache) InvalidateEvent(ctx context.Context, id string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, fenceKey(id), 1, c.fenceTTL)
		pipe.Del(ctx, eventKey(id))
		return nil
	})
	return err
}

func eventKey(id string) string {
	return fmt.Sprintf("cache:event:%s", id)
}

func fenceKey(id string) string {
	return fmt.Sprintf("cache:event:%s:fence", id)
}
