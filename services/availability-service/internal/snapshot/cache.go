package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/brightsmile/dentalbook/services/availability-service/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "avail:snapshot:"
	genKeyPrefix = "avail:snapshot:gen:"

	// generationTTL must outlive any in-flight load of the day.
	generationTTL = 24 * time.Hour
)

// setIfGeneration writes the snapshot only while the day's generation still matches the
// one read before the load started.
var setIfGeneration = redis.NewScript(`
local cur = redis.call('GET', KEYS[2])
if not cur then cur = '0' end
if cur ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Cache stores one snapshot per clinic day as JSON in Redis.
type Cache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewCache(rdb redis.Cmdable, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// Key is the Redis key of the snapshot for the YYYY-MM-DD day.
func Key(day string) string {
	return keyPrefix + day
}

// Get returns ok=false on a miss.
func (c *Cache) Get(ctx context.Context, day string) (model.Snapshot, bool, error) {
	raw, err := c.rdb.Get(ctx, Key(day)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Snapshot{}, false, nil
	}
	if err != nil {
		return model.Snapshot{}, false, err
	}
	var snap model.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return model.Snapshot{}, false, err
	}
	return snap, true, nil
}

// GenerationKey is the Redis key counting invalidations of the YYYY-MM-DD day.
func GenerationKey(day string) string {
	return genKeyPrefix + day
}

// Generation returns the invalidation counter of day; zero when never invalidated.
func (c *Cache) Generation(ctx context.Context, day string) (int64, error) {
	raw, err := c.rdb.Get(ctx, GenerationKey(day)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

// SetIfGeneration stores snap only when day has not been invalidated since gen was read.
// It reports whether the snapshot was written.
func (c *Cache) SetIfGeneration(ctx context.Context, day string, gen int64, snap model.Snapshot) (bool, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return false, err
	}
	n, err := setIfGeneration.Run(ctx, c.rdb,
		[]string{Key(day), GenerationKey(day)},
		strconv.FormatInt(gen, 10), raw, c.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Delete drops the snapshots of days and bumps their generations so loads already in
// flight do not write them back.
func (c *Cache) Delete(ctx context.Context, days ...string) error {
	if len(days) == 0 {
		return nil
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, d := range days {
			pipe.Incr(ctx, GenerationKey(d))
			pipe.Expire(ctx, GenerationKey(d), generationTTL)
			pipe.Del(ctx, Key(d))
		}
		return nil
	})
	return err
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
