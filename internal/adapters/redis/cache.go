package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/concert-booking/internal/domain"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func sessionKey(token string) string {
	return "session:" + token
}

func (c *Cache) SetSession(ctx context.Context, token string, userID int64, ttl time.Duration) error {
	return errors.Wrap(c.client.Set(ctx, sessionKey(token), userID, ttl).Err(), "set session")
}

// GetSession returns the user id bound to token, or ErrNotFound once it has expired.
func (c *Cache) GetSession(ctx context.Context, token string) (int64, error) {
	val, err := c.client.Get(ctx, sessionKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, errors.Wrap(domain.ErrNotFound, "session")
	}
	if err != nil {
		return 0, errors.Wrap(err, "get session")
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parse session user id")
	}
	return id, nil
}

// Incr counts a hit in a fixed window; the window starts with the first hit.
func (c *Cache) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errors.Wrap(err, "incr window")
	}
	return incr.Val(), nil
}
