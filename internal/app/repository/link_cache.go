package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/linktoolkit/linktoolkit/internal/app/model"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss signals the alias has no cached entry; callers fall through
// to the repository.
var ErrCacheMiss = errors.New("link cache miss")

const (
	linkCachePrefix     = "link:"
	defaultLinkCacheTTL = time.Hour
)

// LinkCache is a best-effort redis cache in front of the alias lookup on the
// redirect path. Entry TTLs never exceed the link's remaining lifetime, so a
// cached link cannot outlive its record.
type LinkCache struct {
	client *redis.Client
}

// NewLinkCache returns a redis-backed link cache.
func NewLinkCache(client *redis.Client) *LinkCache {
	return &LinkCache{client: client}
}

func (c *LinkCache) Get(ctx context.Context, alias string) (*model.Link, error) {
	data, err := c.client.Get(ctx, linkCachePrefix+alias).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	var link model.Link
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (c *LinkCache) Set(ctx context.Context, link *model.Link) error {
	ttl := defaultLinkCacheTTL
	if remaining := time.Until(link.ExpiresAt); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(link)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, linkCachePrefix+link.ShortAlias, data, ttl).Err()
}

func (c *LinkCache) Delete(ctx context.Context, aliases ...string) error {
	if len(aliases) == 0 {
		return nil
	}
	keys := make([]string, len(aliases))
	for i, alias := range aliases {
		keys[i] = linkCachePrefix + alias
	}
	return c.client.Del(ctx, keys...).Err()
}
