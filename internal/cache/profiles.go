package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fathima-sithara/petadopt-messaging/internal/models"
	"github.com/fathima-sithara/petadopt-messaging/internal/repository"
)

// ProfileCache is a cache-aside repository.UserDirectory. Redis errors are
// logged and the lookup falls through to the wrapped directory.
type ProfileCache struct {
	next   repository.UserDirectory
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

func NewProfileCache(next repository.UserDirectory, rdb *redis.Client, prefix string, ttl time.Duration, log *zap.Logger) *ProfileCache {
	return &ProfileCache{next: next, rdb: rdb, prefix: prefix, ttl: ttl, log: log}
}

func (c *ProfileCache) key(id string) string {
	return c.prefix + ":profile:" + id
}

func (c *ProfileCache) Profiles(ctx context.Context, ids []string) (map[string]*models.Profile, error) {
	out := make(map[string]*models.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	norm := make([]string, 0, len(ids))
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		id = models.NormalizeID(id)
		norm = append(norm, id)
		keys = append(keys, c.key(id))
	}

	var missing []string
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn("profile cache read failed", zap.Error(err))
		missing = norm
	} else {
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				missing = append(missing, norm[i])
				continue
			}
			var p models.Profile
			if err := json.Unmarshal([]byte(s), &p); err != nil {
				missing = append(missing, norm[i])
				continue
			}
			out[norm[i]] = &p
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	found, err := c.next.Profiles(ctx, missing)
	if err != nil {
		return nil, err
	}
	pipe := c.rdb.Pipeline()
	for id, p := range found {
		out[id] = p
		if b, err := json.Marshal(p); err == nil {
			pipe.Set(ctx, c.key(id), b, c.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("profile cache write failed", zap.Error(err))
	}
	return out, nil
}
