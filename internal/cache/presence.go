package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const presenceTTL = 60 * time.Second

// Presence stores "online" markers with a TTL; a crashed instance's users
// fall offline once their keys expire.
type Presence struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewPresence(rdb *redis.Client, prefix string) *Presence {
	return &Presence{rdb: rdb, prefix: prefix, ttl: presenceTTL}
}

func (p *Presence) key(userID string) string {
	return p.prefix + ":presence:" + userID
}

// SetOnline marks userID online or refreshes the TTL.
func (p *Presence) SetOnline(ctx context.Context, userID string) error {
	return p.rdb.Set(ctx, p.key(userID), "online", p.ttl).Err()
}

func (p *Presence) SetOffline(ctx context.Context, userID string) error {
	return p.rdb.Del(ctx, p.key(userID)).Err()
}

func (p *Presence) Online(ctx context.Context, userID string) (bool, error) {
	val, err := p.rdb.Get(ctx, p.key(userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "online", nil
}
