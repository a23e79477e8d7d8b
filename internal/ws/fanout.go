package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// fanoutEnvelope carries an already encoded Event between instances.
type fanoutEnvelope struct {
	Origin  string          `json:"origin"`
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

// RedisFanout relays events over a Redis pub/sub channel so that a user
// connected to another instance still receives them. Each instance skips its
// own publications since it already delivered them locally.
type RedisFanout struct {
	rdb      *redis.Client
	channel  string
	instance string
	log      *zap.Logger
}

func NewRedisFanout(rdb *redis.Client, prefix string, log *zap.Logger) *RedisFanout {
	return &RedisFanout{
		rdb:      rdb,
		channel:  prefix + ":ws:events",
		instance: uuid.NewString(),
		log:      log,
	}
}

func (f *RedisFanout) Publish(ctx context.Context, userID string, payload []byte) error {
	b, err := json.Marshal(fanoutEnvelope{Origin: f.instance, UserID: userID, Payload: payload})
	if err != nil {
		return err
	}
	return f.rdb.Publish(ctx, f.channel, b).Err()
}

// Run blocks until ctx is done, handing remote events to deliver.
func (f *RedisFanout) Run(ctx context.Context, deliver func(userID string, payload []byte)) {
	sub := f.rdb.Subscribe(ctx, f.channel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				f.log.Warn("redis fanout subscription closed")
				return
			}
			var env fanoutEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				f.log.Debug("malformed fanout payload", zap.Error(err))
				continue
			}
			if env.Origin == f.instance || env.UserID == "" {
				continue
			}
			deliver(env.UserID, env.Payload)
		}
	}
}
