package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// NewMongoClient connects to uri and pings the primary, retrying with
// exponential backoff for up to maxElapsed.
func NewMongoClient(ctx context.Context, uri string, maxElapsed time.Duration, log *zap.Logger) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	ping := func() error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return client.Ping(pctx, nil)
	}
	notify := func(err error, next time.Duration) {
		log.Warn("mongo ping failed, retrying", zap.Error(err), zap.Duration("next", next))
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(b, ctx), notify); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}
