package events

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerSettings trips the breaker after MaxFailures consecutive publish
// errors and probes the broker again after Timeout.
type BreakerSettings struct {
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// Breaker guards a Publisher so a broker outage fails fast instead of
// adding a publish timeout to every request.
type Breaker struct {
	next Publisher
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(next Publisher, s BreakerSettings, log *zap.Logger) *Breaker {
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	st := gobreaker.Settings{
		Name:        "events",
		MaxRequests: 1,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *Breaker) Publish(ctx context.Context, ev Event) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Publish(ctx, ev)
	})
	return err
}

func (b *Breaker) State() gobreaker.State { return b.cb.State() }

func (b *Breaker) Close() error { return b.next.Close() }
