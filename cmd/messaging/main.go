package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/fathima-sithara/petadopt-messaging/internal/api"
	"github.com/fathima-sithara/petadopt-messaging/internal/auth"
	"github.com/fathima-sithara/petadopt-messaging/internal/cache"
	"github.com/fathima-sithara/petadopt-messaging/internal/config"
	"github.com/fathima-sithara/petadopt-messaging/internal/events"
	"github.com/fathima-sithara/petadopt-messaging/internal/logger"
	"github.com/fathima-sithara/petadopt-messaging/internal/metrics"
	"github.com/fathima-sithara/petadopt-messaging/internal/middleware"
	"github.com/fathima-sithara/petadopt-messaging/internal/repository"
	"github.com/fathima-sithara/petadopt-messaging/internal/service"
	"github.com/fathima-sithara/petadopt-messaging/internal/ws"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("APP_CONFIG"), "path to config YAML")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	lg, err := logger.New(logger.Config{Development: cfg.App.Development()})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jv, err := auth.New(cfg.JWT.Alg, cfg.JWT.PublicKeyPath, cfg.JWT.HSSecret)
	if err != nil {
		lg.Fatal("jwt validator init", zap.Error(err))
	}

	m := metrics.New()

	var convs repository.ConversationStore
	var msgs repository.MessageStore
	var users repository.UserDirectory
	var mc *mongo.Client

	switch cfg.App.Store {
	case config.StoreMemory:
		st := repository.NewMemoryStore()
		convs, msgs, users = st, st, st
		lg.Warn("using in-memory store; data is lost on restart")
	default:
		mc, err = repository.NewMongoClient(ctx, cfg.Mongo.URI, cfg.ConnectRetry, lg)
		if err != nil {
			lg.Fatal("mongo connect", zap.Error(err))
		}
		db := mc.Database(cfg.Mongo.Database)
		cr, err := repository.NewConversationRepository(ctx, db.Collection(cfg.Mongo.ConversationsCollection), cfg.StoreTimeout)
		if err != nil {
			lg.Fatal("conversation repository", zap.Error(err))
		}
		mr, err := repository.NewMessageRepository(ctx, db.Collection(cfg.Mongo.MessagesCollection), cfg.StoreTimeout)
		if err != nil {
			lg.Fatal("message repository", zap.Error(err))
		}
		convs, msgs = cr, mr
		users = repository.NewUserRepository(db.Collection(cfg.Mongo.UsersCollection), cfg.StoreTimeout)
	}

	var rdb *redis.Client
	hubOpts := []ws.HubOption{ws.WithMetrics(m)}
	if cfg.Redis.Enabled() {
		rdb, err = cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			lg.Fatal("redis connect", zap.Error(err))
		}
		users = cache.NewProfileCache(users, rdb, cfg.Redis.Prefix, cfg.ProfileTTL, lg)
		hubOpts = append(hubOpts,
			ws.WithPresence(cache.NewPresence(rdb, cfg.Redis.Prefix)),
			ws.WithFanout(ws.NewRedisFanout(rdb, cfg.Redis.Prefix, lg)),
		)
	}

	pub, err := newPublisher(cfg, lg)
	if err != nil {
		lg.Fatal("events publisher", zap.Error(err))
	}

	hub := ws.NewHub(lg, hubOpts...)
	go hub.Run(ctx)

	svc := service.NewConversationService(service.Deps{
		Conversations: convs,
		Messages:      msgs,
		Users:         users,
		Notifier:      hub,
		Publisher:     pub,
		Metrics:       m,
		Log:           lg,
		EventTimeout:  cfg.EventsTimeout,
	})

	var limiter *middleware.RateLimiter
	if rdb != nil {
		limiter = middleware.NewRateLimiter(rdb, cfg.Redis.Prefix, cfg.RateLimit.Limit, cfg.RateLimitWindow, lg)
	}

	app := api.NewServer(api.Options{
		Service:        svc,
		Hub:            hub,
		Validator:      jv,
		Limiter:        limiter,
		Metrics:        m,
		Log:            lg,
		RequestTimeout: cfg.RequestTimeout,
		CORSOrigins:    cfg.App.CORSOrigins,
		WS: ws.Config{
			PingInterval:   cfg.PingInterval,
			WriteDeadline:  cfg.WriteDeadline,
			MaxMessageSize: cfg.WS.MaxMessageSizeBytes,
			RatePerSec:     cfg.WS.RateLimitPerSec,
			SendBuffer:     cfg.WS.SendBuffer,
		},
	})

	errs := make(chan error, 1)
	go func() {
		addr := ":" + cfg.App.PortString()
		lg.Info("starting messaging service", zap.String("addr", addr), zap.String("store", cfg.App.Store), zap.String("events", cfg.Events.Driver))
		errs <- app.Listen(addr)
	}()

	select {
	case e := <-errs:
		lg.Error("server error", zap.Error(e))
	case <-ctx.Done():
		lg.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.Shutdown()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		lg.Warn("fiber shutdown", zap.Error(err))
	}
	if err := pub.Close(); err != nil {
		lg.Warn("events publisher close", zap.Error(err))
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if mc != nil {
		if err := mc.Disconnect(shutdownCtx); err != nil {
			lg.Warn("mongo disconnect", zap.Error(err))
		}
	}
	lg.Info("shut down")
}

func newPublisher(cfg *config.Config, lg *zap.Logger) (events.Publisher, error) {
	var next events.Publisher
	switch cfg.Events.Driver {
	case config.EventsKafka:
		next = events.NewKafkaPublisher(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic)
	case config.EventsNATS:
		np, err := events.NewNATSPublisher(cfg.Events.NATS.URL, cfg.Events.NATS.SubjectPrefix)
		if err != nil {
			return nil, err
		}
		next = np
	default:
		return events.Nop{}, nil
	}
	return events.NewBreaker(next, events.BreakerSettings{
		MaxFailures: 5,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
	}, lg), nil
}
