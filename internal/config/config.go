package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"

	EventsNone  = "none"
	EventsKafka = "kafka"
	EventsNATS  = "nats"
)

type AppConfig struct {
	Env                   string `mapstructure:"env"`
	Port                  int    `mapstructure:"port"`
	Store                 string `mapstructure:"store"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	CORSOrigins           string `mapstructure:"cors_origins"`
}

func (a AppConfig) PortString() string { return fmt.Sprintf("%d", a.Port) }

func (a AppConfig) Development() bool { return a.Env == "development" }

type MongoConfig struct {
	URI                     string `mapstructure:"uri"`
	Database                string `mapstructure:"database"`
	ConversationsCollection string `mapstructure:"conversations_collection"`
	MessagesCollection      string `mapstructure:"messages_collection"`
	UsersCollection         string `mapstructure:"users_collection"`
	OpTimeoutSeconds        int    `mapstructure:"op_timeout_seconds"`
	ConnectRetrySeconds     int    `mapstructure:"connect_retry_seconds"`
}

type RedisConfig struct {
	Addr              string `mapstructure:"addr"`
	Password          string `mapstructure:"password"`
	DB                int    `mapstructure:"db"`
	Prefix            string `mapstructure:"prefix"`
	ProfileTTLSeconds int    `mapstructure:"profile_ttl_seconds"`
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type JWTConfig struct {
	Alg           string `mapstructure:"alg"`
	PublicKeyPath string `mapstructure:"public_key_path"`
	HSSecret      string `mapstructure:"hs_secret"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type EventsConfig struct {
	Driver         string      `mapstructure:"driver"`
	TimeoutSeconds int         `mapstructure:"timeout_seconds"`
	Kafka          KafkaConfig `mapstructure:"kafka"`
	NATS           NATSConfig  `mapstructure:"nats"`
}

type WSConfig struct {
	PingIntervalSeconds  int   `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds int   `mapstructure:"write_deadline_seconds"`
	MaxMessageSizeBytes  int64 `mapstructure:"max_message_size_bytes"`
	RateLimitPerSec      int   `mapstructure:"rate_limit_per_sec"`
	SendBuffer           int   `mapstructure:"send_buffer"`
}

type RateLimitConfig struct {
	Limit         int `mapstructure:"limit"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Events    EventsConfig    `mapstructure:"events"`
	WS        WSConfig        `mapstructure:"ws"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`

	// derived
	RequestTimeout  time.Duration `mapstructure:"-"`
	StoreTimeout    time.Duration `mapstructure:"-"`
	ConnectRetry    time.Duration `mapstructure:"-"`
	ProfileTTL      time.Duration `mapstructure:"-"`
	EventsTimeout   time.Duration `mapstructure:"-"`
	PingInterval    time.Duration `mapstructure:"-"`
	WriteDeadline   time.Duration `mapstructure:"-"`
	RateLimitWindow time.Duration `mapstructure:"-"`
}

// Load reads the YAML file at path (optional when empty) and applies APP_*
// environment overrides, e.g. APP_MONGO_URI or APP_JWT_HS_SECRET.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.derive()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "production")
	v.SetDefault("app.port", 5000)
	v.SetDefault("app.store", StoreMongo)
	v.SetDefault("app.request_timeout_seconds", 10)
	v.SetDefault("app.cors_origins", "http://localhost:5001")

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "petadopt")
	v.SetDefault("mongo.conversations_collection", "conversations")
	v.SetDefault("mongo.messages_collection", "messages")
	v.SetDefault("mongo.users_collection", "users")
	v.SetDefault("mongo.op_timeout_seconds", 3)
	v.SetDefault("mongo.connect_retry_seconds", 30)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "petadopt")
	v.SetDefault("redis.profile_ttl_seconds", 300)

	v.SetDefault("jwt.alg", "HS256")
	v.SetDefault("jwt.public_key_path", "")
	v.SetDefault("jwt.hs_secret", "")

	v.SetDefault("events.driver", EventsNone)
	v.SetDefault("events.timeout_seconds", 2)
	v.SetDefault("events.kafka.brokers", []string{})
	v.SetDefault("events.kafka.topic", "messaging.events")
	v.SetDefault("events.nats.url", "")
	v.SetDefault("events.nats.subject_prefix", "messaging")

	v.SetDefault("ws.ping_interval_seconds", 25)
	v.SetDefault("ws.write_deadline_seconds", 10)
	v.SetDefault("ws.max_message_size_bytes", 65536)
	v.SetDefault("ws.rate_limit_per_sec", 20)
	v.SetDefault("ws.send_buffer", 256)

	v.SetDefault("ratelimit.limit", 60)
	v.SetDefault("ratelimit.window_seconds", 60)
}

func (c *Config) derive() {
	c.RequestTimeout = seconds(c.App.RequestTimeoutSeconds)
	c.StoreTimeout = seconds(c.Mongo.OpTimeoutSeconds)
	c.ConnectRetry = seconds(c.Mongo.ConnectRetrySeconds)
	c.ProfileTTL = seconds(c.Redis.ProfileTTLSeconds)
	c.EventsTimeout = seconds(c.Events.TimeoutSeconds)
	c.PingInterval = seconds(c.WS.PingIntervalSeconds)
	c.WriteDeadline = seconds(c.WS.WriteDeadlineSeconds)
	c.RateLimitWindow = seconds(c.RateLimit.WindowSeconds)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("app.port invalid: %d", c.App.Port)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("app.request_timeout_seconds must be positive")
	}

	switch c.App.Store {
	case StoreMongo:
		if c.Mongo.URI == "" {
			return errors.New("mongo.uri missing")
		}
		if c.Mongo.Database == "" {
			return errors.New("mongo.database missing")
		}
		if c.StoreTimeout <= 0 {
			return errors.New("mongo.op_timeout_seconds must be positive")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("invalid app.store %q (use mongo or memory)", c.App.Store)
	}

	switch strings.ToUpper(c.JWT.Alg) {
	case "RS256":
		if c.JWT.PublicKeyPath == "" {
			return errors.New("jwt.public_key_path required for RS256")
		}
	case "HS256":
		if c.JWT.HSSecret == "" {
			return errors.New("jwt.hs_secret required for HS256")
		}
	default:
		return errors.New("invalid jwt.alg (use RS256 or HS256)")
	}

	switch c.Events.Driver {
	case EventsNone:
	case EventsKafka:
		if len(c.Events.Kafka.Brokers) == 0 {
			return errors.New("events.kafka.brokers missing")
		}
		if c.Events.Kafka.Topic == "" {
			return errors.New("events.kafka.topic missing")
		}
	case EventsNATS:
		if c.Events.NATS.URL == "" {
			return errors.New("events.nats.url missing")
		}
	default:
		return fmt.Errorf("invalid events.driver %q (use none, kafka or nats)", c.Events.Driver)
	}

	if c.WS.SendBuffer <= 0 {
		return errors.New("ws.send_buffer must be positive")
	}
	if c.RateLimit.Limit < 0 {
		return errors.New("ratelimit.limit must not be negative")
	}
	return nil
}
