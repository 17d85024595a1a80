// Package fsmqueue implements the Queued-Job Adapter (§4.2, §4.5): a narrow
// surface that enqueues a named callable plus parameters and a serialized
// TransitionInput snapshot, backed by Redis. Connection setup is adapted
// from the teacher's internal/db/redis.go (trimmed to the standard/Sentinel
// client paths and the list operations the queue actually uses — the
// generic hash/sorted-set/Lua-script surface had no caller in this domain).
package fsmqueue

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	URL      string
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	SentinelAddrs    []string
	SentinelMaster   string
	SentinelPassword string
}

func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     50,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func RedisConfigFromEnv() *RedisConfig {
	config := DefaultRedisConfig()
	if url := os.Getenv("REDIS_URL"); url != "" {
		config.URL = url
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		config.Host = host
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Port = p
		}
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		config.Password = password
	}
	if db := os.Getenv("REDIS_DB"); db != "" {
		if d, err := strconv.Atoi(db); err == nil {
			config.DB = d
		}
	}
	return config
}

// RedisClient wraps the go-redis client with health checks.
type RedisClient struct {
	client      redis.UniversalClient
	isSentinel  bool
	config      *RedisConfig
	healthCheck chan struct{}
	logger      *zap.Logger
}

func NewRedisClient(config *RedisConfig, logger *zap.Logger) (*RedisClient, error) {
	if config == nil {
		config = RedisConfigFromEnv()
	}
	rc := &RedisClient{config: config, healthCheck: make(chan struct{}), logger: logger}

	var err error
	if len(config.SentinelAddrs) > 0 && config.SentinelMaster != "" {
		rc.client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       config.SentinelMaster,
			SentinelAddrs:    config.SentinelAddrs,
			SentinelPassword: config.SentinelPassword,
			Password:         config.Password,
			DB:               config.DB,
			PoolSize:         config.PoolSize,
			MinIdleConns:     config.MinIdleConns,
			DialTimeout:      config.DialTimeout,
			ReadTimeout:      config.ReadTimeout,
			WriteTimeout:     config.WriteTimeout,
		})
		rc.isSentinel = true
	} else {
		rc.client, err = rc.createStandardClient(config)
	}
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("fsmqueue: connect to redis: %w", err)
	}

	go rc.runHealthCheck()
	return rc, nil
}

func (rc *RedisClient) createStandardClient(config *RedisConfig) (redis.UniversalClient, error) {
	opts := &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	if config.URL != "" {
		parsed, err := redis.ParseURL(config.URL)
		if err != nil {
			return nil, fmt.Errorf("fsmqueue: invalid redis url: %w", err)
		}
		parsed.PoolSize = config.PoolSize
		parsed.MinIdleConns = config.MinIdleConns
		parsed.DialTimeout = config.DialTimeout
		parsed.ReadTimeout = config.ReadTimeout
		parsed.WriteTimeout = config.WriteTimeout
		opts = parsed
	}
	return redis.NewClient(opts), nil
}

func (rc *RedisClient) runHealthCheck() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := rc.client.Ping(ctx).Err(); err != nil && rc.logger != nil {
				rc.logger.Warn("fsmqueue: redis health check failed", zap.Error(err))
			}
			cancel()
		case <-rc.healthCheck:
			return
		}
	}
}

func (rc *RedisClient) Client() redis.UniversalClient { return rc.client }

func (rc *RedisClient) Ping(ctx context.Context) error { return rc.client.Ping(ctx).Err() }

func (rc *RedisClient) Close() error {
	close(rc.healthCheck)
	return rc.client.Close()
}
