package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"watcher/internal/config"
	"watcher/internal/model"
)

// StatsKey holds the latest Stats snapshot.
const StatsKey = "stats:latest"

// RedisSink caches the latest stats under StatsKey and appends every signal
// to a capped stream.
type RedisSink struct {
	client   *redis.Client
	statsTTL time.Duration
	stream   string
	maxLen   int64
	logger   *slog.Logger
}

// NewRedisSink connects to Redis and verifies the connection.
func NewRedisSink(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*RedisSink, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.Password != "" {
		opt.Password = cfg.Password
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newRedisSink(client, cfg, logger), nil
}

func newRedisSink(client *redis.Client, cfg config.RedisConfig, logger *slog.Logger) *RedisSink {
	return &RedisSink{
		client:   client,
		statsTTL: cfg.StatsTTL,
		stream:   cfg.Stream,
		maxLen:   cfg.StreamMaxLen,
		logger:   logger.With("sink", "redis"),
	}
}

func (r *RedisSink) Name() string {
	return "redis"
}

// Handle stores Stats and Signal messages.
func (r *RedisSink) Handle(ctx context.Context, msg model.Message) error {
	switch msg.Type {
	case model.MessageStats:
		data, err := json.Marshal(msg.Stats)
		if err != nil {
			return fmt.Errorf("encode stats: %w", err)
		}
		if err := r.client.Set(ctx, StatsKey, data, r.statsTTL).Err(); err != nil {
			return fmt.Errorf("redis SET failed: %w", err)
		}
		r.logger.Debug("RedisSink: stats cached", "key", StatsKey, "ttl", r.statsTTL)

	case model.MessageSignal:
		data, err := json.Marshal(msg.Signal)
		if err != nil {
			return fmt.Errorf("encode signal: %w", err)
		}
		id, err := r.client.XAdd(ctx, &redis.XAddArgs{
			Stream: r.stream,
			MaxLen: r.maxLen,
			Approx: true,
			Values: map[string]any{
				"id":      msg.Signal.ID,
				"symbol":  msg.Signal.Symbol,
				"payload": data,
			},
		}).Result()
		if err != nil {
			return fmt.Errorf("redis XADD failed: %w", err)
		}
		r.logger.Debug("RedisSink: signal streamed", "stream", r.stream, "entry", id, "symbol", msg.Signal.Symbol)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisSink) Close() error {
	return r.client.Close()
}
