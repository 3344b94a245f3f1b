// Package sink publishes emitted alerts to external consumers.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/surgewatch/internal/warn"
)

// Config holds redis sink settings. An empty Addr disables the sink.
type Config struct {
	Addr           string        // host:port, empty disables
	Password       string        // optional
	DB             int           // redis database index
	Channel        string        // pub/sub channel for alerts
	PublishTimeout time.Duration // per-publish deadline
}

// DefaultConfig returns production redis sink settings.
func DefaultConfig() Config {
	return Config{
		Channel:        "surgewatch:alerts",
		PublishTimeout: 2 * time.Second,
	}
}

// RedisSink publishes alerts as JSON on a redis pub/sub channel. Publish
// failures are logged and dropped; alerting never blocks on the sink.
type RedisSink struct {
	cfg Config
	rdb *redis.Client
}

// NewRedisSink connects to redis and verifies the connection with a ping.
func NewRedisSink(ctx context.Context, cfg Config) (*RedisSink, error) {
	if cfg.Channel == "" {
		cfg.Channel = DefaultConfig().Channel
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultConfig().PublishTimeout
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisSink{cfg: cfg, rdb: rdb}, nil
}

// newWithClient wires an existing client, used by tests with redismock.
func newWithClient(cfg Config, rdb *redis.Client) *RedisSink {
	return &RedisSink{cfg: cfg, rdb: rdb}
}

// Publish serializes the alert and publishes it on the configured channel.
func (s *RedisSink) Publish(ctx context.Context, alert warn.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PublishTimeout)
	defer cancel()
	if err := s.rdb.Publish(ctx, s.cfg.Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// HandleAlert adapts Publish for the sweep runner callback. Errors are
// logged, not surfaced, so a redis outage cannot stall sweeps.
func (s *RedisSink) HandleAlert(alert warn.Alert) {
	if err := s.Publish(context.Background(), alert); err != nil {
		log.Error().Err(err).Str("symbol", alert.Symbol).Msg("alert publish failed")
	}
}

// Close releases the redis connection.
func (s *RedisSink) Close() error {
	return s.rdb.Close()
}
