package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/platform/config"
)

const (
	defaultDialTimeout = 5 * time.Second
	defaultIOTimeout   = 3 * time.Second
)

// ErrAddrRequired is returned when the configuration carries no server address.
var ErrAddrRequired = errors.New("redis: address is required")

// ClientOption customises the go-redis options before the client is built.
type ClientOption func(*redis.Options)

// WithPoolSize overrides the connection pool size.
func WithPoolSize(size int) ClientOption {
	return func(opts *redis.Options) {
		if size > 0 {
			opts.PoolSize = size
		}
	}
}

// NewClient builds a go-redis client from configuration. The client connects lazily; call Ping to verify
// reachability.
func NewClient(cfg config.RedisConfig, opts ...ClientOption) (*redis.Client, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, ErrAddrRequired
	}

	options := &redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  positiveOr(cfg.DialTimeout, defaultDialTimeout),
		ReadTimeout:  positiveOr(cfg.ReadTimeout, defaultIOTimeout),
		WriteTimeout: positiveOr(cfg.WriteTimeout, defaultIOTimeout),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return redis.NewClient(options), nil
}

// Ping checks the server responds within the context deadline.
func Ping(ctx context.Context, client redis.UniversalClient) error {
	if client == nil {
		return errors.New("redis: client is nil")
	}
	return WrapError("ping", client.Ping(ctx).Err())
}

func positiveOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
