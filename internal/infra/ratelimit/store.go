package ratelimit

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	redisStorage "github.com/gofiber/storage/redis/v2"
	"github.com/redis/go-redis/v9"

	"svg2png/internal/infra/logging"
)

const pingTimeout = time.Second

type RedisConfig struct {
	Addr string
	DB   int
}

// NewStore returns Redis-backed limiter storage when Redis answers a ping,
// and in-memory storage otherwise. It never returns nil.
func NewStore(cfg RedisConfig) fiber.Storage {
	if cfg.Addr == "" {
		return memoryStorage.New()
	}
	if err := ping(cfg); err != nil {
		logging.Warn("Redis unavailable for rate limiting, falling back to memory", "addr", cfg.Addr, "error", err)
		return memoryStorage.New()
	}

	var store fiber.Storage
	func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Error("Redis limiter store init panicked, falling back to memory", "panic", r)
				store = memoryStorage.New()
			}
		}()
		store = redisStorage.New(redisStorage.Config{
			Addrs:    []string{cfg.Addr},
			Database: cfg.DB,
		})
		logging.Info("Using Redis for rate limiting", "addr", cfg.Addr, "db", cfg.DB)
	}()
	return store
}

func ping(cfg RedisConfig) error {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, DB: cfg.DB})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return rdb.Ping(ctx).Err()
}
