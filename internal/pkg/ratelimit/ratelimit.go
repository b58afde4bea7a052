package ratelimit

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/PayFox/internal/pkg/env"
)

const (
	defaultMax        = 60
	defaultExpiration = time.Minute
)

// NewStorage builds limiter storage on the cache server described by client, using
// database 1 so limiter keys never mix with the cache keys in database 0.
func NewStorage(client *goredis.Client) fiber.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client != nil {
		addr := client.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		// Prefer password from the underlying client if present
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}

// New returns the API rate limiter. A nil storage keeps counters in memory.
// RATE_LIMIT_MAX requests per RATE_LIMIT_WINDOW are allowed per client IP.
func New(storage fiber.Storage) fiber.Handler {
	cfg := limiter.Config{
		Max:        defaultMax,
		Expiration: defaultExpiration,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   "Too many requests",
			})
		},
	}
	if v, err := strconv.Atoi(env.GetEnv("RATE_LIMIT_MAX", "")); err == nil && v > 0 {
		cfg.Max = v
	}
	if d, err := time.ParseDuration(env.GetEnv("RATE_LIMIT_WINDOW", "")); err == nil && d > 0 {
		cfg.Expiration = d
	}
	if storage != nil {
		cfg.Storage = storage
	}
	return limiter.New(cfg)
}
