package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/PayFox/internal/pkg/env"
)

var (
	client *redis.Client
	ctx    = context.Background()
)

// Enabled reports whether a cache server is configured. Without CACHE_HOST the
// service runs on in-process fallbacks.
func Enabled() bool {
	return strings.TrimSpace(env.GetEnv("CACHE_HOST", "")) != ""
}

// SetupCache initializes the connection to the Redis compatible cache server
func SetupCache() error {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       0,
	})

	// Test the connection
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	pong, err := client.Ping(pingCtx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to cache at %s:%s: %v", host, port, err)
		return err
	}
	log.Infof("[Cache] Successfully connected to cache: %s", pong)
	return nil
}

// SetClient replaces the client, used by tests and alternative wiring.
func SetClient(c *redis.Client) {
	client = c
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		_ = SetupCache()
	}
	return client
}

// Ping checks the configured cache server.
func Ping(c context.Context) error {
	if client == nil {
		return fmt.Errorf("cache not initialized")
	}
	return client.Ping(c).Err()
}
