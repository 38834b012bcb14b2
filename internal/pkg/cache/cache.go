package cache

import (
	"context"
	"fmt"

	"github.com/ManuelReschke/ApexAgent/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

var (
	client *redis.Client
	ctx    = context.Background()
)

// SetupCache initializes the connection to the Redis server backing the job queue
func SetupCache() {
	client = redis.NewClient(&redis.Options{
		Addr:     Addr(),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       0,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to Redis at %s: %v", Addr(), err)
	} else {
		log.Infof("[Cache] Connected to Redis: %s", pong)
	}
}

// Addr returns host:port of the configured Redis server
func Addr() string {
	return fmt.Sprintf("%s:%s", env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379"))
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}
