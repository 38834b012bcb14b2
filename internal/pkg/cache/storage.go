package cache

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/ApexAgent/internal/pkg/env"
)

// LimiterDatabase is the Redis database holding rate limiter counters. The job
// queue uses DB 0.
const LimiterDatabase = 2

// NewLimiterStorage returns a fiber.Storage on the configured Redis server for
// use by the limiter middleware. It panics when Redis is unreachable.
func NewLimiterStorage() fiber.Storage {
	host, port := splitAddr(Addr())
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client != nil {
		host, port = splitAddr(client.Options().Addr)
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: LimiterDatabase,
		Reset:    false,
	})
}

func splitAddr(addr string) (string, int) {
	host, rawPort, err := net.SplitHostPort(addr)
	if err != nil {
		return "localhost", 6379
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil {
		return host, 6379
	}
	return host, port
}
