// Package testutil provides shared helpers for tests that need external
// infrastructure. Redis-backed tests are skipped unless a test Redis is
// reachable, so the unit suite stays runnable on a bare machine.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// SetupTestRedis connects to the test Redis instance, flushing the selected
// database so each test starts clean. The test is skipped when Redis is not
// reachable, unless TEST_REDIS_REQUIRED is set.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := getEnvOrDefault("TEST_REDIS_ADDR", "localhost:6379")
	db := 15 // keep test data away from any local development state

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if os.Getenv("TEST_REDIS_REQUIRED") != "" {
			t.Fatalf("Redis not available for testing at %s: %v", addr, err)
		}
		t.Skipf("Redis not available for testing at %s: %v", addr, err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		_ = client.Close()
		t.Fatalf("flush test redis db: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
