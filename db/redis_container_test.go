//go:build integration

package db

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"lesson-observer-go/config"
)

var (
	redisOnce sync.Once
	redisAddr string
	redisErr  error
)

// containerRedisAddr starts one Redis container for the whole test run. The
// container lives until the process exits.
func containerRedisAddr(t *testing.T) string {
	t.Helper()
	redisOnce.Do(func() {
		redisAddr, redisErr = startRedisContainer()
	})
	if redisErr != nil {
		t.Fatalf("failed to start redis container: %v", redisErr)
	}
	return redisAddr
}

func startRedisContainer() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		return "", fmt.Errorf("get mapped port: %w", err)
	}
	return fmt.Sprintf("%s:%s", host, port.Port()), nil
}

// Run with: go test -tags integration ./db/...
func TestRedisServiceContainer(t *testing.T) {
	ctx := context.Background()
	client, err := InitializeRedisClient(ctx, config.RedisConfig{Addr: containerRedisAddr(t), DB: 15})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	testStore(t, func(t *testing.T) Store {
		require.NoError(t, client.FlushDB(ctx).Err())
		return NewRedisService(client, 3)
	})
}
