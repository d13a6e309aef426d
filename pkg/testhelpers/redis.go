package testhelpers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestRedis represents a disposable Redis instance for integration tests
type TestRedis struct {
	Addr    string
	cleanup func()
}

// Close terminates the container
func (r *TestRedis) Close() {
	if r.cleanup != nil {
		r.cleanup()
	}
}

// NewTestRedis starts a Redis container and returns its address
func NewTestRedis(t *testing.T) *TestRedis {
	t.Helper()

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start redis container")

	host, err := container.Host(ctx)
	require.NoError(t, err, "Failed to get redis host")

	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err, "Failed to get redis port")

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return &TestRedis{
		Addr:    fmt.Sprintf("%s:%s", host, port.Port()),
		cleanup: cleanup,
	}
}
