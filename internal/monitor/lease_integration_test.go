package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	addr, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisLease_ExclusiveAndTokenChecked(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()
	first := NewRedisLease(client, "test:")
	second := NewRedisLease(client, "test:")

	release, ok, err := first.Acquire(ctx, "breach", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, err := second.Acquire(ctx, "breach", time.Minute); err != nil || ok {
		t.Fatalf("second acquire should be refused: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := second.Acquire(ctx, "warning", time.Minute); !ok {
		t.Errorf("leases are per sweep kind")
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	releaseSecond, ok, err := second.Acquire(ctx, "breach", time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
	// A late release from the previous holder must not free the new holder's lease.
	if err := release(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if _, ok, _ := first.Acquire(ctx, "breach", time.Minute); ok {
		t.Errorf("stale release freed another holder's lease")
	}
	_ = releaseSecond(ctx)
}

func TestRedisLease_Expires(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()
	lease := NewRedisLease(client, "test:")

	if _, ok, err := lease.Acquire(ctx, "breach", 200*time.Millisecond); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	time.Sleep(400 * time.Millisecond)
	if _, ok, err := lease.Acquire(ctx, "breach", time.Minute); err != nil || !ok {
		t.Errorf("expected an expired lease to be acquirable: ok=%v err=%v", ok, err)
	}
}
