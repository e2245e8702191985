//go:build integration

package client

import (
	"context"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/exam-archive-cache/internal/testutil"
	"github.com/Sternrassler/exam-archive-cache/pkg/cache"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func newRedisClient(t *testing.T, redisClient *redis.Client, origin *testutil.MockOrigin, version string) *Client {
	t.Helper()

	cfg := DefaultConfig(cache.NewRedisStore(redisClient, "itest"), origin.URL(), version)
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	ctx := context.Background()
	if err := c.Install(ctx); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if err := c.Activate(ctx); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	return c
}

func TestIntegration_FullRequestFlow(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	origin := testutil.NewMockOrigin()
	defer origin.Close()

	client := newRedisClient(t, redisClient, origin, "v1")
	origin.Reset()
	ctx := context.Background()

	// Shell from install, payload on demand, metadata network first
	for _, path := range []string{"/index.html", "/papers/CS/CS2023.pdf", "/metadata/subject_1.json"} {
		for i := 0; i < 2; i++ {
			resp, err := client.Get(ctx, path)
			if err != nil {
				t.Fatalf("Get(%s) failed: %v", path, err)
			}
			resp.Body.Close()
		}
	}

	if got := origin.GetPathCount("/index.html"); got != 0 {
		t.Errorf("shell origin requests = %d, want 0", got)
	}
	if got := origin.GetPathCount("/papers/CS/CS2023.pdf"); got != 1 {
		t.Errorf("payload origin requests = %d, want 1", got)
	}
	if got := origin.GetPathCount("/metadata/subject_1.json"); got != 2 {
		t.Errorf("metadata origin requests = %d, want 2", got)
	}

	// Offline: metadata falls back to Redis
	origin.SetBroken("/metadata/subject_1.json")
	resp, err := client.Get(ctx, "/metadata/subject_1.json")
	if err != nil {
		t.Fatalf("offline metadata failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("offline metadata status = %d, want 200 from cache", resp.StatusCode)
	}
}

func TestIntegration_BudgetAndUpgrade(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	origin := testutil.NewMockOrigin()
	defer origin.Close()

	ctx := context.Background()
	v1 := newRedisClient(t, redisClient, origin, "v1")

	for i := 1; i <= 31; i++ {
		path := fmt.Sprintf("/papers/Bio/paper_%02d.pdf", i)
		origin.SetResponse(path, testutil.NewPayloadResponse(64*1024))
		resp, err := v1.Get(ctx, path)
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", path, err)
		}
		resp.Body.Close()
	}

	ns, err := v1.Lifecycle().Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	stats, err := ns.Payload.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Entries != 30 {
		t.Errorf("payload entries = %d, want 30", stats.Entries)
	}

	// Activating v2 drops every v1 namespace
	v2 := newRedisClient(t, redisClient, origin, "v2")
	names, err := cache.NewRedisStore(redisClient, "itest").Names(ctx)
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	for _, name := range names {
		if !v2.Lifecycle().Names().Contains(name) {
			t.Errorf("stale namespace %q survived activation", name)
		}
	}
}
