//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container and returns a connected StatusCache.
func setupRedis(t *testing.T, ttl time.Duration) (*StatusCache, func()) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	cfg := Config{
		Addr:      fmt.Sprintf("%s:%s", host, port.Port()),
		TTL:       ttl,
		KeyPrefix: "test",
	}
	cache, err := NewStatusCache(cfg, nil)
	if err != nil {
		t.Fatalf("failed to create status cache: %v", err)
	}

	for i := 0; i < 30; i++ {
		if err := cache.Ping(ctx); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	cleanup := func() {
		cache.Close()
		container.Terminate(ctx)
	}
	return cache, cleanup
}

func TestStatusCacheMissThenHit(t *testing.T) {
	cache, cleanup := setupRedis(t, 24*time.Hour)
	defer cleanup()

	ctx := context.Background()
	uid := common.BytesToHash([]byte{1})
	oracle := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	decided, known, err := cache.Get(ctx, uid, oracle)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if known || decided {
		t.Errorf("expected a miss before Set, got decided=%t known=%t", decided, known)
	}

	if err := cache.Set(ctx, uid, oracle); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	decided, known, err = cache.Get(ctx, uid, oracle)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !known || !decided {
		t.Errorf("expected a hit after Set, got decided=%t known=%t", decided, known)
	}
}

func TestStatusCacheKeysAreScopedByOracle(t *testing.T) {
	cache, cleanup := setupRedis(t, 24*time.Hour)
	defer cleanup()

	ctx := context.Background()
	uid := common.BytesToHash([]byte{1})
	oracleA := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	oracleB := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	if err := cache.Set(ctx, uid, oracleA); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	_, known, err := cache.Get(ctx, uid, oracleB)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if known {
		t.Error("a decision by one oracle must not mark the attestation for another")
	}
}

func TestStatusCacheTTLExpiry(t *testing.T) {
	cache, cleanup := setupRedis(t, 1*time.Second)
	defer cleanup()

	ctx := context.Background()
	uid := common.BytesToHash([]byte{2})
	oracle := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	if err := cache.Set(ctx, uid, oracle); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	time.Sleep(1500 * time.Millisecond)

	_, known, err := cache.Get(ctx, uid, oracle)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if known {
		t.Error("expected the entry to expire")
	}
}
