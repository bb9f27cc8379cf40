package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/escrow-research/oracle-engine/internal/ports/outbound"
)

// Compile-time check that StatusCache implements outbound.ArbitrationStatusCache
var _ outbound.ArbitrationStatusCache = (*StatusCache)(nil)

// StatusCache is an in-memory arbitration status cache. Only positive
// statuses are cached; arbitration outcomes never revert.
type StatusCache struct {
	mu      sync.Mutex
	decided map[string]struct{}
	gets    int
}

// NewStatusCache creates a new in-memory status cache.
func NewStatusCache() *StatusCache {
	return &StatusCache{decided: make(map[string]struct{})}
}

func (c *StatusCache) Get(ctx context.Context, uid common.Hash, oracle common.Address) (bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if _, ok := c.decided[statusKey(uid, oracle)]; ok {
		return true, true, nil
	}
	return false, false, nil
}

func (c *StatusCache) Set(ctx context.Context, uid common.Hash, oracle common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decided[statusKey(uid, oracle)] = struct{}{}
	return nil
}

// Gets reports how many Get calls the cache has served.
func (c *StatusCache) Gets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets
}

func statusKey(uid common.Hash, oracle common.Address) string {
	return uid.Hex() + ":" + oracle.Hex()
}
