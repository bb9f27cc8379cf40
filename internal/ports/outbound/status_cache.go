package outbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// ArbitrationStatusCache caches affirmative "already arbitrated" lookups so
// that SkipArbitrated runs avoid repeated ledger reads. Arbitration
// outcomes are immutable once recorded, so cached positives never go stale.
// Only positive results are cached; a miss falls through to the ledger.
type ArbitrationStatusCache interface {
	// Get returns (decided, known): known is false on a cache miss.
	Get(ctx context.Context, uid common.Hash, oracle common.Address) (decided bool, known bool, err error)

	// Set marks the attestation as arbitrated by the oracle.
	Set(ctx context.Context, uid common.Hash, oracle common.Address) error
}
