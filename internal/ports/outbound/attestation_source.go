package outbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/escrow-research/oracle-engine/internal/domain/entity"
)

// AttestationStream is one live subscription to arbitration-requested
// attestations. Events are delivered in ledger occurrence order.
type AttestationStream interface {
	// Events emits attestations as their arbitration requests occur on the
	// ledger. The channel is closed when the stream ends, either naturally
	// or via Close.
	Events() <-chan *entity.Attestation

	// Err emits at most one operation-scoped failure (connection loss,
	// subscription rejection). After an error the stream is dead.
	Err() <-chan error

	// Close tears the subscription down. Idempotent.
	Close() error
}

// AttestationSource fetches attestation records that request arbitration
// from a given oracle, either as a bounded historical query or as a live
// subscription anchored at the moment of the call.
type AttestationSource interface {
	// FetchHistorical returns all past attestations whose arbitration was
	// requested from the oracle, ordered by ledger occurrence. A query
	// failure aborts the whole call; it is not retried here.
	FetchHistorical(ctx context.Context, oracle common.Address) ([]*entity.Attestation, error)

	// Subscribe starts a live stream of arbitration requests for the
	// oracle, from now forward.
	Subscribe(ctx context.Context, oracle common.Address) (AttestationStream, error)
}
