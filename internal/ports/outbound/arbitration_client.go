package outbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/escrow-research/oracle-engine/internal/domain/entity"
)

// ArbitrationClient is the ledger read/write capability the engine consumes.
// Transaction construction and signature internals live behind this port.
type ArbitrationClient interface {
	// GetAttestation fetches a single attestation by uid.
	// Returns *entity.NotFoundError if the ledger does not know the uid.
	GetAttestation(ctx context.Context, uid common.Hash) (*entity.Attestation, error)

	// HasDecision reports whether the oracle has already recorded an
	// arbitration outcome for the attestation.
	HasDecision(ctx context.Context, uid common.Hash, oracle common.Address) (bool, error)

	// SubmitArbitration records the oracle's decision on the ledger and
	// returns the confirmed transaction hash. Rejection surfaces as
	// *entity.SubmissionError; the engine does not retry.
	SubmitArbitration(ctx context.Context, uid common.Hash, oracle common.Address, decision bool) (common.Hash, error)

	// RequestArbitration asks the oracle to arbitrate an obligation and
	// returns the confirmed transaction hash.
	RequestArbitration(ctx context.Context, uid common.Hash, oracle common.Address) (common.Hash, error)
}
