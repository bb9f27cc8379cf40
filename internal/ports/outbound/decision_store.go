package outbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/escrow-research/oracle-engine/internal/domain/entity"
)

// DecisionStore persists decision records for audit. Writes are best-effort
// from the engine's point of view: a store failure is logged and never
// aborts an arbitration run.
type DecisionStore interface {
	// RecordDecision appends one decision. Recording the same
	// (attestation, oracle) pair twice is a no-op.
	RecordDecision(ctx context.Context, oracle common.Address, decision *entity.Decision) error

	// ListDecisions returns the most recent decisions recorded for the
	// oracle, newest first, up to limit.
	ListDecisions(ctx context.Context, oracle common.Address, limit int) ([]entity.Decision, error)
}
