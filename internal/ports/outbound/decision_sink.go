package outbound

import (
	"context"

	"github.com/escrow-research/oracle-engine/internal/domain/entity"
)

// DecisionSink receives decision notifications off the engine's critical
// path. Delivery is best-effort: a failing or slow sink must not influence
// decision ordering, so the engine dispatches through a bounded queue and
// swallows (but logs) sink errors.
//
// For testing, use the memory.DecisionSink adapter.
type DecisionSink interface {
	Publish(ctx context.Context, decision *entity.Decision) error
}
