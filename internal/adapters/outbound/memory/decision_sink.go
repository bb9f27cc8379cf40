package memory

import (
	"context"
	"sync"

	"github.com/escrow-research/oracle-engine/internal/domain/entity"
	"github.com/escrow-research/oracle-engine/internal/ports/outbound"
)

// Compile-time check that DecisionSink implements outbound.DecisionSink
var _ outbound.DecisionSink = (*DecisionSink)(nil)

// DecisionSink collects published decisions in memory.
type DecisionSink struct {
	mu        sync.Mutex
	published []entity.Decision

	// PublishErr, when set, makes every Publish call fail.
	PublishErr error
}

// NewDecisionSink creates a new in-memory decision sink.
func NewDecisionSink() *DecisionSink {
	return &DecisionSink{}
}

func (s *DecisionSink) Publish(ctx context.Context, d *entity.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PublishErr != nil {
		return s.PublishErr
	}
	s.published = append(s.published, *d)
	return nil
}

// Published returns a copy of the decisions published so far, in order.
func (s *DecisionSink) Published() []entity.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Decision, len(s.published))
	copy(out, s.published)
	return out
}
