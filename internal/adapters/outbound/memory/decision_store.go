package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/escrow-research/oracle-engine/internal/domain/entity"
	"github.com/escrow-research/oracle-engine/internal/ports/outbound"
)

// Compile-time check that DecisionStore implements outbound.DecisionStore
var _ outbound.DecisionStore = (*DecisionStore)(nil)

// DecisionStore is an in-memory decision store, keyed by oracle.
type DecisionStore struct {
	mu        sync.Mutex
	decisions map[common.Address][]entity.Decision

	// RecordErr, when set, makes every RecordDecision call fail.
	RecordErr error
}

// NewDecisionStore creates a new in-memory decision store.
func NewDecisionStore() *DecisionStore {
	return &DecisionStore{decisions: make(map[common.Address][]entity.Decision)}
}

func (s *DecisionStore) RecordDecision(ctx context.Context, oracle common.Address, d *entity.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecordErr != nil {
		return s.RecordErr
	}
	s.decisions[oracle] = append(s.decisions[oracle], *d)
	return nil
}

func (s *DecisionStore) ListDecisions(ctx context.Context, oracle common.Address, limit int) ([]entity.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.decisions[oracle]
	if limit > 0 && limit < len(all) {
		all = all[len(all)-limit:]
	}
	out := make([]entity.Decision, len(all))
	copy(out, all)
	return out, nil
}
