package oracle

import "github.com/escrow-research/oracle-engine/internal/domain/entity"

// decisionLog accumulates decisions for one arbitration operation, in event
// order. It is exclusively owned by that operation's pipeline goroutine, so
// it needs no synchronization. Appended decisions are never mutated.
type decisionLog struct {
	decisions []entity.Decision
}

func (l *decisionLog) append(d entity.Decision) {
	l.decisions = append(l.decisions, d)
}

// snapshot returns a copy of the accumulated decisions.
func (l *decisionLog) snapshot() []entity.Decision {
	out := make([]entity.Decision, len(l.decisions))
	copy(out, l.decisions)
	return out
}
