package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/escrow-research/oracle-engine/internal/domain/entity"
)

// Arbitrator is the caller-supplied decision capability. The engine invokes
// it once per attestation considered and never concurrently within one
// arbitration operation.
type Arbitrator interface {
	// Arbitrate returns a verdict for the attestation. VerdictAbstain (or
	// any error) means "defer, do not arbitrate": the attestation is
	// skipped, not retried.
	Arbitrate(ctx context.Context, att *entity.Attestation) (entity.Verdict, error)
}

// ArbitrateFunc adapts an immediate decision function: the result is
// available as soon as the call returns.
type ArbitrateFunc func(ctx context.Context, att *entity.Attestation) (entity.Verdict, error)

func (f ArbitrateFunc) Arbitrate(ctx context.Context, att *entity.Attestation) (entity.Verdict, error) {
	return f(ctx, att)
}

// DeferredFunc adapts a deferred decision function: the call starts a
// pending computation and hands back a channel its outcome will arrive on.
// Arbitrate drives that computation to completion on the calling goroutine,
// so the engine does not move to the next attestation until the current one
// resolves or the operation is cancelled.
type DeferredFunc func(ctx context.Context, att *entity.Attestation) (<-chan entity.Outcome, error)

func (f DeferredFunc) Arbitrate(ctx context.Context, att *entity.Attestation) (entity.Verdict, error) {
	outcomes, err := f(ctx, att)
	if err != nil {
		return entity.VerdictAbstain, err
	}
	select {
	case out, ok := <-outcomes:
		if !ok {
			return entity.VerdictAbstain, errors.New("deferred arbitrator closed without an outcome")
		}
		if out.Err != nil {
			return entity.VerdictAbstain, out.Err
		}
		return out.Verdict, nil
	case <-ctx.Done():
		return entity.VerdictAbstain, ctx.Err()
	}
}

// evaluator wraps an Arbitrator invocation with the engine's failure policy:
// an error, panic, or cancelled wait maps to VerdictAbstain, is logged, and
// never aborts the surrounding run.
type evaluator struct {
	logger *slog.Logger
}

func newEvaluator(logger *slog.Logger) *evaluator {
	return &evaluator{logger: logger.With("component", "evaluator")}
}

// evaluate invokes the arbitrator for one attestation. It never returns an
// error and never panics.
func (e *evaluator) evaluate(ctx context.Context, arb Arbitrator, att *entity.Attestation) (verdict entity.Verdict) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("decision function panicked, treating as abstain",
				"uid", att.UID.Hex(),
				"panic", fmt.Sprintf("%v", r))
			verdict = entity.VerdictAbstain
		}
	}()

	v, err := arb.Arbitrate(ctx, att)
	if err != nil {
		e.logger.Warn("decision function failed, treating as abstain",
			"uid", att.UID.Hex(),
			"error", err)
		return entity.VerdictAbstain
	}
	return v
}
