package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/escrow-research/oracle-engine/internal/domain/entity"
)

func TestEvaluateMapsErrorToAbstain(t *testing.T) {
	eval := newEvaluator(testLogger())
	arb := ArbitrateFunc(func(ctx context.Context, att *entity.Attestation) (entity.Verdict, error) {
		return entity.VerdictApprove, errors.New("upstream unavailable")
	})

	if v := eval.evaluate(context.Background(), arb, newAttestation(1)); v != entity.VerdictAbstain {
		t.Errorf("expected abstain on error, got %s", v)
	}
}

func TestEvaluateRecoversPanic(t *testing.T) {
	eval := newEvaluator(testLogger())
	arb := ArbitrateFunc(func(ctx context.Context, att *entity.Attestation) (entity.Verdict, error) {
		panic("decision function bug")
	})

	if v := eval.evaluate(context.Background(), arb, newAttestation(1)); v != entity.VerdictAbstain {
		t.Errorf("expected abstain on panic, got %s", v)
	}
}

func TestDeferredFuncResolves(t *testing.T) {
	arb := DeferredFunc(func(ctx context.Context, att *entity.Attestation) (<-chan entity.Outcome, error) {
		out := make(chan entity.Outcome, 1)
		go func() {
			time.Sleep(10 * time.Millisecond)
			out <- entity.Outcome{Verdict: entity.VerdictReject}
		}()
		return out, nil
	})

	v, err := arb.Arbitrate(context.Background(), newAttestation(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != entity.VerdictReject {
		t.Errorf("expected reject, got %s", v)
	}
}

func TestDeferredFuncOutcomeError(t *testing.T) {
	arb := DeferredFunc(func(ctx context.Context, att *entity.Attestation) (<-chan entity.Outcome, error) {
		out := make(chan entity.Outcome, 1)
		out <- entity.Outcome{Err: errors.New("oracle disagreement")}
		return out, nil
	})

	v, err := arb.Arbitrate(context.Background(), newAttestation(1))
	if err == nil {
		t.Fatal("expected the outcome error to propagate")
	}
	if v != entity.VerdictAbstain {
		t.Errorf("expected abstain, got %s", v)
	}
}

func TestDeferredFuncCancelledWait(t *testing.T) {
	arb := DeferredFunc(func(ctx context.Context, att *entity.Attestation) (<-chan entity.Outcome, error) {
		return make(chan entity.Outcome), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	v, err := arb.Arbitrate(ctx, newAttestation(1))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if v != entity.VerdictAbstain {
		t.Errorf("expected abstain, got %s", v)
	}
}

func TestDeferredFuncClosedChannel(t *testing.T) {
	arb := DeferredFunc(func(ctx context.Context, att *entity.Attestation) (<-chan entity.Outcome, error) {
		out := make(chan entity.Outcome)
		close(out)
		return out, nil
	})

	v, err := arb.Arbitrate(context.Background(), newAttestation(1))
	if err == nil {
		t.Fatal("expected an error for a closed outcome channel")
	}
	if v != entity.VerdictAbstain {
		t.Errorf("expected abstain, got %s", v)
	}
}

func TestListenDrivesDeferredDecisionsInOrder(t *testing.T) {
	f := newTestFixture(t, nil)
	a1, a2 := newAttestation(1), newAttestation(2)
	f.source.AddHistorical(a1, a2)

	// Each deferred evaluation must resolve before the next begins.
	var inFlight, maxInFlight int
	arb := DeferredFunc(func(ctx context.Context, att *entity.Attestation) (<-chan entity.Outcome, error) {
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		out := make(chan entity.Outcome, 1)
		go func() {
			time.Sleep(10 * time.Millisecond)
			inFlight--
			out <- entity.Outcome{Verdict: entity.VerdictApprove}
		}()
		return out, nil
	})

	decisions, err := f.engine.ArbitratePast(context.Background(), arb, entity.ArbitrateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decisions) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(decisions))
	}
	if maxInFlight != 1 {
		t.Errorf("expected at most one pending evaluation, saw %d", maxInFlight)
	}
}
