// Package oracle implements the arbitration engine: it watches a ledger for
// attestations that request arbitration from a trusted oracle, invokes a
// caller-supplied decision function against each, and submits an on-chain
// arbitration transaction for affirmative decisions.
//
// Attestations within one operation are processed strictly in arrival
// order. A deferred decision function is driven to completion before the
// next attestation is considered, so no two decision-function invocations
// for the same operation are ever pending at once. Independent operations
// (one live listen plus one historical backfill, say) may run concurrently
// against each other.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/escrow-research/oracle-engine/internal/codec"
	"github.com/escrow-research/oracle-engine/internal/domain/entity"
	"github.com/escrow-research/oracle-engine/internal/ports/outbound"
)

const (
	// tracerName is the instrumentation name for this service.
	tracerName = "github.com/escrow-research/oracle-engine/internal/services/oracle"
)

// NotifyFunc receives one notification per decision appended during a live
// listen. It runs on the engine's notifier goroutine, off the evaluation
// path: a slow or failing callback never delays subsequent evaluations.
type NotifyFunc func(decision *entity.Decision)

// Config holds configuration for the Engine.
type Config struct {
	// Oracle is the identity arbitration decisions are submitted as.
	Oracle common.Address

	// EAS is the attestation contract address.
	EAS common.Address

	// TrustedOracleArbiter is the arbiter contract address.
	TrustedOracleArbiter common.Address

	// NotifyBufferSize bounds the per-listen notification queue. When the
	// queue is full a notification is dropped with a warning rather than
	// blocking evaluation.
	NotifyBufferSize int

	// Logger is the structured logger.
	Logger *slog.Logger

	// Store, when set, durably records every decision (best-effort).
	Store outbound.DecisionStore

	// Sink, when set, receives a fire-and-forget notification per decision
	// appended during a live listen.
	Sink outbound.DecisionSink

	// StatusCache, when set, short-circuits SkipArbitrated ledger reads.
	StatusCache outbound.ArbitrationStatusCache
}

// ConfigDefaults returns default configuration.
func ConfigDefaults() Config {
	return Config{
		NotifyBufferSize: 64,
		Logger:           slog.Default(),
	}
}

// Engine runs arbitration operations against a shared ledger connection.
// It owns no ledger state; per-operation state (the decision log, the
// subscription handle) lives only for the duration of that operation.
type Engine struct {
	config Config
	source outbound.AttestationSource
	client outbound.ArbitrationClient
	codec  *codec.Codec
	subs   *subscriptionRegistry
	eval   *evaluator
	logger *slog.Logger
}

// NewEngine creates a new arbitration Engine.
func NewEngine(config Config, source outbound.AttestationSource, client outbound.ArbitrationClient, cdc *codec.Codec) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("attestation source is required")
	}
	if client == nil {
		return nil, fmt.Errorf("arbitration client is required")
	}
	if cdc == nil {
		return nil, fmt.Errorf("codec is required")
	}
	if config.Oracle == (common.Address{}) {
		return nil, fmt.Errorf("oracle address is required")
	}

	defaults := ConfigDefaults()
	if config.NotifyBufferSize <= 0 {
		config.NotifyBufferSize = defaults.NotifyBufferSize
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	logger := config.Logger.With("component", "oracle-engine")
	return &Engine{
		config: config,
		source: source,
		client: client,
		codec:  cdc,
		subs:   newSubscriptionRegistry(),
		eval:   newEvaluator(logger),
		logger: logger,
	}, nil
}

// EASAddress returns the attestation contract address.
func (e *Engine) EASAddress() common.Address { return e.config.EAS }

// TrustedOracleArbiterAddress returns the arbiter contract address.
func (e *Engine) TrustedOracleArbiterAddress() common.Address { return e.config.TrustedOracleArbiter }

// RequestArbitration asks the configured oracle to arbitrate the obligation
// and returns the confirmed transaction hash.
func (e *Engine) RequestArbitration(ctx context.Context, obligationUID common.Hash, oracle common.Address) (common.Hash, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "oracle.requestArbitration",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("attestation.uid", obligationUID.Hex()),
			attribute.String("oracle.address", oracle.Hex()),
		),
	)
	defer span.End()

	tx, err := e.client.RequestArbitration(ctx, obligationUID, oracle)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "arbitration request rejected")
		return common.Hash{}, err
	}
	span.SetAttributes(attribute.String("tx.hash", tx.Hex()))
	return tx, nil
}

// ExtractObligationData decodes the obligation string carried by a
// fulfillment attestation. Pure; no side effects.
func (e *Engine) ExtractObligationData(att *entity.Attestation) (string, error) {
	return e.codec.DecodeObligation(att.Data)
}

// ExtractDemandData decodes the oracle demand carried by an escrow
// attestation. Pure; no side effects.
func (e *Engine) ExtractDemandData(escrow *entity.Attestation) (*entity.DemandData, error) {
	return e.codec.DecodeEscrowDemand(escrow.Data)
}

// GetEscrowAttestation resolves the escrow attestation a fulfillment
// references via its RefUID.
func (e *Engine) GetEscrowAttestation(ctx context.Context, fulfillment *entity.Attestation) (*entity.Attestation, error) {
	if fulfillment.RefUID == (common.Hash{}) {
		return nil, fmt.Errorf("%w: fulfillment %s has no ref uid", entity.ErrMalformedInput, fulfillment.UID.Hex())
	}
	return e.client.GetAttestation(ctx, fulfillment.RefUID)
}

// GetEscrowAndDemand resolves the referenced escrow attestation and decodes
// its demand in one call.
func (e *Engine) GetEscrowAndDemand(ctx context.Context, fulfillment *entity.Attestation) (*entity.Attestation, *entity.DemandData, error) {
	escrow, err := e.GetEscrowAttestation(ctx, fulfillment)
	if err != nil {
		return nil, nil, err
	}
	demand, err := e.codec.DecodeEscrowDemand(escrow.Data)
	if err != nil {
		return nil, nil, err
	}
	return escrow, demand, nil
}

// ArbitratePast runs the historical arbitration path: it fetches all past
// arbitration requests for the configured oracle, evaluates each through
// the decision function, submits transactions for affirmative verdicts, and
// returns the ordered decision log.
//
// Item-scoped failures (submission rejected, decision function failed) are
// logged and skip only that item; a ledger query failure aborts the whole
// run with a QueryError.
func (e *Engine) ArbitratePast(ctx context.Context, arb Arbitrator, opts entity.ArbitrateOptions) ([]entity.Decision, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "oracle.arbitratePast",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("oracle.address", e.config.Oracle.Hex()),
			attribute.Bool("options.skip_arbitrated", opts.SkipArbitrated),
			attribute.Bool("options.only_new", opts.OnlyNew),
		),
	)
	defer span.End()

	start := uint64(time.Now().Unix())

	atts, err := e.source.FetchHistorical(ctx, e.config.Oracle)
	if err != nil {
		qerr := &entity.QueryError{Op: "fetch_historical", Err: err}
		span.RecordError(qerr)
		span.SetStatus(codes.Error, "historical fetch failed")
		return nil, qerr
	}
	span.SetAttributes(attribute.Int("attestations.fetched", len(atts)))

	lg := &decisionLog{}
	for _, att := range atts {
		if ctx.Err() != nil {
			return lg.snapshot(), ctx.Err()
		}
		if err := e.processAttestation(ctx, arb, att, opts, start, lg, nil); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "arbitration run aborted")
			return lg.snapshot(), err
		}
	}

	span.SetAttributes(attribute.Int("decisions.count", len(lg.decisions)))
	e.logger.Info("historical arbitration completed",
		"fetched", len(atts), "decisions", len(lg.decisions))
	return lg.snapshot(), nil
}

// ListenAndArbitrate runs the live arbitration path. Unless opts.OnlyNew is
// set, the backlog of past arbitration requests is drained first (without
// notification callbacks); the live stream is then consumed until the
// timeout elapses, Unsubscribe is called, or the stream ends naturally.
// Timeout and cancellation are normal terminations, not errors.
//
// A zero timeout listens until cancelled.
func (e *Engine) ListenAndArbitrate(ctx context.Context, arb Arbitrator, notify NotifyFunc, opts entity.ArbitrateOptions, timeout time.Duration) (*entity.ListenResult, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "oracle.listenAndArbitrate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("oracle.address", e.config.Oracle.Hex()),
			attribute.Bool("options.skip_arbitrated", opts.SkipArbitrated),
			attribute.Bool("options.only_new", opts.OnlyNew),
			attribute.Int64("timeout_ms", timeout.Milliseconds()),
		),
	)
	defer span.End()

	var opCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		opCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		opCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	sub, err := e.subs.add(cancel)
	if err != nil {
		return nil, err
	}
	defer e.subs.remove(sub.id)
	span.SetAttributes(attribute.String("subscription.id", sub.id.Hex()))

	// Subscribe before draining the backlog so no event falls in the gap
	// between the historical query and the live stream.
	stream, err := e.source.Subscribe(opCtx, e.config.Oracle)
	if err != nil {
		sub.finish(stateCancelled)
		qerr := &entity.QueryError{Op: "subscribe", Err: err}
		span.RecordError(qerr)
		span.SetStatus(codes.Error, "subscription failed")
		return nil, qerr
	}
	defer stream.Close()

	// Notifier queue: one goroutine per listen drains it, keeping callback
	// and sink latency off the evaluation path. It outlives the operation
	// context so queued notifications still flush during teardown.
	notifyCtx := context.WithoutCancel(ctx)
	notifyCh := make(chan entity.Decision, e.config.NotifyBufferSize)
	notifierDone := make(chan struct{})
	go func() {
		defer close(notifierDone)
		for d := range notifyCh {
			e.dispatchNotification(notifyCtx, &d, notify)
		}
	}()

	enqueue := func(d entity.Decision) {
		select {
		case notifyCh <- d:
		default:
			e.logger.Warn("notification queue full, dropping decision notification",
				"uid", d.Attestation.UID.Hex(), "subscription", sub.id.Hex())
		}
	}

	start := uint64(time.Now().Unix())
	lg := &decisionLog{}
	seen := make(map[common.Hash]struct{})
	var opErr error

	// Backlog drain. Past decisions land in the log but do not trigger the
	// notification callback; only arbitrations observed live do.
	if !opts.OnlyNew {
		atts, err := e.source.FetchHistorical(opCtx, e.config.Oracle)
		if err != nil {
			opErr = &entity.QueryError{Op: "fetch_historical", Err: err}
		} else {
			for _, att := range atts {
				if opCtx.Err() != nil {
					break
				}
				if _, dup := seen[att.UID]; dup {
					continue
				}
				seen[att.UID] = struct{}{}
				if err := e.processAttestation(opCtx, arb, att, opts, start, lg, nil); err != nil {
					opErr = err
					break
				}
			}
		}
	}

	for opErr == nil {
		select {
		case <-opCtx.Done():
			if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
				sub.finish(stateTimedOut)
			} else {
				sub.finish(stateCancelled)
			}
		case streamErr, ok := <-stream.Err():
			if ok && streamErr != nil {
				opErr = &entity.QueryError{Op: "stream", Err: streamErr}
			}
			sub.finish(stateCancelled)
		case att, ok := <-stream.Events():
			if !ok {
				// A stream that failed terminally closes its events channel
				// with the error still pending; pick it up before treating
				// the close as natural completion.
				select {
				case streamErr, errOk := <-stream.Err():
					if errOk && streamErr != nil {
						opErr = &entity.QueryError{Op: "stream", Err: streamErr}
					}
				default:
				}
				if opErr != nil {
					sub.finish(stateCancelled)
				} else {
					sub.finish(stateCompleted)
				}
				break
			}
			if _, dup := seen[att.UID]; dup {
				continue
			}
			seen[att.UID] = struct{}{}
			if err := e.processAttestation(opCtx, arb, att, opts, start, lg, enqueue); err != nil {
				opErr = err
				sub.finish(stateCancelled)
			}
			continue
		}
		break
	}
	if opErr != nil {
		sub.finish(stateCancelled)
	}

	close(notifyCh)
	<-notifierDone

	result := &entity.ListenResult{
		Decisions:      lg.snapshot(),
		SubscriptionID: sub.id,
	}
	span.SetAttributes(
		attribute.Int("decisions.count", len(result.Decisions)),
		attribute.String("subscription.state", sub.currentState().String()),
	)
	if opErr != nil {
		span.RecordError(opErr)
		span.SetStatus(codes.Error, "listen aborted")
		return result, opErr
	}
	e.logger.Info("listen completed",
		"subscription", sub.id.Hex(),
		"state", sub.currentState().String(),
		"decisions", len(result.Decisions))
	return result, nil
}

// Unsubscribe cancels the live listen with the given subscription id.
// Idempotent: unknown ids and already-terminal subscriptions are no-ops.
func (e *Engine) Unsubscribe(id common.Hash) {
	e.subs.unsubscribe(id)
}

// processAttestation runs the per-attestation pipeline: filter, evaluate,
// submit, record. The returned error is operation-scoped only; item-scoped
// failures are logged and swallowed.
func (e *Engine) processAttestation(ctx context.Context, arb Arbitrator, att *entity.Attestation, opts entity.ArbitrateOptions, start uint64, lg *decisionLog, notify func(entity.Decision)) error {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "oracle.processAttestation",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("attestation.uid", att.UID.Hex()),
			attribute.Int64("attestation.time", int64(att.Time)),
		),
	)
	defer span.End()

	if opts.OnlyNew && att.Time < start {
		span.SetAttributes(attribute.String("skip", "before_start"))
		return nil
	}
	if opts.EscrowUID != (common.Hash{}) && att.RefUID != opts.EscrowUID {
		span.SetAttributes(attribute.String("skip", "escrow_mismatch"))
		return nil
	}
	if opts.SkipArbitrated {
		decided, err := e.hasDecision(ctx, att.UID)
		if err != nil {
			qerr := &entity.QueryError{Op: "arbitration_status", Err: err}
			span.RecordError(qerr)
			span.SetStatus(codes.Error, "status lookup failed")
			return qerr
		}
		if decided {
			span.SetAttributes(attribute.String("skip", "already_arbitrated"))
			return nil
		}
	}

	verdict := e.eval.evaluate(ctx, arb, att)
	span.SetAttributes(attribute.String("verdict", verdict.String()))
	if verdict == entity.VerdictAbstain {
		return nil
	}

	// From here the item either becomes a fully recorded Decision or
	// nothing: submission and recording run on an uncancelled context so a
	// timeout landing mid-submission cannot leave a half-recorded item.
	finishCtx := context.WithoutCancel(ctx)

	decision := entity.Decision{Attestation: att, Decision: verdict == entity.VerdictApprove}
	if verdict == entity.VerdictApprove {
		tx, err := e.client.SubmitArbitration(finishCtx, att.UID, e.config.Oracle, true)
		if err != nil {
			// Item-scoped: no Decision for this attestation, keep going.
			span.RecordError(err)
			span.SetStatus(codes.Error, "submission rejected")
			e.logger.Warn("arbitration submission rejected",
				"uid", att.UID.Hex(), "error", err)
			return nil
		}
		decision.TxHash = tx
		span.SetAttributes(attribute.String("tx.hash", tx.Hex()))
		if e.config.StatusCache != nil {
			if err := e.config.StatusCache.Set(finishCtx, att.UID, e.config.Oracle); err != nil {
				e.logger.Warn("failed to cache arbitration status", "uid", att.UID.Hex(), "error", err)
			}
		}
	}

	lg.append(decision)
	e.record(finishCtx, &decision)
	if notify != nil {
		notify(decision)
	}
	return nil
}

// hasDecision checks whether the oracle already arbitrated the attestation,
// consulting the status cache first. Outcomes are immutable, so a cached
// positive is authoritative.
func (e *Engine) hasDecision(ctx context.Context, uid common.Hash) (bool, error) {
	if e.config.StatusCache != nil {
		decided, known, err := e.config.StatusCache.Get(ctx, uid, e.config.Oracle)
		if err != nil {
			e.logger.Warn("status cache lookup failed, falling through to ledger", "uid", uid.Hex(), "error", err)
		} else if known {
			return decided, nil
		}
	}

	decided, err := e.client.HasDecision(ctx, uid, e.config.Oracle)
	if err != nil {
		return false, err
	}
	if decided && e.config.StatusCache != nil {
		if err := e.config.StatusCache.Set(ctx, uid, e.config.Oracle); err != nil {
			e.logger.Warn("failed to cache arbitration status", "uid", uid.Hex(), "error", err)
		}
	}
	return decided, nil
}

// record mirrors a decision to the durable store, best-effort.
func (e *Engine) record(ctx context.Context, d *entity.Decision) {
	if e.config.Store == nil {
		return
	}
	if err := e.config.Store.RecordDecision(ctx, e.config.Oracle, d); err != nil {
		e.logger.Warn("failed to record decision", "uid", d.Attestation.UID.Hex(), "error", err)
	}
}

// dispatchNotification delivers one decision to the caller's callback and
// the configured sink. Failures are swallowed and logged; a panicking
// callback must not bring the notifier down.
func (e *Engine) dispatchNotification(ctx context.Context, d *entity.Decision, notify NotifyFunc) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("notification callback panicked",
				"uid", d.Attestation.UID.Hex(),
				"panic", fmt.Sprintf("%v", r))
		}
	}()

	if notify != nil {
		notify(d)
	}
	if e.config.Sink != nil {
		if err := e.config.Sink.Publish(ctx, d); err != nil {
			e.logger.Warn("decision sink publish failed", "uid", d.Attestation.UID.Hex(), "error", err)
		}
	}
}
