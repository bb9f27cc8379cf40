package eas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/escrow-research/oracle-engine/internal/domain/entity"
	"github.com/escrow-research/oracle-engine/internal/ports/outbound"
)

// Compile-time check that subscriber implements outbound.AttestationStream
var _ outbound.AttestationStream = (*subscriber)(nil)

// attestationResolver turns a raw arbitration-request event into the full
// attestation record. Injected so the stream logic is testable without a
// ledger.
type attestationResolver func(ctx context.Context, uid common.Hash) (*entity.Attestation, error)

// errSubscriptionRejected marks a definitive eth_subscribe refusal from the
// node. Unlike a dropped connection, it does not heal with a reconnect.
var errSubscriptionRejected = errors.New("subscription rejected")

type jsonRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type jsonRPCMessage struct {
	ID     int             `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type subscriptionParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

type logEvent struct {
	Topics  []common.Hash `json:"topics"`
	Data    string        `json:"data"`
	Removed bool          `json:"removed"`
}

// subscriber maintains one WebSocket subscription to arbitration-request
// events for a single oracle, reconnecting with exponential backoff until
// closed. Resolved attestations are delivered in event order.
type subscriber struct {
	config    Config
	oracle    common.Address
	eventID   common.Hash
	resolve   attestationResolver
	logger    *slog.Logger
	events    chan *entity.Attestation
	errs      chan error
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newSubscriber(config Config, oracle common.Address, eventID common.Hash, resolve attestationResolver) *subscriber {
	return &subscriber{
		config:  config,
		oracle:  oracle,
		eventID: eventID,
		resolve: resolve,
		logger:  config.Logger.With("component", "eas-subscriber", "oracle", oracle.Hex()),
		events:  make(chan *entity.Attestation, config.ChannelBufferSize),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
}

func (s *subscriber) Events() <-chan *entity.Attestation { return s.events }
func (s *subscriber) Err() <-chan error                  { return s.errs }

// Close tears the subscription down. Idempotent.
func (s *subscriber) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	return nil
}

// start launches the connection loop. The stream lives until Close is
// called or the context is cancelled.
func (s *subscriber) start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.events)
		s.run(ctx)
	}()
}

// run connects, reads until failure, and reconnects with backoff. A failed
// reconnect attempt grows the backoff; a session that got as far as a
// confirmed subscription resets it. Failures that cannot heal through a
// reconnect (the node rejects the subscription, or no session confirms one
// within MaxConnectAttempts tries) are surfaced on the error channel and
// end the stream.
func (s *subscriber) run(ctx context.Context) {
	backoff := s.config.InitialBackoff
	unconfirmed := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		default:
		}

		subscribed, err := s.session(ctx)
		if err == nil {
			return
		}
		if errors.Is(err, errSubscriptionRejected) {
			s.fail(err)
			return
		}
		if subscribed {
			backoff = s.config.InitialBackoff
			unconfirmed = 0
		} else {
			unconfirmed++
			if unconfirmed >= s.config.MaxConnectAttempts {
				s.fail(fmt.Errorf("no confirmed subscription after %d attempts: %w", unconfirmed, err))
				return
			}
		}

		s.logger.Warn("subscription session ended, reconnecting",
			"error", err, "backoff", backoff.String())

		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * s.config.BackoffFactor)
		if backoff > s.config.MaxBackoff {
			backoff = s.config.MaxBackoff
		}
	}
}

// session runs one WebSocket connection: dial, subscribe, read until the
// connection dies or the stream is closed. Returns whether the subscription
// was confirmed before failing; a nil error means the stream was shut down
// deliberately.
func (s *subscriber) session(ctx context.Context) (bool, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.config.WebSocketURL, nil)
	cancel()
	if err != nil {
		return false, fmt.Errorf("failed to dial websocket: %w", err)
	}
	defer conn.Close()

	// Close or ctx cancellation must unblock a pending read.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		case <-stop:
			return
		}
		conn.Close()
	}()

	if err := s.subscribe(conn); err != nil {
		return false, err
	}
	s.logger.Debug("subscribed to arbitration requests")

	pings := time.NewTicker(s.config.PingInterval)
	defer pings.Stop()
	go func() {
		for {
			select {
			case <-pings.C:
				deadline := time.Now().Add(s.config.PingInterval)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			case <-stop:
				return
			}
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
			return true, fmt.Errorf("failed to set read deadline: %w", err)
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return true, nil
			case <-s.done:
				return true, nil
			default:
			}
			return true, fmt.Errorf("read failed: %w", err)
		}
		if err := s.handleMessage(ctx, payload); err != nil {
			s.logger.Warn("failed to handle subscription message", "error", err)
		}
	}
}

// subscribe sends the eth_subscribe request and waits for its confirmation.
func (s *subscriber) subscribe(conn *websocket.Conn) error {
	filter := map[string]interface{}{
		"address": s.config.Arbiter.Hex(),
		"topics": []interface{}{
			s.eventID.Hex(),
			nil,
			addressTopic(s.oracle).Hex(),
		},
	}
	req := jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: "eth_subscribe", Params: []interface{}{"logs", filter}}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("failed to send subscribe request: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
		return fmt.Errorf("failed to set read deadline: %w", err)
	}
	_, payload, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read subscribe response: %w", err)
	}
	var resp jsonRPCMessage
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("failed to parse subscribe response: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%w: %s (code %d)", errSubscriptionRejected, resp.Error.Message, resp.Error.Code)
	}
	return nil
}

// fail reports a fatal stream error to the consumer. The channel holds one
// error; the first failure wins.
func (s *subscriber) fail(err error) {
	s.logger.Error("subscription stream failed", "error", err)
	select {
	case s.errs <- err:
	default:
	}
}

// handleMessage processes one inbound WebSocket frame. Only subscription
// notifications carrying a well-formed arbitration request produce events.
func (s *subscriber) handleMessage(ctx context.Context, payload []byte) error {
	var msg jsonRPCMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Method != "eth_subscription" {
		return nil
	}

	var params subscriptionParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return fmt.Errorf("failed to parse notification params: %w", err)
	}
	var ev logEvent
	if err := json.Unmarshal(params.Result, &ev); err != nil {
		return fmt.Errorf("failed to parse log event: %w", err)
	}
	if ev.Removed {
		// Reorged-out request; the replacing block emits it again.
		return nil
	}
	if len(ev.Topics) < 3 || ev.Topics[0] != s.eventID {
		return nil
	}

	uid := ev.Topics[1]
	att, err := s.resolve(ctx, uid)
	if err != nil {
		return fmt.Errorf("failed to resolve attestation %s: %w", uid.Hex(), err)
	}

	select {
	case s.events <- att:
	case <-s.done:
	case <-ctx.Done():
	}
	return nil
}
