// Package sns implements the DecisionSink interface using AWS SNS.
//
// This adapter publishes arbitration decisions to an SNS topic, where
// downstream consumers (settlement services, audit pipelines) can subscribe
// to be notified as decisions are made. Decisions are serialized as JSON
// messages with attributes for filtering by oracle and outcome.
//
// For testing, use the memory.DecisionSink adapter instead.
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/ethereum/go-ethereum/common"

	"github.com/escrow-research/oracle-engine/internal/domain/entity"
	"github.com/escrow-research/oracle-engine/internal/pkg/retry"
	"github.com/escrow-research/oracle-engine/internal/ports/outbound"
)

// Compile-time check that DecisionSink implements outbound.DecisionSink
var _ outbound.DecisionSink = (*DecisionSink)(nil)

// SNSPublisher defines the subset of SNS client methods used by the sink.
// This interface allows for easy mocking in tests.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Config holds configuration for the SNS decision sink.
type Config struct {
	// TopicARN is the SNS topic decisions are published to.
	TopicARN string

	// Oracle is the oracle identity stamped onto every message.
	Oracle common.Address

	// MaxRetries is the maximum number of retry attempts for transient
	// failures. Set to 0 to disable retries.
	MaxRetries int

	// InitialBackoff is the initial delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each retry.
	BackoffFactor float64

	// Logger is the structured logger for the sink.
	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		Logger:         slog.Default(),
	}
}

// decisionMessage is the JSON body published per decision.
type decisionMessage struct {
	Oracle         string `json:"oracle"`
	AttestationUID string `json:"attestationUid"`
	RefUID         string `json:"refUid"`
	Decision       bool   `json:"decision"`
	TxHash         string `json:"txHash,omitempty"`
	AttestedAt     uint64 `json:"attestedAt"`
}

// DecisionSink publishes arbitration decisions to AWS SNS.
type DecisionSink struct {
	client    SNSPublisher
	config    Config
	logger    *slog.Logger
	closeOnce sync.Once
	closed    bool
	mu        sync.RWMutex
}

// NewDecisionSink creates a new SNS decision sink.
func NewDecisionSink(client SNSPublisher, config Config) (*DecisionSink, error) {
	if client == nil {
		return nil, errors.New("sns client is required")
	}
	if config.TopicARN == "" {
		return nil, errors.New("topic ARN is required")
	}

	defaults := ConfigDefaults()
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = defaults.BackoffFactor
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &DecisionSink{
		client: client,
		config: config,
		logger: config.Logger.With("component", "sns-decision-sink"),
	}, nil
}

// Publish publishes one decision to SNS.
func (s *DecisionSink) Publish(ctx context.Context, d *entity.Decision) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return errors.New("decision sink is closed")
	}
	s.mu.RUnlock()

	msg := decisionMessage{
		Oracle:         s.config.Oracle.Hex(),
		AttestationUID: d.Attestation.UID.Hex(),
		RefUID:         d.Attestation.RefUID.Hex(),
		Decision:       d.Decision,
		AttestedAt:     d.Attestation.Time,
	}
	if d.Submitted() {
		msg.TxHash = d.TxHash.Hex()
	}

	messageBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}

	attributes := map[string]types.MessageAttributeValue{
		"oracle": {
			DataType:    aws.String("String"),
			StringValue: aws.String(s.config.Oracle.Hex()),
		},
		"decision": {
			DataType:    aws.String("String"),
			StringValue: aws.String(strconv.FormatBool(d.Decision)),
		},
	}

	input := &sns.PublishInput{
		TopicArn:          aws.String(s.config.TopicARN),
		Message:           aws.String(string(messageBytes)),
		MessageAttributes: attributes,
	}

	return s.publishWithRetry(ctx, input, d)
}

// publishWithRetry attempts to publish with exponential backoff on
// transient failures.
func (s *DecisionSink) publishWithRetry(ctx context.Context, input *sns.PublishInput, d *entity.Decision) error {
	cfg := retry.Config{
		MaxRetries:     s.config.MaxRetries,
		InitialBackoff: s.config.InitialBackoff,
		MaxBackoff:     s.config.MaxBackoff,
		BackoffFactor:  s.config.BackoffFactor,
		Jitter:         true,
	}
	onRetry := func(attempt int, err error, backoff time.Duration) {
		s.logger.Warn("publish failed, retrying",
			"attempt", attempt,
			"maxRetries", s.config.MaxRetries,
			"backoff", backoff,
			"error", err,
			"uid", d.Attestation.UID.Hex(),
		)
	}

	err := retry.DoVoid(ctx, cfg, isRetryableError, onRetry, func() error {
		_, err := s.client.Publish(ctx, input)
		return err
	})
	if err != nil {
		s.logger.Error("publish failed",
			"error", err,
			"uid", d.Attestation.UID.Hex(),
		)
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}
	return nil
}

// isRetryableError determines if an error should trigger a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var throttleErr *types.ThrottledException
	if errors.As(err, &throttleErr) {
		return true
	}

	var internalErr *types.InternalErrorException
	if errors.As(err, &internalErr) {
		return true
	}

	var kmsThrottleErr *types.KMSThrottlingException
	if errors.As(err, &kmsThrottleErr) {
		return true
	}

	// Default to retrying on unknown errors (network issues, etc.)
	return true
}

// Close marks the sink as closed and prevents further publishing.
func (s *DecisionSink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.logger.Info("SNS decision sink closed")
	})
	return nil
}
