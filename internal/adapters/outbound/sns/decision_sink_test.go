package sns

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/ethereum/go-ethereum/common"

	"github.com/escrow-research/oracle-engine/internal/domain/entity"
)

// mockPublisher records publish calls and can fail a configurable number
// of times before succeeding.
type mockPublisher struct {
	mu        sync.Mutex
	inputs    []*awssns.PublishInput
	failTimes int
	failWith  error
}

func (m *mockPublisher) Publish(ctx context.Context, params *awssns.PublishInput, optFns ...func(*awssns.Options)) (*awssns.PublishOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, params)
	if m.failTimes > 0 {
		m.failTimes--
		return nil, m.failWith
	}
	return &awssns.PublishOutput{}, nil
}

func (m *mockPublisher) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

func testConfig() Config {
	cfg := ConfigDefaults()
	cfg.TopicARN = "arn:aws:sns:us-east-1:123456789012:decisions"
	cfg.Oracle = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	cfg.InitialBackoff = 1 * time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func testDecision() *entity.Decision {
	return &entity.Decision{
		Attestation: &entity.Attestation{
			UID:    common.BytesToHash([]byte{1}),
			RefUID: common.BytesToHash([]byte{9}),
			Time:   1700000000,
		},
		Decision: true,
		TxHash:   common.BytesToHash([]byte{0xff}),
	}
}

func TestNewDecisionSinkValidation(t *testing.T) {
	if _, err := NewDecisionSink(nil, testConfig()); err == nil {
		t.Error("expected error for nil client")
	}

	cfg := testConfig()
	cfg.TopicARN = ""
	if _, err := NewDecisionSink(&mockPublisher{}, cfg); err == nil {
		t.Error("expected error for missing topic ARN")
	}
}

func TestPublishMessageShape(t *testing.T) {
	pub := &mockPublisher{}
	sink, err := NewDecisionSink(pub, testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d := testDecision()
	if err := sink.Publish(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pub.calls() != 1 {
		t.Fatalf("expected 1 publish, got %d", pub.calls())
	}
	input := pub.inputs[0]

	var msg decisionMessage
	if err := json.Unmarshal([]byte(*input.Message), &msg); err != nil {
		t.Fatalf("failed to parse message body: %v", err)
	}
	if msg.AttestationUID != d.Attestation.UID.Hex() || !msg.Decision || msg.TxHash != d.TxHash.Hex() {
		t.Errorf("unexpected message body: %+v", msg)
	}

	if attr, ok := input.MessageAttributes["decision"]; !ok || *attr.StringValue != "true" {
		t.Errorf("expected decision attribute true, got %+v", input.MessageAttributes)
	}
}

func TestPublishOmitsTxHashForRejections(t *testing.T) {
	pub := &mockPublisher{}
	sink, err := NewDecisionSink(pub, testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d := testDecision()
	d.Decision = false
	d.TxHash = common.Hash{}
	if err := sink.Publish(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var msg decisionMessage
	if err := json.Unmarshal([]byte(*pub.inputs[0].Message), &msg); err != nil {
		t.Fatalf("failed to parse message body: %v", err)
	}
	if msg.TxHash != "" {
		t.Errorf("expected no tx hash for a rejection, got %q", msg.TxHash)
	}
}

func TestPublishRetriesThrottling(t *testing.T) {
	pub := &mockPublisher{failTimes: 2, failWith: &types.ThrottledException{}}
	sink, err := NewDecisionSink(pub, testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sink.Publish(context.Background(), testDecision()); err != nil {
		t.Fatalf("expected retries to succeed, got %v", err)
	}
	if pub.calls() != 3 {
		t.Errorf("expected 3 attempts, got %d", pub.calls())
	}
}

func TestPublishGivesUpAfterRetries(t *testing.T) {
	pub := &mockPublisher{failTimes: 100, failWith: &types.InternalErrorException{}}
	cfg := testConfig()
	cfg.MaxRetries = 2
	sink, err := NewDecisionSink(pub, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sink.Publish(context.Background(), testDecision()); err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if pub.calls() != 3 {
		t.Errorf("expected 3 attempts, got %d", pub.calls())
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	pub := &mockPublisher{}
	sink, err := NewDecisionSink(pub, testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sink.Publish(context.Background(), testDecision()); err == nil {
		t.Error("expected an error publishing on a closed sink")
	}
	if pub.calls() != 0 {
		t.Errorf("expected no publish attempts, got %d", pub.calls())
	}
}

func TestIsRetryableError(t *testing.T) {
	if isRetryableError(context.Canceled) {
		t.Error("context cancellation must not be retried")
	}
	if !isRetryableError(&types.ThrottledException{}) {
		t.Error("throttling should be retried")
	}
	if !isRetryableError(errors.New("connection reset")) {
		t.Error("unknown errors should be retried")
	}
}
