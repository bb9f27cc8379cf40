package memory

import (
	"context"
	"crypto/sha256"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/escrow-research/oracle-engine/internal/domain/entity"
	"github.com/escrow-research/oracle-engine/internal/ports/outbound"
)

// Compile-time check that ArbitrationClient implements outbound.ArbitrationClient
var _ outbound.ArbitrationClient = (*ArbitrationClient)(nil)

// ArbitrationClient is an in-memory ledger for arbitration reads and writes.
// Submissions are recorded and assigned deterministic pseudo transaction
// hashes.
type ArbitrationClient struct {
	mu           sync.Mutex
	attestations map[common.Hash]*entity.Attestation
	decided      map[common.Hash]bool
	submissions  []Submission

	// SubmitErr, when set, makes every SubmitArbitration call fail.
	SubmitErr error
	// StatusErr, when set, makes every HasDecision call fail.
	StatusErr error
}

// Submission is one recorded arbitration write.
type Submission struct {
	UID      common.Hash
	Oracle   common.Address
	Decision bool
}

// NewArbitrationClient creates a new in-memory arbitration client.
func NewArbitrationClient() *ArbitrationClient {
	return &ArbitrationClient{
		attestations: make(map[common.Hash]*entity.Attestation),
		decided:      make(map[common.Hash]bool),
	}
}

// PutAttestation stores an attestation for GetAttestation lookups.
func (c *ArbitrationClient) PutAttestation(att *entity.Attestation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attestations[att.UID] = att
}

// MarkDecided records a prior arbitration outcome for the attestation.
func (c *ArbitrationClient) MarkDecided(uid common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decided[uid] = true
}

// Submissions returns a copy of the recorded arbitration writes, in order.
func (c *ArbitrationClient) Submissions() []Submission {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Submission, len(c.submissions))
	copy(out, c.submissions)
	return out
}

func (c *ArbitrationClient) GetAttestation(ctx context.Context, uid common.Hash) (*entity.Attestation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	att, ok := c.attestations[uid]
	if !ok {
		return nil, &entity.NotFoundError{UID: uid}
	}
	return att, nil
}

func (c *ArbitrationClient) HasDecision(ctx context.Context, uid common.Hash, oracle common.Address) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.StatusErr != nil {
		return false, c.StatusErr
	}
	return c.decided[uid], nil
}

func (c *ArbitrationClient) SubmitArbitration(ctx context.Context, uid common.Hash, oracle common.Address, decision bool) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubmitErr != nil {
		return common.Hash{}, &entity.SubmissionError{UID: uid, Err: c.SubmitErr}
	}
	c.decided[uid] = true
	c.submissions = append(c.submissions, Submission{UID: uid, Oracle: oracle, Decision: decision})
	return pseudoTxHash("arbitrate", uid, oracle), nil
}

func (c *ArbitrationClient) RequestArbitration(ctx context.Context, uid common.Hash, oracle common.Address) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return pseudoTxHash("request", uid, oracle), nil
}

func pseudoTxHash(op string, uid common.Hash, oracle common.Address) common.Hash {
	h := sha256.New()
	h.Write([]byte(op))
	h.Write(uid[:])
	h.Write(oracle[:])
	return common.BytesToHash(h.Sum(nil))
}
