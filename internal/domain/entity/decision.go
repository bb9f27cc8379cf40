package entity

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Decision records the outcome of evaluating one attestation. Exactly one
// Decision is produced per attestation for which the arbitrator returned an
// explicit verdict; abstentions produce nothing.
//
// TxHash is the arbitration transaction hash for affirmative decisions and
// the zero hash for negative ones, which are recorded but never submitted.
// A Decision is immutable once appended to a decision log.
type Decision struct {
	Attestation *Attestation
	Decision    bool
	TxHash      common.Hash
}

// Submitted reports whether this decision resulted in an on-chain transaction.
func (d *Decision) Submitted() bool {
	return d.TxHash != (common.Hash{})
}

func (d *Decision) String() string {
	return fmt.Sprintf("Decision(uid=%s, decision=%t, tx=%s)", d.Attestation.UID.Hex(), d.Decision, d.TxHash.Hex())
}

// ArbitrateOptions controls which attestations an arbitration run considers.
type ArbitrateOptions struct {
	// SkipArbitrated excludes attestations that already carry a recorded
	// arbitration outcome. The decision function is not invoked for them.
	SkipArbitrated bool

	// OnlyNew excludes attestations created before the operation started.
	OnlyNew bool

	// EscrowUID, when nonzero, restricts the run to fulfillments whose
	// RefUID references this escrow attestation.
	EscrowUID common.Hash
}

// ListenResult is returned when a live listen operation ends, whether by
// timeout, explicit cancellation, or natural stream completion.
type ListenResult struct {
	Decisions      []Decision
	SubscriptionID common.Hash
}

// Verdict is the tri-state outcome of a decision function.
type Verdict int

const (
	// VerdictAbstain means the arbitrator declined to answer. No Decision
	// is recorded and the attestation is not retried automatically.
	VerdictAbstain Verdict = iota

	// VerdictApprove triggers an on-chain arbitration transaction.
	VerdictApprove

	// VerdictReject records a negative Decision without a transaction.
	VerdictReject
)

func (v Verdict) String() string {
	switch v {
	case VerdictApprove:
		return "approve"
	case VerdictReject:
		return "reject"
	default:
		return "abstain"
	}
}

// Outcome is the resolution of a deferred decision function.
type Outcome struct {
	Verdict Verdict
	Err     error
}

// DemandData is the decoded demand attached to an escrow attestation: the
// oracle the escrow defers to, plus opaque bytes the oracle interprets.
type DemandData struct {
	Oracle common.Address
	Data   []byte
}
