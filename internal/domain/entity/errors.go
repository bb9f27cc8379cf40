package entity

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrMalformedInput marks inputs rejected by validation before any network
// interaction (bad address or uid strings, wrong byte lengths). Never retried.
var ErrMalformedInput = errors.New("malformed input")

// NotFoundError indicates an attestation uid unknown to the ledger.
type NotFoundError struct {
	UID common.Hash
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("attestation %s not found", e.UID.Hex())
}

// DecodeError indicates the codec rejected a payload's shape. Item-scoped:
// in batch paths it aborts only the offending item.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode failed: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// QueryError indicates a ledger read failure. Operation-scoped: it aborts
// the whole arbitration run and surfaces to the caller.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("ledger query %s failed: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// SubmissionError indicates the ledger rejected an arbitration transaction
// (already arbitrated, insufficient authorization, stale nonce, reverted).
// Item-scoped: the current attestation produces no Decision, processing of
// subsequent attestations continues.
type SubmissionError struct {
	UID common.Hash
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("arbitration submission for %s rejected: %v", e.UID.Hex(), e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
