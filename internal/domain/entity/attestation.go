package entity

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Attestation is an immutable on-chain record asserting some fact. The data
// payload is opaque at this level; the codec package interprets it.
//
// An attestation is never mutated after issuance. Revocation sets a nonzero
// RevocationTime on the ledger, but the record identity and historical values
// are fixed.
type Attestation struct {
	UID            common.Hash
	Schema         common.Hash
	RefUID         common.Hash
	Time           uint64
	ExpirationTime uint64
	RevocationTime uint64
	Recipient      common.Address
	Attester       common.Address
	Revocable      bool
	Data           []byte
}

// NewAttestation creates an Attestation and validates its identity fields.
func NewAttestation(uid, schema, refUID common.Hash, t, expiration, revocation uint64, recipient, attester common.Address, revocable bool, data []byte) (*Attestation, error) {
	a := &Attestation{
		UID:            uid,
		Schema:         schema,
		RefUID:         refUID,
		Time:           t,
		ExpirationTime: expiration,
		RevocationTime: revocation,
		Recipient:      recipient,
		Attester:       attester,
		Revocable:      revocable,
		Data:           data,
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// validate checks that the attestation has an identity.
func (a *Attestation) validate() error {
	if a.UID == (common.Hash{}) {
		return fmt.Errorf("%w: attestation uid must not be zero", ErrMalformedInput)
	}
	return nil
}

// Revoked reports whether the attestation has been revoked on the ledger.
func (a *Attestation) Revoked() bool {
	return a.RevocationTime != 0
}

func (a *Attestation) String() string {
	return fmt.Sprintf("Attestation(uid=%s, schema=%s, attester=%s, recipient=%s)",
		a.UID.Hex(), a.Schema.Hex(), a.Attester.Hex(), a.Recipient.Hex())
}
