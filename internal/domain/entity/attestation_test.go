package entity

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestNewAttestationRejectsZeroUID(t *testing.T) {
	_, err := NewAttestation(common.Hash{}, common.Hash{}, common.Hash{}, 0, 0, 0, common.Address{}, common.Address{}, false, nil)
	if !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}

	att, err := NewAttestation(common.BytesToHash([]byte{1}), common.Hash{}, common.Hash{}, 0, 0, 0, common.Address{}, common.Address{}, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if att.UID != common.BytesToHash([]byte{1}) {
		t.Errorf("unexpected uid %s", att.UID.Hex())
	}
}

func TestAttestationRevoked(t *testing.T) {
	att := Attestation{UID: common.BytesToHash([]byte{1})}
	if att.Revoked() {
		t.Error("zero revocation time means not revoked")
	}
	att.RevocationTime = 1700000000
	if !att.Revoked() {
		t.Error("nonzero revocation time means revoked")
	}
}

func TestDecisionSubmitted(t *testing.T) {
	d := Decision{Attestation: &Attestation{UID: common.BytesToHash([]byte{1})}}
	if d.Submitted() {
		t.Error("zero tx hash means not submitted")
	}
	d.TxHash = common.BytesToHash([]byte{0xff})
	if !d.Submitted() {
		t.Error("nonzero tx hash means submitted")
	}
}

func TestVerdictStrings(t *testing.T) {
	cases := map[Verdict]string{
		VerdictAbstain: "abstain",
		VerdictApprove: "approve",
		VerdictReject:  "reject",
	}
	for v, want := range cases {
		if got := v.String(); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}

func TestErrorWrapping(t *testing.T) {
	inner := errors.New("boom")

	qerr := &QueryError{Op: "fetch", Err: inner}
	if !errors.Is(qerr, inner) {
		t.Error("QueryError should unwrap to its cause")
	}

	serr := &SubmissionError{UID: common.BytesToHash([]byte{1}), Err: inner}
	if !errors.Is(serr, inner) {
		t.Error("SubmissionError should unwrap to its cause")
	}

	derr := &DecodeError{Reason: "bad shape", Err: inner}
	if !errors.Is(derr, inner) {
		t.Error("DecodeError should unwrap to its cause")
	}
}
