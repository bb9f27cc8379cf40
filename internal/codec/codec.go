// Package codec encodes and decodes the ABI payloads carried by escrow and
// fulfillment attestations.
//
// Two payload shapes exist. A fulfillment attestation carries an obligation:
// a single-field tuple holding the obligation string. An escrow attestation
// carries an arbiter demand: an outer tuple (address oracle, bytes demand)
// whose demand bytes are themselves a tuple (address oracle, bytes data)
// naming the trusted oracle and its opaque demand payload.
package codec

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/escrow-research/oracle-engine/internal/domain/entity"
)

type obligationTuple struct {
	Item string
}

type demandTuple struct {
	Oracle common.Address
	Data   []byte
}

// Codec holds the parsed ABI argument layouts. Construct once with New and
// share freely; all methods are pure and safe for concurrent use.
type Codec struct {
	obligationArgs abi.Arguments
	demandArgs     abi.Arguments
	escrowArgs     abi.Arguments
}

// New builds a Codec with the obligation and demand tuple layouts parsed.
func New() (*Codec, error) {
	obligationType, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "item", Type: "string"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build obligation type: %w", err)
	}

	demandType, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "oracle", Type: "address"},
		{Name: "data", Type: "bytes"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build demand type: %w", err)
	}

	escrowType, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "oracle", Type: "address"},
		{Name: "demand", Type: "bytes"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build escrow demand type: %w", err)
	}

	return &Codec{
		obligationArgs: abi.Arguments{{Type: obligationType}},
		demandArgs:     abi.Arguments{{Type: demandType}},
		escrowArgs:     abi.Arguments{{Type: escrowType}},
	}, nil
}

// DecodeObligation extracts the obligation string from a fulfillment
// attestation's data payload.
func (c *Codec) DecodeObligation(data []byte) (string, error) {
	if len(data) == 0 {
		return "", &entity.DecodeError{Reason: "empty obligation payload"}
	}
	vals, err := c.obligationArgs.Unpack(data)
	if err != nil {
		return "", &entity.DecodeError{Reason: "obligation payload has wrong shape", Err: err}
	}
	out := *abi.ConvertType(vals[0], new(obligationTuple)).(*obligationTuple)
	return out.Item, nil
}

// EncodeObligation packs an obligation string into its attestation payload.
func (c *Codec) EncodeObligation(item string) ([]byte, error) {
	data, err := c.obligationArgs.Pack(obligationTuple{Item: item})
	if err != nil {
		return nil, fmt.Errorf("failed to encode obligation: %w", err)
	}
	return data, nil
}

// DecodeDemand extracts oracle and payload from encoded trusted-oracle
// demand bytes (the inner layer).
func (c *Codec) DecodeDemand(data []byte) (*entity.DemandData, error) {
	if len(data) == 0 {
		return nil, &entity.DecodeError{Reason: "empty demand payload"}
	}
	vals, err := c.demandArgs.Unpack(data)
	if err != nil {
		return nil, &entity.DecodeError{Reason: "demand payload has wrong shape", Err: err}
	}
	out := *abi.ConvertType(vals[0], new(demandTuple)).(*demandTuple)
	return &entity.DemandData{Oracle: out.Oracle, Data: out.Data}, nil
}

// EncodeDemand packs a DemandData back into its wire form. Round-trips with
// DecodeDemand.
func (c *Codec) EncodeDemand(d *entity.DemandData) ([]byte, error) {
	data, err := c.demandArgs.Pack(demandTuple{Oracle: d.Oracle, Data: d.Data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode demand: %w", err)
	}
	return data, nil
}

// DecodeEscrowDemand unwraps an escrow attestation's data payload: the outer
// arbiter demand names the arbiter-facing oracle and carries inner demand
// bytes, which decode to the trusted-oracle DemandData.
func (c *Codec) DecodeEscrowDemand(data []byte) (*entity.DemandData, error) {
	if len(data) == 0 {
		return nil, &entity.DecodeError{Reason: "empty escrow payload"}
	}
	vals, err := c.escrowArgs.Unpack(data)
	if err != nil {
		return nil, &entity.DecodeError{Reason: "escrow demand has wrong shape", Err: err}
	}
	outer := *abi.ConvertType(vals[0], new(struct {
		Oracle common.Address
		Demand []byte
	})).(*struct {
		Oracle common.Address
		Demand []byte
	})
	return c.DecodeDemand(outer.Demand)
}

// EncodeEscrowDemand packs a DemandData into the full two-layer escrow
// payload. Round-trips with DecodeEscrowDemand.
func (c *Codec) EncodeEscrowDemand(d *entity.DemandData) ([]byte, error) {
	inner, err := c.EncodeDemand(d)
	if err != nil {
		return nil, err
	}
	data, err := c.escrowArgs.Pack(struct {
		Oracle common.Address
		Demand []byte
	}{Oracle: d.Oracle, Demand: inner})
	if err != nil {
		return nil, fmt.Errorf("failed to encode escrow demand: %w", err)
	}
	return data, nil
}
