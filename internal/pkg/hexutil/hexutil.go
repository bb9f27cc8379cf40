// Package hexutil validates and parses hex-encoded identifiers at the
// system boundary, before any network interaction.
package hexutil

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/escrow-research/oracle-engine/internal/domain/entity"
)

// ParseUID parses a 32-byte identifier from its 0x-prefixed hex form.
// Rejects wrong lengths and non-hex input with entity.ErrMalformedInput.
func ParseUID(s string) (common.Hash, error) {
	raw, ok := strings.CutPrefix(s, "0x")
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: uid %q missing 0x prefix", entity.ErrMalformedInput, s)
	}
	if len(raw) != 2*common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: uid %q has %d hex chars, want %d", entity.ErrMalformedInput, s, len(raw), 2*common.HashLength)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: uid %q is not hex: %v", entity.ErrMalformedInput, s, err)
	}
	return common.BytesToHash(b), nil
}

// ParseAddress parses a 20-byte address from its 0x-prefixed hex form.
// Rejects wrong lengths and non-hex input with entity.ErrMalformedInput.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q is not a valid address", entity.ErrMalformedInput, s)
	}
	return common.HexToAddress(s), nil
}

// ParseUint64 parses a hex quantity as delivered by JSON-RPC (e.g. "0x10").
func ParseUint64(s string) (uint64, error) {
	raw, ok := strings.CutPrefix(s, "0x")
	if !ok || raw == "" {
		return 0, fmt.Errorf("%w: quantity %q missing 0x prefix", entity.ErrMalformedInput, s)
	}
	v, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: quantity %q is not hex: %v", entity.ErrMalformedInput, s, err)
	}
	return v, nil
}
