package hexutil

import (
	"errors"
	"strings"
	"testing"

	"github.com/escrow-research/oracle-engine/internal/domain/entity"
)

func TestParseUID(t *testing.T) {
	valid := "0x" + strings.Repeat("ab", 32)

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", valid, false},
		{"missing prefix", strings.Repeat("ab", 32), true},
		{"too short", "0xabcd", true},
		{"too long", valid + "ff", true},
		{"not hex", "0x" + strings.Repeat("zz", 32), true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUID(tt.input)
			if tt.wantErr {
				if !errors.Is(err, entity.ErrMalformedInput) {
					t.Fatalf("expected ErrMalformedInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Hex() != valid {
				t.Errorf("expected %s, got %s", valid, got.Hex())
			}
		})
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "0x" + strings.Repeat("ab", 20), false},
		{"valid without prefix", strings.Repeat("ab", 20), false},
		{"too short", "0xabcd", true},
		{"not hex", "0x" + strings.Repeat("zz", 20), true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAddress(tt.input)
			if tt.wantErr && !errors.Is(err, entity.ErrMalformedInput) {
				t.Fatalf("expected ErrMalformedInput, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseUint64(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    uint64
		wantErr bool
	}{
		{"zero", "0x0", 0, false},
		{"small", "0x10", 16, false},
		{"large", "0xffffffffffffffff", ^uint64(0), false},
		{"missing prefix", "10", 0, true},
		{"bare prefix", "0x", 0, true},
		{"not hex", "0xzz", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUint64(tt.input)
			if tt.wantErr {
				if !errors.Is(err, entity.ErrMalformedInput) {
					t.Fatalf("expected ErrMalformedInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
