package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// AddressSize is the length of an address in bytes.
const AddressSize = 32

// Address identifies an account: a user key, a token mint, or a
// program-derived record. Text form is base58.
type Address [AddressSize]byte

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the base58-encoded address.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// Hex returns the raw hex-encoded address.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// Bytes returns a copy of the address as a byte slice.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// Less reports whether a sorts before b. Used for deterministic lock ordering.
func (a Address) Less(b Address) bool {
	for i := 0; i < AddressSize; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// MarshalJSON encodes the address as a base58 string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a base58 or hex string into an address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a base58 or raw 64-char hex address string.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	if isHex64(s) {
		return HexToAddress(s)
	}
	decoded, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid base58 address: %w", err)
	}
	if len(decoded) != AddressSize {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(decoded))
	}
	var a Address
	copy(a[:], decoded)
	return a, nil
}

// HexToAddress converts a raw hex string to an Address.
// For user-facing input, use ParseAddress instead.
func HexToAddress(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// isHex64 returns true if s is exactly 64 hex characters.
func isHex64(s string) bool {
	if len(s) != 2*AddressSize {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
