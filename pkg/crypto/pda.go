package crypto

import (
	"crypto/sha256"
	"errors"

	"filippo.io/edwards25519"

	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// pdaMarker is appended to every program-derived address preimage.
const pdaMarker = "ProgramDerivedAddress"

// MaxSeedLength bounds a single seed.
const MaxSeedLength = 32

// MaxSeeds bounds the number of seeds, bump included.
const MaxSeeds = 16

var (
	ErrSeedTooLong    = errors.New("seed exceeds max length")
	ErrTooManySeeds   = errors.New("too many seeds")
	ErrNoViableBump   = errors.New("no viable bump seed")
	ErrOnCurveAddress = errors.New("derived address lies on the ed25519 curve")
)

// CreateProgramAddress hashes seeds with the program ID. The result must not
// be a valid ed25519 point, so no private key can ever sign for it.
func CreateProgramAddress(seeds [][]byte, programID types.Address) (types.Address, error) {
	if len(seeds) > MaxSeeds {
		return types.Address{}, ErrTooManySeeds
	}
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return types.Address{}, ErrSeedTooLong
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var addr types.Address
	copy(addr[:], h.Sum(nil))
	if IsOnCurve(addr[:]) {
		return types.Address{}, ErrOnCurveAddress
	}
	return addr, nil
}

// FindProgramAddress searches bump seeds from 255 downward and returns the
// first off-curve address along with its bump.
func FindProgramAddress(seeds [][]byte, programID types.Address) (types.Address, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump > 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurveAddress) {
			return types.Address{}, 0, err
		}
	}
	return types.Address{}, 0, ErrNoViableBump
}

// IsOnCurve reports whether b decodes to a valid ed25519 point.
func IsOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
