package crypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Klingon-tech/pumpbox/pkg/types"
)

func TestFindProgramAddress_OffCurve(t *testing.T) {
	program := types.Address{0x50, 0x55, 0x4d, 0x50}
	mint := types.Address{0x01, 0x02, 0x03}

	addr, bump, err := FindProgramAddress([][]byte{[]byte("token"), mint[:]}, program)
	if err != nil {
		t.Fatalf("FindProgramAddress() error: %v", err)
	}
	if IsOnCurve(addr[:]) {
		t.Error("derived address should be off curve")
	}
	if bump == 0 {
		t.Error("bump should be non-zero")
	}

	// Recreating with the returned bump yields the same address.
	again, err := CreateProgramAddress([][]byte{[]byte("token"), mint[:], {bump}}, program)
	if err != nil {
		t.Fatalf("CreateProgramAddress() error: %v", err)
	}
	if again != addr {
		t.Errorf("CreateProgramAddress = %s, want %s", again, addr)
	}
}

func TestFindProgramAddress_SeedsMatter(t *testing.T) {
	program := types.Address{0x01}
	a, _, err := FindProgramAddress([][]byte{[]byte("holding"), {0x01}}, program)
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := FindProgramAddress([][]byte{[]byte("holding"), {0x02}}, program)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("different seeds should produce different addresses")
	}

	c, _, err := FindProgramAddress([][]byte{[]byte("holding"), {0x01}}, types.Address{0x02})
	if err != nil {
		t.Fatal(err)
	}
	if a == c {
		t.Error("different programs should produce different addresses")
	}
}

func TestCreateProgramAddress_Limits(t *testing.T) {
	program := types.Address{0x01}

	_, err := CreateProgramAddress([][]byte{bytes.Repeat([]byte{1}, MaxSeedLength+1)}, program)
	if !errors.Is(err, ErrSeedTooLong) {
		t.Errorf("long seed: got %v, want %v", err, ErrSeedTooLong)
	}

	seeds := make([][]byte, MaxSeeds+1)
	_, err = CreateProgramAddress(seeds, program)
	if !errors.Is(err, ErrTooManySeeds) {
		t.Errorf("too many seeds: got %v, want %v", err, ErrTooManySeeds)
	}
}

func TestIsOnCurve(t *testing.T) {
	// The ed25519 base point encoding is on the curve.
	base := []byte{
		0x58, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
		0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
		0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
		0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
	}
	if !IsOnCurve(base) {
		t.Error("base point should be on curve")
	}
	if IsOnCurve([]byte{0x01}) {
		t.Error("short input should not be on curve")
	}
}
