package state

import (
	"fmt"

	"github.com/Klingon-tech/pumpbox/pkg/crypto"
	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// Seeds of the program-derived accounts.
var (
	seedToken      = []byte("token")
	seedHolding    = []byte("holding")
	seedAllocation = []byte("allocation")
	seedTicker     = []byte("ticker")
)

// RecordAddress derives the token record address of a mint.
func RecordAddress(programID, mint types.Address) (types.Address, error) {
	return derive(programID, seedToken, mint[:])
}

// HoldingAddress derives the holding account of owner for mint.
func HoldingAddress(programID, mint, owner types.Address) (types.Address, error) {
	return derive(programID, seedHolding, mint[:], owner[:])
}

// AllocationAddress derives the fair launch ledger entry of participant for mint.
func AllocationAddress(programID, mint, participant types.Address) (types.Address, error) {
	return derive(programID, seedAllocation, mint[:], participant[:])
}

// TickerLockKey returns the address used to serialize claims on a ticker.
// It is never stored; it only names the lock.
func TickerLockKey(programID types.Address, ticker string) types.Address {
	return types.Address(crypto.HashParts(seedTicker, programID[:], []byte(ticker)))
}

func derive(programID types.Address, seeds ...[]byte) (types.Address, error) {
	addr, _, err := crypto.FindProgramAddress(seeds, programID)
	if err != nil {
		return types.Address{}, fmt.Errorf("derive %s: %w", seeds[0], err)
	}
	return addr, nil
}
