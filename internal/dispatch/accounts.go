package dispatch

import (
	"fmt"

	"github.com/Klingon-tech/pumpbox/internal/state"
	"github.com/Klingon-tech/pumpbox/pkg/instruction"
	"github.com/Klingon-tech/pumpbox/pkg/tx"
	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// Account positions shared by the instruction layouts.
const (
	idxSigner = 0
	idxRecord = 1

	idxFulfillFeeRecipient = 2

	idxHolding           = 2
	idxTradeFeeRecipient = 3
	idxAllocation        = 4
)

// slot is the required flag set of one declared account.
type slot struct {
	signer   bool
	writable bool
	// feeRecipient marks the slot that must hold the configured fee
	// recipient. Credits to it settle at commit, so it is never locked.
	feeRecipient bool
}

var layouts = map[instruction.Kind][]slot{
	instruction.KindCreate: {
		{signer: true, writable: true},
		{writable: true},
	},
	instruction.KindFulfill: {
		{signer: true},
		{writable: true},
		{writable: true, feeRecipient: true},
	},
	instruction.KindReclaim: {
		{signer: true, writable: true},
		{writable: true},
	},
	instruction.KindBuy: {
		{signer: true, writable: true},
		{writable: true},
		{writable: true},
		{writable: true, feeRecipient: true},
		{writable: true},
	},
	instruction.KindSell: {
		{signer: true, writable: true},
		{writable: true},
		{writable: true},
		{writable: true, feeRecipient: true},
	},
	instruction.KindStartFairLaunch: {
		{signer: true},
		{writable: true},
	},
	instruction.KindFinalize: {
		{signer: true},
		{writable: true},
	},
}

// checkLayout verifies the account count, the signer and writable flags and
// the fee recipient position for kind.
func checkLayout(kind instruction.Kind, accounts []tx.AccountMeta, feeRecipient types.Address) error {
	want, ok := layouts[kind]
	if !ok {
		return fmt.Errorf("%w: no account layout for %s", state.ErrMalformedRequest, kind)
	}
	if len(accounts) != len(want) {
		return fmt.Errorf("%w: %s takes %d accounts, got %d", state.ErrAccountMismatch, kind, len(want), len(accounts))
	}
	for i, s := range want {
		a := accounts[i]
		if a.IsSigner != s.signer {
			return fmt.Errorf("%w: account %d signer flag %t, want %t", state.ErrAccountMismatch, i, a.IsSigner, s.signer)
		}
		if a.IsWritable != s.writable {
			return fmt.Errorf("%w: account %d writable flag %t, want %t", state.ErrAccountMismatch, i, a.IsWritable, s.writable)
		}
		if s.feeRecipient && a.Address != feeRecipient {
			return fmt.Errorf("%w: account %d is %s, fee recipient is %s", state.ErrAccountMismatch, i, a.Address, feeRecipient)
		}
	}
	return nil
}

// expectAccount compares a declared account against the derived one.
func expectAccount(role string, got, want types.Address) error {
	if got != want {
		return fmt.Errorf("%w: %s account %s, expected %s", state.ErrAccountMismatch, role, got, want)
	}
	return nil
}
