package tx

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/pumpbox/pkg/crypto"
	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// Structural limits for a program transaction.
const (
	MaxAccounts   = 16
	MaxSignatures = 8
	MaxDataSize   = 4096
)

// Transaction validation errors.
var (
	ErrNoData            = errors.New("transaction has no instruction data")
	ErrDataTooLarge      = errors.New("instruction data too large")
	ErrNoAccounts        = errors.New("transaction declares no accounts")
	ErrTooManyAccounts   = errors.New("too many accounts")
	ErrTooManySignatures = errors.New("too many signatures")
	ErrMissingSig        = errors.New("signer account has no signature")
	ErrInvalidSig        = errors.New("invalid signature")
	ErrUnexpectedSig     = errors.New("signature from a non-signer key")
)

// Validate performs structural checks that need no state.
func (tx *Transaction) Validate() error {
	if len(tx.Data) == 0 {
		return ErrNoData
	}
	if len(tx.Data) > MaxDataSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrDataTooLarge, len(tx.Data), MaxDataSize)
	}
	if len(tx.Accounts) == 0 {
		return ErrNoAccounts
	}
	if len(tx.Accounts) > MaxAccounts {
		return fmt.Errorf("%w: %d, max %d", ErrTooManyAccounts, len(tx.Accounts), MaxAccounts)
	}
	if len(tx.Signatures) > MaxSignatures {
		return fmt.Errorf("%w: %d, max %d", ErrTooManySignatures, len(tx.Signatures), MaxSignatures)
	}
	return nil
}

// VerifySignatures checks that every signer account carries exactly one
// valid signature over the transaction hash, and that no signature comes
// from a key outside the signer set.
func (tx *Transaction) VerifySignatures() error {
	hash := tx.Hash()
	signers := tx.Signers()
	want := make(map[types.Address]bool, len(signers))
	for _, s := range signers {
		want[s] = true
	}

	verified := make(map[types.Address]bool, len(tx.Signatures))
	for i, sig := range tx.Signatures {
		addr := crypto.AddressFromPubKey(sig.PubKey)
		if !want[addr] {
			return fmt.Errorf("signature %d: %w: %s", i, ErrUnexpectedSig, addr)
		}
		if !crypto.VerifyFor(addr, hash[:], sig.Sig, sig.PubKey) {
			return fmt.Errorf("signature %d: %w", i, ErrInvalidSig)
		}
		verified[addr] = true
	}
	for _, s := range signers {
		if !verified[s] {
			return fmt.Errorf("%w: %s", ErrMissingSig, s)
		}
	}
	return nil
}
