package tx

import (
	"fmt"

	"github.com/Klingon-tech/pumpbox/pkg/crypto"
	"github.com/Klingon-tech/pumpbox/pkg/instruction"
	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// Builder constructs transactions incrementally.
type Builder struct {
	tx  *Transaction
	err error
}

// NewBuilder creates a builder targeting programID.
func NewBuilder(programID types.Address) *Builder {
	return &Builder{tx: &Transaction{ProgramID: programID}}
}

// Instruction encodes p as the transaction data.
func (b *Builder) Instruction(p instruction.Payload) *Builder {
	data, err := instruction.Encode(p)
	if err != nil {
		b.err = err
		return b
	}
	b.tx.Data = data
	return b
}

// Signer appends a signer account.
func (b *Builder) Signer(addr types.Address, writable bool) *Builder {
	b.tx.Accounts = append(b.tx.Accounts, AccountMeta{Address: addr, IsSigner: true, IsWritable: writable})
	return b
}

// Writable appends a writable non-signer account.
func (b *Builder) Writable(addr types.Address) *Builder {
	b.tx.Accounts = append(b.tx.Accounts, AccountMeta{Address: addr, IsWritable: true})
	return b
}

// ReadOnly appends a read-only non-signer account.
func (b *Builder) ReadOnly(addr types.Address) *Builder {
	b.tx.Accounts = append(b.tx.Accounts, AccountMeta{Address: addr})
	return b
}

// Nonce sets the transaction nonce.
func (b *Builder) Nonce(n uint64) *Builder {
	b.tx.Nonce = n
	return b
}

// Sign signs the transaction with each key and returns it.
func (b *Builder) Sign(keys ...*crypto.PrivateKey) (*Transaction, error) {
	if b.err != nil {
		return nil, b.err
	}
	hash := b.tx.Hash()
	for _, key := range keys {
		sig, err := key.Sign(hash[:])
		if err != nil {
			return nil, fmt.Errorf("sign tx: %w", err)
		}
		b.tx.Signatures = append(b.tx.Signatures, Signature{PubKey: key.PublicKey(), Sig: sig})
	}
	return b.tx, nil
}

// Build returns the unsigned transaction.
func (b *Builder) Build() (*Transaction, error) {
	return b.tx, b.err
}
