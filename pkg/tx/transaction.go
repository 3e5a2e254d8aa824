// Package tx defines program transactions: an instruction, the accounts it
// declares, and signatures from its signer accounts.
package tx

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/Klingon-tech/pumpbox/pkg/crypto"
	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// AccountMeta declares one account touched by a transaction.
type AccountMeta struct {
	Address    types.Address `json:"address"`
	IsSigner   bool          `json:"is_signer"`
	IsWritable bool          `json:"is_writable"`
}

// Signature binds a public key to a signature over the transaction hash.
type Signature struct {
	PubKey []byte `json:"pubkey"`
	Sig    []byte `json:"signature"`
}

// signatureJSON is the JSON representation of Signature with hex fields.
type signatureJSON struct {
	PubKey string `json:"pubkey"`
	Sig    string `json:"signature"`
}

// MarshalJSON encodes the signature with hex-encoded fields.
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(signatureJSON{
		PubKey: hex.EncodeToString(s.PubKey),
		Sig:    hex.EncodeToString(s.Sig),
	})
}

// UnmarshalJSON decodes a signature with hex-encoded fields.
func (s *Signature) UnmarshalJSON(data []byte) error {
	var j signatureJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	pub, err := hex.DecodeString(j.PubKey)
	if err != nil {
		return fmt.Errorf("pubkey: %w", err)
	}
	sig, err := hex.DecodeString(j.Sig)
	if err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	s.PubKey, s.Sig = pub, sig
	return nil
}

// Transaction is one program invocation.
type Transaction struct {
	ProgramID  types.Address `json:"program_id"`
	Accounts   []AccountMeta `json:"accounts"`
	Data       []byte        `json:"data"`
	Nonce      uint64        `json:"nonce"`
	Signatures []Signature   `json:"signatures"`
}

// message is the signed portion of a transaction.
type message struct {
	ProgramID types.Address
	Accounts  []AccountMeta
	Data      []byte
	Nonce     uint64
}

// SigningBytes returns the borsh encoding of everything except signatures.
func (tx *Transaction) SigningBytes() []byte {
	var buf bytes.Buffer
	m := message{
		ProgramID: tx.ProgramID,
		Accounts:  tx.Accounts,
		Data:      tx.Data,
		Nonce:     tx.Nonce,
	}
	// Encoding plain fixed-layout structs into a bytes.Buffer does not fail.
	_ = bin.NewBorshEncoder(&buf).Encode(m)
	return buf.Bytes()
}

// Hash computes the transaction ID (BLAKE3 of the signing bytes).
// Signatures are excluded so signers can sign the ID itself.
func (tx *Transaction) Hash() types.Hash {
	return crypto.Hash(tx.SigningBytes())
}

// Marshal returns the full borsh wire encoding, signatures included.
func (tx *Transaction) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := bin.NewBorshEncoder(&buf).Encode(*tx); err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a borsh-encoded transaction. Trailing bytes are rejected.
func Unmarshal(data []byte) (*Transaction, error) {
	dec := bin.NewBorshDecoder(data)
	var t Transaction
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	if dec.Remaining() != 0 {
		return nil, fmt.Errorf("decode transaction: %d trailing bytes", dec.Remaining())
	}
	return &t, nil
}

// Signers returns the addresses flagged as signers, in declaration order.
func (tx *Transaction) Signers() []types.Address {
	var out []types.Address
	for _, a := range tx.Accounts {
		if a.IsSigner {
			out = append(out, a.Address)
		}
	}
	return out
}

// WritableAccounts returns the distinct writable addresses.
func (tx *Transaction) WritableAccounts() []types.Address {
	seen := make(map[types.Address]bool, len(tx.Accounts))
	var out []types.Address
	for _, a := range tx.Accounts {
		if a.IsWritable && !seen[a.Address] {
			seen[a.Address] = true
			out = append(out, a.Address)
		}
	}
	return out
}
