// Package crypto provides hashing, signing and address derivation for PumpBox.
package crypto

import (
	"encoding/binary"

	"github.com/Klingon-tech/pumpbox/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// HashParts hashes the concatenation of parts without an intermediate copy.
func HashParts(parts ...[]byte) types.Hash {
	h := blake3.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// AddressFromPubKey derives an address from a compressed public key.
// Address = BLAKE3(compressed_pubkey).
func AddressFromPubKey(pubKey []byte) types.Address {
	return types.Address(Hash(pubKey))
}

// mintDomain separates mint derivation from other BLAKE3 uses.
var mintDomain = []byte("mint")

// DeriveMint computes the mint address for the creator's nonce-th token.
// Mint = BLAKE3("mint" || creator || nonce_le64).
func DeriveMint(creator types.Address, nonce uint64) types.Address {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], nonce)
	return types.Address(HashParts(mintDomain, creator[:], n[:]))
}
