package state

import (
	"encoding/binary"
	"errors"

	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// Key layout.
var (
	prefixRecord     = []byte("t/") // t/<record(32)> -> TokenRecord JSON
	prefixBalance    = []byte("a/") // a/<address(32)> -> uint64 BE
	prefixHolding    = []byte("h/") // h/<holding(32)> -> Holding JSON
	prefixAllocation = []byte("l/") // l/<allocation(32)> -> Allocation JSON
	prefixNonce      = []byte("n/") // n/<creator(32)> -> uint64 BE
	prefixTicker     = []byte("k/") // k/<TICKER> -> record(32)
	prefixProcessed  = []byte("x/") // x/<txhash(32)> -> unix seconds BE

	keyConfigHash = []byte("meta/config")
)

var errBadValue = errors.New("malformed stored value")

func addrKey(prefix []byte, addr types.Address) []byte {
	key := make([]byte, len(prefix)+types.AddressSize)
	copy(key, prefix)
	copy(key[len(prefix):], addr[:])
	return key
}

func recordKey(addr types.Address) []byte     { return addrKey(prefixRecord, addr) }
func balanceKey(addr types.Address) []byte    { return addrKey(prefixBalance, addr) }
func holdingKey(addr types.Address) []byte    { return addrKey(prefixHolding, addr) }
func allocationKey(addr types.Address) []byte { return addrKey(prefixAllocation, addr) }
func nonceKey(addr types.Address) []byte      { return addrKey(prefixNonce, addr) }

func tickerKey(ticker string) []byte {
	return append(append([]byte{}, prefixTicker...), ticker...)
}

func processedKey(h types.Hash) []byte {
	key := make([]byte, len(prefixProcessed)+types.HashSize)
	copy(key, prefixProcessed)
	copy(key[len(prefixProcessed):], h[:])
	return key
}

func encodeUint64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func decodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, errBadValue
	}
	return binary.BigEndian.Uint64(b), nil
}
