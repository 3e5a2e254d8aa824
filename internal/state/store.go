package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/pumpbox/config"
	"github.com/Klingon-tech/pumpbox/internal/storage"
	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// ErrConfigMismatch is returned by Init when the state was initialized from
// a different program config.
var ErrConfigMismatch = errors.New("program config does not match initialized state")

// Backend is a key-value store with atomic batches.
type Backend interface {
	storage.DB
	storage.Batcher
}

// Store is the committed program state.
type Store struct {
	db Backend

	// commitMu serializes commits. Execution runs in parallel under account
	// locks; only the final batch write and balance settlement are serial.
	commitMu sync.Mutex
}

// NewStore creates a state store on top of db.
func NewStore(db Backend) *Store {
	return &Store{db: db}
}

// Init seeds the initial balances on first use and records the config hash.
// On later runs it only checks the hash. Returns true when the state was
// freshly initialized.
func (s *Store) Init(p *config.ProgramConfig) (bool, error) {
	h, err := p.Hash()
	if err != nil {
		return false, err
	}

	stored, ok, err := s.get(keyConfigHash)
	if err != nil {
		return false, err
	}
	if ok {
		if !bytes.Equal(stored, h[:]) {
			return false, ErrConfigMismatch
		}
		return false, nil
	}

	batch := s.db.NewBatch()
	for addrStr, amount := range p.Alloc {
		addr, err := types.ParseAddress(addrStr)
		if err != nil {
			return false, fmt.Errorf("alloc address %q: %w", addrStr, err)
		}
		if err := batch.Put(balanceKey(addr), encodeUint64(amount)); err != nil {
			return false, err
		}
	}
	if err := batch.Put(keyConfigHash, h[:]); err != nil {
		return false, err
	}
	if err := batch.Commit(); err != nil {
		return false, fmt.Errorf("init state: %w", err)
	}
	return true, nil
}

// Begin starts a changeset over the current committed state.
func (s *Store) Begin() *Changeset {
	return &Changeset{
		store:   s,
		writes:  make(map[string][]byte),
		credits: make(map[types.Address]uint64),
		debits:  make(map[types.Address]uint64),
	}
}

func (s *Store) get(key []byte) ([]byte, bool, error) {
	v, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Record returns the committed record at addr.
func (s *Store) Record(addr types.Address) (*TokenRecord, error) {
	return readRecord(s.get, addr)
}

// RecordByMint returns the committed record of a mint.
func (s *Store) RecordByMint(programID, mint types.Address) (*TokenRecord, error) {
	addr, err := RecordAddress(programID, mint)
	if err != nil {
		return nil, err
	}
	return s.Record(addr)
}

// ForEachRecord iterates over all committed records.
// Return a non-nil error from fn to stop iteration early.
func (s *Store) ForEachRecord(fn func(*TokenRecord) error) error {
	return s.db.ForEach(prefixRecord, func(key, value []byte) error {
		if len(key) < len(prefixRecord)+types.AddressSize {
			return nil // Malformed key, skip.
		}
		var rec TokenRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil // Skip corrupt entries.
		}
		return fn(&rec)
	})
}

// Records returns all committed records.
func (s *Store) Records() ([]*TokenRecord, error) {
	recs := []*TokenRecord{}
	err := s.ForEachRecord(func(r *TokenRecord) error {
		recs = append(recs, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// Balance returns the committed base balance of addr.
func (s *Store) Balance(addr types.Address) (uint64, error) {
	return readUint64(s.get, balanceKey(addr))
}

// Holding returns the committed holding at addr. Missing holdings have a
// zero amount.
func (s *Store) Holding(addr types.Address) (Holding, error) {
	var h Holding
	_, err := readJSON(s.get, holdingKey(addr), &h)
	return h, err
}

// Allocation returns the committed allocation entry at addr.
func (s *Store) Allocation(addr types.Address) (Allocation, error) {
	var a Allocation
	_, err := readJSON(s.get, allocationKey(addr), &a)
	return a, err
}

// Nonce returns the committed mint nonce of creator.
func (s *Store) Nonce(creator types.Address) (uint64, error) {
	return readUint64(s.get, nonceKey(creator))
}

// Processed reports whether a transaction hash was already committed.
func (s *Store) Processed(h types.Hash) (bool, error) {
	_, ok, err := s.get(processedKey(h))
	return ok, err
}

type getFunc func(key []byte) ([]byte, bool, error)

func readJSON(get getFunc, key []byte, v any) (bool, error) {
	data, ok, err := get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %q: %w", key[:2], err)
	}
	return true, nil
}

func readRecord(get getFunc, addr types.Address) (*TokenRecord, error) {
	var rec TokenRecord
	ok, err := readJSON(get, recordKey(addr), &rec)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", addr, err)
	}
	if !ok {
		return nil, fmt.Errorf("record %s: %w", addr, ErrNotFound)
	}
	return &rec, nil
}

func readUint64(get getFunc, key []byte) (uint64, error) {
	data, ok, err := get(key)
	if err != nil || !ok {
		return 0, err
	}
	return decodeUint64(data)
}
