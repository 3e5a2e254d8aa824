package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/Klingon-tech/pumpbox/pkg/fixed"
	"github.com/Klingon-tech/pumpbox/pkg/types"
)

var errCommitted = errors.New("changeset already committed")

// Changeset buffers the writes of one request on top of the committed store.
//
// Records, holdings, allocations, nonces and tickers are written as absolute
// values; the caller must hold the account locks that cover them. Base
// balances are tracked as credits and debits and settled at commit time, so
// a shared account such as the fee recipient can be credited by requests
// that do not lock it.
type Changeset struct {
	store     *Store
	writes    map[string][]byte
	credits   map[types.Address]uint64
	debits    map[types.Address]uint64
	committed bool
}

func (c *Changeset) get(key []byte) ([]byte, bool, error) {
	if v, ok := c.writes[string(key)]; ok {
		return v, true, nil
	}
	return c.store.get(key)
}

func (c *Changeset) put(key, value []byte) {
	c.writes[string(key)] = value
}

func (c *Changeset) putJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key[:2], err)
	}
	c.put(key, data)
	return nil
}

// Record returns the record at addr as seen by this changeset.
func (c *Changeset) Record(addr types.Address) (*TokenRecord, error) {
	return readRecord(c.get, addr)
}

// HasRecord reports whether a record exists at addr.
func (c *Changeset) HasRecord(addr types.Address) (bool, error) {
	_, ok, err := c.get(recordKey(addr))
	return ok, err
}

// PutRecord stages a record write.
func (c *Changeset) PutRecord(r *TokenRecord) error {
	return c.putJSON(recordKey(r.Address), r)
}

// Balance returns the base balance of addr including staged credits and debits.
func (c *Changeset) Balance(addr types.Address) (uint64, error) {
	committed, err := readUint64(c.store.get, balanceKey(addr))
	if err != nil {
		return 0, err
	}
	bal, err := fixed.Add(committed, c.credits[addr])
	if err != nil {
		return 0, ErrOverflow
	}
	bal, err = fixed.Sub(bal, c.debits[addr])
	if err != nil {
		return 0, ErrInsufficientBalance
	}
	return bal, nil
}

// Credit stages adding amount to the base balance of addr.
func (c *Changeset) Credit(addr types.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	bal, err := c.Balance(addr)
	if err != nil {
		return err
	}
	if _, err := fixed.Add(bal, amount); err != nil {
		return fmt.Errorf("credit %s: %w", addr, ErrOverflow)
	}
	c.credits[addr] += amount
	return nil
}

// Debit stages removing amount from the base balance of addr.
func (c *Changeset) Debit(addr types.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	bal, err := c.Balance(addr)
	if err != nil {
		return err
	}
	if bal < amount {
		return fmt.Errorf("debit %s: have %d, need %d: %w", addr, bal, amount, ErrInsufficientBalance)
	}
	c.debits[addr] += amount
	return nil
}

// Holding returns the holding at addr. Missing holdings have a zero amount.
func (c *Changeset) Holding(addr types.Address) (Holding, error) {
	var h Holding
	_, err := readJSON(c.get, holdingKey(addr), &h)
	return h, err
}

// PutHolding stages a holding write.
func (c *Changeset) PutHolding(addr types.Address, h Holding) error {
	return c.putJSON(holdingKey(addr), h)
}

// Allocation returns the allocation entry at addr.
func (c *Changeset) Allocation(addr types.Address) (Allocation, error) {
	var a Allocation
	_, err := readJSON(c.get, allocationKey(addr), &a)
	return a, err
}

// PutAllocation stages an allocation write.
func (c *Changeset) PutAllocation(addr types.Address, a Allocation) error {
	return c.putJSON(allocationKey(addr), a)
}

// Nonce returns the creator's current mint nonce.
func (c *Changeset) Nonce(creator types.Address) (uint64, error) {
	return readUint64(c.get, nonceKey(creator))
}

// NextNonce returns the creator's current nonce and stages its increment.
func (c *Changeset) NextNonce(creator types.Address) (uint64, error) {
	key := nonceKey(creator)
	n, err := readUint64(c.get, key)
	if err != nil {
		return 0, err
	}
	c.put(key, encodeUint64(n+1))
	return n, nil
}

// ClaimTicker registers ticker for the record at addr.
func (c *Changeset) ClaimTicker(ticker string, addr types.Address) error {
	key := tickerKey(ticker)
	_, ok, err := c.get(key)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %s", ErrTickerTaken, ticker)
	}
	c.put(key, addr.Bytes())
	return nil
}

// Processed reports whether a transaction hash was already committed.
func (c *Changeset) Processed(h types.Hash) (bool, error) {
	_, ok, err := c.get(processedKey(h))
	return ok, err
}

// MarkProcessed stages the transaction hash as processed at unix time at.
func (c *Changeset) MarkProcessed(h types.Hash, at int64) {
	c.put(processedKey(h), encodeUint64(uint64(at)))
}

// Commit writes the changeset in one batch. Staged balance changes are
// settled against the balances committed at that moment.
func (c *Changeset) Commit() error {
	if c.committed {
		return errCommitted
	}
	s := c.store
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	batch := s.db.NewBatch()

	keys := make([]string, 0, len(c.writes))
	for k := range c.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := batch.Put([]byte(k), c.writes[k]); err != nil {
			return err
		}
	}

	for _, addr := range c.touchedBalances() {
		cur, err := readUint64(s.get, balanceKey(addr))
		if err != nil {
			return err
		}
		bal, err := fixed.Add(cur, c.credits[addr])
		if err != nil {
			return fmt.Errorf("settle %s: %w", addr, ErrOverflow)
		}
		if bal, err = fixed.Sub(bal, c.debits[addr]); err != nil {
			return fmt.Errorf("settle %s: %w", addr, ErrInsufficientBalance)
		}
		if err := batch.Put(balanceKey(addr), encodeUint64(bal)); err != nil {
			return err
		}
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit changeset: %w", err)
	}
	c.committed = true
	return nil
}

func (c *Changeset) touchedBalances() []types.Address {
	seen := make(map[types.Address]struct{}, len(c.credits)+len(c.debits))
	for a := range c.credits {
		seen[a] = struct{}{}
	}
	for a := range c.debits {
		seen[a] = struct{}{}
	}
	out := make([]types.Address, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
